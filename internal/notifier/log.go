package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/rolecall/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes recommended matches to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each match via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each match. It never fails.
func (n *LogNotifier) Notify(_ context.Context, matches []model.Match) error {
	for _, m := range matches {
		args := []any{
			"user_id", m.UserJob.UserID,
			"company", m.Listing.Company,
			"title", m.Listing.Title,
			"location", m.Listing.LocationRaw,
			"score", m.UserJob.AIScore,
			"url", m.Listing.SourceURL,
		}
		if m.Listing.SalaryDisplay != "" {
			args = append(args, "salary", m.Listing.SalaryDisplay)
		}
		n.logger.Info("recommended job", args...)
	}
	return nil
}
