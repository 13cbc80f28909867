package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/rolecall/internal/metrics"
	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/queue"
)

// TriageStore is the store surface the triage processor needs.
type TriageStore interface {
	ListingByID(ctx context.Context, id string) (model.JobListing, error)
	ProfileByID(ctx context.Context, id string) (model.SearchProfile, error)
	CreateUserJob(ctx context.Context, j model.UserJob) (model.UserJob, bool, error)
}

// TriageProcessor classifies one listing for one user per job.
type TriageProcessor struct {
	store      TriageStore
	classifier model.Classifier
	notifier   model.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewTriageProcessor wires a triage processor. notifier and m may be nil.
func NewTriageProcessor(
	store TriageStore,
	classifier model.Classifier,
	notifier model.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TriageProcessor {
	return &TriageProcessor{
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle is the triage queue's job handler.
func (p *TriageProcessor) Handle(ctx context.Context, job queue.Job) error {
	payload, err := decode[TriagePayload](job)
	if err != nil {
		return err
	}
	return p.Run(ctx, payload)
}

// Run classifies the listing and records the user's triage result. A listing
// or profile deleted since the job was queued is skipped. Classifier errors
// are returned so the queue retries them.
func (p *TriageProcessor) Run(ctx context.Context, payload TriagePayload) error {
	logger := p.logger.With("listing_id", payload.JobListingID, "user_id", payload.UserID)

	listing, err := p.store.ListingByID(ctx, payload.JobListingID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Warn("listing missing, skipping triage")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading listing %s: %w", payload.JobListingID, err)
	}

	profile, err := p.store.ProfileByID(ctx, payload.ProfileID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Warn("profile missing, skipping triage", "profile_id", payload.ProfileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading profile %s: %w", payload.ProfileID, err)
	}

	result, err := p.classifier.Classify(ctx, model.NewTriageInput(listing, profile))
	if err != nil {
		return fmt.Errorf("classifying listing %s: %w", listing.ID, err)
	}
	p.metrics.Triaged(string(result.Recommendation))

	now := p.now()
	status := model.StatusForRecommendation(result.Recommendation)
	userJob, created, err := p.store.CreateUserJob(ctx, model.UserJob{
		UserID:           payload.UserID,
		JobListingID:     listing.ID,
		SearchProfileID:  profile.ID,
		Status:           status,
		StatusChangedAt:  now,
		AIScore:          result.Score,
		AIRecommendation: result.Recommendation,
		AIReasoning:      result.Reasoning,
		AITriagedAt:      &now,
	})
	if err != nil {
		return err
	}
	if !created {
		logger.Debug("listing already triaged for user")
		return nil
	}

	logger.Info("triaged job",
		"title", listing.Title,
		"company", listing.Company,
		"score", result.Score,
		"status", status,
	)

	if status == model.StatusRecommended && p.notifier != nil {
		if err := p.notifier.Notify(ctx, []model.Match{{Listing: listing, UserJob: userJob}}); err != nil {
			logger.Warn("notifying recommended job failed", "error", err)
		}
	}
	return nil
}
