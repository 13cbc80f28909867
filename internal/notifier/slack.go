package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/rolecall/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends recommended matches to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	spacing    time.Duration // pause between messages
}

// NewSlackNotifier returns a notifier that posts each match to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		spacing:    500 * time.Millisecond,
	}
}

// Notify sends each match as a separate Slack message using Block Kit.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(ctx context.Context, matches []model.Match) error {
	if len(matches) == 0 {
		return nil
	}

	failures := 0
	for i, m := range matches {
		if i > 0 {
			if err := sleep(ctx, s.spacing); err != nil {
				return err
			}
		}

		if err := s.sendMessage(ctx, m); err != nil {
			s.logger.Error("slack notification failed", "company", m.Listing.Company, "title", m.Listing.Title, "error", err)
			failures++
		}
	}

	sent := len(matches) - failures
	if failures == len(matches) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", sent, "failed", failures)
	return nil
}

func (s *SlackNotifier) sendMessage(ctx context.Context, m model.Match) error {
	body, err := json.Marshal(buildPayload(m))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		if err := sleep(ctx, retryAfter); err != nil {
			return err
		}
		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack message sent", "company", m.Listing.Company, "title", m.Listing.Title, "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack message sent", "company", m.Listing.Company, "title", m.Listing.Title)
	return nil
}

// post sends body and returns the status and Retry-After (at least one second).
func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

// SendTestMessage sends a sample match to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	now := time.Now()
	match := model.Match{
		Listing: model.JobListing{
			RawListing: model.RawListing{
				ExternalID:    "test-001",
				SourceBoard:   "test",
				Title:         "Test Notification: Integration Verified",
				Company:       "RoleCall",
				LocationRaw:   "Everywhere",
				SourceURL:     "https://www.seek.com.au/",
				SalaryDisplay: "$80,000 - $90,000",
				DatePosted:    &now,
			},
			ID: "test-001",
		},
		UserJob: model.UserJob{
			Status:           model.StatusRecommended,
			AIScore:          88,
			AIRecommendation: model.Recommended,
			AIReasoning:      "This is a test message. If you can read it, notifications are working.",
			AITriagedAt:      &now,
		},
	}
	return n.Notify(ctx, []model.Match{match})
}

func buildPayload(m model.Match) slackPayload {
	l := m.Listing

	postedText := "Just detected"
	if l.DatePosted != nil {
		postedText = l.DatePosted.Format("Mon 2 Jan 2006")
	}
	salary := l.SalaryDisplay
	if salary == "" {
		salary = "Not listed"
	}
	location := l.LocationRaw
	if location == "" {
		location = "Not listed"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "⭐ " + l.Company + ": " + l.Title},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + l.Company},
				{Type: "mrkdwn", Text: "*Location:*\n" + location},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Match:*\n%d/100", m.UserJob.AIScore)},
				{Type: "mrkdwn", Text: "*Salary:*\n" + salary},
				{Type: "mrkdwn", Text: "*Posted:*\n" + postedText},
				{Type: "mrkdwn", Text: "*Board:*\n" + l.SourceBoard},
			},
		},
	}

	if m.UserJob.AIReasoning != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "_" + m.UserJob.AIReasoning + "_"},
		})
	}

	blocks = append(blocks,
		slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "View Listing"},
					URL:   l.SourceURL,
					Style: "primary",
				},
			},
		},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Blocks: blocks}
}
