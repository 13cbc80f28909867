// Package pipeline holds the scrape and triage job processors that connect
// scrapers, the dedup layer and the classifier through the two queues.
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
	"github.com/amishk599/rolecall/internal/retry"
	"github.com/amishk599/rolecall/internal/scraper"
)

// Enqueuer adds jobs to a queue.
type Enqueuer interface {
	Add(ctx context.Context, jobName string, payload any, opts queue.AddOptions) (string, error)
}

// ScrapeStore is the store surface the scrape processor needs.
type ScrapeStore interface {
	ProfileByID(ctx context.Context, id string) (model.SearchProfile, error)
	MarkProfileScraped(ctx context.Context, id string, at time.Time) error
	CreateScrapeRun(ctx context.Context, profileID, board string) (model.ScrapeRun, error)
	SealScrapeRun(ctx context.Context, id string, out model.RunOutcome) error
}

// Upserter stores a raw listing and reports whether it was new.
type Upserter interface {
	Upsert(ctx context.Context, raw model.RawListing) (model.JobListing, bool, error)
}

// Scrapers resolves a board id to its scraper.
type Scrapers interface {
	Get(board string) (scraper.Scraper, bool)
}

// ScrapeProcessor runs one (profile, board) scrape per job.
type ScrapeProcessor struct {
	store    ScrapeStore
	scrapers Scrapers
	upserter Upserter
	triage   Enqueuer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewScrapeProcessor wires a scrape processor. m may be nil.
func NewScrapeProcessor(
	store ScrapeStore,
	scrapers Scrapers,
	upserter Upserter,
	triage Enqueuer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ScrapeProcessor {
	return &ScrapeProcessor{
		store:    store,
		scrapers: scrapers,
		upserter: upserter,
		triage:   triage,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle is the scrape queue's job handler.
func (p *ScrapeProcessor) Handle(ctx context.Context, job queue.Job) error {
	payload, err := decode[ScrapePayload](job)
	if err != nil {
		return err
	}
	_, err = p.Run(ctx, payload)
	return err
}

// Run scrapes one board for one profile and seals the run exactly once.
// Configuration errors (unknown profile or board) are permanent.
func (p *ScrapeProcessor) Run(ctx context.Context, payload ScrapePayload) (model.RunOutcome, error) {
	profile, err := p.store.ProfileByID(ctx, payload.ProfileID)
	if errors.Is(err, model.ErrNotFound) {
		return model.RunOutcome{}, retry.Permanent(fmt.Errorf("search profile %s not found", payload.ProfileID))
	}
	if err != nil {
		return model.RunOutcome{}, fmt.Errorf("loading profile %s: %w", payload.ProfileID, err)
	}

	run, err := p.store.CreateScrapeRun(ctx, profile.ID, payload.Board)
	if err != nil {
		return model.RunOutcome{}, err
	}
	start := time.Now()
	logger := p.logger.With("board", payload.Board, "profile_id", profile.ID, "run_id", run.ID)
	logger.Info("scrape started")

	s, ok := p.scrapers.Get(payload.Board)
	if !ok {
		out := model.RunOutcome{
			Status:       model.RunFailed,
			ErrorMessage: "No scraper registered for board: " + payload.Board,
		}
		p.seal(ctx, run, out, start, logger)
		return out, retry.Permanent(errors.New(out.ErrorMessage))
	}

	out, scrapeErr := p.scrape(ctx, s, profile, logger)
	if scrapeErr != nil {
		out.Status = model.RunFailed
		out.ErrorMessage = scrapeErr.Error()
	} else {
		out.Status = model.RunCompleted
	}
	if err := p.seal(ctx, run, out, start, logger); err != nil && scrapeErr == nil {
		return out, err
	}
	if scrapeErr != nil {
		logger.Error("scrape failed", "found", out.JobsFound, "new", out.JobsNew, "error", scrapeErr)
		return out, fmt.Errorf("scraping %s for profile %s: %w", payload.Board, profile.ID, scrapeErr)
	}

	if err := p.store.MarkProfileScraped(ctx, profile.ID, p.now()); err != nil {
		return out, err
	}

	logger.Info("scrape completed",
		"found", out.JobsFound,
		"new", out.JobsNew,
		"updated", out.JobsUpdated,
		"elapsed", time.Since(start),
	)
	return out, nil
}

// scrape drains the scraper, upserting each listing and queueing triage for
// the new ones. Counts gathered before an error are returned with it.
func (p *ScrapeProcessor) scrape(ctx context.Context, s scraper.Scraper, profile model.SearchProfile, logger *slog.Logger) (model.RunOutcome, error) {
	var out model.RunOutcome

	for raw, err := range s.Scrape(ctx, scraper.ParamsFromProfile(profile)) {
		if err != nil {
			return out, err
		}
		out.JobsFound++

		listing, isNew, err := p.upserter.Upsert(ctx, raw)
		if err != nil {
			return out, err
		}
		p.metrics.ListingSeen(s.Board(), isNew)
		if !isNew {
			out.JobsUpdated++
			continue
		}
		out.JobsNew++

		// the listing row is committed, so triage can never see a missing listing
		payload := TriagePayload{JobListingID: listing.ID, ProfileID: profile.ID, UserID: profile.UserID}
		opts := queue.AddOptions{JobID: "triage:" + profile.UserID + ":" + listing.ID}
		if _, err := p.triage.Add(ctx, TriageJobName, payload, opts); err != nil {
			return out, fmt.Errorf("queueing triage for listing %s: %w", listing.ID, err)
		}
		logger.Debug("queued triage", "listing_id", listing.ID, "title", listing.Title)
	}
	return out, nil
}

// seal records the terminal state. It runs even when ctx has been cancelled so
// a shutdown never leaves the run open.
func (p *ScrapeProcessor) seal(ctx context.Context, run model.ScrapeRun, out model.RunOutcome, start time.Time, logger *slog.Logger) error {
	if err := p.store.SealScrapeRun(context.WithoutCancel(ctx), run.ID, out); err != nil {
		logger.Error("sealing scrape run failed", "status", out.Status, "error", err)
		return err
	}
	p.metrics.ScrapeRunFinished(run.Board, string(out.Status), time.Since(start))
	return nil
}
