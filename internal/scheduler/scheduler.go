// Package scheduler turns search profiles into recurring scrape jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/pipeline"
	"github.com/amishk599/rolecall/internal/queue"
)

// ProfileChangedChannel carries the id of a profile whose schedule must be rebuilt.
const ProfileChangedChannel = "rolecall:profiles:changed"

const enqueueTimeout = 10 * time.Second

// Enqueuer adds jobs to the scrape queue.
type Enqueuer interface {
	Add(ctx context.Context, jobName string, payload any, opts queue.AddOptions) (string, error)
}

// ProfileSource loads profiles in system context.
type ProfileSource interface {
	ProfileByID(ctx context.Context, id string) (model.SearchProfile, error)
	ActiveProfiles(ctx context.Context) ([]model.SearchProfile, error)
}

// Scheduler owns one cron entry per (profile, board) pair plus housekeeping entries.
type Scheduler struct {
	cron     *cron.Cron
	profiles ProfileSource
	scrape   Enqueuer
	rdb      *redis.Client
	logger   *slog.Logger

	mu        sync.Mutex
	entries   map[string]cron.EntryID // schedule key -> cron entry
	byProfile map[string][]string     // profile id -> schedule keys
}

// Options configure a Scheduler.
type Options struct {
	Location *time.Location // times of day are evaluated here; nil means Local
	Redis    *redis.Client  // optional; enables profile-change events
}

// New creates a scheduler. Nothing fires until Run is called.
func New(profiles ProfileSource, scrape Enqueuer, opts Options, logger *slog.Logger) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		profiles:  profiles,
		scrape:    scrape,
		rdb:       opts.Redis,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
		byProfile: make(map[string][]string),
	}
}

// ScheduleKey identifies the recurring job for a (profile, board) pair.
func ScheduleKey(profileID, board string) string {
	return "scrape:" + profileID + ":" + board
}

// CronSpec maps a check interval onto a small set of fixed times of day.
func CronSpec(hours int) string {
	switch {
	case hours <= 6:
		return "0 */6 * * *"
	case hours <= 12:
		return "0 */12 * * *"
	case hours <= 24:
		return "0 6 * * *"
	case hours <= 48:
		return "0 6 */2 * *"
	case hours <= 72:
		return "0 6 */3 * *"
	default:
		return "0 6 * * 1"
	}
}

// Register replaces every schedule of p with one entry per board when p is
// active. Calling it again with the same profile leaves exactly one entry per
// (profile, board) key.
func (s *Scheduler) Register(p model.SearchProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(p.ID)
	if !p.IsActive {
		return nil
	}

	spec := CronSpec(p.ScrapeIntervalHours)
	for _, board := range p.Boards {
		key := ScheduleKey(p.ID, board)
		if _, dup := s.entries[key]; dup {
			continue
		}
		payload := pipeline.ScrapePayload{ProfileID: p.ID, Board: board}
		id, err := s.cron.AddFunc(spec, func() { s.fire(key, payload) })
		if err != nil {
			s.removeLocked(p.ID)
			return fmt.Errorf("scheduling %s with %q: %w", key, spec, err)
		}
		s.entries[key] = id
		s.byProfile[p.ID] = append(s.byProfile[p.ID], key)
	}

	s.logger.Info("scheduled profile",
		"profile_id", p.ID,
		"profile", p.Name,
		"interval_hours", p.ScrapeIntervalHours,
		"cron", spec,
		"boards", len(p.Boards),
	)
	return nil
}

// Unregister removes every schedule of the profile.
func (s *Scheduler) Unregister(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(profileID)
}

func (s *Scheduler) removeLocked(profileID string) {
	for _, key := range s.byProfile[profileID] {
		if id, ok := s.entries[key]; ok {
			s.cron.Remove(id)
			delete(s.entries, key)
		}
	}
	delete(s.byProfile, profileID)
}

// Keys lists the registered schedule keys in sorted order.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Initialize registers every active profile and enqueues one immediate scrape
// per board for profiles that have never been scraped. It returns the number
// of immediate jobs enqueued.
func (s *Scheduler) Initialize(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ActiveProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading active profiles: %w", err)
	}
	s.logger.Info("initializing schedules", "active_profiles", len(profiles))

	var errs []error
	for _, p := range profiles {
		if err := s.Register(p); err != nil {
			errs = append(errs, err)
		}
	}

	queued := 0
	for _, p := range profiles {
		if p.LastScrapedAt != nil {
			continue
		}
		for _, board := range p.Boards {
			payload := pipeline.ScrapePayload{ProfileID: p.ID, Board: board}
			if _, err := s.scrape.Add(ctx, pipeline.ScrapeJobName, payload, queue.AddOptions{}); err != nil {
				errs = append(errs, fmt.Errorf("queueing initial scrape %s: %w", ScheduleKey(p.ID, board), err))
				continue
			}
			queued++
		}
		s.logger.Info("queued initial scrape", "profile_id", p.ID, "profile", p.Name, "boards", len(p.Boards))
	}
	return queued, errors.Join(errs...)
}

// fire enqueues one scheduled scrape. The job id includes the minute so two
// processes firing the same entry produce a single job.
func (s *Scheduler) fire(key string, payload pipeline.ScrapePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	jobID := key + ":" + strconv.FormatInt(time.Now().Truncate(time.Minute).Unix(), 10)
	if _, err := s.scrape.Add(ctx, pipeline.ScrapeJobName, payload, queue.AddOptions{JobID: jobID}); err != nil {
		s.logger.Error("enqueue scheduled scrape failed", "key", key, "error", err)
		return
	}
	s.logger.Debug("enqueued scheduled scrape", "key", key, "job_id", jobID)
}

// AddHousekeeping registers a named maintenance task on spec (for example "@every 15m").
func (s *Scheduler) AddHousekeeping(name, spec string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("running housekeeping", "task", name)
		fn(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling %s with %q: %w", name, spec, err)
	}
	return nil
}

// Reload rebuilds the schedules of one profile from the store. A deleted or
// inactive profile loses its schedules.
func (s *Scheduler) Reload(ctx context.Context, profileID string) error {
	p, err := s.profiles.ProfileByID(ctx, profileID)
	if errors.Is(err, model.ErrNotFound) {
		s.Unregister(profileID)
		s.logger.Info("profile gone, schedules removed", "profile_id", profileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reloading profile %s: %w", profileID, err)
	}
	return s.Register(p)
}

// Run starts the cron clock and, when Redis is configured, listens for
// profile-change events. It returns when ctx is cancelled, after any running
// cron task has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))

	var events <-chan *redis.Message
	if s.rdb != nil {
		sub := s.rdb.Subscribe(ctx, ProfileChangedChannel)
		defer sub.Close()
		if _, err := sub.Receive(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("subscribing to profile changes failed", "error", err)
		} else {
			events = sub.Channel()
		}
	}

	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			s.logger.Info("scheduler stopped")
			return nil
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := s.Reload(ctx, msg.Payload); err != nil {
				s.logger.Error("applying profile change failed", "profile_id", msg.Payload, "error", err)
			}
		}
	}
}

// PublishProfileChanged notifies running schedulers that a profile was
// created, edited, activated, deactivated or deleted.
func PublishProfileChanged(ctx context.Context, rdb *redis.Client, profileID string) error {
	if err := rdb.Publish(ctx, ProfileChangedChannel, profileID).Err(); err != nil {
		return fmt.Errorf("publishing profile change: %w", err)
	}
	return nil
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
