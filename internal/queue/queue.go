// Package queue is a small Redis-backed job queue: named queues with delayed
// jobs, per-queue retry policy, and bounded worker pools.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rolecall:"

// defaultRetention is how long finished job hashes are kept for inspection.
const defaultRetention = 24 * time.Hour

// Options is the retry and retention policy for one queue.
type Options struct {
	Attempts      int           // total tries per job, including the first
	Backoff       time.Duration // base delay, doubled on each retry
	KeepCompleted int64         // completed ids kept in the history list
	KeepFailed    int64         // failed ids kept in the history list
	Retention     time.Duration // TTL of a finished job's hash
}

// AddOptions tune a single Add call.
type AddOptions struct {
	// JobID makes Add idempotent: a second Add with the same id while the
	// first job's hash still exists is a no-op.
	JobID string
	Delay time.Duration
}

// Job is one unit of work read back from Redis.
type Job struct {
	ID          string
	Name        string
	Data        json.RawMessage
	Attempts    int // tries made so far, including the current one
	MaxAttempts int
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decoding job %s payload: %w", j.ID, err)
	}
	return nil
}

// Counts is a snapshot of a queue's state.
type Counts struct {
	Waiting   int64
	Active    int64
	Delayed   int64
	Completed int64
	Failed    int64
}

// Queue is a named queue in Redis. Safe for concurrent use.
type Queue struct {
	rdb    *redis.Client
	name   string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// Connect parses a redis:// URL and verifies the server is reachable. The
// returned client is shared by every queue and the scheduler; closing it
// releases them all.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// New returns a handle on the queue called name.
func New(rdb *redis.Client, name string, opts Options, logger *slog.Logger) *Queue {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.KeepCompleted <= 0 {
		opts.KeepCompleted = 100
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = 50
	}
	return &Queue{
		rdb:    rdb,
		name:   name,
		opts:   opts,
		logger: logger.With("queue", name),
		now:    time.Now,
	}
}

// addScript creates the job hash and enqueues its id in one step, or does
// nothing when the hash already exists. ARGV[5] > 0 schedules the job on the
// delayed set instead of the wait list.
var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "name", ARGV[1], "data", ARGV[2], "attempts", 0, "max_attempts", ARGV[3], "created_at", ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call("ZADD", KEYS[3], ARGV[5], ARGV[6])
else
	redis.call("LPUSH", KEYS[2], ARGV[6])
end
return 1
`)

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) key(part string) string   { return keyPrefix + q.name + ":" + part }
func (q *Queue) jobKey(id string) string { return q.key("job:" + id) }

// Add enqueues payload as JSON under jobName and returns the job id.
func (q *Queue) Add(ctx context.Context, jobName string, payload any, opts AddOptions) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", jobName, err)
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}

	var score int64
	if opts.Delay > 0 {
		score = q.now().Add(opts.Delay).UnixMilli()
	}
	created, err := addScript.Run(ctx, q.rdb,
		[]string{q.jobKey(id), q.key("wait"), q.key("delayed")},
		jobName, string(data), q.opts.Attempts, q.now().UnixMilli(), score, id,
	).Int()
	if err != nil {
		return "", fmt.Errorf("adding job %s: %w", id, err)
	}
	if created == 0 {
		q.logger.Debug("job already exists, skipping", "job_id", id)
	}
	return id, nil
}

// Counts reports how many jobs are in each state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var (
		waiting, active, completed, failed *redis.IntCmd
		delayed                            *redis.IntCmd
	)
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, q.key("wait"))
		active = pipe.LLen(ctx, q.key("active"))
		delayed = pipe.ZCard(ctx, q.key("delayed"))
		completed = pipe.LLen(ctx, q.key("completed"))
		failed = pipe.LLen(ctx, q.key("failed"))
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("counting %s jobs: %w", q.name, err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// promoteDelayed moves delayed jobs whose time has come onto the wait list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("reading delayed jobs: %w", err)
	}
	for _, id := range ids {
		// ZREM decides which worker owns the promotion.
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return fmt.Errorf("promoting job %s: %w", id, err)
		}
		if removed == 1 {
			if err := q.rdb.LPush(ctx, q.key("wait"), id).Err(); err != nil {
				return fmt.Errorf("promoting job %s: %w", id, err)
			}
		}
	}
	return nil
}

// claim moves the oldest waiting job to the active list. ok is false when the
// queue is empty.
func (q *Queue) claim(ctx context.Context) (job Job, ok bool, err error) {
	id, err := q.rdb.LMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("claiming job: %w", err)
	}

	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("loading job %s: %w", id, err)
	}
	if len(fields) == 0 {
		q.logger.Warn("dropping job with no data", "job_id", id)
		if err := q.rdb.LRem(ctx, q.key("active"), 1, id).Err(); err != nil {
			q.logger.Error("removing job with no data failed", "job_id", id, "error", err)
		}
		return Job{}, false, nil
	}

	attempts, err := q.rdb.HIncrBy(ctx, q.jobKey(id), "attempts", 1).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("counting attempt for job %s: %w", id, err)
	}
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	if maxAttempts < 1 {
		maxAttempts = q.opts.Attempts
	}

	return Job{
		ID:          id,
		Name:        fields["name"],
		Data:        json.RawMessage(fields["data"]),
		Attempts:    int(attempts),
		MaxAttempts: maxAttempts,
	}, true, nil
}

// complete records a successful job.
func (q *Queue) complete(ctx context.Context, job Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), "finished_at", q.now().UnixMilli())
		pipe.Expire(ctx, q.jobKey(job.ID), q.opts.Retention)
		pipe.LPush(ctx, q.key("completed"), job.ID)
		pipe.LTrim(ctx, q.key("completed"), 0, q.opts.KeepCompleted-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return nil
}

// fail records a job that will not be retried.
func (q *Queue) fail(ctx context.Context, job Job, cause error) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID),
			"failed_reason", cause.Error(),
			"finished_at", q.now().UnixMilli(),
		)
		pipe.Expire(ctx, q.jobKey(job.ID), q.opts.Retention)
		pipe.LPush(ctx, q.key("failed"), job.ID)
		pipe.LTrim(ctx, q.key("failed"), 0, q.opts.KeepFailed-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failing job %s: %w", job.ID, err)
	}
	return nil
}

// retryLater schedules job for another attempt after delay.
func (q *Queue) retryLater(ctx context.Context, job Job, cause error, delay time.Duration) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), "last_error", cause.Error())
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{
			Score:  float64(q.now().Add(delay).UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduling retry for job %s: %w", job.ID, err)
	}
	return nil
}

// release puts an unfinished job back at the head of the wait list without
// counting the attempt.
func (q *Queue) release(ctx context.Context, job Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.HIncrBy(ctx, q.jobKey(job.ID), "attempts", -1)
		pipe.RPush(ctx, q.key("wait"), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("releasing job %s: %w", job.ID, err)
	}
	return nil
}

// requeueStalled moves jobs left on the active list by a stopped worker back
// to the head of the wait list.
func (q *Queue) requeueStalled(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := q.rdb.LMove(ctx, q.key("active"), q.key("wait"), "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeueing stalled jobs: %w", err)
		}
		n++
	}
}
