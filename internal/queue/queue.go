// Package queue is a durable Postgres-backed work queue. Every pipeline
// stage commits its state change and enqueues the next stage as a new job,
// so a crash between stages is recoverable from persisted state alone.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/metrics"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobExhausted JobStatus = "exhausted"
)

// Job is one claimed unit of work.
type Job struct {
	ID          string
	Kind        string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
}

// terminalError marks a failure that must not be retried.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps an error so the queue fails the job immediately instead of
// retrying. Used for configuration and data errors where retrying cannot help.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err carries the no-retry marker.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}

// HandlerFunc processes one job. A nil return completes the job; an error
// reschedules it per the registered options until attempts are exhausted.
type HandlerFunc func(ctx context.Context, job *Job) error

// ExhaustedFunc runs after a job's final failed attempt.
type ExhaustedFunc func(ctx context.Context, job *Job, lastErr error)

// Options configure retry behavior for a job kind.
type Options struct {
	MaxAttempts int
	// Backoff delays indexed by completed attempt count; the last entry
	// repeats when attempts exceed its length.
	Backoff []time.Duration
	// Timeout bounds one attempt's wall clock.
	Timeout     time.Duration
	OnExhausted ExhaustedFunc
}

type handlerEntry struct {
	fn   HandlerFunc
	opts Options
}

// Queue polls the queue_jobs table and dispatches claimed jobs to registered
// handlers on a worker pool.
type Queue struct {
	db       *sql.DB
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	handlers map[string]handlerEntry

	workers      int
	pollInterval time.Duration
	reapInterval time.Duration
	// staleAfter is how long a job may sit 'running' before the reaper
	// assumes its worker died and returns it to the pool. Must exceed
	// the longest registered handler timeout.
	staleAfter time.Duration
}

func New(db *sql.DB, logger *zap.SugaredLogger, m *metrics.Metrics, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		db:           db,
		logger:       logger,
		metrics:      m,
		handlers:     make(map[string]handlerEntry),
		workers:      workers,
		pollInterval: time.Second,
		reapInterval: time.Minute,
		staleAfter:   30 * time.Minute,
	}
}

// Register binds a handler to a job kind. Must be called before Run.
func (q *Queue) Register(kind string, fn HandlerFunc, opts Options) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = []time.Duration{time.Minute}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	q.handlers[kind] = handlerEntry{fn: fn, opts: opts}
}

// Enqueue schedules a job for immediate execution.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	return q.EnqueueAt(ctx, kind, payload, time.Now())
}

// EnqueueAt schedules a job for execution at or after runAt.
func (q *Queue) EnqueueAt(ctx context.Context, kind string, payload any, runAt time.Time) (string, error) {
	entry, ok := q.handlers[kind]
	if !ok {
		return "", fmt.Errorf("no handler registered for job kind %q", kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (id, kind, payload, status, run_at, max_attempts)
		VALUES ($1, $2, $3, 'pending', $4, $5)
	`, id, kind, data, runAt, entry.opts.MaxAttempts)
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	if q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, 1)
	}
	q.logger.Debugw("Job enqueued", "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Infow("Work queue starting", "workers", q.workers)

	done := make(chan struct{})
	for i := 0; i < q.workers; i++ {
		go func(worker int) {
			defer func() { done <- struct{}{} }()
			q.workLoop(ctx, worker)
		}(i)
	}
	go q.reapLoop(ctx)

	for i := 0; i < q.workers; i++ {
		<-done
	}
	q.logger.Infow("Work queue stopped")
	return ctx.Err()
}

// reapLoop returns jobs abandoned mid-attempt by a dead worker to
// 'pending' so another worker picks them up. The claim already counted
// the attempt, so the ceiling still holds.
func (q *Queue) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(q.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := q.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = 'pending', last_error = 'reclaimed from dead worker', updated_at = NOW()
			WHERE status = 'running' AND updated_at < NOW() - $1::interval
		`, fmt.Sprintf("%d seconds", int(q.staleAfter.Seconds())))
		if err != nil {
			if ctx.Err() == nil {
				q.logger.Errorw("Failed to reap stale jobs", "error", err)
			}
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			q.logger.Warnw("Reclaimed stale running jobs", "count", n)
		}
	}
}

func (q *Queue) workLoop(ctx context.Context, worker int) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			job, err := q.claim(ctx)
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Errorw("Failed to claim job", "worker", worker, "error", err)
				}
				break
			}
			if job == nil {
				break
			}
			q.execute(ctx, job)
		}
	}
}

// claim atomically takes the next runnable job. FOR UPDATE SKIP LOCKED keeps
// concurrent workers from double-claiming.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE queue_jobs
		SET status = 'running', attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM queue_jobs
			WHERE status = 'pending' AND run_at <= NOW()
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, kind, payload, attempts, max_attempts, run_at, last_error, created_at
	`)

	var job Job
	err := row.Scan(&job.ID, &job.Kind, &job.Payload, &job.Attempts,
		&job.MaxAttempts, &job.RunAt, &job.LastError, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	entry, ok := q.handlers[job.Kind]
	if !ok {
		q.logger.Errorw("No handler for claimed job", "id", job.ID, "kind", job.Kind)
		q.finish(ctx, job, JobExhausted, "no handler registered")
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, entry.opts.Timeout)
	err := entry.fn(attemptCtx, job)
	cancel()

	if err == nil {
		q.finish(ctx, job, JobDone, "")
		return
	}

	exhausted := job.Attempts >= entry.opts.MaxAttempts || IsTerminal(err)
	if exhausted {
		// Distinct severity so monitoring can alert on exhaustion specifically.
		q.logger.Errorw("Job exhausted retries",
			"id", job.ID,
			"kind", job.Kind,
			"attempts", job.Attempts,
			"terminal", true,
			"error", err,
		)
		if q.metrics != nil {
			q.metrics.StageExhausted.Add(ctx, 1)
		}
		q.finish(ctx, job, JobExhausted, err.Error())
		if entry.opts.OnExhausted != nil {
			entry.opts.OnExhausted(ctx, job, err)
		}
		return
	}

	delay := backoffDelay(entry.opts.Backoff, job.Attempts)
	q.logger.Warnw("Job attempt failed, rescheduling",
		"id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempts,
		"retryIn", delay,
		"error", err,
	)
	if _, dbErr := q.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = 'pending', run_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, job.ID, time.Now().Add(delay), err.Error()); dbErr != nil {
		q.logger.Errorw("Failed to reschedule job", "id", job.ID, "error", dbErr)
	}
}

func (q *Queue) finish(ctx context.Context, job *Job, status JobStatus, lastErr string) {
	if _, err := q.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1
	`, job.ID, status, lastErr); err != nil {
		q.logger.Errorw("Failed to finish job", "id", job.ID, "status", status, "error", err)
		return
	}
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, -1)
	}
}

// backoffDelay returns the delay after the given completed attempt count,
// repeating the final entry.
func backoffDelay(schedule []time.Duration, attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
