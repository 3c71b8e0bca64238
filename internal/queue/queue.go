package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/TimurManjosov/activitygate/internal/telemetry"
)

const (
	defaultWorkers      = 8
	defaultPollInterval = time.Second
	defaultInitialDelay = 10 * time.Second
	defaultMaxDelay     = 5 * time.Hour
)

// Executor performs one delivery attempt.
type Executor interface {
	Execute(ctx context.Context, job Job) Result
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) Result

func (f ExecutorFunc) Execute(ctx context.Context, job Job) Result { return f(ctx, job) }

// Observer is called after every attempt with the job's new state.
type Observer func(job Job, res Result)

// Queue executes jobs from a JobStore on a bounded worker pool.
type Queue struct {
	store    JobStore
	exec     Executor
	clock    Clock
	backoff  Backoff
	online   Connectivity
	observer Observer
	log      zerolog.Logger

	workers  int
	poll     time.Duration
	inflight atomic.Int64
	closed   atomic.Bool
	wake     chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

func WithClock(c Clock) Option               { return func(q *Queue) { q.clock = c } }
func WithBackoff(b Backoff) Option           { return func(q *Queue) { q.backoff = b } }
func WithConnectivity(c Connectivity) Option { return func(q *Queue) { q.online = c } }
func WithObserver(o Observer) Option         { return func(q *Queue) { q.observer = o } }

// WithWorkers bounds the number of concurrent attempts.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithPollInterval sets how often due jobs are looked up.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// New creates a Queue. Defaults: 8 workers, 1s polling, exponential backoff
// from 10s up to 5h, always online, real clock.
func New(store JobStore, exec Executor, log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		exec:    exec,
		clock:   realClock{},
		backoff: ExponentialBackoff(defaultInitialDelay, defaultMaxDelay),
		online:  AlwaysOnline,
		log:     log.With().Str("component", "queue").Logger(),
		workers: defaultWorkers,
		poll:    defaultPollInterval,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores job as pending and due immediately. It assigns an ID when
// the job has none.
func (q *Queue) Enqueue(ctx context.Context, job Job) (Job, error) {
	if q.closed.Load() {
		return job, ErrQueueClosed
	}
	now := q.clock.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.State = StatePending
	job.Attempt = 0
	job.NextAttemptAt = now
	job.CreatedAt = now

	if err := q.store.Add(ctx, job); err != nil {
		return job, fmt.Errorf("enqueue job for rule %s: %w", job.RuleKey, err)
	}
	telemetry.QueueDepth.Inc()
	q.log.Debug().Str("job_id", job.ID).Str("rule_key", job.RuleKey).Msg("job enqueued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Pending returns the number of jobs not yet finished.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

// Run drives the queue until ctx is cancelled, then waits for in-flight
// attempts. Attempts run with a context detached from ctx so that shutdown
// does not charge them a failure.
func (q *Queue) Run(ctx context.Context) error {
	defer q.closed.Store(true)

	if n, err := q.store.Recover(ctx, q.clock.Now()); err != nil {
		q.log.Error().Err(err).Msg("failed to recover running jobs")
	} else if n > 0 {
		q.log.Info().Int("jobs", n).Msg("recovered interrupted jobs")
	}
	// Jobs persisted by an earlier process never passed through Enqueue.
	if n, err := q.store.Len(ctx); err != nil {
		q.log.Error().Err(err).Msg("failed to count stored jobs")
	} else {
		telemetry.QueueDepth.Set(float64(n))
	}

	p := pool.New().WithMaxGoroutines(q.workers)
	defer p.Wait()

	for {
		free := q.workers - int(q.inflight.Load())
		if free > 0 {
			if _, err := q.dispatch(ctx, p, free); err != nil {
				q.log.Error().Err(err).Msg("failed to claim due jobs")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		case <-q.clock.After(q.poll):
		}
	}
}

// RunOnce claims every due job, executes them and waits for the results.
// It returns the number of attempts made.
func (q *Queue) RunOnce(ctx context.Context) (int, error) {
	p := pool.New().WithMaxGoroutines(q.workers)
	n, err := q.dispatch(ctx, p, 0)
	p.Wait()
	return n, err
}

func (q *Queue) dispatch(ctx context.Context, p *pool.Pool, limit int) (int, error) {
	if !q.online.Online(ctx) {
		q.log.Debug().Msg("offline, deliveries deferred")
		return 0, nil
	}

	jobs, err := q.store.Claim(ctx, q.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	runCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		q.inflight.Add(1)
		p.Go(func() {
			defer q.inflight.Add(-1)
			q.attempt(runCtx, job)
		})
	}
	return len(jobs), nil
}

func (q *Queue) attempt(ctx context.Context, job Job) {
	start := time.Now()
	res := q.exec.Execute(ctx, job)
	telemetry.DeliveryDuration.Observe(time.Since(start).Seconds())
	telemetry.Deliveries.WithLabelValues(res.Outcome.String()).Inc()

	next := Transition(job, res, q.clock.Now(), q.backoff)

	logger := q.log.With().
		Str("job_id", next.ID).
		Str("rule_key", next.RuleKey).
		Int("attempt", next.Attempt).
		Int("max_attempts", next.MaxAttempts).
		Int("status", res.Status).
		Logger()

	switch next.State {
	case StateSucceeded:
		logger.Info().Msg("delivery succeeded")
	case StateFailed:
		logger.Warn().Str("reason", res.Reason).Msg("delivery failed permanently")
	default:
		logger.Info().Str("reason", res.Reason).
			Dur("retry_in", next.NextAttemptAt.Sub(q.clock.Now())).
			Msg("delivery failed, retrying")
	}

	if next.State.Terminal() {
		if err := q.store.Delete(ctx, next.ID); err != nil {
			logger.Error().Err(err).Msg("failed to drop finished job")
		}
		telemetry.QueueDepth.Dec()
	} else if err := q.store.Update(ctx, next); err != nil {
		logger.Error().Err(err).Msg("failed to reschedule job")
	}

	if q.observer != nil {
		q.observer(next, res)
	}
}
