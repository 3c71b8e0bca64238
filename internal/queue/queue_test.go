package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return time.After(time.Millisecond)
}

func testJob(maxAttempts int) Job {
	r := rules.New("*", "https://example.com/hook", "")
	r.Key = "rule-1"
	r.RetriesNumber = maxAttempts
	return JobFor(r, `{"a":1}`)
}

func TestTransition(t *testing.T) {
	now := time.UnixMilli(1000)
	b := ConstantBackoff(time.Minute)

	tests := []struct {
		name      string
		attempt   int
		max       int
		res       Result
		wantState State
		wantNext  time.Time
	}{
		{"success", 0, 3, Success(200, "ok"), StateSucceeded, time.Time{}},
		{"failed is terminal on first attempt", 0, 3, Failed("bad url"), StateFailed, time.Time{}},
		{"retryable reschedules", 0, 3, Retryable("503"), StatePending, now.Add(time.Minute)},
		{"retryable on last attempt fails", 2, 3, Retryable("503"), StateFailed, time.Time{}},
		{"zero retries still attempts once", 0, 0, Retryable("timeout"), StateFailed, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := Job{Attempt: tt.attempt, MaxAttempts: tt.max, State: StateRunning}
			got := Transition(job, tt.res, now, b)
			assert.Equal(t, tt.attempt+1, got.Attempt)
			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantNext, got.NextAttemptAt)
			assert.Equal(t, tt.res.Reason, got.LastError)
		})
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(10*time.Second, time.Minute)
	assert.Equal(t, 10*time.Second, b(1))
	assert.Equal(t, 20*time.Second, b(2))
	assert.Equal(t, 40*time.Second, b(3))
	assert.Equal(t, time.Minute, b(4))
	assert.Equal(t, time.Minute, b(10))
}

func TestQueue_RetriesExactlyMaxAttemptsThenFails(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryJobStore()
	var calls atomic.Int32
	var final []Job

	exec := ExecutorFunc(func(ctx context.Context, job Job) Result {
		calls.Add(1)
		return Retryable("connection refused")
	})
	q := New(store, exec, zerolog.Nop(),
		WithClock(clock),
		WithBackoff(ExponentialBackoff(10*time.Second, time.Hour)),
		WithObserver(func(job Job, res Result) {
			if job.State.Terminal() {
				final = append(final, job)
			}
		}),
	)

	_, err := q.Enqueue(context.Background(), testJob(3))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := q.RunOnce(context.Background())
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, final, 1)
	assert.Equal(t, StateFailed, final[0].State)
	assert.Equal(t, 3, final[0].Attempt)

	n, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_WaitsForBackoff(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryJobStore()
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, job Job) Result {
		calls.Add(1)
		return Retryable("500")
	})
	q := New(store, exec, zerolog.Nop(), WithClock(clock), WithBackoff(ConstantBackoff(10*time.Second)))

	_, err := q.Enqueue(context.Background(), testJob(5))
	require.NoError(t, err)

	n, _ := q.RunOnce(context.Background())
	assert.Equal(t, 1, n)

	clock.Advance(9 * time.Second)
	n, _ = q.RunOnce(context.Background())
	assert.Equal(t, 0, n, "job must not run before its backoff elapses")

	clock.Advance(time.Second)
	n, _ = q.RunOnce(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_SuccessDropsJob(t *testing.T) {
	store := NewMemoryJobStore()
	exec := ExecutorFunc(func(ctx context.Context, job Job) Result { return Success(204, "") })
	q := New(store, exec, zerolog.Nop(), WithClock(newFakeClock()))

	job, err := q.Enqueue(context.Background(), testJob(10))
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	_, err = q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot())
}

func TestQueue_OfflineKeepsJobPendingWithoutChargingAttempt(t *testing.T) {
	store := NewMemoryJobStore()
	var online atomic.Bool
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, job Job) Result {
		calls.Add(1)
		return Success(200, "")
	})
	q := New(store, exec, zerolog.Nop(),
		WithClock(newFakeClock()),
		WithConnectivity(ConnectivityFunc(func(context.Context) bool { return online.Load() })),
	)

	_, err := q.Enqueue(context.Background(), testJob(1))
	require.NoError(t, err)

	n, err := q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	jobs := store.Snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatePending, jobs[0].State)
	assert.Zero(t, jobs[0].Attempt)

	online.Store(true)
	n, err = q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_RunSetsDepthFromStoredJobs(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1700000000000)
	store := NewMemoryJobStore()
	require.NoError(t, store.Add(ctx, Job{ID: "left-running", State: StateRunning, NextAttemptAt: now}))
	require.NoError(t, store.Add(ctx, Job{ID: "left-pending", State: StatePending, NextAttemptAt: now}))
	telemetry.QueueDepth.Set(-3)

	exec := ExecutorFunc(func(ctx context.Context, job Job) Result { return Success(200, "") })
	q := New(store, exec, zerolog.Nop(),
		WithClock(newFakeClock()),
		WithConnectivity(ConnectivityFunc(func(context.Context) bool { return false })),
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- q.Run(runCtx) }()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(telemetry.QueueDepth) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	for _, j := range store.Snapshot() {
		assert.Equal(t, StatePending, j.State, "interrupted jobs are recovered as pending")
	}
}

func TestQueue_ConcurrentJobsAllDelivered(t *testing.T) {
	store := NewMemoryJobStore()
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, job Job) Result {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return Success(200, "")
	})
	q := New(store, exec, zerolog.Nop(), WithWorkers(4), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	for i := 0; i < 20; i++ {
		_, err := q.Enqueue(context.Background(), testJob(1))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 20 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err := q.Enqueue(context.Background(), testJob(1))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryJobStore_ClaimIsExclusiveAndRecoverable(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(5000)
	s := NewMemoryJobStore()
	require.NoError(t, s.Add(ctx, Job{ID: "a", State: StatePending, NextAttemptAt: now}))
	require.NoError(t, s.Add(ctx, Job{ID: "b", State: StatePending, NextAttemptAt: now.Add(time.Hour)}))

	first, err := s.Claim(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].ID)

	second, err := s.Claim(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, second)

	n, err := s.Recover(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := s.Claim(ctx, now, 0)
	require.NoError(t, err)
	assert.Len(t, again, 1)

	assert.ErrorIs(t, s.Update(ctx, Job{ID: "missing"}), ErrJobNotFound)
}
