package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/matcher"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/render"
	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
)

// RuleSource lists the current rule set.
type RuleSource interface {
	GetAll(ctx context.Context) ([]rules.Rule, error)
}

// Enqueuer accepts delivery jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (queue.Job, error)
}

// Dispatcher turns events into delivery jobs: it matches the event against
// the rule set, renders one body per matched rule and enqueues a job for each.
type Dispatcher struct {
	rules    RuleSource
	renderer *render.Renderer
	queue    Enqueuer
	client   *Client
	now      func() time.Time
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(src RuleSource, renderer *render.Renderer, q Enqueuer, client *Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rules:    src,
		renderer: renderer,
		queue:    q,
		client:   client,
		now:      time.Now,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch enqueues one job per rule matching ev and returns the jobs
// enqueued. A failed enqueue does not stop the remaining rules.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) ([]queue.Job, error) {
	telemetry.EventsIngested.WithLabelValues(string(ev.Kind())).Inc()

	all, err := d.rules.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	matched := matcher.Match(ev, all)
	telemetry.RulesMatched.Add(float64(len(matched)))
	d.log.Info().
		Str("kind", string(ev.Kind())).
		Str("sender", ev.Sender()).
		Int("rules", len(all)).
		Int("matched", len(matched)).
		Msg("event received")

	var (
		jobs []queue.Job
		errs []error
	)
	for _, rule := range matched {
		body := d.renderer.Render(ctx, rule, ev)
		job, err := d.queue.Enqueue(ctx, queue.JobFor(rule, body))
		if err != nil {
			d.log.Error().Err(err).Str("rule_key", rule.Key).Msg("failed to enqueue delivery")
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// SendTest renders rule against sample data for its activity type and
// delivers it once, bypassing the queue.
func (d *Dispatcher) SendTest(ctx context.Context, rule rules.Rule) queue.Result {
	ev := events.Sample(rule.ActivityType, d.now())
	body := d.renderer.Render(ctx, rule, ev)
	res := d.client.Deliver(ctx, Request{
		URL:       rule.URL,
		Body:      body,
		Headers:   rule.Headers,
		IgnoreSSL: rule.IgnoreSSL,
		Chunked:   rule.ChunkedMode,
	})
	d.log.Info().
		Str("rule_key", rule.Key).
		Str("outcome", res.Outcome.String()).
		Int("status", res.Status).
		Msg("test delivery")
	return res
}
