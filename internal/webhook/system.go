package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

// SystemRuleKey prefixes the RuleKey of system webhook jobs.
const SystemRuleKey = "system:"

// SystemConfig describes where system webhooks go.
type SystemConfig struct {
	URLs           []string
	Retries        int
	AppName        string
	AppVersion     string
	AndroidVersion string
	DeviceID       string
}

// SystemNotifier sends app lifecycle and SIM webhooks through the queue.
type SystemNotifier struct {
	cfg   SystemConfig
	queue Enqueuer
	now   func() time.Time
	log   zerolog.Logger
}

// NewSystemNotifier creates a SystemNotifier.
func NewSystemNotifier(cfg SystemConfig, q Enqueuer, log zerolog.Logger) *SystemNotifier {
	return &SystemNotifier{
		cfg:   cfg,
		queue: q,
		now:   time.Now,
		log:   log.With().Str("component", "system_webhooks").Logger(),
	}
}

// AppStarted reports that the gateway started, manually or on boot.
func (n *SystemNotifier) AppStarted(ctx context.Context, manual bool) ([]queue.Job, error) {
	b := NewPayloadBuilder(n.cfg.DeviceID, n.now()).
		With("android_version", n.cfg.AndroidVersion).
		With("app_version", n.cfg.AppVersion)
	if manual {
		b.Event(EventAppManualStart).Message("Application started manually by user")
	} else {
		b.Event(EventAppAutoStart).Message("Application started automatically")
	}
	return n.send(ctx, b)
}

// SimStatusChanged reports a SIM state transition.
func (n *SystemNotifier) SimStatusChanged(ctx context.Context, status SimState, operator string) ([]queue.Job, error) {
	b := NewPayloadBuilder(n.cfg.DeviceID, n.now()).
		Event(EventSimStatusChanged).
		Message("SIM status changed to: " + string(status)).
		With("sim_status", string(status)).
		With("operator", operator).
		With("android_version", n.cfg.AndroidVersion)
	return n.send(ctx, b)
}

func (n *SystemNotifier) send(ctx context.Context, b *PayloadBuilder) ([]queue.Job, error) {
	payload := b.Build()
	if len(n.cfg.URLs) == 0 {
		n.log.Debug().Str("event", payload.Event).Msg("no system webhook urls configured")
		return nil, nil
	}

	body, err := b.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.Event, err)
	}

	var (
		jobs []queue.Job
		errs []error
	)
	for _, url := range n.cfg.URLs {
		job, err := n.queue.Enqueue(ctx, queue.Job{
			RuleKey:     SystemRuleKey + payload.Event,
			URL:         url,
			Body:        body,
			Headers:     rules.DefaultHeaders(n.cfg.AppName),
			Chunked:     true,
			MaxAttempts: n.cfg.Retries,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}
