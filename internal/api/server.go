// Package api exposes the gateway over HTTP: event ingest, rule management,
// system webhooks and queue status.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/audit"
	"github.com/TimurManjosov/activitygate/internal/auth"
	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
	"github.com/TimurManjosov/activitygate/internal/webhook"
)

// requestTimeout bounds every request. Test deliveries wait for the remote
// endpoint, so it sits above the delivery timeout.
const requestTimeout = 45 * time.Second

// RuleStore is the rule persistence used by the rule endpoints.
type RuleStore interface {
	GetAll(ctx context.Context) ([]rules.Rule, error)
	Get(ctx context.Context, key string) (rules.Rule, error)
	Save(ctx context.Context, r rules.Rule) (rules.Rule, error)
	Update(ctx context.Context, key string, fn func(*rules.Rule)) (rules.Rule, error)
	Remove(ctx context.Context, key string) error
}

// Dispatcher turns events into delivery jobs and performs test sends.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) ([]queue.Job, error)
	SendTest(ctx context.Context, rule rules.Rule) queue.Result
}

// SystemNotifier sends the gateway's own lifecycle webhooks.
type SystemNotifier interface {
	AppStarted(ctx context.Context, manual bool) ([]queue.Job, error)
	SimStatusChanged(ctx context.Context, status webhook.SimState, operator string) ([]queue.Job, error)
}

// QueueStats reports the delivery backlog.
type QueueStats interface {
	Pending(ctx context.Context) (int, error)
}

// Deps groups the collaborators of a Server.
type Deps struct {
	Rules          RuleStore
	Dispatcher     Dispatcher
	System         SystemNotifier
	Queue          QueueStats
	Audit          *audit.Service // optional
	AdminKey       string
	AppName        string
	RateLimitPerIP int
	Logger         zerolog.Logger
}

type Server struct {
	rules      RuleStore
	dispatcher Dispatcher
	system     SystemNotifier
	queue      QueueStats
	audit      *audit.Service
	auth       *auth.Authenticator
	appName    string
	rateLimit  int
	now        func() time.Time
	log        zerolog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		rules:      d.Rules,
		dispatcher: d.Dispatcher,
		system:     d.System,
		queue:      d.Queue,
		audit:      d.Audit,
		auth:       auth.NewAuthenticator(d.AdminKey),
		appName:    d.AppName,
		rateLimit:  d.RateLimitPerIP,
		now:        time.Now,
		log:        d.Logger.With().Str("component", "api").Logger(),
	}
}

// recordAudit logs a rule change when auditing is enabled.
func (s *Server) recordAudit(b *audit.EventBuilder) {
	if s.audit != nil {
		s.audit.Log(b.Build())
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.RequireAuth(func(w http.ResponseWriter, req *http.Request, _ int, message string) {
			UnauthorizedError(w, req, message)
		}))

		// ingest (rate limited per client IP)
		r.Group(func(r chi.Router) {
			if s.rateLimit > 0 {
				r.Use(httprate.Limit(s.rateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
						RateLimitedError(w, req, "Too many events from this client")
					}),
				))
			}
			r.Post("/events", s.handleIngestEnvelope)
			r.Post("/events/sms", s.handleIngest(rules.ActivitySMS))
			r.Post("/events/call", s.handleIngest(rules.ActivityCall))
			r.Post("/events/push", s.handleIngest(rules.ActivityPush))
		})

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleSaveRule)
		r.Get("/rules/{key}", s.handleGetRule)
		r.Delete("/rules/{key}", s.handleDeleteRule)
		r.Post("/rules/{key}/toggle", s.handleToggleRule)
		r.Post("/rules/{key}/test", s.handleTestRule)

		r.Post("/system/app-start", s.handleAppStart)
		r.Post("/system/sim-status", s.handleSimStatus)

		r.Get("/queue", s.handleQueueStatus)
	})

	return r
}
