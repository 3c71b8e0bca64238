package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/TimurManjosov/activitygate/internal/api"
	"github.com/TimurManjosov/activitygate/internal/audit"
	"github.com/TimurManjosov/activitygate/internal/config"
	"github.com/TimurManjosov/activitygate/internal/enrich"
	"github.com/TimurManjosov/activitygate/internal/ingest"
	"github.com/TimurManjosov/activitygate/internal/logging"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/render"
	"github.com/TimurManjosov/activitygate/internal/rulestore"
	"github.com/TimurManjosov/activitygate/internal/store"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
	"github.com/TimurManjosov/activitygate/internal/webhook"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.AppEnv == "dev")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped with error")
	}
	log.Info().Msg("stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTelEndpoint, "activitygate", cfg.AppVersion)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	var rdb *redis.Client
	if cfg.StoreType == "redis" || cfg.QueueType == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	kv, err := store.NewStore(ctx, store.Options{
		Type:        cfg.StoreType,
		DatabaseDSN: cfg.DatabaseDSN,
		FilePath:    cfg.StoreFile,
		Redis:       rdb,
		RedisPrefix: cfg.RedisPrefix,
		NATSURL:     cfg.NATSURL,
		NATSBucket:  cfg.NATSBucket,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer kv.Close()
	ruleStore := rulestore.New(kv, cfg.AppName, log)

	var jobs queue.JobStore = queue.NewMemoryJobStore()
	if cfg.QueueType == "redis" {
		jobs = queue.NewRedisJobStore(rdb, cfg.RedisPrefix)
	}

	opts := []webhook.ClientOption{webhook.WithTimeout(cfg.DeliveryTimeout)}
	if cfg.SigningSecret != "" {
		opts = append(opts, webhook.WithSigningSecret(cfg.SigningSecret))
	}
	client := webhook.NewClient(log, opts...)

	q := queue.New(jobs, client, log,
		queue.WithWorkers(cfg.QueueWorkers),
		queue.WithPollInterval(cfg.QueuePollInterval),
		queue.WithBackoff(queue.ExponentialBackoff(cfg.BackoffInitial, cfg.BackoffMax)),
		queue.WithConnectivity(queue.NewHTTPProbe(cfg.ConnectivityProbeURL)),
	)

	renderer := render.NewRenderer(enrich.NewStaticProvider(deviceInfo(cfg)), cfg.DeviceID(), log)
	dispatcher := webhook.NewDispatcher(ruleStore, renderer, q, client, log)
	notifier := webhook.NewSystemNotifier(webhook.SystemConfig{
		URLs:           cfg.SystemWebhookURLs,
		Retries:        cfg.SystemWebhookRetries,
		AppName:        cfg.AppName,
		AppVersion:     cfg.AppVersion,
		AndroidVersion: cfg.Device.OSVersion,
		DeviceID:       cfg.DeviceID(),
	}, q, log)

	auditSvc := audit.NewService(audit.NewLogSink(log), log, 256)
	defer auditSvc.Close()

	srvAPI := api.NewServer(api.Deps{
		Rules:          ruleStore,
		Dispatcher:     dispatcher,
		System:         notifier,
		Queue:          q,
		Audit:          auditSvc,
		AdminKey:       cfg.AdminAPIKey,
		AppName:        cfg.AppName,
		RateLimitPerIP: cfg.RateLimitPerIP,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadTimeout: 5 * time.Second}

	if all, err := ruleStore.GetAll(ctx); err == nil {
		log.Info().Int("rules", len(all)).Str("store", cfg.StoreType).Str("queue", cfg.QueueType).Msg("rules loaded")
	}

	errs := make(chan error, 4)
	var wg conc.WaitGroup

	wg.Go(func() {
		if err := q.Run(ctx); err != nil {
			errs <- fmt.Errorf("queue: %w", err)
		}
	})
	wg.Go(func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server: %w", err)
		}
	})
	wg.Go(func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("metrics server: %w", err)
		}
	})
	if cfg.AMQPURL != "" {
		consumer := ingest.NewConsumer(ingest.Config{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue}, dispatcher, log)
		wg.Go(func() {
			if err := consumer.Run(ctx); err != nil {
				errs <- fmt.Errorf("ingest: %w", err)
			}
		})
	}

	if _, err := notifier.AppStarted(ctx, false); err != nil {
		log.Warn().Err(err).Msg("app start webhook not enqueued")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		stop()
	}

	// graceful shutdown
	ctxShut, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	wg.Wait()
	return runErr
}

// deviceInfo builds the enrichment facts reported by this gateway.
func deviceInfo(cfg *config.Config) enrich.Info {
	apiLevel, _ := strconv.Atoi(cfg.Device.OSAPILevel)
	return enrich.Info{
		DeviceModel:        cfg.Device.Model,
		DeviceManufacturer: cfg.Device.Manufacturer,
		DeviceBrand:        cfg.Device.Brand,
		DeviceProduct:      cfg.Device.Product,
		OSVersion:          cfg.Device.OSVersion,
		OSAPILevel:         apiLevel,
		DeviceName:         cfg.Device.Name,
		SimInfo:            simInfo(cfg.Device),
		AppConfig: map[string]any{
			"app_name":      cfg.AppName,
			"app_version":   cfg.AppVersion,
			"queue_workers": cfg.QueueWorkers,
		},
	}
}

// simInfo builds the sim_info section from the SIM_* settings. A lone
// SIM_OPERATOR or SIM_COUNTRY describes a single slot.
func simInfo(d config.DeviceConfig) map[string]any {
	slots := d.SimSlots
	if len(slots) == 0 && (d.SimOperator != "" || d.SimCountry != "") {
		slots = []config.SimSlot{{}}
	}
	cards := make([]enrich.SimCard, 0, len(slots))
	for i, s := range slots {
		card := enrich.SimCard{Slot: i + 1, Name: s.Name, Operator: s.Operator, Country: s.Country}
		if card.Operator == "" {
			card.Operator = d.SimOperator
		}
		if card.Country == "" {
			card.Country = d.SimCountry
		}
		cards = append(cards, card)
	}

	var state string
	if d.SimState != "" {
		state = string(webhook.ParseSimState(d.SimState))
	}
	return enrich.SimInfo(state, cards)
}
