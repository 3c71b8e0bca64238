// Package ingest consumes device events from an AMQP queue and feeds them to
// the dispatcher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
)

const defaultPrefetch = 16

// Dispatcher accepts decoded events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) ([]queue.Job, error)
}

// Action is what the consumer does with a message after handling it.
type Action int

const (
	// Ack removes the message from the queue.
	Ack Action = iota
	// Drop acks a message that can never be processed.
	Drop
	// Requeue nacks the message so the broker redelivers it.
	Requeue
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Requeue:
		return "requeue"
	}
	return "unknown"
}

// Config describes the queue to consume.
type Config struct {
	URL         string
	Queue       string
	ConsumerTag string
	Prefetch    int
}

// Consumer reads event envelopes from an AMQP queue.
type Consumer struct {
	cfg        Config
	dispatcher Dispatcher
	now        func() time.Time
	log        zerolog.Logger
}

func NewConsumer(cfg Config, d Dispatcher, log zerolog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "activitygate"
	}
	return &Consumer{
		cfg:        cfg,
		dispatcher: d,
		now:        time.Now,
		log:        log.With().Str("component", "ingest").Str("queue", cfg.Queue).Logger(),
	}
}

// Run connects, declares the queue and consumes until ctx is cancelled or
// the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.cfg.Queue,
		c.cfg.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Int("prefetch", c.cfg.Prefetch).Msg("consuming events")

	go func() {
		<-ctx.Done()
		_ = ch.Cancel(c.cfg.ConsumerTag, false)
	}()

	return c.serve(ctx, msgs)
}

// serve handles deliveries until msgs is closed or ctx is cancelled.
func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp delivery channel closed")
			}
			c.settle(msg, c.handleDelivery(ctx, msg))
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) Action {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.cfg.Queue),
			attribute.String("messaging.message.id", msg.MessageId),
		),
	)
	defer span.End()

	action := c.Handle(ctx, msg.Body)
	span.SetAttributes(attribute.String("ingest.action", action.String()))
	if action != Ack {
		span.SetStatus(codes.Error, action.String())
	}
	return action
}

// Handle decodes one envelope and dispatches it. Undecodable messages are
// dropped; dispatch failures are requeued.
func (c *Consumer) Handle(ctx context.Context, body []byte) Action {
	ev, err := events.Decode(body, c.now())
	if err != nil {
		c.log.Warn().Err(err).Int("size", len(body)).Msg("dropping undecodable event")
		return Drop
	}

	jobs, err := c.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		c.log.Error().Err(err).Str("kind", string(ev.Kind())).Int("enqueued", len(jobs)).Msg("dispatch failed")
		if len(jobs) > 0 {
			// Some rules were enqueued already; redelivery would duplicate them.
			return Ack
		}
		return Requeue
	}
	c.log.Debug().Str("kind", string(ev.Kind())).Int("jobs", len(jobs)).Msg("event dispatched")
	return Ack
}

func (c *Consumer) settle(msg amqp.Delivery, action Action) {
	var err error
	switch action {
	case Requeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Ack(false)
	}
	if err != nil {
		c.log.Error().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Str("action", action.String()).Msg("failed to settle message")
	}
}

// headerCarrier adapts AMQP headers for trace context propagation.
type headerCarrier amqp.Table

func (h headerCarrier) Get(key string) string {
	if s, ok := h[key].(string); ok {
		return s
	}
	return ""
}

func (h headerCarrier) Set(key, value string) { h[key] = value }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
