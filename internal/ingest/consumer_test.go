package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	jobs   []queue.Job
	err    error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, ev events.Event) ([]queue.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.jobs, d.err
}

type settlement struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func newConsumer(d Dispatcher) *Consumer {
	c := NewConsumer(Config{Queue: "events"}, d, zerolog.Nop())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name string
		body string
		d    *fakeDispatcher
		want Action
	}{
		{"dispatched", `{"type":"sms","from":"123","text":"hi"}`, &fakeDispatcher{}, Ack},
		{"not json", `{{`, &fakeDispatcher{}, Drop},
		{"unknown type", `{"type":"fax"}`, &fakeDispatcher{}, Drop},
		{"dispatch error", `{"type":"call","from":"123"}`, &fakeDispatcher{err: errors.New("store down")}, Requeue},
		{
			"partial dispatch",
			`{"type":"call","from":"123"}`,
			&fakeDispatcher{jobs: []queue.Job{{ID: "a"}}, err: errors.New("one enqueue failed")},
			Ack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newConsumer(tt.d).Handle(context.Background(), []byte(tt.body))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandle_DecodesEnvelope(t *testing.T) {
	d := &fakeDispatcher{}
	newConsumer(d).Handle(context.Background(), []byte(`{"type":"push","packageName":"com.chat","title":"A","content":"B"}`))

	require.Len(t, d.events, 1)
	push, ok := d.events[0].(events.PushEvent)
	require.True(t, ok)
	assert.Equal(t, rules.ActivityPush, push.Kind())
	assert.Equal(t, "A: B", push.FullText)
	assert.Equal(t, int64(1700000000000), push.OccurredAt().UnixMilli())
}

func TestServe_SettlesEachDelivery(t *testing.T) {
	d := &fakeDispatcher{}
	ack := &fakeAcknowledger{}
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"type":"sms","from":"1"}`)}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`garbage`)}
	close(msgs)

	err := newConsumer(d).serve(context.Background(), msgs)
	assert.Error(t, err, "closed channel without cancellation is reported")

	require.Len(t, ack.settled, 2)
	assert.Equal(t, settlement{tag: 1, acked: true}, ack.settled[0])
	assert.Equal(t, settlement{tag: 2, acked: true}, ack.settled[1], "poison messages are acked")
}

func TestServe_RequeuesOnDispatchError(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("store down")}
	ack := &fakeAcknowledger{}
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte(`{"type":"sms","from":"1"}`)}
	close(msgs)

	_ = newConsumer(d).serve(context.Background(), msgs)

	require.Len(t, ack.settled, 1)
	assert.Equal(t, settlement{tag: 7, requeue: true}, ack.settled[0])
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan amqp.Delivery)

	done := make(chan error, 1)
	go func() { done <- newConsumer(&fakeDispatcher{}).serve(ctx, msgs) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
