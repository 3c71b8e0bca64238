// Package testutil provides helpers shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Delivery is one request captured by a Receiver.
type Delivery struct {
	Method           string
	Header           http.Header
	Body             string
	ContentLength    int64
	TransferEncoding []string
}

// Receiver is a webhook endpoint that records every request it is sent.
type Receiver struct {
	*httptest.Server
	ch chan Delivery
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*receiverConfig)

type receiverConfig struct {
	status   int
	response string
	tls      bool
}

// WithStatus sets the status code the receiver answers with. Default 200.
func WithStatus(code int) ReceiverOption {
	return func(c *receiverConfig) { c.status = code }
}

// WithResponse sets the response body.
func WithResponse(body string) ReceiverOption {
	return func(c *receiverConfig) { c.response = body }
}

// WithTLS serves over HTTPS with a self-signed certificate.
func WithTLS() ReceiverOption {
	return func(c *receiverConfig) { c.tls = true }
}

// NewReceiver starts a Receiver that is closed when the test ends.
func NewReceiver(t *testing.T, opts ...ReceiverOption) *Receiver {
	t.Helper()
	cfg := receiverConfig{status: http.StatusOK}
	for _, opt := range opts {
		opt(&cfg)
	}

	rcv := &Receiver{ch: make(chan Delivery, 16)}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rcv.ch <- Delivery{
			Method:           r.Method,
			Header:           r.Header.Clone(),
			Body:             string(b),
			ContentLength:    r.ContentLength,
			TransferEncoding: r.TransferEncoding,
		}
		w.WriteHeader(cfg.status)
		_, _ = io.WriteString(w, cfg.response)
	})
	if cfg.tls {
		rcv.Server = httptest.NewTLSServer(h)
	} else {
		rcv.Server = httptest.NewServer(h)
	}
	t.Cleanup(rcv.Server.Close)
	return rcv
}

// Next returns the next captured delivery, failing the test if none
// arrives within two seconds.
func (r *Receiver) Next(t *testing.T) Delivery {
	t.Helper()
	select {
	case d := <-r.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("receiver: no delivery within 2s")
		return Delivery{}
	}
}

// Pending reports how many captured deliveries have not been read with Next.
func (r *Receiver) Pending() int {
	return len(r.ch)
}
