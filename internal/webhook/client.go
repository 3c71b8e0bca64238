package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/telemetry"
)

const (
	// defaultTimeout bounds one attempt, connect and read included.
	defaultTimeout = 30 * time.Second

	// maxResponseBodySize limits how much of the response body we keep (1KB)
	maxResponseBodySize = 1024

	HeaderSignature = "X-Activitygate-Signature"
	HeaderDelivery  = "X-Activitygate-Delivery"
)

// ErrMalformedURL marks requests rejected before any I/O.
var ErrMalformedURL = errors.New("malformed url")

// Client posts webhook bodies. It holds one HTTP client per trust mode and
// picks between them per request.
type Client struct {
	secure   *http.Client
	insecure *http.Client
	timeout  time.Duration
	secret   string
	tracer   trace.Tracer
	log      zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSigningSecret signs every body with HMAC-SHA256 under secret.
func WithSigningSecret(secret string) ClientOption {
	return func(c *Client) { c.secret = secret }
}

// WithTLSConfig replaces the TLS settings of the verifying transport.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) {
		c.secure.Transport.(*http.Transport).TLSClientConfig = cfg
	}
}

// NewClient creates a Client.
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	secure := http.DefaultTransport.(*http.Transport).Clone()
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per rule

	c := &Client{
		secure:   &http.Client{Transport: secure},
		insecure: &http.Client{Transport: insecure},
		timeout:  defaultTimeout,
		tracer:   telemetry.Tracer(),
		log:      log.With().Str("component", "webhook").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) httpClient(ignoreSSL bool) *http.Client {
	if ignoreSSL {
		return c.insecure
	}
	return c.secure
}

// Execute delivers a queued job.
func (c *Client) Execute(ctx context.Context, job queue.Job) queue.Result {
	return c.Deliver(ctx, RequestFor(job))
}

// Deliver performs one POST and classifies the outcome: 2xx is success,
// a malformed URL fails, everything else is retryable.
func (c *Client) Deliver(ctx context.Context, r Request) queue.Result {
	ctx, span := c.tracer.Start(ctx, "webhook.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("webhook.url", r.URL),
			attribute.Bool("webhook.ignore_ssl", r.IgnoreSSL),
			attribute.Bool("webhook.chunked", r.Chunked),
		),
	)
	defer span.End()

	res := c.deliver(ctx, r)

	span.SetAttributes(
		attribute.Int("http.status_code", res.Status),
		attribute.String("webhook.outcome", res.Outcome.String()),
	)
	if res.Outcome != queue.OutcomeSuccess {
		span.SetStatus(codes.Error, res.Reason)
	}
	return res
}

func (c *Client) deliver(ctx context.Context, r Request) queue.Result {
	if err := rules.ValidateURL(r.URL); err != nil {
		return queue.Failed(fmt.Errorf("%w: %v", ErrMalformedURL, err).Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = bytes.NewReader([]byte(r.Body))
	if r.Chunked {
		// hide the length so the transport streams the body chunked
		body = io.NopCloser(strings.NewReader(r.Body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, body)
	if err != nil {
		return queue.Failed(fmt.Errorf("%w: %v", ErrMalformedURL, err).Error())
	}
	if r.Chunked {
		req.ContentLength = -1
	}

	req.Header.Set("Content-Type", "application/json")
	if headers, err := rules.ParseHeaders(r.Headers); err == nil {
		for name, value := range headers {
			req.Header.Set(name, value)
		}
	} else if strings.TrimSpace(r.Headers) != "" {
		c.log.Debug().Err(err).Str("url", r.URL).Msg("ignoring malformed headers")
	}
	if c.secret != "" {
		req.Header.Set(HeaderSignature, ComputeHMAC([]byte(r.Body), c.secret))
	}
	if r.DeliveryID != "" {
		req.Header.Set(HeaderDelivery, r.DeliveryID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient(r.IgnoreSSL).Do(req)
	if err != nil {
		return queue.Retryable(err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return queue.Success(resp.StatusCode, string(respBody))
	}
	res := queue.Retryable(fmt.Sprintf("HTTP error code: %d - %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	res.Status = resp.StatusCode
	res.Body = string(respBody)
	return res
}
