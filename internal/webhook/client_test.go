package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/testutil"
)

var largeResponse = strings.Repeat("x", 2048)

func TestDeliver_SuccessWithHeadersAndFixedLength(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithResponse(largeResponse))
	c := NewClient(zerolog.Nop())

	res := c.Deliver(context.Background(), Request{
		URL:        srv.URL,
		Body:       `{"text":"hi"}`,
		Headers:    `{"User-agent":"gw","X-Token":"abc","X-Num":7}`,
		Chunked:    false,
		DeliveryID: "job-1",
	})

	assert.Equal(t, queue.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 200, res.Status)
	assert.Len(t, res.Body, maxResponseBodySize)

	got := srv.Next(t)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "gw", got.Header.Get("User-Agent"))
	assert.Equal(t, "abc", got.Header.Get("X-Token"))
	assert.Equal(t, "7", got.Header.Get("X-Num"))
	assert.Equal(t, "job-1", got.Header.Get(HeaderDelivery))
	assert.Empty(t, got.Header.Get(HeaderSignature))
	assert.Equal(t, `{"text":"hi"}`, got.Body)
	assert.Equal(t, int64(len(`{"text":"hi"}`)), got.ContentLength)
	assert.Empty(t, got.TransferEncoding)
}

func TestDeliver_ChunkedMode(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusNoContent), testutil.WithResponse(largeResponse))
	c := NewClient(zerolog.Nop())

	res := c.Deliver(context.Background(), Request{URL: srv.URL, Body: `{"a":1}`, Chunked: true})
	require.Equal(t, queue.OutcomeSuccess, res.Outcome)

	got := srv.Next(t)
	assert.Equal(t, []string{"chunked"}, got.TransferEncoding)
	assert.Equal(t, int64(-1), got.ContentLength)
	assert.Equal(t, `{"a":1}`, got.Body)
}

func TestDeliver_MalformedHeadersAreIgnored(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithResponse(largeResponse))
	c := NewClient(zerolog.Nop())

	res := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}", Headers: "not json"})
	assert.Equal(t, queue.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "application/json", srv.Next(t).Header.Get("Content-Type"))
}

func TestDeliver_Signing(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithResponse(largeResponse))
	c := NewClient(zerolog.Nop(), WithSigningSecret("s3cret"))

	c.Deliver(context.Background(), Request{URL: srv.URL, Body: `{"x":1}`})
	got := srv.Next(t)
	assert.True(t, VerifySignature([]byte(got.Body), got.Header.Get(HeaderSignature), "s3cret"))
}

func TestDeliver_NonSuccessStatusIsRetryable(t *testing.T) {
	for _, status := range []int{301, 400, 404, 500, 503} {
		srv := testutil.NewReceiver(t, testutil.WithStatus(status), testutil.WithResponse(largeResponse))
		c := NewClient(zerolog.Nop())

		res := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}"})
		srv.Next(t)
		assert.Equal(t, queue.OutcomeRetryable, res.Outcome, "status %d", status)
		assert.Equal(t, status, res.Status)
		assert.Contains(t, res.Reason, "HTTP error code")
	}
}

func TestDeliver_MalformedURLFailsWithoutIO(t *testing.T) {
	c := NewClient(zerolog.Nop())
	for _, u := range []string{"", "not a url", "ftp://example.com/x", "http://[::1"} {
		res := c.Deliver(context.Background(), Request{URL: u, Body: "{}"})
		assert.Equal(t, queue.OutcomeFailed, res.Outcome, "url %q", u)
		assert.Contains(t, res.Reason, ErrMalformedURL.Error())
	}
}

func TestDeliver_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(zerolog.Nop()).Deliver(context.Background(), Request{URL: url, Body: "{}"})
	assert.Equal(t, queue.OutcomeRetryable, res.Outcome)
	assert.Zero(t, res.Status)
}

func TestDeliver_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	res := NewClient(zerolog.Nop(), WithTimeout(20*time.Millisecond)).
		Deliver(context.Background(), Request{URL: srv.URL, Body: "{}"})
	assert.Equal(t, queue.OutcomeRetryable, res.Outcome)
}

func TestDeliver_IgnoreSSLIsPerRequest(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithTLS())
	c := NewClient(zerolog.Nop())

	strict := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}", IgnoreSSL: false})
	assert.Equal(t, queue.OutcomeRetryable, strict.Outcome, "self-signed cert must be rejected")

	lax := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}", IgnoreSSL: true})
	assert.Equal(t, queue.OutcomeSuccess, lax.Outcome)
	srv.Next(t)

	again := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}", IgnoreSSL: false})
	assert.Equal(t, queue.OutcomeRetryable, again.Outcome, "insecure request must not change the default")
}

func TestDeliver_TrustedTLSConfig(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithTLS())
	cfg := srv.Client().Transport.(*http.Transport).TLSClientConfig
	c := NewClient(zerolog.Nop(), WithTLSConfig(cfg))

	res := c.Deliver(context.Background(), Request{URL: srv.URL, Body: "{}"})
	assert.Equal(t, queue.OutcomeSuccess, res.Outcome)
	srv.Next(t)
}

func TestExecute_UsesJobFields(t *testing.T) {
	srv := testutil.NewReceiver(t, testutil.WithStatus(http.StatusOK), testutil.WithResponse(largeResponse))
	c := NewClient(zerolog.Nop())

	res := c.Execute(context.Background(), queue.Job{ID: "j-9", URL: srv.URL, Body: `{"k":"v"}`, Chunked: true})
	assert.Equal(t, queue.OutcomeSuccess, res.Outcome)

	got := srv.Next(t)
	assert.Equal(t, "j-9", got.Header.Get(HeaderDelivery))
	assert.Equal(t, `{"k":"v"}`, got.Body)
}
