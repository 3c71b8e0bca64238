package queue

import (
	"context"
	"net/http"
	"time"
)

// Clock supplies time to the queue.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Connectivity reports whether deliveries can currently reach the network.
// While offline, due jobs stay pending and are not charged an attempt.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Online(ctx context.Context) bool { return f(ctx) }

// AlwaysOnline never blocks deliveries.
var AlwaysOnline Connectivity = ConnectivityFunc(func(context.Context) bool { return true })

const probeTimeout = 5 * time.Second

// HTTPProbe considers the network available when a HEAD request to URL gets
// any response at all.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe creates a probe for url.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{URL: url, Client: &http.Client{Timeout: probeTimeout}}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	if p.URL == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
