package webhook

import (
	"strings"

	"github.com/TimurManjosov/activitygate/internal/queue"
)

// Request is one outbound webhook call. TLS trust and body framing are
// properties of the request, not of the client.
type Request struct {
	URL        string
	Body       string
	Headers    string // JSON object literal; malformed values are ignored
	IgnoreSSL  bool
	Chunked    bool
	DeliveryID string
}

// RequestFor builds the request for a queued job.
func RequestFor(job queue.Job) Request {
	return Request{
		URL:        job.URL,
		Body:       job.Body,
		Headers:    job.Headers,
		IgnoreSSL:  job.IgnoreSSL,
		Chunked:    job.Chunked,
		DeliveryID: job.ID,
	}
}

// System event names.
const (
	EventAppManualStart   = "app_manual_start"
	EventAppAutoStart     = "app_auto_start"
	EventSimStatusChanged = "sim_status_changed"
)

// SimState is the reported state of a SIM card.
type SimState string

const (
	SimAbsent         SimState = "SIM_ABSENT"
	SimReady          SimState = "SIM_READY"
	SimPinRequired    SimState = "SIM_PIN_REQUIRED"
	SimPukRequired    SimState = "SIM_PUK_REQUIRED"
	SimNetworkLocked  SimState = "SIM_NETWORK_LOCKED"
	SimNotReady       SimState = "SIM_NOT_READY"
	SimPermDisabled   SimState = "SIM_PERM_DISABLED"
	SimCardIOError    SimState = "SIM_CARD_IO_ERROR"
	SimCardRestricted SimState = "SIM_CARD_RESTRICTED"
	SimUnknown        SimState = "SIM_UNKNOWN"
)

var simStates = []SimState{
	SimAbsent, SimReady, SimPinRequired, SimPukRequired, SimNetworkLocked,
	SimNotReady, SimPermDisabled, SimCardIOError, SimCardRestricted,
}

// ParseSimState accepts "SIM_READY", "sim_ready" or "ready".
// Anything unrecognized is SimUnknown.
func ParseSimState(s string) SimState {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "SIM_") {
		s = "SIM_" + s
	}
	for _, st := range simStates {
		if string(st) == s {
			return st
		}
	}
	return SimUnknown
}
