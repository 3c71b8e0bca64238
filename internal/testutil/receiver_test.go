package testutil

import (
	"net/http"
	"strings"
	"testing"
)

func TestReceiver_RecordsRequest(t *testing.T) {
	rcv := NewReceiver(t, WithStatus(http.StatusAccepted), WithResponse("ok"))

	req, _ := http.NewRequest(http.MethodPost, rcv.URL, strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Test", "yes")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", resp.StatusCode)
	}
	d := rcv.Next(t)
	if d.Method != http.MethodPost || d.Body != `{"a":1}` || d.Header.Get("X-Test") != "yes" {
		t.Errorf("Unexpected delivery: %+v", d)
	}
	if rcv.Pending() != 0 {
		t.Errorf("Expected no pending deliveries, got %d", rcv.Pending())
	}
}

func TestReceiver_TLS(t *testing.T) {
	rcv := NewReceiver(t, WithTLS())
	if !strings.HasPrefix(rcv.URL, "https://") {
		t.Fatalf("Expected https URL, got %s", rcv.URL)
	}
	resp, err := rcv.Client().Post(rcv.URL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	rcv.Next(t)
}
