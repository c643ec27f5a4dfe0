package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_Signed(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !Verify("s3cret", body, r.Header.Get(SignatureHeader)) {
			t.Errorf("bad signature %q", r.Header.Get(SignatureHeader))
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := NewEvent(EventCompleted, "job-1", map[string]int{"records": 7})
	if err := NewSender().Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Type != EventCompleted || got.JobID != "job-1" || got.Timestamp == 0 {
		t.Errorf("event = %+v", got)
	}
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get(SignatureHeader); h != "" {
			t.Errorf("unexpected signature %q", h)
		}
	}))
	defer srv.Close()

	if err := NewSender().Deliver(context.Background(), srv.URL, "", NewEvent(EventPage, "j", nil)); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewSender().Deliver(context.Background(), srv.URL, "", NewEvent(EventFailed, "j", nil)); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := NewSender()
	s.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	done := make(chan struct{})
	s.DeliverAsync(srv.URL, "", NewEvent(EventPage, "j", nil), done)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"type":"crawl.page"}`)
	sig := Sign("k", body)
	if !Verify("k", body, sig) {
		t.Error("valid signature rejected")
	}
	if Verify("other", body, sig) {
		t.Error("signature with the wrong secret accepted")
	}
}
