package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goPresence "github.com/MrEthical07/goPresence"
)

func TestRequestContextPropagatesToAudit(t *testing.T) {
	cfg := goPresence.DefaultConfig()
	cfg.Audit.Enabled = true
	sink := goPresence.NewChannelSink(8)
	engine, err := goPresence.New().WithConfig(cfg).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	handler := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := engine.OpenSession(r.Context(), goPresence.OpenSessionRequest{
			AnchorID: "room",
			Seed:     goPresence.Fingerprint{"ap-a": -40},
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("request id not echoed: %q", got)
	}

	engine.Close()
	ev := <-sink.Events()
	if ev.Metadata["request_id"] != "req-1" || ev.Metadata["client_ip"] != "192.0.2.10" {
		t.Fatalf("unexpected audit metadata: %v", ev.Metadata)
	}
}

func TestRequestContextGeneratesID(t *testing.T) {
	var seen string
	handler := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "" {
		t.Fatal("incoming header must not be rewritten")
	}
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "10.0.0.1" {
		t.Fatalf("untrusted header must be ignored, got %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: goPresence.ErrInvalidFingerprint, want: http.StatusBadRequest},
		{err: goPresence.ErrNoActiveSession, want: http.StatusNotFound},
		{err: goPresence.ErrVerdictNotFound, want: http.StatusNotFound},
		{err: goPresence.ErrWindowClosed, want: http.StatusConflict},
		{err: goPresence.ErrEvidenceRateLimited, want: http.StatusTooManyRequests},
		{err: fmt.Errorf("%w: closed", goPresence.ErrScheduleDenied), want: http.StatusForbidden},
		{err: goPresence.ErrPersistFailed, want: http.StatusServiceUnavailable},
		{err: goPresence.ErrEngineNotReady, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesServerDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("%w: dial tcp 10.0.0.5:6379", goPresence.ErrVerdictStoreUnavailable))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || body["error"] != "Service Unavailable" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, goPresence.ErrNoActiveSession)
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != goPresence.ErrNoActiveSession.Error() {
		t.Fatalf("client errors keep their message, got %v", body)
	}
}
