package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("component", "dataset")

	log.Info("aggregated", "nodes", 4, "tagGroup", "Business Criticality", "durationMs", 12)

	line := buf.String()
	for _, want := range []string{
		"[INFO]",
		"dataset: aggregated",
		"nodes=4",
		`tagGroup="Business Criticality"`,
		"duration=12ms",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}
}

func TestCompactHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "[WARN]  ") {
		t.Errorf("Expected warn prefix, got %q", buf.String())
	}
}

func TestCompactHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, nil)).WithGroup("fetch")

	log.Info("done", "total", 3)

	if !strings.Contains(buf.String(), "fetch.total=3") {
		t.Errorf("Expected grouped key, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		verbosity string
		count     int
		want      slog.Level
	}{
		{"", 0, slog.LevelInfo},
		{"", 1, slog.LevelDebug},
		{"", 3, LevelTrace},
		{"warn", 2, slog.LevelWarn},
		{"error", 0, slog.LevelError},
		{"bogus", 0, slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.verbosity, tt.count); got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.verbosity, tt.count, got, tt.want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "abc-123" {
		t.Errorf("Handler saw request ID %q, want abc-123", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("Response header X-Request-ID = %q", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	// Generated when missing
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated request ID")
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

func TestCompactHandlerRequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, nil))

	ctx := WithRequestID(context.Background(), "0123456789abcdef")
	log.InfoContext(ctx, "refreshed")
	log.InfoContext(ctx, "explicit", "requestID", "fedcba9876543210")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "req=01234567") {
		t.Errorf("Expected request id from context, got %q", lines[0])
	}
	if strings.Count(lines[1], "req=") != 1 || !strings.Contains(lines[1], "req=fedcba98") {
		t.Errorf("Expected only the explicit request id, got %q", lines[1])
	}
}
