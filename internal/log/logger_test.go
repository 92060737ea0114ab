package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelInfo}).WithComponent(ComponentLedger)

	logger.Info("hello", FieldGoalID, "g1")
	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "goal_id=g1") {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %q", l.Component())
	}
	logger := Discard().WithComponent(ComponentHTTP)
	if l := FromContext(NewContext(context.Background(), logger)); l != logger {
		t.Fatalf("expected logger from context")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf, Level: slog.LevelInfo}))
	ctx := context.Background()

	req := httptest.NewRequest("GET", "/api/goals?x=1", nil)
	sl.LogHTTPEnd(ctx, req, "req_1", 503, 12, "10.0.0.1")
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status_code=503") {
		t.Fatalf("5xx should log at error level: %s", out)
	}

	buf.Reset()
	sl.LogTransaction(ctx, OpCreate, "u1", "t1", -500, "Lazer", "")
	if out := buf.String(); !strings.Contains(out, "Transaction created") || strings.Contains(out, "goal_id") {
		t.Fatalf("unexpected transaction log: %s", out)
	}

	buf.Reset()
	sl.LogError(ctx, "boom", errors.New("disk"), OpAdjust, nil)
	if out := buf.String(); !strings.Contains(out, "error=disk") || !strings.Contains(out, "operation=adjust") {
		t.Fatalf("unexpected error log: %s", out)
	}
}
