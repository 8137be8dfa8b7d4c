package obslog

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHandleFormatsPipeDelimitedLine(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, slog.LevelDebug)
	logger := slog.New(h).With(slog.String(ModuleKey, "NC"))

	logger.Info("", "event", "init", "period_ms", 10)

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("expected trailing newline, got %q", line)
	}
	parts := strings.SplitN(strings.TrimSuffix(line, "\n"), "|", 4)
	if len(parts) != 4 {
		t.Fatalf("expected 4 pipe-delimited fields, got %d: %q", len(parts), line)
	}
	if parts[1] != "INF" {
		t.Errorf("level code = %q, want INF", parts[1])
	}
	if parts[2] != "NC" {
		t.Errorf("module code = %q, want NC", parts[2])
	}
	if parts[3] != "event=init,period_ms=10" {
		t.Errorf("kv pairs = %q", parts[3])
	}
}

func TestLevelCodes(t *testing.T) {
	cases := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
		{LevelCrit, "CRT"},
	}
	for _, c := range cases {
		if got := levelCode(c.level); got != c.want {
			t.Errorf("levelCode(%v) = %q, want %q", c.level, got, c.want)
		}
	}
}

func TestEnabledRespectsMinLevel(t *testing.T) {
	h := New(&bytes.Buffer{}, slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should not be enabled at warn threshold")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn threshold")
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, ok := ParseLevel("CRIT"); !ok || lvl != LevelCrit {
		t.Errorf("ParseLevel(CRIT) = %v, %v", lvl, ok)
	}
	if _, ok := ParseLevel("bogus"); ok {
		t.Error("expected ok=false for unrecognized level")
	}
}

func TestHandleSuppressesBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, slog.LevelWarn)
	logger := slog.New(h).With(slog.String(ModuleKey, "FM"))
	logger.Debug("", "event", "noisy")
	if buf.Len() != 0 {
		t.Errorf("expected no output below min level, got %q", buf.String())
	}
}

func TestForResolvesHandlerInstalledAfterForWasCalled(t *testing.T) {
	logger := For("NC") // mirrors a package-level var bound before Init runs

	var buf bytes.Buffer
	defaultMu.Lock()
	defaultHandler = New(&buf, slog.LevelDebug)
	defaultMu.Unlock()

	logger.Info("", "event", "init")

	line := buf.String()
	if !strings.Contains(line, "|NC|") {
		t.Errorf("expected module code NC in %q", line)
	}
	if !strings.Contains(line, "event=init") {
		t.Errorf("expected event=init in %q", line)
	}
}

func TestHandleTimestampIsUnixMillis(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, slog.LevelDebug)
	now := time.Now()
	r := slog.NewRecord(now, slog.LevelInfo, "", 0)
	r.AddAttrs(slog.String(ModuleKey, "MA"), slog.String("event", "tick"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	ts := strings.SplitN(buf.String(), "|", 2)[0]
	if ts != strconv.FormatInt(now.UnixMilli(), 10) {
		t.Errorf("timestamp = %q, want %d", ts, now.UnixMilli())
	}
}
