// Package obslog implements the console log line format required by
// SPEC_FULL.md §4.13 / spec.md §6:
//
//	<unix_millis>|<LEVEL_3>|<MODULE_2>|k1=v1,k2=v2,...
//
// It is a slog.Handler so every other package logs through the idiomatic
// standard-library API (slog.Logger.Info/Warn/...); only this package knows
// about the wire format. This mirrors logger.cpp in the original source
// (a single process-wide minimum level, one line per event, module and
// level codes) while using log/slog instead of a bespoke stream-operator
// API, matching the way the teacher repo (cmd/oriond/main.go) sets up
// log/slog at startup.
package obslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelCrit sits above slog.LevelError; the source has five levels
// (DEBUG/INFO/WARN/ERR/CRIT) and slog only defines four, so CRIT is added.
const LevelCrit slog.Level = slog.LevelError + 4

// ModuleKey is the slog attribute key carrying the two-letter module code.
const ModuleKey = "mod"

// Module codes used across the core, per spec.md §6: MA (Main), SP (Sensor
// Filter), CB (Ring Buffer), CL (Command/Mode), FM (Fault Detector),
// NC (Navigation), RP (Route Planner), DC (Data Logger), LI (Local Snapshot).

// Handler renders slog.Record values in the pipe-delimited format above.
type Handler struct {
	mu       *sync.Mutex
	out      io.Writer
	minLevel slog.Level
	attrs    []slog.Attr
}

// New builds a Handler writing to w at the given minimum level.
func New(w io.Writer, minLevel slog.Level) *Handler {
	return &Handler{mu: &sync.Mutex{}, out: w, minLevel: minLevel}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	mod := "??"
	var pairs []string
	if r.Message != "" {
		pairs = append(pairs, "msg="+r.Message)
	}
	for _, a := range h.attrs {
		if a.Key == ModuleKey {
			mod = a.Value.String()
			continue
		}
		pairs = append(pairs, a.Key+"="+a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ModuleKey {
			mod = a.Value.String()
			return true
		}
		pairs = append(pairs, a.Key+"="+fmt.Sprint(a.Value.Any()))
		return true
	})

	line := fmt.Sprintf("%d|%s|%s|%s\n", r.Time.UnixMilli(), levelCode(r.Level), mod, strings.Join(pairs, ","))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{mu: h.mu, out: h.out, minLevel: h.minLevel}
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *Handler) WithGroup(_ string) slog.Handler {
	// Groups are not part of the wire format; flatten by ignoring the group
	// name, matching the flat k=v line the original logger produces.
	return h
}

func levelCode(l slog.Level) string {
	switch {
	case l >= LevelCrit:
		return "CRT"
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

// ParseLevel maps a LOG_LEVEL value (DEBUG/INFO/WARN/ERR/CRIT) to a
// slog.Level, mirroring logger.cpp::init's switch. An unrecognized string
// reports ok=false so the caller can fall back to its own default.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERR":
		return slog.LevelError, true
	case "CRIT":
		return LevelCrit, true
	default:
		return slog.LevelInfo, false
	}
}

var (
	defaultMu      sync.Mutex
	defaultHandler *Handler
)

// Init sets the process-wide minimum level from LOG_LEVEL if set and valid,
// otherwise from fallback, and installs the handler as slog's default.
// Matches logger.cpp::init: an unrecognized LOG_LEVEL value falls back to
// the caller-supplied default rather than erroring.
func Init(fallback slog.Level) {
	level := fallback
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, ok := ParseLevel(env); ok {
			level = parsed
		}
	}

	defaultMu.Lock()
	defaultHandler = New(os.Stdout, level)
	defaultMu.Unlock()

	slog.SetDefault(slog.New(defaultHandler))
}

// forwardHandler defers to whichever Handler Init has installed at the time
// a record is actually handled, rather than the one in effect when the
// forwardHandler was built. Package-level `var log = obslog.For("XX")`
// declarations run during package initialization, before main calls Init,
// so For cannot simply capture slog.Default() up front; it would bind to
// slog's bootstrap handler and never see Init's handler at all.
type forwardHandler struct {
	attrs []slog.Attr
}

func (h *forwardHandler) current() slog.Handler {
	defaultMu.Lock()
	d := defaultHandler
	defaultMu.Unlock()
	if d == nil {
		d = New(os.Stdout, slog.LevelInfo)
	}
	var hh slog.Handler = d
	if len(h.attrs) > 0 {
		hh = hh.WithAttrs(h.attrs)
	}
	return hh
}

func (h *forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.current().Enabled(ctx, level)
}

func (h *forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &forwardHandler{attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
	return next
}

func (h *forwardHandler) WithGroup(_ string) slog.Handler {
	return h
}

// For returns a logger tagged with the given two-letter module code. It
// resolves the installed handler lazily on every log call, so it is safe to
// call at package-init time, before Init has run.
func For(module string) *slog.Logger {
	return slog.New(&forwardHandler{}).With(slog.String(ModuleKey, module))
}
