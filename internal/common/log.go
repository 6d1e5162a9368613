// File path: internal/common/log.go
package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultLogHistory = 1000

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	history    = newLogRing(defaultLogHistory)
)

// LogEntry represents a captured log record emitted via the common logger.
type LogEntry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// LogFilter narrows LogEntries.
type LogFilter struct {
	Level     string
	Component string
	Limit     int
}

// Logger returns the process-wide slog logger. LOG_LEVEL selects the
// minimum level and LOG_FORMAT=json switches to JSON output.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	})
	return logger
}

func newLogger(w io.Writer, levelName, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelName)}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(w, opts)
	default:
		base = slog.NewTextHandler(w, opts)
	}
	return slog.New(&capturingHandler{next: base, ring: history})
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogEntries returns captured entries, oldest first, matching the filter.
func LogEntries(filter LogFilter) []LogEntry {
	all := history.snapshot()
	minLevel := slog.Level(-100)
	if filter.Level != "" {
		minLevel = ParseLevel(filter.Level)
	}
	component := strings.TrimSpace(filter.Component)
	out := make([]LogEntry, 0, len(all))
	for _, entry := range all {
		if ParseLevel(entry.Level) < minLevel {
			continue
		}
		if component != "" && !strings.EqualFold(entry.Component, component) {
			continue
		}
		out = append(out, entry)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// capturingHandler forwards records to the output handler and keeps a copy
// in the history ring for the /api/logs view.
type capturingHandler struct {
	next  slog.Handler
	ring  *logRing
	attrs []slog.Attr
}

func (h *capturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *capturingHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.ring != nil {
		h.ring.push(toEntry(record, h.attrs))
	}
	return h.next.Handle(ctx, record)
}

func (h *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *capturingHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// logRing is a fixed-size circular buffer of log entries.
type logRing struct {
	mu    sync.Mutex
	buf   []LogEntry
	next  int
	count int
}

func newLogRing(size int) *logRing {
	if size <= 0 {
		size = defaultLogHistory
	}
	return &logRing{buf: make([]LogEntry, size)}
}

func (r *logRing) push(entry LogEntry) {
	r.mu.Lock()
	r.buf[r.next] = entry
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// snapshot returns the buffered entries, oldest first.
func (r *logRing) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func toEntry(record slog.Record, inherited []slog.Attr) LogEntry {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := LogEntry{
		Time:    ts.UTC(),
		Level:   strings.ToLower(record.Level.String()),
		Message: record.Message,
	}
	attrs := map[string]interface{}{}
	add := func(a slog.Attr) bool {
		v := plain(a.Value.Resolve())
		if a.Key == "component" {
			entry.Component = strings.TrimSpace(fmt.Sprint(v))
		} else {
			attrs[a.Key] = v
		}
		return true
	}
	for _, a := range inherited {
		add(a)
	}
	record.Attrs(add)

	// "debounce: timer armed" is attributed to the debounce component.
	if entry.Component == "" {
		if prefix, _, ok := strings.Cut(entry.Message, ":"); ok && prefix != "" && !strings.ContainsAny(prefix, " \t") {
			entry.Component = prefix
		}
	}
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}
	return entry
}

// plain converts a slog value into something encoding/json renders well.
func plain(v slog.Value) interface{} {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC()
	case slog.KindGroup:
		group := map[string]interface{}{}
		for _, a := range v.Group() {
			group[a.Key] = plain(a.Value.Resolve())
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
