package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, see journalctl -t.
const SyslogIdentifier = "vidcap"

// LogCallback receives every entry stored in the ring buffer.
type LogCallback func(entry LogEntry)

// scope carries the attributes and groups accumulated by WithAttrs and
// WithGroup for handlers that render records themselves. Each attribute
// remembers the groups open when it was added.
type scope struct {
	attrs  []scopedAttr
	groups []string
}

type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	out := make([]scopedAttr, 0, len(s.attrs)+len(attrs))
	out = append(out, s.attrs...)
	for _, a := range attrs {
		out = append(out, scopedAttr{groups: s.groups, attr: a})
	}
	return scope{attrs: out, groups: s.groups}
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	return scope{attrs: s.attrs, groups: append(s.groups[:len(s.groups):len(s.groups)], name)}
}

// each visits the scope's attributes, then the record's, each with the
// group path it was added under.
func (s scope) each(r slog.Record, fn func(groups []string, a slog.Attr)) {
	for _, sa := range s.attrs {
		fn(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		fn(s.groups, a)
		return true
	})
}

// flatten calls emit once per leaf attribute, joining group names with sep.
func flatten(groups []string, a slog.Attr, sep string, emit func(key string, v slog.Value)) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() == slog.KindGroup {
		inner := append(groups[:len(groups):len(groups)], a.Key)
		for _, ga := range v.Group() {
			flatten(inner, ga, sep, emit)
		}
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, sep) + sep + key
	}
	emit(key, v)
}

// fanout hands each record to every member that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// journalSink writes records to journald with attributes as upper-case
// fields, so `journalctl MODULE=v4l2 SOURCE=/dev/video0` works.
type journalSink struct {
	level slog.Leveler
	scope scope
}

func (h *journalSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalSink) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	h.scope.each(r, func(groups []string, a slog.Attr) {
		flatten(groups, a, "_", func(key string, v slog.Value) {
			fields[strings.ToUpper(key)] = journalValue(v)
		})
	})
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

func (h *journalSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalSink{level: h.level, scope: h.scope.withAttrs(attrs)}
}

func (h *journalSink) WithGroup(name string) slog.Handler {
	return &journalSink{level: h.level, scope: h.scope.withGroup(name)}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	default:
		return v.String()
	}
}

// recentSink stores records in the process ring buffer and forwards them
// to the LogCallback. Records are dropped until Initialize has run.
type recentSink struct {
	level slog.Leveler
	scope scope
}

func (h *recentSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *recentSink) Handle(_ context.Context, r slog.Record) error {
	mutex.RLock()
	buffer, callback := logBuffer, logCallback
	mutex.RUnlock()
	if buffer == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	h.scope.each(r, func(groups []string, a slog.Attr) {
		if a.Key == "module" && len(groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		flatten(groups, a, ".", func(key string, v slog.Value) {
			entry.Attributes[key] = entryValue(v)
		})
	})

	buffer.Write(entry)
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *recentSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recentSink{level: h.level, scope: h.scope.withAttrs(attrs)}
}

func (h *recentSink) WithGroup(name string) slog.Handler {
	return &recentSink{level: h.level, scope: h.scope.withGroup(name)}
}

// entryValue converts v into something encoding/json renders readably.
func entryValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
