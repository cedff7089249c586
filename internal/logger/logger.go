// Package logger configures the process-wide slog logger used by every
// dialout component. Output format is a compact single-line
// "[HH:MM:SS] [LEVEL] message key=value" record suitable for terminals
// and log shippers alike.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	globalLevel = slog.LevelInfo
	levelMutex  sync.RWMutex
)

// SetLevel sets the global log level from its string form.
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	levelMutex.Lock()
	defer levelMutex.Unlock()
	globalLevel = level
}

// Level returns the current global log level.
func Level() slog.Level {
	levelMutex.RLock()
	defer levelMutex.RUnlock()
	return globalLevel
}

// ParseLevel parses a string to an slog level. Unknown strings map to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lineHandler writes compact single-line records to one or more outputs.
type lineHandler struct {
	outs  []io.Writer
	attrs []slog.Attr
	mu    sync.Mutex
}

// Handle implements slog.Handler.
func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	levelMutex.RLock()
	if record.Level < globalLevel {
		levelMutex.RUnlock()
		return nil
	}
	levelMutex.RUnlock()

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(record.Time.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString("] ")
	b.WriteString(record.Message)

	for _, a := range h.attrs {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")

	line := []byte(b.String())
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write(line)
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lineHandler{outs: h.outs, attrs: merged}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (h *lineHandler) WithGroup(string) slog.Handler {
	return h
}

// Enabled implements slog.Handler.
func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	levelMutex.RLock()
	defer levelMutex.RUnlock()
	return level >= globalLevel
}

// InitLogger installs the default logger writing to the given outputs.
// sipgo components inherit it through slog.Default.
func InitLogger(outputs ...io.Writer) {
	handler := &lineHandler{outs: outputs}
	slog.SetDefault(slog.New(handler))
}
