package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ActionsHandler is a slog.Handler that emits GitHub Actions workflow
// commands: debug records become ::debug::, warnings ::warning:: and errors
// ::error::. Info records are printed as plain lines.
type ActionsHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr
	group string
}

// NewActionsHandler creates a handler writing to w.
func NewActionsHandler(w io.Writer) *ActionsHandler {
	return &ActionsHandler{mu: &sync.Mutex{}, w: w}
}

// Enabled reports true for every level.
func (h *ActionsHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle formats r as a single workflow command line.
func (h *ActionsHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		return h.command("error", b.String())
	case r.Level >= slog.LevelWarn:
		return h.command("warning", b.String())
	case r.Level >= slog.LevelInfo:
		return h.line(b.String())
	default:
		return h.command("debug", b.String())
	}
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *ActionsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (h *ActionsHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *ActionsHandler) command(name, data string) error {
	return h.line(fmt.Sprintf("::%s::%s", name, escapeData(data)))
}

func (h *ActionsHandler) line(s string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, s+"\n")
	return err
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Resolve().Any())
}

// escapeData escapes the characters the runner treats specially in
// workflow command data.
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
