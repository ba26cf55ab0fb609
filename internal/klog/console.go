package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorCyan   = 36

	colorDarkGray = 90
)

func colorize(color int, s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

// consoleHandler renders records as a single colored line:
// time LEVEL message key=value ...
type consoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{
		mu:    new(sync.Mutex),
		out:   out,
		level: level,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorize(colorRed, "ERR")
	case level >= slog.LevelWarn:
		return colorize(colorYellow, "WRN")
	case level >= slog.LevelInfo:
		return colorize(colorGreen, "INF")
	default:
		return colorize(colorCyan, "DBG")
	}
}

func (h *consoleHandler) appendAttr(b *strings.Builder, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		prefix := attr.Key
		if group != "" {
			prefix = group + "." + prefix
		}
		for _, sub := range attr.Value.Group() {
			h.appendAttr(b, prefix, sub)
		}
		return
	}
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s%s", colorize(colorDarkGray, key+"="), attr.Value.String())
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(colorize(colorDarkGray, r.Time.Format(time.TimeOnly+".000")))
	b.WriteByte(' ')
	b.WriteString(levelLabel(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, attr := range h.attrs {
		h.appendAttr(&b, h.group, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&b, h.group, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group == "" {
		c.group = name
	} else {
		c.group = c.group + "." + name
	}
	return &c
}
