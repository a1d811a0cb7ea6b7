// Package logger configures the process-wide slog logger: colorized
// single-line output on stdout, with an optional plain-text copy to a
// file given via LOG_FILE.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

var levelVar slog.LevelVar

// colorHandler prints "timestamp LEVEL message" itself and delegates the
// keyed attrs to a text handler, so the prefix ordering stays fixed.
type colorHandler struct {
	handler slog.Handler
	writer  io.Writer
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String()
	var color string
	switch r.Level {
	case slog.LevelError:
		color = colorRed + colorBold
	case slog.LevelWarn:
		color = colorYellow + colorBold
	case slog.LevelInfo:
		color = colorBlue
	case slog.LevelDebug:
		color = colorGray
	}

	ts := r.Time.Format(timeLayout)
	if useColors() {
		fmt.Fprintf(h.writer, "%s%s%s %s%s%s %s%s%s ",
			colorGray, ts, colorReset,
			color, level, colorReset,
			colorCyan, r.Message, colorReset,
		)
	} else {
		fmt.Fprintf(h.writer, "%s %s %s ", ts, level, r.Message)
	}

	attrsOnly := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		attrsOnly.AddAttrs(a)
		return true
	})
	return h.handler.Handle(ctx, attrsOnly)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{handler: h.handler.WithAttrs(attrs), writer: h.writer}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{handler: h.handler.WithGroup(name), writer: h.writer}
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// dualWriter mirrors colorized output to a plain-text sink with the
// ANSI sequences stripped.
type dualWriter struct {
	color io.Writer
	plain io.Writer
}

func (w dualWriter) Write(p []byte) (int, error) {
	if _, err := w.color.Write(p); err != nil {
		return 0, err
	}
	if _, err := w.plain.Write(ansiRegex.ReplaceAll(p, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	out := io.Writer(os.Stdout)
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create log directory %s: %v\n", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			out = dualWriter{color: os.Stdout, plain: f}
		}
	}

	handler := &colorHandler{
		handler: slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:       &levelVar,
			ReplaceAttr: replaceAttr,
		}),
		writer: out,
	}

	levelVar.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(handler))
}

func useColors() bool {
	return os.Getenv("NO_COLOR") == ""
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	// time, level, and message are printed by the prefix
	switch a.Key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}
	if a.Key == "error" || a.Key == "err" {
		if useColors() && a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(colorRed + a.Value.String() + colorReset)
		}
	}
	return a
}

// Configure sets the global log level. Supported: "error", "warn",
// "info", "debug".
func Configure(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		levelVar.Set(slog.LevelError)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "debug":
		levelVar.Set(slog.LevelDebug)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}
