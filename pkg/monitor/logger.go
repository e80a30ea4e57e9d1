package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// CustomHandler implements slog.Handler with a compact
// [TIME] [LEVEL] message key=value format.
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "[%s] [%s] %s",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
		r.Message,
	)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{
		w:     h.w,
		opts:  h.opts,
		attrs: append(h.attrs, attrs...),
	}
}

func (h *CustomHandler) WithGroup(_ string) slog.Handler {
	// Grouping is not needed for this backend's logs.
	return h
}

// SetupEnvironment initializes the global slog logger. Output goes to stderr
// and to rotated files under ./logs, kept for a week.
func SetupEnvironment(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	fileSink := &lumberjack.Logger{
		Filename:   "logs/log.txt",
		MaxSize:    50, // megabytes per file
		MaxAge:     7,  // days
		MaxBackups: 7 * 24,
		Compress:   false,
	}

	handler := NewCustomHandler(io.MultiWriter(os.Stderr, fileSink), slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// VerbosityToLevel maps the repeatable --verbose flag onto a level name.
func VerbosityToLevel(verbose int) string {
	switch {
	case verbose <= 0:
		return "info"
	default:
		return "debug"
	}
}

// PrintBanner prints the startup banner.
func PrintBanner() {
	fmt.Println("FrevaGPT backend: streaming chatbot for the Freva evaluation system")
}
