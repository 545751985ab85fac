package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" or "json"
	Writer io.Writer
}

// New constructs a slog logger using the provided options. An empty Format
// defaults to "console" when the writer is a terminal, "json" otherwise.
func New(opts Options) (*slog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		} else {
			format = "json"
		}
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})), nil
	case "console":
		return slog.New(newConsoleHandler(w, levelVar)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler renders one line per record: timestamp, level, component,
// message, followed by "key=value" pairs for everything else. Color is used
// for the level tag when attached to a terminal.
type consoleHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	attrs  []slog.Attr
	groups []string
	color  bool
}

func newConsoleHandler(w io.Writer, level *slog.LevelVar) *consoleHandler {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}
	return &consoleHandler{w: w, level: level, color: useColor}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(record.Time.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(h.levelTag(record.Level))
	buf.WriteByte(' ')

	var component string
	fields := make([]string, 0, record.NumAttrs()+len(h.attrs))
	collect := func(a slog.Attr) bool {
		if a.Key == FieldComponent && component == "" {
			component = a.Value.String()
			return true
		}
		fields = append(fields, a.Key+"="+formatValue(a.Value))
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	record.Attrs(collect)

	if component != "" {
		buf.WriteByte('[')
		buf.WriteString(component)
		buf.WriteString("] ")
	}
	buf.WriteString(record.Message)
	for _, f := range fields {
		buf.WriteByte(' ')
		buf.WriteString(f)
	}
	buf.WriteByte('\n')
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) levelTag(level slog.Level) string {
	label := levelLabel(level)
	if !h.color {
		return label
	}
	switch {
	case level >= slog.LevelError:
		return color.RedString(label)
	case level >= slog.LevelWarn:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	s := v.String()
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
