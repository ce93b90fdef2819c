package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one line per record for local development:
//
//	15:04:05.000 INFO  session.expired.reaped session=3f2a9c0d1b7e user_id=42
//	15:04:05.012 WARN  http.request GET /me 401 3ms request_id=01J... remote=...
//
// http.request records fold method, path, status and duration into a short
// summary; their status_class and result attrs are implied by the status color.
type prettyHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	color bool

	// group is the dotted prefix for attrs added after WithGroup.
	group string
	// pre holds attrs from WithAttrs, already rendered.
	pre []string

	mu *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(paint(ts.Format("15:04:05.000"), ansiDim, h.color))
	b.WriteByte(' ')
	b.WriteString(levelLabel(r.Level, h.color))
	b.WriteByte(' ')
	b.WriteString(paint(r.Message, ansiBright, h.color))

	isRequest := r.Message == "http.request" && h.group == ""
	var req requestSummary
	fields := append([]string(nil), h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		if isRequest && req.take(a) {
			return true
		}
		fields = h.appendAttr(fields, h.group, a)
		return true
	})

	if isRequest {
		b.WriteByte(' ')
		b.WriteString(req.render(h.color))
	}
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(paint(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), ansiDim, h.color))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	cp.pre = append([]string(nil), h.pre...)
	for _, a := range attrs {
		cp.pre = h.appendAttr(cp.pre, h.group, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.group = joinKey(h.group, name)
	return &cp
}

func (h *prettyHandler) appendAttr(dst []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}

	if a.Value.Kind() == slog.KindGroup {
		// An unnamed group is inlined.
		p := prefix
		if a.Key != "" {
			p = joinKey(prefix, a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = h.appendAttr(dst, p, ga)
		}
		return dst
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return dst
	}
	name := key
	if strings.HasSuffix(name, "_ms") {
		name = strings.TrimSuffix(name, "_ms")
	}
	return append(dst, joinKey(prefix, name)+"="+h.formatValue(key, a.Value))
}

func (h *prettyHandler) formatValue(key string, v slog.Value) string {
	switch key {
	case "err":
		return paint(quoteIfNeeded(valueToString(v)), ansiRed, h.color)
	case "session", "request_id":
		return paint(valueToString(v), ansiDim, h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	}
	return quoteIfNeeded(valueToString(v))
}

// requestSummary collects the request line attrs of an http.request record.
type requestSummary struct {
	method     string
	path       string
	status     int
	durationMS int64
	hasStatus  bool
}

func (s *requestSummary) take(a slog.Attr) bool {
	switch a.Key {
	case "method":
		s.method = strings.ToUpper(a.Value.String())
	case "path":
		s.path = a.Value.String()
	case "status":
		n, ok := valueToInt64(a.Value)
		if !ok {
			return false
		}
		s.status, s.hasStatus = int(n), true
	case "duration_ms":
		n, ok := valueToInt64(a.Value)
		if !ok {
			return false
		}
		s.durationMS = n
	case "status_class", "result":
	default:
		return false
	}
	return true
}

func (s requestSummary) render(color bool) string {
	parts := []string{colorizeHTTPMethod(s.method, color), paint(s.path, ansiCyan, color)}
	if s.hasStatus {
		parts = append(parts, colorizeStatusCode(s.status, color))
	}
	parts = append(parts, colorizeDurationMS(s.durationMS, color))
	return strings.Join(parts, " ")
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiMagenta, color)
	default:
		return paint("INFO ", ansiBlue, color)
	}
}
