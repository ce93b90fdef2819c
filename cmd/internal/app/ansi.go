package app

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func paint(s, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + ansiReset
}

func colorizeHTTPMethod(m string, enabled bool) string {
	switch m {
	case "GET", "HEAD":
		return paint(m, ansiGreen, enabled)
	case "POST":
		return paint(m, ansiBlue, enabled)
	case "DELETE":
		return paint(m, ansiRed, enabled)
	default:
		return paint(m, ansiYellow, enabled)
	}
}

func colorizeStatusCode(code int, enabled bool) string {
	s := strconv.Itoa(code)
	switch statusClass(code) {
	case "2xx":
		return paint(s, ansiGreen, enabled)
	case "3xx":
		return paint(s, ansiCyan, enabled)
	case "4xx":
		return paint(s, ansiYellow, enabled)
	case "5xx":
		return paint(s, ansiRed, enabled)
	default:
		return s
	}
}

func colorizeDurationMS(ms int64, enabled bool) string {
	s := (time.Duration(ms) * time.Millisecond).String()
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, enabled)
	case ms >= 250:
		return paint(s, ansiYellow, enabled)
	default:
		return paint(s, ansiDim, enabled)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
