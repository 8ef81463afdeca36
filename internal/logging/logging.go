// Package logging configures zerolog for the binaries and the HTTP access log.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// ParseLevel converts a string level into zerolog.Level with a safe default.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "info":
		fallthrough
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to w. format "json" emits raw JSON lines,
// anything else a human readable console format.
func New(w io.Writer, level, format string) zerolog.Logger {
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Init sets the global level and logger and returns it.
func Init(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	logger := New(os.Stderr, level, format)
	log.Logger = logger
	return logger
}

// AccessLog returns the hlog middleware chain: logger injection, request id,
// remote address and one line per completed request.
func AccessLog(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		hlog.RequestIDHandler("request_id", "X-Request-Id"),
		hlog.RemoteAddrHandler("remote_addr"),
		hlog.MethodHandler("method"),
		hlog.URLHandler("url"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
	}
}
