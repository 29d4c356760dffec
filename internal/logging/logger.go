// Package logging holds the process logger and the request scoped loggers
// derived from it.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/sensord/internal/config"
)

// scopeKey carries the request scope in a context.
type scopeKey struct{}

type requestScope struct {
	logger    zerolog.Logger
	requestID string
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	base = New(os.Stdout, config.LoggingConfig{})
}

// New builds a logger writing to w. Format "json" emits one JSON object per
// line; anything else uses the uncoloured console format.
func New(w io.Writer, cfg config.LoggingConfig) zerolog.Logger {
	out := w
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339Nano, NoColor: true}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Init replaces the process logger according to cfg.
func Init(cfg config.LoggingConfig) {
	setBase(New(os.Stdout, cfg))
}

func setBase(logger zerolog.Logger) {
	mu.Lock()
	base = logger
	mu.Unlock()
}

func parseLevel(value string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
	default:
		return zerolog.InfoLevel
	}
}

// L returns the process logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithContext returns the request logger stored by RequestContextMiddleware,
// or the process logger outside a request.
func WithContext(ctx context.Context) zerolog.Logger {
	if scope, ok := scopeFrom(ctx); ok {
		return scope.logger
	}
	return L()
}

// RequestID returns the request identifier carried by ctx, if any.
func RequestID(ctx context.Context) string {
	scope, _ := scopeFrom(ctx)
	return scope.requestID
}

func scopeFrom(ctx context.Context) (requestScope, bool) {
	if ctx == nil {
		return requestScope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(requestScope)
	return scope, ok
}

// RecoveryLogger adapts the process logger to the Println interface of
// gorilla/handlers.RecoveryHandler.
type RecoveryLogger struct{}

func (RecoveryLogger) Println(v ...interface{}) {
	logger := L()
	logger.Error().Str("panic", fmt.Sprint(v...)).Msg("recovered from handler panic")
}
