package logging

import (
	"context"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"

	"github.com/0xReLogic/sensord/internal/config"
)

const defaultRequestHeader = "X-Request-ID"

// RequestContextMiddleware gives every request a scoped logger. With request
// ids enabled the client's id is reused when present, otherwise a UUID is
// generated, and the id is echoed on the response.
func RequestContextMiddleware(cfg config.LoggingConfig) func(http.Handler) http.Handler {
	header := strings.TrimSpace(cfg.RequestID.Header)
	if header == "" {
		header = defaultRequestHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := requestScope{logger: L()}
			if cfg.RequestID.Enabled {
				scope.requestID = strings.TrimSpace(r.Header.Get(header))
				if scope.requestID == "" {
					scope.requestID = uuid.NewString()
					r.Header.Set(header, scope.requestID)
				}
				w.Header().Set(header, scope.requestID)
				scope.logger = scope.logger.With().Str("request_id", scope.requestID).Logger()
			}

			ctx := context.WithValue(r.Context(), scopeKey{}, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLogMiddleware writes one log line per request once the response
// has been written.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		logger := WithContext(r.Context())
		event := logger.Info()
		if m.Code >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", m.Code).
			Int64("bytes", m.Written).
			Dur("latency", m.Duration).
			Msg("request served")
	})
}
