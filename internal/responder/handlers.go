package responder

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/sensor"
	"github.com/0xReLogic/sensord/internal/utils"
)

const (
	// SensorsPath is the only endpoint that returns a reading.
	SensorsPath = "/sensors"
	// StreamPath upgrades to a websocket pushing readings when streaming is enabled.
	StreamPath = "/sensors/stream"

	unmatchedRoute = "unmatched"
)

// writeJSON writes a complete, non-persistent response with an exact
// Content-Length.
func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Connection", "close")
	utils.WriteJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, utils.ErrorBody(status, message))
}

// exactTarget matches only when the raw request target is target itself,
// so queries, dot segments and escaped spellings fall through to notFound.
func exactTarget(target string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return r.RequestURI == target
	}
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	reading, err := s.provider.Current(r.Context())
	if err != nil {
		s.metrics.RecordReadingError()
		logger.Error().Err(err).Msg("failed to obtain sensor reading")
		writeError(w, http.StatusInternalServerError, "reading unavailable")
		return
	}

	body, err := sensor.Encode(reading)
	if err != nil {
		s.metrics.RecordReadingError()
		logger.Error().Err(err).Msg("failed to encode sensor reading")
		writeError(w, http.StatusInternalServerError, "reading could not be encoded")
		return
	}

	s.metrics.RecordReading()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())
	logger.Debug().Str("target", r.RequestURI).Msg("no route")
	writeError(w, http.StatusNotFound, "not found")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordRateLimitedRequest()
	logger := logging.WithContext(r.Context())
	logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("rate limit exceeded")
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// closeConnections marks every handler response non-persistent, including
// the empty 500 written by panic recovery. net/http keeps the header and
// closes the connection after the reply for HTTP/1.0 and HTTP/1.1 alike.
func closeConnections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request) string {
	switch r.RequestURI {
	case SensorsPath, StreamPath:
		return r.RequestURI
	default:
		return unmatchedRoute
	}
}
