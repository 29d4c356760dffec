package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/metrics"
	"github.com/0xReLogic/sensord/internal/sensor"
	"github.com/0xReLogic/sensord/internal/utils"
)

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// NewMux creates an HTTP handler for the Admin API
func NewMux(provider sensor.Provider, token string, mc *metrics.MetricsCollector) http.Handler {
	mux := http.NewServeMux()

	// Auth middleware
	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") || strings.TrimPrefix(authz, "Bearer ") != token {
				utils.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	getOnly := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Health endpoint (no auth)
	mux.Handle("/v1/health", getOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(healthResponse{
			Status: "ok",
			Uptime: mc.Uptime().Round(time.Second).String(),
		})
		if err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "health unavailable")
			return
		}
		utils.WriteJSON(w, http.StatusOK, body)
	})))

	// Metrics endpoint (auth if token set)
	mux.Handle("/v1/metrics", auth(getOnly(mc.MetricsHandler())))

	// Current reading, encoded exactly as /sensors serves it
	mux.Handle("/v1/reading", auth(getOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reading, err := provider.Current(r.Context())
		if err != nil {
			logger := logging.WithContext(r.Context())
			logger.Error().Err(err).Msg("admin reading failed")
			utils.WriteError(w, http.StatusInternalServerError, "reading unavailable")
			return
		}
		body, err := sensor.Encode(reading)
		if err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "reading could not be encoded")
			return
		}
		utils.WriteJSON(w, http.StatusOK, body)
	}))))

	logger := logging.L()
	logger.Info().Msg("admin api mux initialized")
	return mux
}
