package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/0xReLogic/sensord/internal/adminapi"
	"github.com/0xReLogic/sensord/internal/config"
	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/metrics"
	"github.com/0xReLogic/sensord/internal/responder"
	"github.com/0xReLogic/sensord/internal/sensor"
)

// adminServer is the optional Admin API listener
type adminServer struct {
	http     *http.Server
	listener net.Listener
}

// newAdminServer binds the Admin API if enabled in config, nil otherwise
func newAdminServer(cfg *config.Config, provider sensor.Provider, mc *metrics.MetricsCollector) (*adminServer, error) {
	if !cfg.AdminAPI.Enabled {
		return nil, nil
	}

	handler := adminapi.NewMux(provider, cfg.AdminAPI.AuthToken, mc)
	if len(cfg.AdminAPI.AllowList) > 0 || len(cfg.AdminAPI.DenyList) > 0 {
		filter, err := adminapi.NewIPFilter(cfg.AdminAPI.AllowList, cfg.AdminAPI.DenyList)
		if err != nil {
			return nil, fmt.Errorf("admin api ip filter: %w", err)
		}
		handler = filter.Middleware(handler)
	}
	handler = logging.RequestContextMiddleware(cfg.Logging)(handler)

	addr := cfg.AdminAPI.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin api listen on %s: %w", addr, err)
	}

	return &adminServer{
		http: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		listener: ln,
	}, nil
}

func (a *adminServer) serve() error {
	logger := logging.L()
	logger.Info().Str("addr", a.listener.Addr().String()).Msg("admin api server starting")
	if err := a.http.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin api: %w", err)
	}
	return nil
}

// logStartupInfo logs configuration that shapes request handling
func logStartupInfo(cfg *config.Config) {
	logger := logging.L()

	logger.Info().
		Str("addr", cfg.Server.Addr()).
		Int("max_connections", cfg.Server.MaxConnections).
		Msg("sensord starting")
	logger.Info().
		Int("read_timeout_seconds", cfg.Server.Timeouts.Read).
		Int("write_timeout_seconds", cfg.Server.Timeouts.Write).
		Int("idle_timeout_seconds", cfg.Server.Timeouts.Idle).
		Msg("server timeouts configured")

	if cfg.RateLimit.Enabled {
		logger.Info().Int("max_tokens", cfg.RateLimit.MaxTokens).
			Int("refill_interval_ms", cfg.RateLimit.RefillIntervalMs).
			Msg("rate limiting enabled")
	}
	if cfg.Stream.Enabled {
		logger.Info().Int("interval_seconds", cfg.Stream.Interval).Str("path", responder.StreamPath).Msg("reading stream enabled")
	}
	if cfg.AdminAPI.Enabled {
		if cfg.AdminAPI.AuthToken != "" {
			logger.Info().Msg("admin api authentication enabled")
		} else {
			logger.Info().Msg("admin api authentication disabled")
		}
	}
}

// shutdownGracefully stops both servers within the configured timeout
func shutdownGracefully(cfg *config.Config, srv *responder.Server, admin *adminServer) error {
	logger := logging.L()
	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info().Dur("timeout", timeout).Msg("shutting down gracefully")

	err := srv.Shutdown(ctx)
	if admin != nil {
		if adminErr := admin.http.Shutdown(ctx); adminErr != nil {
			err = multierr.Append(err, adminErr)
			err = multierr.Append(err, admin.http.Close())
		}
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
