package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/0xReLogic/sensord/internal/config"
	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/metrics"
	"github.com/0xReLogic/sensord/internal/responder"
	"github.com/0xReLogic/sensord/internal/sensor"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger := logging.L()
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	logging.Init(cfg.Logging)
	logger := logging.L()

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("sensord stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("sensord stopped")
}

func run(cfg *config.Config) error {
	mc := metrics.NewMetricsCollector()
	provider := sensor.Static{}

	srv, err := responder.New(cfg, provider, responder.WithMetrics(mc))
	if err != nil {
		return err
	}
	// Bind before anything else so a busy port fails startup immediately.
	if err := srv.Listen(); err != nil {
		return err
	}

	admin, err := newAdminServer(cfg, provider, mc)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	logStartupInfo(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	if admin != nil {
		g.Go(admin.serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdownGracefully(cfg, srv, admin)
	})
	return g.Wait()
}
