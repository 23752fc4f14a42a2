package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomrelay/internal/adapters/bus"
	router "github.com/dkeye/roomrelay/internal/adapters/http"
	"github.com/dkeye/roomrelay/internal/adapters/rtc"
	"github.com/dkeye/roomrelay/internal/app"
	"github.com/dkeye/roomrelay/internal/app/orch"
	"github.com/dkeye/roomrelay/internal/app/protocol"
	"github.com/dkeye/roomrelay/internal/config"
	"github.com/dkeye/roomrelay/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newBus(cfg *config.Config) (core.Bus, error) {
	switch cfg.Bus.Driver {
	case "nats":
		return bus.DialNATS(cfg.Bus.URL, "roomrelay-"+cfg.NodeID, cfg.Bus.Buffer)
	default:
		return bus.NewMemory(cfg.Bus.Buffer), nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyFromMode(cfg.Backpressure)
	if err != nil {
		return err
	}
	ice, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		return err
	}
	fanout, err := newBus(cfg)
	if err != nil {
		return fmt.Errorf("bus %s: %w", cfg.Bus.Driver, err)
	}

	hub := func(adapter *protocol.Adapter) *orch.Orchestrator {
		return orch.New(ctx, orch.Options{
			Adapter:        adapter,
			Bus:            fanout,
			Node:           cfg.NodeID,
			Policy:         policy,
			CleanupTimeout: cfg.CleanupTimeout,
		})
	}
	ep := router.Endpoints{
		MCP:       hub(protocol.MCP()),
		Signaling: hub(protocol.Signaling()),
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, ep, rtc.Configuration(ice)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("node", cfg.NodeID).Str("bus", cfg.Bus.Driver).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		hubs := []*orch.Orchestrator{ep.MCP, ep.Signaling}
		for _, o := range hubs {
			if err := o.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Str("proto", string(o.Proto.Name)).Msg("room watchers did not stop")
			}
		}
		// left events of the closing sessions still go out over the bus
		for _, o := range hubs {
			if err := o.WaitIdle(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("proto", string(o.Proto.Name)).Msg("closing bus before every cleanup ran")
			}
		}
		if err := fanout.Close(); err != nil {
			log.Error().Err(err).Msg("bus close")
		}
		return nil
	})
	return g.Wait()
}
