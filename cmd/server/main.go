package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/dkeye/Dial/internal/adapters/auth"
	router "github.com/dkeye/Dial/internal/adapters/http"
	signalws "github.com/dkeye/Dial/internal/adapters/signal"
	"github.com/dkeye/Dial/internal/adapters/ws"
	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/config"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the configured logger takes over.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logCloser, err := setupLogger(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logCloser.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	clock := clockwork.NewRealClock()
	loop := core.NewLoop(clock, cfg.LoopBacklog)
	go loop.Run()

	manager := app.NewSessionManager(loop, app.Options{
		RoomTimeout: cfg.RoomTimeout,
		ICEServers:  cfg.ICEServers,
		Policy:      app.SimplePolicy{},
	})
	gateway := app.NewGateway(loop, manager)

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.Auth.Secret,
		Algorithm: cfg.Auth.Algorithm,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up auth")
	}

	connCtx, closeConns := context.WithCancel(context.Background())
	defer closeConns()
	limiter := signalws.NewUpgradeRateLimiter(clock, cfg.UpgradeLimit, cfg.UpgradeInterval)
	ctrl := signalws.NewSignalWSController(connCtx, gateway, loop, limiter, ws.Options{
		WriteWait:  cfg.WriteWait,
		PongWait:   cfg.PongWait,
		PingPeriod: cfg.PingPeriod,
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(cfg, router.Deps{
		Verifier: verifier,
		Presence: gateway,
		Socket:   ctrl.HandleSocket,
		Gatherer: registry,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Dial server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("session manager close")
	}
	closeConns()
	ctrl.Wait()
	loop.Stop()
	log.Info().Msg("Server exited gracefully")
}
