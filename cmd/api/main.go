// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luxfi/vastplayer/pkg/api"
	"github.com/luxfi/vastplayer/pkg/config"
	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/monitor"
	"github.com/luxfi/vastplayer/pkg/session"
	"github.com/luxfi/vastplayer/pkg/transport"
)

var mode = flag.String("env", "development", "Environment (development/production)")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	metrics, err := metric.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	pixels := transport.NewPixelDispatcher(cfg.PixelConfig(), &http.Client{}, logger.With(log.String("component", "pixels")), metrics)
	defer pixels.Close()

	hub := monitor.NewHub(pixels, logger.With(log.String("component", "monitor")),
		monitor.WithAllowedOrigins(cfg.AllowedOrigins...))
	defer hub.Close()

	sessions := session.NewStore(hub, cfg.SessionTTL,
		session.WithLogger(logger.With(log.String("component", "sessions"))),
		session.WithMetrics(metrics))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.Run(ctx, time.Minute)

	handler := api.NewHandler(api.Config{
		Fetcher:         cfg.Fetcher(),
		ResolverOptions: cfg.ResolverOptions(logger.With(log.String("component", "resolver")), metrics),
		Capabilities:    cfg.Capabilities(),
		Sessions:        sessions,
		Monitor:         hub,
		Metrics:         metrics,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           setupRouter(handler, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	logger.Info("vast player service started",
		log.String("addr", cfg.HTTPAddr),
		log.String("env", *mode),
		log.Duration("loadTimeout", cfg.LoadTimeout),
		log.Int("maxWrapperDepth", cfg.MaxWrapperDepth))

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

func setupRouter(handler *api.Handler, origins []string) *gin.Engine {
	if *mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	if corsConfig, ok := newCORSConfig(origins); ok {
		router.Use(cors.New(corsConfig))
	}

	handler.RegisterRoutes(router)
	return router
}

// newCORSConfig allows the configured origins. Without any, browsers are
// held to the same origin policy.
func newCORSConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}

	corsConfig := cors.DefaultConfig()
	if slices.Contains(origins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	return corsConfig, true
}
