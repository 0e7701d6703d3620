// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ffutop/tcpframe/internal/config"
	"github.com/ffutop/tcpframe/internal/logging"
	"github.com/ffutop/tcpframe/internal/metrics"
	"github.com/ffutop/tcpframe/internal/server"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init(cfg.Log.Level, cfg.Log.File)
	logger.Info().Msg("starting tcpframed")

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct server")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, logger, cfg.Metrics.Addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		if err := <-runErr; err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
			os.Exit(1)
		}
	case err := <-runErr:
		if err != nil {
			logger.Error().Err(err).Msg("server failed to start")
			os.Exit(1)
		}
	}

	logger.Info().Msg("goodbye")
}

// serveMetrics runs the optional Prometheus exposition endpoint until ctx
// is cancelled. A failure here is logged, not fatal: metrics are
// recorded in-process regardless of whether they can be scraped.
func serveMetrics(ctx context.Context, logger zerolog.Logger, addr string) {
	log := logging.ForComponent(logger, "metrics")
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics endpoint stopped")
	}
}
