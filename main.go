package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spooky-finn/orderbook-sync/api"
	"github.com/spooky-finn/orderbook-sync/config"
	"github.com/spooky-finn/orderbook-sync/infrastructure/logger"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"github.com/spooky-finn/orderbook-sync/provider"
	"github.com/spooky-finn/orderbook-sync/provider/rest"
	"github.com/spooky-finn/orderbook-sync/provider/stomp"
	"github.com/spooky-finn/orderbook-sync/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orderbook-sync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.DebugMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Environment))
	log.Info("starting", zap.Strings("symbols", cfg.App.Symbols), zap.String("userId", cfg.App.UserID))

	connManager := provider.NewConnectionManager(provider.Options{
		Rest: rest.Options{
			BaseURL:      cfg.Rest.BaseURL,
			Timeout:      cfg.Rest.Timeout,
			PollInterval: cfg.Rest.PollInterval,
			TradesLimit:  cfg.Rest.TradesLimit,
		},
		Stream: stomp.Options{
			Endpoint:         cfg.Stream.Endpoint,
			HandshakeTimeout: cfg.Stream.HandshakeTimeout,
			ReconnectMin:     cfg.Stream.ReconnectMin,
			ReconnectMax:     cfg.Stream.ReconnectMax,
			ReconnectFactor:  cfg.Stream.ReconnectFactor,
			Heartbeat:        cfg.Stream.Heartbeat,
		},
		StreamEnabled: cfg.Stream.Enabled,
		TapeCapacity:  cfg.Book.TapeCapacity,
	}, log)
	if err := connManager.Init(); err != nil {
		return fmt.Errorf("failed to init connections: %w", err)
	}
	defer connManager.Close()

	controller := usecase.NewSyncController(connManager, usecase.Options{
		TapeCapacity: cfg.Book.TapeCapacity,
		DisplayDepth: cfg.Book.DisplayDepth,
		UserID:       cfg.App.UserID,
	}, log)

	server := api.NewServer(controller, &api.ValidationServiceConfig{
		MaxSymbols: cfg.App.MaxSymbols,
	}, promclient.NewRegistry(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Run(ctx)
	})
	g.Go(func() error {
		return server.Start(ctx, cfg.App.HTTPAddr)
	})
	g.Go(func() error {
		for _, symbol := range cfg.App.Symbols {
			if err := controller.Track(ctx, symbol); err != nil {
				log.Warn("initial track failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutting down")
	return err
}
