// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/authorization"
	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/config"
	"github.com/bureau-foundation/depot/lib/ledger"
	"github.com/bureau-foundation/depot/lib/payload"
	"github.com/bureau-foundation/depot/lib/principal"
	"github.com/bureau-foundation/depot/lib/seed"
	"github.com/bureau-foundation/depot/lib/service"
	"github.com/bureau-foundation/depot/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("depot-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to depot.yaml (default: $DEPOT_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("depot-service %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	principals, err := principal.OpenStore(principal.StoreConfig{
		Path:     filepath.Join(cfg.Paths.State, "principal.db"),
		PoolSize: cfg.Limits.PoolSize,
		Clock:    clk,
		Logger:   logger.With("store", "principal"),
	})
	if err != nil {
		return fmt.Errorf("opening principal store: %w", err)
	}
	defer principals.Close()

	ledgerStore, err := ledger.OpenStore(ledger.StoreConfig{
		Path:           filepath.Join(cfg.Paths.State, "ledger.db"),
		PoolSize:       cfg.Limits.PoolSize,
		TraversalLimit: cfg.Limits.TraversalLimit,
		Clock:          clk,
		Logger:         logger.With("store", "ledger"),
	})
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer ledgerStore.Close()

	attributes, err := attribute.OpenStore(attribute.StoreConfig{
		Path:     filepath.Join(cfg.Paths.State, "attribute.db"),
		PoolSize: cfg.Limits.PoolSize,
		Clock:    clk,
		Logger:   logger.With("store", "attribute"),
	})
	if err != nil {
		return fmt.Errorf("opening attribute store: %w", err)
	}
	defer attributes.Close()

	payloads, err := payload.Open(payload.StoreConfig{
		Root:   cfg.Paths.Payloads,
		Logger: logger.With("store", "payload"),
	})
	if err != nil {
		return fmt.Errorf("opening payload store: %w", err)
	}

	evaluator, err := authorization.NewEvaluator(authorization.EvaluatorConfig{
		Principals: principals,
		Ledger:     ledgerStore,
		Attributes: attributes,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if cfg.Paths.Seed != "" {
		document, err := seed.ReadFile(cfg.Paths.Seed)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		applier := &seed.Applier{
			Principals: principals,
			Attributes: attributes,
			Logger:     logger,
		}
		if err := applier.Apply(ctx, document); err != nil {
			return err
		}
		logger.Info("seed applied", "path", cfg.Paths.Seed)
	}

	depot := &Depot{
		config:     cfg,
		principals: principals,
		ledger:     ledgerStore,
		attributes: attributes,
		payloads:   payloads,
		evaluator:  evaluator,
		clock:      clk,
		logger:     logger,
	}

	// Requests carry payloads inline; leave CBOR framing headroom
	// above the payload limit.
	maxRequestSize := cfg.Limits.MaxPayloadBytes + service.DefaultMaxRequestSize
	server := service.NewSocketServer(cfg.Paths.Socket, maxRequestSize, logger)
	depot.registerActions(server)

	logger.Info("depot service starting",
		"socket", cfg.Paths.Socket,
		"state", cfg.Paths.State,
		"auto_share_on_lookup", cfg.Policy.AutoShareOnLookup,
		"version", version.Short(),
	)

	return server.Serve(ctx)
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}
