package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"deedescrow/config"
	"deedescrow/core"
	"deedescrow/indexer"
	"deedescrow/observability/logging"
	telemetry "deedescrow/observability/otel"
	"deedescrow/rpc"
	"deedescrow/storage"
)

const serviceName = "escrowd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("escrowd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("DEED_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(serviceName, env, cfg.LoggingOptions())
	defer logCloser.Close()

	runtime, err := cfg.Runtime()
	if err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}
	authToken := cfg.ResolvedAuthToken()
	logger.Info("starting escrowd", cfg.LogAttrs(authToken)...)

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(stopCtx, cfg.TelemetryConfig(serviceName))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	store, err := indexer.NewSQLiteStore(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		return fmt.Errorf("open event index: %w", err)
	}
	defer func() { _ = store.Close() }()

	node, err := core.NewNode(db, runtime.Processor,
		core.WithLogger(logger),
		core.WithReceiptHandler(store))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	if err := node.ApplyGenesis(stopCtx, runtime.Genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if indexed, err := store.LastSequence(stopCtx); err != nil {
		logger.Warn("read event index cursor", slog.Any("error", err))
	} else if committed, err := node.Sequence(); err == nil && indexed < committed {
		logger.Warn("event index is behind committed state",
			slog.Uint64("indexed", indexed),
			slog.Uint64("sequence", committed))
	}

	server := rpc.NewServer(node, store, rpc.ServerConfig{
		AuthToken:         authToken,
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		Logger:            logger,
	})
	servers := []*http.Server{{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.RPC.ReadHeaderTimeoutDuration(),
		ReadTimeout:       cfg.RPC.ReadTimeoutDuration(),
		WriteTimeout:      cfg.RPC.WriteTimeoutDuration(),
		IdleTimeout:       cfg.RPC.IdleTimeoutDuration(),
	}}
	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" && addr != cfg.RPCAddress {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	group, groupCtx := errgroup.WithContext(stopCtx)
	for _, srv := range servers {
		srv := srv
		group.Go(func() error {
			logger.Info("listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var shutdownErr error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}
		return shutdownErr
	})

	err = group.Wait()
	seq, seqErr := node.Sequence()
	if seqErr == nil {
		logger.Info("escrowd stopped", slog.Uint64("sequence", seq))
	}
	return err
}
