// caliberd bootstraps CALIBER's store, lock arbiter, entity services,
// message bus, coordination FSMs, provider registry, context assembler,
// and pack compiler, then serves the thin REST/gRPC facades and a
// robfig/cron job that periodically reaps expired locks and messages.
//
// Flag/env bootstrap and the ordered "construct services, then start
// serving" flow are grounded on cmd/tarsy/main.go; graceful shutdown on
// SIGINT/SIGTERM is grounded on
// r3e-network-service_layer/infrastructure/middleware/shutdown.go's
// GracefulShutdown (signal.Notify + timeout-bounded callback teardown),
// adapted from a single *http.Server target to caliberd's REST+gRPC pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Heyoub/caliber-sub001/internal/access"
	"github.com/Heyoub/caliber-sub001/internal/assembler"
	"github.com/Heyoub/caliber-sub001/internal/config"
	"github.com/Heyoub/caliber-sub001/internal/coordination"
	"github.com/Heyoub/caliber-sub001/internal/entities"
	"github.com/Heyoub/caliber-sub001/internal/locks"
	"github.com/Heyoub/caliber-sub001/internal/messages"
	"github.com/Heyoub/caliber-sub001/internal/pack"
	"github.com/Heyoub/caliber-sub001/internal/providers"
	"github.com/Heyoub/caliber-sub001/internal/redact"
	"github.com/Heyoub/caliber-sub001/internal/store"
	"github.com/Heyoub/caliber-sub001/internal/transport/grpcsrv"
	"github.com/Heyoub/caliber-sub001/internal/transport/rest"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("CALIBER_CONFIG", "./deploy/caliber.yaml"), "Path to the ambient engine config file")
	envDir := flag.String("env-dir", getEnv("CALIBER_ENV_DIR", "./deploy"), "Directory containing a .env file to load before startup")
	flag.Parse()

	logLevel := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	envPath := filepath.Join(*envDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		log.Info("loaded environment file", "path", envPath)
	}

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if err := applyLogLevel(logLevel, cfg.LogLevel); err != nil {
		log.Warn("unrecognized log_level, defaulting to info", "log_level", cfg.LogLevel)
	}

	redactor := redact.New()
	log.Info("loaded configuration",
		"rest_addr", cfg.Transport.RESTAddr,
		"grpc_addr", cfg.Transport.GRPCAddr,
		"pack_dir", redactor.Mask(cfg.PackDir),
		"store_host", cfg.Store.Host,
		"store_database", cfg.Store.Database,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.ToStoreConfig())
	if err != nil {
		log.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("connected to store and ran migrations")

	enforcer := access.New(st)
	entitySvc := entities.New(st, enforcer)
	arbiter := locks.New(st)
	bus := messages.New(st, log)
	coord := coordination.New(st, arbiter)
	registry := providers.NewRegistry()
	estimator := assembler.NewEstimator(cfg.Assembler.TokenEncoding)
	asm := assembler.New(st, registry, estimator)

	packSvc := pack.NewService(st)
	result := pack.Compile(cfg.PackDir)
	if result.Compiled == nil {
		log.Error("pack compile failed, starting without a compiled pack", "pack_dir", cfg.PackDir, "diagnostics", result.Diagnostics)
	} else {
		log.Info("compiled pack", "pack", result.PackSourceRef, "agents", len(result.Compiled.Agents))
	}

	deps := rest.Dependencies{
		Store:      st,
		Entities:   entitySvc,
		Locks:      arbiter,
		Messages:   bus,
		Coordinate: coord,
		Providers:  registry,
		Assembler:  asm,
		Pack:       result.Compiled,
		PackOps:    packSvc,
	}

	restSrv := rest.New(deps, log)
	grpcSrv := grpcsrv.New(st, log)

	reaper := cron.New()
	if _, err := reaper.AddFunc(fmt.Sprintf("@every %s", cfg.Locks.ReapInterval), func() {
		if reaped, err := arbiter.ReapExpired(ctx); err != nil {
			log.Warn("lock reap failed", "error", err)
		} else if len(reaped) > 0 {
			log.Info("reaped expired locks", "count", len(reaped))
		}
		if n, err := bus.ReapExpired(ctx); err != nil {
			log.Warn("message reap failed", "error", err)
		} else if n > 0 {
			log.Info("reaped expired messages", "count", n)
		}
	}); err != nil {
		log.Error("failed to schedule reaper job", "error", err)
		os.Exit(1)
	}
	reaper.Start()
	defer reaper.Stop()

	serveErrs := make(chan error, 2)
	go func() { serveErrs <- restSrv.ListenAndServe(cfg.Transport.RESTAddr) }()
	go func() { serveErrs <- grpcSrv.ListenAndServe(cfg.Transport.GRPCAddr) }()
	log.Info("caliberd listening", "rest_addr", cfg.Transport.RESTAddr, "grpc_addr", cfg.Transport.GRPCAddr)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErrs:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("server error, shutting down", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := restSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during REST shutdown", "error", err)
	}
	grpcSrv.GracefulStop()
	log.Info("caliberd stopped")
}

func applyLogLevel(v *slog.LevelVar, name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		v.Set(slog.LevelInfo)
		return err
	}
	v.Set(level)
	return nil
}
