package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/authenticator"
	"github.com/dharsanguruparan/songauth/internal/config"
	"github.com/dharsanguruparan/songauth/internal/database"
	"github.com/dharsanguruparan/songauth/internal/keysource"
	"github.com/dharsanguruparan/songauth/internal/logger"
	"github.com/dharsanguruparan/songauth/internal/repository"
	"github.com/dharsanguruparan/songauth/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("SONGAUTH_DATABASE_URL is required by the worker")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	signer, err := keysource.LoadSigner(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}
	auth, err := authenticator.New(signer,
		authenticator.WithLedger(repository.NewSignatureRepository(pool)),
		authenticator.WithLogger(log))
	if err != nil {
		return err
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      log.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(auth, log)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started",
		zap.String("redis", cfg.RedisAddr),
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("fingerprint", auth.Fingerprint()))
	return server.Run(processor.Handler())
}
