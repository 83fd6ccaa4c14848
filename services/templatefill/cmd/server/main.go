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

	"go.uber.org/zap"

	"legalscan/pkg/db"
	"legalscan/pkg/extract"
	"legalscan/pkg/schema"
	"legalscan/services/templatefill/internal/config"
	"legalscan/services/templatefill/internal/idempotency"
	"legalscan/services/templatefill/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer cleanup()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("template fill service listening",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageBackend),
		zap.String("extractor", cfg.Extractor))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// newServer wires the configured storage, extractor and schema registry.
// cleanup releases what was opened.
func newServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server, func(), error) {
	srv := &server{
		cfg:     cfg,
		log:     logger,
		locks:   store.NewLocks(),
		limiter: newUploadLimiter(cfg.UploadRatePerMinute, time.Minute),
	}
	cleanup := func() {}

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		srv.artifacts, srv.idem = pg, pg
		cleanup = pool.Close
	case config.StorageS3:
		s3, err := store.NewS3(store.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s3.EnsureBucket(ctx, cfg.S3.Region); err != nil {
			return nil, nil, err
		}
		srv.artifacts, srv.idem = s3, idempotency.NewMemory()
	default:
		srv.artifacts, srv.idem = store.NewMemory(), idempotency.NewMemory()
	}

	switch cfg.Extractor {
	case config.ExtractorGemini:
		gen, err := extract.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		srv.extractor = extract.GeminiExtractor{Gen: gen, MaxChars: 200_000}
	default:
		srv.extractor = extract.PatternExtractor{}
	}

	reg, err := schema.Default()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.SchemaDir != "" {
		if err := reg.LoadDir(cfg.SchemaDir); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load schemas: %w", err)
		}
	}
	srv.schemas = reg
	logger.Debug("schema families loaded", zap.Strings("families", reg.Families()))
	return srv, cleanup, nil
}
