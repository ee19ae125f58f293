package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tripflow/internal/config"
	"tripflow/internal/llm"
	"tripflow/internal/monitor"
	"tripflow/internal/pdf"
	"tripflow/internal/pipeline"
	"tripflow/internal/queue"
	"tripflow/internal/store"
	"tripflow/internal/telemetry"
	workerproc "tripflow/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q := queue.New(redisClient, cfg.VisibilityTimeout)

	generator := buildGenerator(cfg, logger)
	renderer, err := buildRenderer(ctx, cfg)
	if err != nil {
		logger.Fatal("init pdf renderer", zap.Error(err))
	}

	pipe := pipeline.New(st, generator, renderer, logger)
	processor := workerproc.New(cfg, q, pipe, logger)

	stuck := monitor.New(st, q, pipe, cfg.MonitorInterval, cfg.StuckThreshold, cfg.StuckScanLimit, logger)
	stuck.Start(ctx)
	defer stuck.Stop()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("worker started",
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("visibility", cfg.VisibilityTimeout),
		zap.Duration("monitor_interval", cfg.MonitorInterval))
	if err := processor.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", zap.Error(err))
	}
}

func buildGenerator(cfg config.Config, logger *zap.Logger) llm.Generator {
	var generators []llm.Generator
	if cfg.GroqAPIKey != "" {
		generators = append(generators, llm.NewGroqClient(cfg.GroqEndpoint, cfg.GroqAPIKey, cfg.LLMTimeout))
	}
	if cfg.GeminiAPIKey != "" {
		generators = append(generators, llm.NewGeminiClient(cfg.GeminiEndpoint, cfg.GeminiAPIKey, cfg.LLMTimeout))
	}
	if len(generators) == 0 {
		logger.Warn("no LLM API keys configured, generation will fail")
	}
	return llm.NewFallback(logger, generators...)
}

func buildRenderer(ctx context.Context, cfg config.Config) (pdf.Renderer, error) {
	if cfg.PDFS3Bucket != "" {
		return pdf.NewS3Renderer(ctx, cfg)
	}
	return pdf.NewLocalRenderer(cfg.PDFOutputDir), nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
