package main

import (
	"context"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nightjar-labs/linkbrief-back/internal/config"
	"github.com/nightjar-labs/linkbrief-back/internal/db"
	"github.com/nightjar-labs/linkbrief-back/internal/notify"
	"github.com/nightjar-labs/linkbrief-back/internal/pipeline"
	"github.com/nightjar-labs/linkbrief-back/internal/redis"
	"github.com/nightjar-labs/linkbrief-back/internal/service"
	"github.com/nightjar-labs/linkbrief-back/internal/transport"
)

func main() {
	// A missing .env is fine; everything can come from real env vars.
	_ = godotenv.Load()

	fx.New(
		fx.Provide(
			config.NewConfig,
			newLogger,
			db.NewGormClient,
			redis.NewClient,
			newHub,
			newPipeline,
			service.NewGeneral,
			service.NewBookmarks,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(*transport.HTTPServer) {}),
	).Run()
}

func newLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func newHub(lc fx.Lifecycle, rdb *goredis.Client, logger *zap.SugaredLogger) *notify.Hub {
	hub := notify.NewHub(rdb, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

func newPipeline(cfg *config.Config, logger *zap.SugaredLogger) transport.PipelineRunner {
	fetcher := pipeline.NewFetcher(cfg.FetchTimeout())
	summarizer := pipeline.NewGeminiClient(pipeline.SummarizerConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.SummaryTimeout(),
	})
	return pipeline.New(fetcher, summarizer, logger)
}
