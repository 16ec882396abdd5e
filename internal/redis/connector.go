package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nightjar-labs/linkbrief-back/internal/config"
)

const pingTimeout = 5 * time.Second

// NewClient connects to redis when an address is configured. A nil client
// with a nil error means redis is disabled and notifications stay local.
func NewClient(cfg *config.Config, logger *zap.SugaredLogger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis not configured, change notifications stay in-process")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect redis")
	}

	logger.Infow("connected to redis", "addr", cfg.RedisAddr)
	return client, nil
}
