package ingest

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"modelguard/internal/config"
	"modelguard/internal/model"
)

// StartRedis pops telemetry records from a Redis list queue.
func StartRedis(ctx context.Context, cfg config.RedisConfig, out chan<- model.RawEvent, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("redis ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("redis ingest enabled", "addr", cfg.Addr, "key", cfg.Key)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	go func() {
		defer client.Close()
		for {
			if ctx.Err() != nil {
				return
			}
			res, err := client.BLPop(ctx, 5*time.Second, cfg.Key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("redis read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			ev, err := ParseJSONBytes([]byte(res[1]))
			if err != nil {
				if logger != nil {
					logger.Warn("redis decode error", "err", err)
				}
				continue
			}
			ev.Source = "redis"
			SendNonBlocking(ctx, out, ev, logger)
		}
	}()
}
