package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oskvr37/tiddl/internal/cache"
	"github.com/oskvr37/tiddl/internal/config"
)

var (
	cacheOpenBackoffBase  = 1 * time.Second
	cacheOpenBackoffScale = 1.618
)

func backoff(attempt int) time.Duration {
	return time.Duration(float64(cacheOpenBackoffBase) * math.Pow(cacheOpenBackoffScale, float64(attempt)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OpenCacheWithRetry opens the configured response cache. SQLite opens and
// Redis pings are retried with a growing backoff.
func OpenCacheWithRetry(ctx context.Context, conf config.Config) (cache.Store, error) {
	retries := max(conf.CacheRetries, 1)

	switch conf.CacheBackend {
	case cache.BackendRedis:
		return openRedisWithRetry(ctx, conf.RedisURL, retries)
	case cache.BackendSQLite:
		var lastErr error
		for i := 0; i < retries; i++ {
			store, err := cache.Open(ctx, cache.Options{Backend: conf.CacheBackend, Path: conf.CachePath})
			if err == nil {
				slog.Debug("Opened response cache", "backend", conf.CacheBackend, "path", conf.CachePath)
				return store, nil
			}
			lastErr = err

			wait := backoff(i)
			slog.Warn("Opening response cache failed, retrying", "path", conf.CachePath, "attempt", i+1, "backoff", wait, "error", err)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("failed to open cache after %d attempts: %w", retries, lastErr)
	}
	return cache.Open(ctx, cache.Options{Backend: conf.CacheBackend})
}

func openRedisWithRetry(ctx context.Context, rawURL string, retries int) (cache.Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	slog.Info("Connecting to redis", "addr", opts.Addr)
	var lastErr error
	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			slog.Info("Pinged redis", "addr", opts.Addr)
			return cache.NewRedis(client), nil
		}
		lastErr = err

		wait := backoff(i)
		slog.Warn("Redis ping failed, retrying", "addr", opts.Addr, "attempt", i+1, "backoff", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to ping redis after %d attempts: %w", retries, lastErr)
}
