// Package ratelimit throttles the public account endpoints with a fixed
// window counter kept in redis.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultMax    = 20
	DefaultWindow = time.Minute
	DefaultPrefix = "fel:ratelimit"
)

type Config struct {
	Max       int
	Window    time.Duration
	KeyPrefix string
	// KeyGenerator defaults to the client IP
	KeyGenerator func(*fiber.Ctx) string
	// LimitReached renders the 429 response
	LimitReached fiber.Handler
	// OnError is told about redis failures, requests are let through
	OnError func(error)
}

func (cfg Config) withDefaults() Config {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultPrefix
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = func(c *fiber.Ctx) string { return "ip:" + c.IP() }
	}
	if cfg.LimitReached == nil {
		cfg.LimitReached = func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Demasiadas solicitudes. Intenta nuevamente más tarde.",
			})
		}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return cfg
}

// New returns a redis backed limiter, or fiber's in memory limiter when
// rdb is nil.
func New(rdb redis.UniversalClient, config ...Config) fiber.Handler {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg = cfg.withDefaults()

	if rdb == nil {
		return limiter.New(limiter.Config{
			Max:          cfg.Max,
			Expiration:   cfg.Window,
			KeyGenerator: cfg.KeyGenerator,
			LimitReached: cfg.LimitReached,
		})
	}

	return func(c *fiber.Ctx) error {
		key := cfg.KeyPrefix + ":" + cfg.KeyGenerator(c)

		count, ttl, err := hit(c.UserContext(), rdb, key, cfg.Window)
		if err != nil {
			// fail open
			cfg.OnError(err)
			return c.Next()
		}

		remaining := cfg.Max - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > int64(cfg.Max) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			return cfg.LimitReached(c)
		}

		return c.Next()
	}
}

// hit increments key and starts its window on the first request
func hit(ctx context.Context, rdb redis.UniversalClient, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// counter lost its expiry, restart the window
		_ = rdb.Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}
