package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs three concerns: the assemble work stream, the per-attempt
// live pub/sub channels and the simulation cache.
var RedisClient *redis.Client

func InitRedis() error {
	val := os.Getenv("REDIS_ADDR")
	if val == "" {
		val = os.Getenv("REDIS_URI")
	}
	if val == "" {
		val = os.Getenv("REDIS_URL")
	}
	if val == "" {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) environment variable is not set")
	}

	if strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://") {
		opt, err := redis.ParseURL(val)
		if err != nil {
			return err
		}
		RedisClient = redis.NewClient(opt)
	} else {
		RedisClient = redis.NewClient(&redis.Options{Addr: val})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return RedisClient.Ping(ctx).Err()
}
