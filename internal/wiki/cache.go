package wiki

import (
	"time"

	"github.com/gofiber/storage/redis/v3"
)

// Cache is the key-value surface the client needs for revision metadata.
// The Redis storage driver satisfies it directly.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte, exp time.Duration) error
}

// NewRedisCache connects to Redis at url. Returns nil for an empty url so
// callers can pass the result straight to New.
func NewRedisCache(url string) Cache {
	if url == "" {
		return nil
	}
	return redis.New(redis.Config{URL: url})
}
