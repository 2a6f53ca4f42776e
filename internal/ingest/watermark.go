package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WatermarkStore persists the lastCheckedAt cursor. The watermark is owned
// exclusively by the ingestion engine.
type WatermarkStore interface {
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, t time.Time) error
}

const watermarkKey = "servicedesk:mail:last_checked_at"

// RedisWatermark stores the cursor in Redis so it survives restarts.
type RedisWatermark struct {
	client *redis.Client
}

// NewRedisWatermark constructs the store.
func NewRedisWatermark(client *redis.Client) *RedisWatermark {
	return &RedisWatermark{client: client}
}

// Get returns the stored cursor, or the zero time when none is set.
func (w *RedisWatermark) Get(ctx context.Context) (time.Time, error) {
	val, err := w.client.Get(ctx, watermarkKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// Set stores the cursor.
func (w *RedisWatermark) Set(ctx context.Context, t time.Time) error {
	return w.client.Set(ctx, watermarkKey, t.UTC().Format(time.RFC3339Nano), 0).Err()
}

// MemoryWatermark is the in-process fallback used when Redis is absent.
type MemoryWatermark struct {
	mu sync.Mutex
	t  time.Time
}

func (w *MemoryWatermark) Get(ctx context.Context) (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t, nil
}

func (w *MemoryWatermark) Set(ctx context.Context, t time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t = t
	return nil
}
