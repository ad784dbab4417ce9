package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	record := middleware.IdempotencyRecord{
		CreatedAt:  time.Now().UTC(),
		Processing: true,
	}
	locked, err := s.client.Client.SetNX(ctx, s.client.Key("idem", key), encodeIdemRecord(record), s.ttl).Result()
	if err != nil {
		// fail open: without Redis the request runs unprotected
		logger.Warn("idempotency lock failed", "error", err)
		return nil, false
	}
	if locked {
		return nil, false
	}

	raw, err := s.client.Client.Get(ctx, s.client.Key("idem", key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("idempotency lookup failed", "error", err)
		}
		return nil, false
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte) {
	ctx := context.Background()
	record := middleware.IdempotencyRecord{
		Status:     status,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
		Processing: false,
	}
	if err := s.client.Client.Set(ctx, s.client.Key("idem", key), encodeIdemRecord(record), s.ttl).Err(); err != nil {
		logger.Warn("idempotency save failed", "error", err)
	}
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	_ = s.client.Client.Del(context.Background(), s.client.Key("idem", key)).Err()
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) string {
	wire := map[string]interface{}{
		"status":     rec.Status,
		"body":       base64.StdEncoding.EncodeToString(rec.Body),
		"created_at": rec.CreatedAt.Unix(),
		"processing": rec.Processing,
	}
	data, _ := json.Marshal(wire)
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire struct {
		Status     int    `json:"status"`
		Body       string `json:"body"`
		CreatedAt  int64  `json:"created_at"`
		Processing bool   `json:"processing"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(wire.Body)
	if err != nil {
		return nil, err
	}
	return &middleware.IdempotencyRecord{
		Status:     wire.Status,
		Body:       body,
		CreatedAt:  time.Unix(wire.CreatedAt, 0).UTC(),
		Processing: wire.Processing,
	}, nil
}
