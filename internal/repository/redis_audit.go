package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/fundgate/internal/model"
)

// RedisAuditRepo keeps the newest audit entries in a capped Redis list.
type RedisAuditRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *RedisClient, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "audit_logs"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: client.Key(listKey),
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.Client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	// Filters run client side, so read a wider window than asked for. A batch
	// id names at most a handful of requests, so it scans the whole list.
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax || filter.BatchID != "" {
		fetch = r.listMax
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.AuditLog, 0, limit)
	for _, raw := range items {
		var entry model.AuditLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if !filter.Matches(&entry) {
			continue
		}
		results = append(results, &entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
