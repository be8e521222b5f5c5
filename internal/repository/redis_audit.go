package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/redis/go-redis/v9"
)

// RedisAuditStore keeps the newest records of one store in a capped redis
// list. It sits between the database and the in-process ring.
type RedisAuditStore struct {
	client  redis.UniversalClient
	name    string
	fields  []string
	listKey string
	listMax int64
}

type redisAuditEntry struct {
	Record    map[string]any `json:"record"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewRedisAuditStore(client redis.UniversalClient, prefix, name string, fields []string, listMax int) *RedisAuditStore {
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditStore{
		client:  client,
		name:    name,
		fields:  fields,
		listKey: prefix + "audit:" + name,
		listMax: int64(listMax),
	}
}

func (s *RedisAuditStore) Name() string     { return s.name }
func (s *RedisAuditStore) Fields() []string { return s.fields }

func (s *RedisAuditStore) Create(ctx context.Context, record map[string]any) error {
	payload, err := json.Marshal(redisAuditEntry{Record: record, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.listKey, payload)
	pipe.LTrim(ctx, s.listKey, 0, s.listMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

// List scans the newest entries of the list, newest first.
func (s *RedisAuditStore) List(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	limit := listLimit(q.Limit)
	fetch := int64(limit * 5)
	if fetch < 100 {
		fetch = 100
	}
	if fetch > s.listMax {
		fetch = s.listMax
	}
	items, err := s.client.LRange(ctx, s.listKey, 0, fetch-1).Result()
	if err != nil {
		return nil, err
	}

	results := make([]audit.Record, 0, limit)
	for _, raw := range items {
		rec, ok := decodeRedisEntry(raw)
		if !ok || !matches(rec, q) {
			continue
		}
		results = append(results, rec)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Prune removes the entries of service older than cutoff.
func (s *RedisAuditStore) Prune(ctx context.Context, service string, cutoff time.Time) (int64, error) {
	items, err := s.client.LRange(ctx, s.listKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, raw := range items {
		rec, ok := decodeRedisEntry(raw)
		if !ok || rec[audit.FieldService] != service || !createdAt(rec).Before(cutoff) {
			continue
		}
		n, err := s.client.LRem(ctx, s.listKey, 1, raw).Result()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func decodeRedisEntry(raw string) (audit.Record, bool) {
	var entry redisAuditEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false
	}
	rec := make(audit.Record, len(entry.Record)+1)
	for k, v := range entry.Record {
		rec[k] = v
	}
	rec["created_at"] = entry.CreatedAt
	return rec, true
}
