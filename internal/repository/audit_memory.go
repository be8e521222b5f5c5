package repository

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
)

// MemoryAuditStore keeps the most recent records in a fixed-size ring. It is
// the audit store when no database is configured.
type MemoryAuditStore struct {
	name   string
	fields []string

	mu        sync.Mutex
	maxSize   int
	records   []audit.Record
	nextIndex int
	nextID    uint64
}

func NewMemoryAuditStore(name string, fields []string, maxSize int) *MemoryAuditStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryAuditStore{
		name:    name,
		fields:  fields,
		maxSize: maxSize,
		records: make([]audit.Record, 0, maxSize),
	}
}

func (s *MemoryAuditStore) Name() string     { return s.name }
func (s *MemoryAuditStore) Fields() []string { return s.fields }

func (s *MemoryAuditStore) Create(_ context.Context, record map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry := make(audit.Record, len(record)+2)
	for k, v := range record {
		entry[k] = v
	}
	entry["id"] = s.nextID
	entry["created_at"] = time.Now().UTC()

	if len(s.records) < s.maxSize {
		s.records = append(s.records, entry)
		return nil
	}
	s.records[s.nextIndex] = entry
	s.nextIndex = (s.nextIndex + 1) % s.maxSize
	return nil
}

// List returns matching records, newest first.
func (s *MemoryAuditStore) List(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 || limit > s.maxSize {
		limit = s.maxSize
	}
	results := make([]audit.Record, 0, limit)
	total := len(s.records)
	for i := 0; i < total; i++ {
		entry := s.records[(s.nextIndex+total-1-i)%total]
		if !matches(entry, q) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Prune drops the records of service created before cutoff.
func (s *MemoryAuditStore) Prune(_ context.Context, service string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.records)
	kept := make([]audit.Record, 0, s.maxSize)
	for i := 0; i < total; i++ {
		entry := s.records[(s.nextIndex+i)%total]
		if entry[audit.FieldService] == service && createdAt(entry).Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	removed := int64(total - len(kept))
	s.records = kept
	s.nextIndex = 0
	return removed, nil
}

func matches(entry audit.Record, q audit.Query) bool {
	if q.Service != "" && entry[audit.FieldService] != q.Service {
		return false
	}
	if q.CorrelationToken != "" && entry["correlation_token"] != q.CorrelationToken {
		return false
	}
	ts := createdAt(entry)
	if q.From != nil && ts.Before(*q.From) {
		return false
	}
	if q.To != nil && ts.After(*q.To) {
		return false
	}
	return true
}

func createdAt(entry audit.Record) time.Time {
	ts, _ := entry["created_at"].(time.Time)
	return ts
}
