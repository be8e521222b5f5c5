package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/GoPolymarket/extgate/internal/model"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// GormAuditStore persists filtered audit records into one table.
type GormAuditStore struct {
	db     *gorm.DB
	name   string
	fields []string
	model  any
}

func NewGormRequestStore(db *gorm.DB) *GormAuditStore {
	return &GormAuditStore{db: db, name: model.RequestLog{}.TableName(), fields: audit.RequestFields, model: &model.RequestLog{}}
}

func NewGormResponseStore(db *gorm.DB) *GormAuditStore {
	return &GormAuditStore{db: db, name: model.ResponseLog{}.TableName(), fields: audit.ResponseFields, model: &model.ResponseLog{}}
}

func (s *GormAuditStore) Name() string     { return s.name }
func (s *GormAuditStore) Fields() []string { return s.fields }

func (s *GormAuditStore) Create(ctx context.Context, record map[string]any) error {
	row := make(map[string]any, len(record)+1)
	for k, v := range record {
		row[k] = v
	}
	row["created_at"] = time.Now().UTC()
	return s.db.WithContext(ctx).Model(s.model).Create(row).Error
}

func (s *GormAuditStore) List(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	tx := s.db.WithContext(ctx).Model(s.model)
	if q.Service != "" {
		tx = tx.Where("service = ?", q.Service)
	}
	if q.CorrelationToken != "" {
		tx = tx.Where("correlation_token = ?", q.CorrelationToken)
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}

	var rows []map[string]any
	if err := tx.Order("created_at DESC").Limit(listLimit(q.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]audit.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, audit.Record(r))
	}
	return records, nil
}

func (s *GormAuditStore) Prune(ctx context.Context, service string, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("service = ? AND created_at < ?", service, cutoff).
		Delete(s.model)
	return res.RowsAffected, res.Error
}

func listLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}
