package model

import (
	"time"
)

// RequestLog is one persisted request_sent record. Every payload column is
// nullable: a field missing from the event is stored as NULL.
type RequestLog struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	Service             *string   `gorm:"size:128;index:idx_request_logs_service_created,priority:1" json:"service"`
	Endpoint            *string   `gorm:"size:128" json:"endpoint"`
	APIOperation        *string   `gorm:"column:api_operation;size:255" json:"api_operation"`
	URL                 *string   `gorm:"column:url;type:text" json:"url"`
	Raw                 *string   `gorm:"type:text" json:"raw"`
	CorrelationToken    *string   `gorm:"size:64;index" json:"correlation_token"`
	LegCorrelationToken *string   `gorm:"size:64" json:"leg_correlation_token"`
	CreatedAt           time.Time `gorm:"index:idx_request_logs_service_created,priority:2" json:"created_at"`
}

func (RequestLog) TableName() string { return "request_logs" }

// ResponseLog is one persisted response_received record.
type ResponseLog struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	Service             *string   `gorm:"size:128;index:idx_response_logs_service_created,priority:1" json:"service"`
	Endpoint            *string   `gorm:"size:128" json:"endpoint"`
	Raw                 *string   `gorm:"type:text" json:"raw"`
	CorrelationToken    *string   `gorm:"size:64;index" json:"correlation_token"`
	LegCorrelationToken *string   `gorm:"size:64" json:"leg_correlation_token"`
	HTTPStatus          *int      `gorm:"column:http_status" json:"http_status"`
	CreatedAt           time.Time `gorm:"index:idx_response_logs_service_created,priority:2" json:"created_at"`
}

func (ResponseLog) TableName() string { return "response_logs" }
