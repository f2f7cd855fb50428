package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for ManufacturingEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const (
	EventWorkOrderCompleted          = "work_order.completed"
	EventWorkOrderCancelled          = "work_order.cancelled"
	EventProductionPlanMrpCompleted  = "production_plan.mrp_completed"
	EventProductionPlanPurchaseNeeds = "production_plan.purchase_requests"
)

// ManufacturingEventRecord is written in the same transaction as the change it describes.
// Publishing happens after commit via the dispatcher.
type ManufacturingEventRecord struct {
	ID               int        `gorm:"primary_key;index:idx_mfg_outbox_dispatch,priority:3" json:"id"`
	CompanyId        int        `gorm:"not null;index" json:"company_id"`
	EventType        string     `gorm:"size:64;not null" json:"event_type"`
	ReferenceType    string     `gorm:"size:50;not null;index:idx_mfg_outbox_reference,priority:1" json:"reference_type"`
	ReferenceId      int        `gorm:"not null;index:idx_mfg_outbox_reference,priority:2" json:"reference_id"`
	Payload          []byte     `json:"payload"`
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_mfg_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_mfg_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishedAt      *time.Time `json:"published_at"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToEventMessage(record ManufacturingEventRecord) config.EventMessage {
	return config.EventMessage{
		ID:            record.ID,
		CompanyId:     record.CompanyId,
		EventType:     record.EventType,
		ReferenceType: record.ReferenceType,
		ReferenceId:   record.ReferenceId,
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}

func recordManufacturingEvent(tx *gorm.DB, companyId int, eventType string, referenceType string, referenceId int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	record := ManufacturingEventRecord{
		CompanyId:     companyId,
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}

type OutboxStatus struct {
	RecordId         int        `json:"record_id"`
	EventType        string     `json:"event_type"`
	ReferenceType    string     `json:"reference_type"`
	ReferenceId      int        `json:"reference_id"`
	PublishStatus    string     `json:"publish_status"`
	PublishAttempts  int        `json:"publish_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LastPublishError *string    `json:"last_publish_error"`
	CreatedAt        time.Time  `json:"created_at"`
	PublishedAt      *time.Time `json:"published_at"`
}

// GetOutboxStatus reports the latest event recorded for a document.
func GetOutboxStatus(ctx context.Context, referenceType string, referenceId int) (*OutboxStatus, error) {
	db := config.GetDB()
	var rec ManufacturingEventRecord
	if err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &OutboxStatus{
		RecordId:         rec.ID,
		EventType:        rec.EventType,
		ReferenceType:    rec.ReferenceType,
		ReferenceId:      rec.ReferenceId,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}

// ReprocessOutbox puts unsent events for a document back in the dispatch queue.
func ReprocessOutbox(ctx context.Context, referenceType string, referenceId int) (*OutboxStatus, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).
		Model(&ManufacturingEventRecord{}).
		Where("reference_type = ? AND reference_id = ? AND publish_status <> ?", referenceType, referenceId, OutboxPublishStatusSent).
		Updates(map[string]interface{}{
			"locked_at":        nil,
			"locked_by":        nil,
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return GetOutboxStatus(ctx, referenceType, referenceId)
}
