package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc sends one event and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.EventMessage) (string, error)

// OutboxDispatcher publishes ManufacturingEventRecord rows after their transaction committed.
// Several dispatchers may run; rows are claimed with SKIP LOCKED and reclaimed after LockTimeout.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishEventWithResult,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && d.Logger != nil {
			d.Logger.WithField("dispatcher_id", d.DispatcherID).Error("outbox claim failed: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of rows published.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil || d.Publish == nil {
		return 0, nil
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.ManufacturingEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// PENDING/FAILED rows that are due, or PROCESSING rows whose claimer went away.
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.ManufacturingEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.ManufacturingEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     claimed[i].PublishStatus,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publish(ctx, models.ConvertToEventMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		published++
	}
	return published, nil
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string) {
	now := time.Now().UTC()
	_ = d.DB.WithContext(ctx).Model(&models.ManufacturingEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &pubsubMsgID,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.ManufacturingEventRecord, err error) {
	db := d.DB.WithContext(ctx)
	msg := err.Error()
	attempt := rec.PublishAttempts

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.ManufacturingEventRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "OutboxDispatcher",
				"company_id": rec.CompanyId,
				"record_id":  rec.ID,
				"event_type": rec.EventType,
				"attempt":    attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := time.Now().UTC().Add(retryBackoff(d.InitialBackoff, attempt))
	_ = db.Model(&models.ManufacturingEventRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"company_id":      rec.CompanyId,
			"record_id":       rec.ID,
			"event_type":      rec.EventType,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("outbox publish failed: " + msg)
	}
}

// retryBackoff doubles initial per prior attempt, capped at ten minutes.
func retryBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
