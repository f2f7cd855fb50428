package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"gorm.io/gorm"
)

func openOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := models.MigrateTableWith(db); err != nil {
		t.Fatalf("MigrateTableWith: %v", err)
	}
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, referenceId int) models.ManufacturingEventRecord {
	t.Helper()
	rec := models.ManufacturingEventRecord{
		CompanyId:     1,
		EventType:     models.EventWorkOrderCompleted,
		ReferenceType: "work_orders",
		ReferenceId:   referenceId,
		Payload:       []byte(`{"work_order_id":1}`),
		PublishStatus: models.OutboxPublishStatusPending,
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed outbox record: %v", err)
	}
	return rec
}

func reload(t *testing.T, db *gorm.DB, id int) models.ManufacturingEventRecord {
	t.Helper()
	var rec models.ManufacturingEventRecord
	if err := db.First(&rec, id).Error; err != nil {
		t.Fatalf("reload outbox record %d: %v", id, err)
	}
	return rec
}

func TestDispatchOnceMarksSent(t *testing.T) {
	db := openOutboxDB(t)
	first := seedEvent(t, db, 1)
	second := seedEvent(t, db, 2)

	var seen []int
	d := NewOutboxDispatcher(db, nil)
	d.Publish = func(ctx context.Context, msg config.EventMessage) (string, error) {
		seen = append(seen, msg.ReferenceId)
		if string(msg.Payload) != `{"work_order_id":1}` {
			t.Fatalf("payload not passed through: %s", msg.Payload)
		}
		return "msg-" + msg.EventType, nil
	}

	published, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if published != 2 || len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected both records in id order, got %d published, seen %v", published, seen)
	}
	for _, id := range []int{first.ID, second.ID} {
		rec := reload(t, db, id)
		if rec.PublishStatus != models.OutboxPublishStatusSent || rec.PublishedAt == nil || rec.LockedBy != nil {
			t.Fatalf("record %d not marked sent: %+v", id, rec)
		}
		if rec.PublishAttempts != 1 || rec.PubSubMessageId == nil || *rec.PubSubMessageId != "msg-"+models.EventWorkOrderCompleted {
			t.Fatalf("record %d: unexpected attempts or message id: %+v", id, rec)
		}
	}

	published, err = d.DispatchOnce(context.Background())
	if err != nil || published != 0 {
		t.Fatalf("sent records should not be republished, got %d, %v", published, err)
	}
}

func TestDispatchOnceSchedulesRetryThenDead(t *testing.T) {
	db := openOutboxDB(t)
	rec := seedEvent(t, db, 7)

	d := NewOutboxDispatcher(db, nil)
	d.MaxAttempts = 2
	d.InitialBackoff = time.Minute
	d.Publish = func(ctx context.Context, msg config.EventMessage) (string, error) {
		return "", errors.New("broker unavailable")
	}

	if _, err := d.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	failed := reload(t, db, rec.ID)
	if failed.PublishStatus != models.OutboxPublishStatusFailed || failed.PublishAttempts != 1 {
		t.Fatalf("expected FAILED after one attempt, got %+v", failed)
	}
	if failed.NextAttemptAt == nil || !failed.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatalf("a failed record should be scheduled in the future, got %v", failed.NextAttemptAt)
	}
	if failed.LastPublishError == nil || *failed.LastPublishError != "broker unavailable" {
		t.Fatalf("publish error not recorded: %v", failed.LastPublishError)
	}

	// not yet due
	if n, err := d.DispatchOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("record should wait for its backoff, got %d, %v", n, err)
	}
	if err := db.Model(&models.ManufacturingEventRecord{}).Where("id = ?", rec.ID).
		Update("next_attempt_at", time.Now().UTC().Add(-time.Second)).Error; err != nil {
		t.Fatalf("rewind next_attempt_at: %v", err)
	}
	if _, err := d.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	dead := reload(t, db, rec.ID)
	if dead.PublishStatus != models.OutboxPublishStatusDead || dead.PublishAttempts != 2 {
		t.Fatalf("expected DEAD after max attempts, got %+v", dead)
	}
}

func TestDispatchOnceReclaimsStaleLocks(t *testing.T) {
	db := openOutboxDB(t)
	rec := seedEvent(t, db, 3)
	stale := time.Now().UTC().Add(-time.Hour)
	owner := "gone"
	if err := db.Model(&models.ManufacturingEventRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"publish_status":   models.OutboxPublishStatusProcessing,
		"locked_at":        &stale,
		"locked_by":        &owner,
		"publish_attempts": 1,
	}).Error; err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	d := NewOutboxDispatcher(db, nil)
	d.Publish = func(ctx context.Context, msg config.EventMessage) (string, error) {
		return "reclaimed", nil
	}
	published, err := d.DispatchOnce(context.Background())
	if err != nil || published != 1 {
		t.Fatalf("expected the stale record to be reclaimed, got %d, %v", published, err)
	}
	if got := reload(t, db, rec.ID); got.PublishStatus != models.OutboxPublishStatusSent || got.PublishAttempts != 2 {
		t.Fatalf("unexpected record after reclaim: %+v", got)
	}
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{20, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := retryBackoff(5*time.Second, c.attempt); got != c.want {
			t.Fatalf("retryBackoff(attempt %d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}
