package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

const (
	HistoryActionCreate   = "CREATE"
	HistoryActionUpdate   = "UPDATE"
	HistoryActionStart    = "START"
	HistoryActionTransfer = "TRANSFER"
	HistoryActionComplete = "COMPLETE"
	HistoryActionCancel   = "CANCEL"
	HistoryActionRunMrp   = "RUN_MRP"
	HistoryActionGenerate = "GENERATE"
)

const systemUserName = "System"

// History is the audit trail; one row per mutating action.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:50;index" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// createHistory records actor, action and before/after snapshots.
// The actor comes from the statement context; background callers are recorded as System.
func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) error {

	var b, a []byte
	if before != nil {
		b, _ = json.Marshal(before)
	}
	if after != nil {
		a, _ = json.Marshal(after)
	}

	userId, userName := actorFromContext(tx.Statement.Context)
	history := History{
		ActionType:    actionType,
		Before:        string(b),
		After:         string(a),
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&history).Error
}

func actorFromContext(ctx context.Context) (int, string) {
	if ctx == nil {
		return 0, systemUserName
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = systemUserName
	}
	return userId, userName
}

func GetHistories(ctx context.Context, referenceType string, referenceId int) ([]*History, error) {
	db := config.GetDB()
	var histories []*History
	err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
