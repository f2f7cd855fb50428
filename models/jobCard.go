package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobCard records the time spent on one operation of a work order.
// Only completed cards count towards the order's operating cost.
type JobCard struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	CompanyId          int             `gorm:"not null;index" json:"company_id"`
	Name               string          `gorm:"size:50;not null;uniqueIndex" json:"name"`
	WorkOrderId        int             `gorm:"not null;index" json:"work_order_id"`
	OperationId        int             `gorm:"not null" json:"operation_id"`
	WorkstationId      *int            `json:"workstation_id"`
	Status             JobCardStatus   `gorm:"size:20;not null;index" json:"status"`
	ForQuantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"for_quantity"`
	CompletedQty       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"completed_qty"`
	TotalTimeInMinutes decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_time_in_minutes"`
	ActualStartDate    *time.Time      `json:"actual_start_date"`
	ActualEndDate      *time.Time      `json:"actual_end_date"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewJobCard struct {
	WorkOrderId   int              `json:"work_order_id" validate:"required"`
	OperationId   int              `json:"operation_id" validate:"required"`
	WorkstationId *int             `json:"workstation_id"`
	ForQuantity   *decimal.Decimal `json:"for_quantity"`
}

type CompleteJobCardInput struct {
	JobCardId     int              `json:"job_card_id" validate:"required"`
	TimeInMinutes decimal.Decimal  `json:"time_in_minutes"`
	CompletedQty  *decimal.Decimal `json:"completed_qty"`
}

func CreateJobCard(ctx context.Context, input *NewJobCard) (*JobCard, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var card JobCard
	err := runWorkOrderAction(ctx, input.WorkOrderId, "CreateJobCard", func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, input.WorkOrderId)
		if err != nil {
			return err
		}
		if order.Status != WorkOrderStatusNotStarted && order.Status != WorkOrderStatusInProcess {
			return invalidStatusError("work order "+order.Name, order.Status, "not_started or in_process")
		}
		operation, err := getOperation(tx, input.OperationId)
		if err != nil {
			return err
		}
		workstationId := input.WorkstationId
		if workstationId == nil {
			workstationId = operation.DefaultWorkstationId
		}
		if workstationId != nil {
			if _, err := getWorkstation(tx, *workstationId); err != nil {
				return err
			}
		}
		forQty := utils.DereferencePtr(input.ForQuantity, order.Qty)
		if !forQty.IsPositive() {
			return errors.New("for_quantity must be > 0")
		}

		name, err := NextName(tx, NamingEntityJobCard, order.CompanyId)
		if err != nil {
			return err
		}
		card = JobCard{
			CompanyId:     order.CompanyId,
			Name:          name,
			WorkOrderId:   order.ID,
			OperationId:   operation.ID,
			WorkstationId: workstationId,
			Status:        JobCardStatusOpen,
			ForQuantity:   utils.RoundQty(forQty),
		}
		if err := tx.Create(&card).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, card.ID, "job_cards", nil, card,
			fmt.Sprintf("Created job card %s for %s", card.Name, order.Name))
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func lockJobCard(tx *gorm.DB, id int) (*JobCard, error) {
	var card JobCard
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job card %d: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &card, nil
}

func StartJobCard(ctx context.Context, id int) (*JobCard, error) {
	db := config.GetDB()
	var card *JobCard
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if card, err = lockJobCard(tx, id); err != nil {
			return err
		}
		if card.Status != JobCardStatusOpen {
			return invalidStatusError("job card "+card.Name, card.Status, string(JobCardStatusOpen))
		}
		before := *card
		now := time.Now().UTC()
		card.Status = JobCardStatusInProcess
		card.ActualStartDate = &now
		if err := tx.Model(&JobCard{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":            card.Status,
			"actual_start_date": &now,
		}).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionStart, id, "job_cards", before, card, "Started "+card.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "StartJobCard", "start job card", id, err)
		return nil, err
	}
	return card, nil
}

// CompleteJobCard records the minutes spent; they are the only input to the order's operating cost.
func CompleteJobCard(ctx context.Context, input *CompleteJobCardInput) (*JobCard, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.TimeInMinutes.IsPositive() {
		return nil, errors.New("time_in_minutes must be > 0")
	}
	if input.CompletedQty != nil && input.CompletedQty.IsNegative() {
		return nil, errors.New("completed_qty must be >= 0")
	}

	db := config.GetDB()
	var card *JobCard
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if card, err = lockJobCard(tx, input.JobCardId); err != nil {
			return err
		}
		if card.Status != JobCardStatusOpen && card.Status != JobCardStatusInProcess {
			return invalidStatusError("job card "+card.Name, card.Status, "open or in_process")
		}
		before := *card
		now := time.Now().UTC()
		card.Status = JobCardStatusCompleted
		card.TotalTimeInMinutes = utils.RoundQty(input.TimeInMinutes)
		card.ActualEndDate = &now
		updates := map[string]interface{}{
			"status":                card.Status,
			"total_time_in_minutes": card.TotalTimeInMinutes,
			"actual_end_date":       &now,
		}
		if input.CompletedQty != nil {
			card.CompletedQty = utils.RoundQty(*input.CompletedQty)
			updates["completed_qty"] = card.CompletedQty
		}
		if err := tx.Model(&JobCard{}).Where("id = ?", card.ID).Updates(updates).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionComplete, card.ID, "job_cards", before, card, "Completed "+card.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CompleteJobCard", "complete job card", input, err)
		return nil, err
	}
	return card, nil
}
