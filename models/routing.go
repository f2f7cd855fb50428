package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Routing is a named, reusable sequence of operations a BOM can copy.
type Routing struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	Name        string              `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string              `gorm:"type:text" json:"description"`
	IsActive    bool                `gorm:"not null" json:"is_active"`
	Operations  []*RoutingOperation `gorm:"foreignKey:RoutingId" json:"operations"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type RoutingOperation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	RoutingId     int             `gorm:"index;not null" json:"routing_id"`
	OperationId   int             `gorm:"not null" json:"operation_id"`
	WorkstationId *int            `json:"workstation_id"`
	Sequence      int             `gorm:"not null" json:"sequence"`
	TimeInMinutes decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"time_in_minutes"`
}

type NewRouting struct {
	Name        string                `json:"name" validate:"required,max=100"`
	Description string                `json:"description"`
	Operations  []NewRoutingOperation `json:"operations" validate:"dive"`
}

type NewRoutingOperation struct {
	OperationId   int             `json:"operation_id" validate:"required"`
	WorkstationId *int            `json:"workstation_id"`
	Sequence      *int            `json:"sequence"`
	TimeInMinutes decimal.Decimal `json:"time_in_minutes"`
}

func CreateRouting(ctx context.Context, input *NewRouting) (*Routing, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	routing := Routing{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		IsActive:    true,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateUnique[Routing](tx, "name", routing.Name, 0); err != nil {
			return err
		}
		for i, op := range input.Operations {
			if op.TimeInMinutes.IsNegative() {
				return fmt.Errorf("operations[%d]: time_in_minutes must be >= 0", i)
			}
			if _, err := getOperation(tx, op.OperationId); err != nil {
				return fmt.Errorf("operations[%d]: %w", i, err)
			}
			if op.WorkstationId != nil {
				if _, err := getWorkstation(tx, *op.WorkstationId); err != nil {
					return fmt.Errorf("operations[%d]: %w", i, err)
				}
			}
			routing.Operations = append(routing.Operations, &RoutingOperation{
				OperationId:   op.OperationId,
				WorkstationId: op.WorkstationId,
				Sequence:      utils.DereferencePtr(op.Sequence, i+1),
				TimeInMinutes: op.TimeInMinutes,
			})
		}
		if err := tx.Create(&routing).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, routing.ID, "routings", nil, routing, "Created routing "+routing.Name)
	})
	if err != nil {
		return nil, err
	}
	return &routing, nil
}

func getRoutingOperations(tx *gorm.DB, routingId int) ([]*RoutingOperation, error) {
	var routing Routing
	if err := tx.First(&routing, routingId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("routing not found")
		}
		return nil, err
	}
	var ops []*RoutingOperation
	if err := tx.Where("routing_id = ?", routingId).Order("sequence, id").Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}
