package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type Operation struct {
	ID                   int       `gorm:"primary_key" json:"id"`
	Name                 string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	DefaultWorkstationId *int      `gorm:"index" json:"default_workstation_id"`
	Description          string    `gorm:"type:text" json:"description"`
	IsActive             bool      `gorm:"not null" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOperation struct {
	Name                 string `json:"name" validate:"required,max=100"`
	DefaultWorkstationId *int   `json:"default_workstation_id"`
	Description          string `json:"description"`
	IsActive             *bool  `json:"is_active"`
}

func CreateOperation(ctx context.Context, input *NewOperation) (*Operation, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	operation := Operation{
		Name:                 strings.TrimSpace(input.Name),
		DefaultWorkstationId: input.DefaultWorkstationId,
		Description:          input.Description,
		IsActive:             utils.DereferencePtr(input.IsActive, true),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.DefaultWorkstationId != nil {
			if err := utils.ValidateResourceId[Workstation](tx, *input.DefaultWorkstationId); err != nil {
				return err
			}
		}
		if err := utils.ValidateUnique[Operation](tx, "name", operation.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&operation).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, operation.ID, "operations", nil, operation, "Created operation "+operation.Name)
	})
	if err != nil {
		return nil, err
	}
	return &operation, nil
}

func getOperation(tx *gorm.DB, id int) (*Operation, error) {
	var operation Operation
	if err := tx.First(&operation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("operation not found")
		}
		return nil, err
	}
	return &operation, nil
}
