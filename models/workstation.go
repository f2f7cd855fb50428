package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Workstation struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Name        string            `gorm:"size:100;not null;uniqueIndex" json:"name"`
	HourRate    decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"hour_rate"`
	Status      WorkstationStatus `gorm:"size:20;not null;default:active" json:"status"`
	Description string            `gorm:"type:text" json:"description"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWorkstation struct {
	Name        string            `json:"name" validate:"required,max=100"`
	HourRate    decimal.Decimal   `json:"hour_rate"`
	Status      WorkstationStatus `json:"status"`
	Description string            `json:"description"`
}

func CreateWorkstation(ctx context.Context, input *NewWorkstation) (*Workstation, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.HourRate.IsNegative() {
		return nil, errors.New("hour_rate must be >= 0")
	}
	status := input.Status
	if status == "" {
		status = WorkstationStatusActive
	}
	if !status.IsValid() {
		return nil, errors.New("invalid workstation status " + string(status))
	}
	workstation := Workstation{
		Name:        strings.TrimSpace(input.Name),
		HourRate:    input.HourRate,
		Status:      status,
		Description: input.Description,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateUnique[Workstation](tx, "name", workstation.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&workstation).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, workstation.ID, "workstations", nil, workstation, "Created workstation "+workstation.Name)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis(&workstation, workstation.ID); err != nil {
		config.LogError(config.GetLogger(), "models", "CreateWorkstation", "cache workstation", workstation.ID, err)
	}
	return &workstation, nil
}

// getWorkstation reads through the redis cache; the cache is only a hint, tx stays the source of truth on a miss.
func getWorkstation(tx *gorm.DB, id int) (*Workstation, error) {
	if cached, err := utils.RetrieveRedis[Workstation](id); err == nil && cached != nil {
		return cached, nil
	}
	var workstation Workstation
	if err := tx.First(&workstation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("workstation not found")
		}
		return nil, err
	}
	if err := utils.StoreRedis(&workstation, workstation.ID); err != nil {
		config.LogError(config.GetLogger(), "models", "getWorkstation", "cache workstation", id, err)
	}
	return &workstation, nil
}
