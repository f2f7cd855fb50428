package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId int       `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	CompanyId int    `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email,max=100"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	supplier := Supplier{
		CompanyId: input.CompanyId,
		Name:      strings.TrimSpace(input.Name),
		Email:     input.Email,
		IsActive:  true,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		if err := tx.Create(&supplier).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, supplier.ID, "suppliers", nil, supplier, "Created supplier "+supplier.Name)
	})
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}
