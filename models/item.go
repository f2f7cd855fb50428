package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type Item struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Code        string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Uom         string    `gorm:"size:20;not null" json:"uom"`
	IsStockItem bool      `gorm:"not null" json:"is_stock_item"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=255"`
	Uom         string `json:"uom" validate:"max=20"`
	IsStockItem *bool  `json:"is_stock_item"`
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	item := Item{
		Code:        input.Code,
		Name:        input.Name,
		Uom:         input.Uom,
		IsStockItem: utils.DereferencePtr(input.IsStockItem, true),
		IsActive:    true,
	}
	if item.Uom == "" {
		item.Uom = "Nos"
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateUnique[Item](tx, "code", input.Code, 0); err != nil {
			return err
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, item.ID, "items", nil, item, "Created item "+item.Code)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	db := config.GetDB()
	var item Item
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}
