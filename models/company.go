package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type Company struct {
	ID                       int       `gorm:"primary_key" json:"id"`
	Name                     string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Abbreviation             string    `gorm:"size:10" json:"abbreviation"`
	StockInHandAccountId     int       `json:"stock_in_hand_account_id"`
	StockAdjustmentAccountId int       `json:"stock_adjustment_account_id"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name         string `json:"name" validate:"required,max=100"`
	Abbreviation string `json:"abbreviation" validate:"max=10"`
}

// CreateCompany creates the company together with its stock-in-hand and stock-adjustment accounts.
func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	company := Company{
		Name:         input.Name,
		Abbreviation: input.Abbreviation,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateUnique[Company](tx, "name", input.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		stockAccount, err := createAccount(tx, company.ID, AccountCodeStockInHand, "Stock In Hand", AccountTypeStock)
		if err != nil {
			return err
		}
		adjustmentAccount, err := createAccount(tx, company.ID, AccountCodeStockAdjustment, "Stock Adjustment", AccountTypeStockAdjustment)
		if err != nil {
			return err
		}
		company.StockInHandAccountId = stockAccount.ID
		company.StockAdjustmentAccountId = adjustmentAccount.ID
		if err := tx.Model(&Company{}).Where("id = ?", company.ID).Updates(map[string]interface{}{
			"stock_in_hand_account_id":    company.StockInHandAccountId,
			"stock_adjustment_account_id": company.StockAdjustmentAccountId,
		}).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, company.ID, "companies", nil, company, "Created company "+company.Name)
	})
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func getCompany(tx *gorm.DB, id int) (*Company, error) {
	if err := utils.ValidateResourceId[Company](tx, id); err != nil {
		return nil, err
	}
	var company Company
	if err := tx.First(&company, id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}
