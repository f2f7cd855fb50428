package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type AccountType string

const (
	AccountTypeStock           AccountType = "stock"
	AccountTypeStockAdjustment AccountType = "stock_adjustment"
	AccountTypeExpense         AccountType = "expense"
)

const (
	AccountCodeStockInHand     = "STOCK-IN-HAND"
	AccountCodeStockAdjustment = "STOCK-ADJUSTMENT"
)

type Account struct {
	ID          int         `gorm:"primary_key" json:"id"`
	CompanyId   int         `gorm:"not null;uniqueIndex:idx_account_company_code,priority:1" json:"company_id"`
	Code        string      `gorm:"size:50;not null;uniqueIndex:idx_account_company_code,priority:2" json:"code"`
	Name        string      `gorm:"size:100;not null" json:"name"`
	AccountType AccountType `gorm:"size:30;not null" json:"account_type"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	CompanyId   int         `json:"company_id" validate:"required"`
	Code        string      `json:"code" validate:"required,max=50"`
	Name        string      `json:"name" validate:"required,max=100"`
	AccountType AccountType `json:"account_type" validate:"required,oneof=stock stock_adjustment expense"`
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var account *Account
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		if err := utils.ValidateUnique[Account](tx.Where("company_id = ?", input.CompanyId), "code", input.Code, 0); err != nil {
			return err
		}
		var err error
		account, err = createAccount(tx, input.CompanyId, input.Code, input.Name, input.AccountType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func createAccount(tx *gorm.DB, companyId int, code string, name string, accountType AccountType) (*Account, error) {
	account := Account{
		CompanyId:   companyId,
		Code:        code,
		Name:        name,
		AccountType: accountType,
	}
	if err := tx.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
