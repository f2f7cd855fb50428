package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId int       `gorm:"not null;uniqueIndex:idx_warehouse_company_name,priority:1" json:"company_id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:idx_warehouse_company_name,priority:2" json:"name"`
	AccountId *int      `gorm:"index" json:"account_id"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	CompanyId int    `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=100"`
	AccountId *int   `json:"account_id"`
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	warehouse := Warehouse{
		CompanyId: input.CompanyId,
		Name:      strings.TrimSpace(input.Name),
		AccountId: input.AccountId,
		IsActive:  true,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		if input.AccountId != nil {
			var account Account
			if err := tx.First(&account, *input.AccountId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.New("account not found")
				}
				return err
			}
			if account.CompanyId != input.CompanyId {
				return errors.New("account belongs to another company")
			}
		}
		if err := utils.ValidateUnique[Warehouse](tx.Where("company_id = ?", input.CompanyId), "name", warehouse.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&warehouse).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, warehouse.ID, "warehouses", nil, warehouse, "Created warehouse "+warehouse.Name)
	})
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

// inventoryAccountFor returns the warehouse's own account, falling back to the company's stock-in-hand account.
func inventoryAccountFor(tx *gorm.DB, warehouseId int, company *Company, cache map[int]int) (int, error) {
	if accountId, ok := cache[warehouseId]; ok {
		return accountId, nil
	}
	var warehouse Warehouse
	if err := tx.Select("id", "account_id").First(&warehouse, warehouseId).Error; err != nil {
		return 0, err
	}
	accountId := company.StockInHandAccountId
	if warehouse.AccountId != nil && *warehouse.AccountId > 0 {
		accountId = *warehouse.AccountId
	}
	cache[warehouseId] = accountId
	return accountId, nil
}

// validateCompanyWarehouses rejects any warehouse owned by a company other than companyId.
func validateCompanyWarehouses(tx *gorm.DB, companyId int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	var foreign []int
	if err := tx.Model(&Warehouse{}).Where("id IN ? AND company_id <> ?", utils.UniqueSlice(ids), companyId).
		Pluck("id", &foreign).Error; err != nil {
		return err
	}
	if len(foreign) > 0 {
		return fmt.Errorf("%w: warehouse %d is not in company %d", ErrCompanyMismatch, foreign[0], companyId)
	}
	return nil
}
