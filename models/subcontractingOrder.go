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
)

type SubcontractingOrder struct {
	ID                   int                       `gorm:"primary_key" json:"id"`
	CompanyId            int                       `gorm:"not null;index" json:"company_id"`
	Name                 string                    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	SupplierId           int                       `gorm:"not null;index" json:"supplier_id"`
	ServiceItemId        int                       `gorm:"not null" json:"service_item_id"`
	FinishedItemId       int                       `gorm:"not null" json:"finished_item_id"`
	BomId                int                       `gorm:"not null" json:"bom_id"`
	Qty                  decimal.Decimal           `gorm:"type:decimal(20,4);not null" json:"qty"`
	SupplierWarehouseId  *int                      `json:"supplier_warehouse_id"`
	Status               SubcontractingOrderStatus `gorm:"size:20;not null;index" json:"status"`
	MaterialsTransferred decimal.Decimal           `gorm:"type:decimal(20,4);not null;default:0" json:"materials_transferred"`
	ReceivedQty          decimal.Decimal           `gorm:"type:decimal(20,4);not null;default:0" json:"received_qty"`
	CreatedAt            time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSubcontractingOrder struct {
	CompanyId           int             `json:"company_id" validate:"required"`
	SupplierId          int             `json:"supplier_id" validate:"required"`
	BomId               int             `json:"bom_id" validate:"required"`
	Qty                 decimal.Decimal `json:"qty"`
	ServiceItemId       *int            `json:"service_item_id"`
	SupplierWarehouseId *int            `json:"supplier_warehouse_id"`
}

// CreateSubcontractingOrder records a draft order to have BomId built by a supplier.
// The service item defaults to the BOM's finished item.
func CreateSubcontractingOrder(ctx context.Context, input *NewSubcontractingOrder) (*SubcontractingOrder, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Qty.IsPositive() {
		return nil, errors.New("qty must be > 0")
	}

	var order SubcontractingOrder
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bom Bom
		if err := tx.Select("id", "item_id").First(&bom, input.BomId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("bom %d: %w", input.BomId, utils.ErrorRecordNotFound)
			}
			return err
		}
		serviceItemId := utils.DereferencePtr(input.ServiceItemId, bom.ItemId)
		rules := []utils.ValidationRule[int]{
			{Model: &Company{}, Ids: []int{input.CompanyId}, Message: "company not found"},
			{Model: &Supplier{}, Ids: []int{input.SupplierId}, Message: "supplier not found"},
			{Model: &Item{}, Ids: []int{serviceItemId}, Message: "service item not found"},
		}
		if input.SupplierWarehouseId != nil {
			rules = append(rules, utils.ValidationRule[int]{
				Model: &Warehouse{}, Ids: []int{*input.SupplierWarehouseId}, Message: "supplier warehouse not found",
			})
		}
		if err := utils.MassValidateResourceIds(tx, rules); err != nil {
			return err
		}

		name, err := NextName(tx, NamingEntitySubcontractingOrder, input.CompanyId)
		if err != nil {
			return err
		}
		order = SubcontractingOrder{
			CompanyId:           input.CompanyId,
			Name:                name,
			SupplierId:          input.SupplierId,
			ServiceItemId:       serviceItemId,
			FinishedItemId:      bom.ItemId,
			BomId:               bom.ID,
			Qty:                 utils.RoundQty(input.Qty),
			SupplierWarehouseId: input.SupplierWarehouseId,
			Status:              SubcontractingOrderStatusDraft,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, order.ID, "subcontracting_orders", nil, order, "Created subcontracting order "+order.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateSubcontractingOrder", "create subcontracting order", input, err)
		return nil, err
	}
	return &order, nil
}
