package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Bom is a bill of materials: what it takes to build Quantity units of ItemId.
// TotalCost is always RawMaterialCost + OperatingCost.
type Bom struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       int             `gorm:"not null;index:idx_bom_company_item,priority:1" json:"company_id"`
	ItemId          int             `gorm:"not null;index:idx_bom_company_item,priority:2" json:"item_id"`
	Name            string          `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Uom             string          `gorm:"size:20" json:"uom"`
	IsActive        bool            `gorm:"not null" json:"is_active"`
	IsDefault       bool            `gorm:"not null;default:false" json:"is_default"`
	RawMaterialCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"raw_material_cost"`
	OperatingCost   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"operating_cost"`
	TotalCost       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_cost"`
	RoutingId       *int            `json:"routing_id"`
	Items           []*BomItem      `gorm:"foreignKey:BomId" json:"items"`
	Operations      []*BomOperation `gorm:"foreignKey:BomId" json:"operations"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BomItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BomId             int             `gorm:"index;not null" json:"bom_id"`
	Sequence          int             `gorm:"not null" json:"sequence"`
	ItemId            int             `gorm:"not null" json:"item_id"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Rate              decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"rate"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	ScrapPercentage   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"scrap_percentage"`
	IsSubAssembly     bool            `gorm:"not null;default:false" json:"is_sub_assembly"`
	SubBomId          *int            `gorm:"index" json:"sub_bom_id"`
	SourceWarehouseId *int            `json:"source_warehouse_id"`
}

type BomOperation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BomId         int             `gorm:"index;not null" json:"bom_id"`
	OperationId   int             `gorm:"not null" json:"operation_id"`
	WorkstationId *int            `json:"workstation_id"`
	Sequence      int             `gorm:"not null" json:"sequence"`
	TimeInMinutes decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"time_in_minutes"`
	OperatingCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"operating_cost"`
}

type NewBom struct {
	CompanyId  int               `json:"company_id" validate:"required"`
	ItemId     int               `json:"item_id" validate:"required"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Uom        string            `json:"uom" validate:"max=20"`
	Items      []NewBomItem      `json:"items" validate:"required,min=1,dive"`
	Operations []NewBomOperation `json:"operations" validate:"dive"`
	RoutingId  *int              `json:"routing_id"`
	IsActive   *bool             `json:"is_active"`
	IsDefault  *bool             `json:"is_default"`
}

type NewBomItem struct {
	ItemId            int             `json:"item_id" validate:"required"`
	Qty               decimal.Decimal `json:"quantity"`
	Rate              decimal.Decimal `json:"rate"`
	ScrapPercentage   decimal.Decimal `json:"scrap_percentage"`
	IsSubAssembly     bool            `json:"is_sub_assembly"`
	SubBomId          *int            `json:"sub_bom_id"`
	SourceWarehouseId *int            `json:"source_warehouse_id"`
}

type NewBomOperation struct {
	OperationId   int              `json:"operation_id" validate:"required"`
	WorkstationId *int             `json:"workstation_id"`
	TimeInMinutes decimal.Decimal  `json:"time_in_minutes"`
	OperatingCost *decimal.Decimal `json:"operating_cost"`
}

// BomUpdate replaces whatever is set. Items and Operations are full replacements;
// RoutingId 0 clears the routing.
type BomUpdate struct {
	Quantity   *decimal.Decimal   `json:"quantity"`
	IsActive   *bool              `json:"is_active"`
	IsDefault  *bool              `json:"is_default"`
	RoutingId  *int               `json:"routing_id"`
	Items      *[]NewBomItem      `json:"items"`
	Operations *[]NewBomOperation `json:"operations"`
}

type BomResult struct {
	BomId           int             `json:"bom_id"`
	Name            string          `json:"name"`
	IsDefault       bool            `json:"is_default"`
	RawMaterialCost decimal.Decimal `json:"raw_material_cost"`
	OperatingCost   decimal.Decimal `json:"operating_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	ItemCount       int             `json:"item_count"`
	OperationCount  int             `json:"operation_count"`
}

func newBomResult(bom *Bom) *BomResult {
	return &BomResult{
		BomId:           bom.ID,
		Name:            bom.Name,
		IsDefault:       bom.IsDefault,
		RawMaterialCost: bom.RawMaterialCost,
		OperatingCost:   bom.OperatingCost,
		TotalCost:       bom.TotalCost,
		ItemCount:       len(bom.Items),
		OperationCount:  len(bom.Operations),
	}
}

func CreateBom(ctx context.Context, input *NewBom) (*BomResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, errors.New("quantity must be > 0")
	}

	bom := Bom{
		CompanyId: input.CompanyId,
		ItemId:    input.ItemId,
		Quantity:  utils.RoundQty(input.Quantity),
		Uom:       input.Uom,
		IsActive:  utils.DereferencePtr(input.IsActive, true),
		RoutingId: input.RoutingId,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		item, err := lockItem(tx, input.ItemId)
		if err != nil {
			return err
		}
		if bom.Uom == "" {
			bom.Uom = item.Uom
		}

		if bom.Items, err = buildBomItems(tx, input.CompanyId, input.Items); err != nil {
			return err
		}
		ops := input.Operations
		if len(ops) == 0 && input.RoutingId != nil {
			if ops, err = bomOperationsFromRouting(tx, *input.RoutingId); err != nil {
				return err
			}
		} else if input.RoutingId != nil {
			if err := utils.ValidateResourceId[Routing](tx, *input.RoutingId); err != nil {
				return err
			}
		}
		if bom.Operations, err = buildBomOperations(tx, ops); err != nil {
			return err
		}
		bom.computeCosts()

		name, err := NextName(tx, NamingEntityBom, input.CompanyId)
		if err != nil {
			return err
		}
		bom.Name = name
		if err := tx.Create(&bom).Error; err != nil {
			return err
		}
		if err := setDefaultBom(tx, &bom, input.IsDefault, true); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, bom.ID, "boms", nil, bom, "Created BOM "+bom.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateBom", "create bom", input, err)
		return nil, err
	}
	return newBomResult(&bom), nil
}

func UpdateBom(ctx context.Context, id int, input *BomUpdate) (*BomResult, error) {
	if input == nil || (input.Quantity == nil && input.IsActive == nil && input.IsDefault == nil &&
		input.RoutingId == nil && input.Items == nil && input.Operations == nil) {
		return nil, ErrNoFieldsToUpdate
	}
	if input.Quantity != nil && !input.Quantity.IsPositive() {
		return nil, errors.New("quantity must be > 0")
	}
	if input.Items != nil {
		if len(*input.Items) == 0 {
			return nil, errors.New("items must not be empty")
		}
		for i := range *input.Items {
			if err := utils.ValidateStruct(&(*input.Items)[i]); err != nil {
				return nil, fmt.Errorf("items[%d]: %w", i, err)
			}
		}
	}
	if input.Operations != nil {
		for i := range *input.Operations {
			if err := utils.ValidateStruct(&(*input.Operations)[i]); err != nil {
				return nil, fmt.Errorf("operations[%d]: %w", i, err)
			}
		}
	}

	db := config.GetDB()
	var bom Bom
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bom, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("bom %d: %w", id, utils.ErrorRecordNotFound)
			}
			return err
		}
		if _, err := lockItem(tx, bom.ItemId); err != nil {
			return err
		}
		if err := loadBomLines(tx, &bom); err != nil {
			return err
		}
		before := bom

		if input.Quantity != nil {
			bom.Quantity = utils.RoundQty(*input.Quantity)
		}
		if input.IsActive != nil {
			bom.IsActive = *input.IsActive
		}

		var err error
		if input.Items != nil {
			items, err := buildBomItems(tx, bom.CompanyId, *input.Items)
			if err != nil {
				return err
			}
			if err := tx.Where("bom_id = ?", bom.ID).Delete(&BomItem{}).Error; err != nil {
				return err
			}
			for _, line := range items {
				line.BomId = bom.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
			bom.Items = items
		}

		ops := input.Operations
		if input.RoutingId != nil {
			if *input.RoutingId == 0 {
				bom.RoutingId = nil
			} else {
				routingId := *input.RoutingId
				bom.RoutingId = &routingId
				if ops == nil {
					routingOps, err := bomOperationsFromRouting(tx, routingId)
					if err != nil {
						return err
					}
					ops = &routingOps
				} else if err := utils.ValidateResourceId[Routing](tx, routingId); err != nil {
					return err
				}
			}
		}
		if ops != nil {
			operations, err := buildBomOperations(tx, *ops)
			if err != nil {
				return err
			}
			if err := tx.Where("bom_id = ?", bom.ID).Delete(&BomOperation{}).Error; err != nil {
				return err
			}
			for _, op := range operations {
				op.BomId = bom.ID
			}
			if len(operations) > 0 {
				if err := tx.Create(&operations).Error; err != nil {
					return err
				}
			}
			bom.Operations = operations
		}

		bom.computeCosts()
		if err = tx.Model(&Bom{}).Where("id = ?", bom.ID).Updates(map[string]interface{}{
			"quantity":          bom.Quantity,
			"is_active":         bom.IsActive,
			"routing_id":        bom.RoutingId,
			"raw_material_cost": bom.RawMaterialCost,
			"operating_cost":    bom.OperatingCost,
			"total_cost":        bom.TotalCost,
		}).Error; err != nil {
			return err
		}
		if err := setDefaultBom(tx, &bom, input.IsDefault, false); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, bom.ID, "boms", before, bom, "Updated BOM "+bom.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "UpdateBom", "update bom", id, err)
		return nil, err
	}
	return newBomResult(&bom), nil
}

func (b *Bom) computeCosts() {
	raw, operating := decimal.Zero, decimal.Zero
	for _, line := range b.Items {
		raw = raw.Add(line.Amount)
	}
	for _, op := range b.Operations {
		operating = operating.Add(op.OperatingCost)
	}
	b.RawMaterialCost = utils.RoundCurrency(raw)
	b.OperatingCost = utils.RoundCurrency(operating)
	b.TotalCost = b.RawMaterialCost.Add(b.OperatingCost)
}

// setDefaultBom keeps at most one default BOM per (item, company).
// An explicit true clears the previous default; with no flag a new active BOM
// becomes default only when none exists yet.
func setDefaultBom(tx *gorm.DB, bom *Bom, explicit *bool, isNew bool) error {
	switch {
	case explicit != nil && *explicit:
		if err := tx.Model(&Bom{}).
			Where("item_id = ? AND company_id = ? AND id <> ? AND is_default = ?", bom.ItemId, bom.CompanyId, bom.ID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		bom.IsDefault = true
	case explicit != nil:
		bom.IsDefault = false
	case isNew:
		count, err := utils.ResourceCountWhere[Bom](tx, "item_id = ? AND company_id = ? AND id <> ? AND is_default = ? AND is_active = ?",
			bom.ItemId, bom.CompanyId, bom.ID, true, true)
		if err != nil {
			return err
		}
		bom.IsDefault = count == 0 && bom.IsActive
	default:
		return nil
	}
	return tx.Model(&Bom{}).Where("id = ?", bom.ID).Update("is_default", bom.IsDefault).Error
}

// lockItem serializes BOM default bookkeeping per finished item.
func lockItem(tx *gorm.DB, itemId int) (*Item, error) {
	var item Item
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, itemId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %d: %w", itemId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &item, nil
}

func buildBomItems(tx *gorm.DB, companyId int, inputs []NewBomItem) ([]*BomItem, error) {
	var itemIds, warehouseIds []int
	for i, in := range inputs {
		if !in.Qty.IsPositive() {
			return nil, fmt.Errorf("items[%d]: quantity must be > 0", i)
		}
		if in.Rate.IsNegative() {
			return nil, fmt.Errorf("items[%d]: rate must be >= 0", i)
		}
		if in.ScrapPercentage.IsNegative() {
			return nil, fmt.Errorf("items[%d]: scrap_percentage must be >= 0", i)
		}
		itemIds = append(itemIds, in.ItemId)
		if in.SourceWarehouseId != nil {
			warehouseIds = append(warehouseIds, *in.SourceWarehouseId)
		}
	}
	if err := utils.MassValidateResourceIds(tx, []utils.ValidationRule[int]{
		{Model: &Item{}, Ids: itemIds, Message: "item not found"},
		{Model: &Warehouse{}, Ids: warehouseIds, Message: "warehouse not found"},
	}); err != nil {
		return nil, err
	}
	if err := validateCompanyWarehouses(tx, companyId, warehouseIds); err != nil {
		return nil, err
	}

	lines := make([]*BomItem, 0, len(inputs))
	for i, in := range inputs {
		if in.SubBomId != nil && *in.SubBomId > 0 {
			var sub Bom
			if err := tx.Select("id", "item_id").First(&sub, *in.SubBomId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("items[%d]: sub bom %d: %w", i, *in.SubBomId, utils.ErrorRecordNotFound)
				}
				return nil, err
			}
			if sub.ItemId != in.ItemId {
				return nil, fmt.Errorf("items[%d]: sub bom %d produces item %d, not item %d", i, sub.ID, sub.ItemId, in.ItemId)
			}
		}
		lines = append(lines, &BomItem{
			Sequence:          i + 1,
			ItemId:            in.ItemId,
			Qty:               utils.RoundQty(in.Qty),
			Rate:              in.Rate,
			Amount:            utils.RoundCurrency(in.Qty.Mul(in.Rate)),
			ScrapPercentage:   in.ScrapPercentage,
			IsSubAssembly:     in.IsSubAssembly,
			SubBomId:          in.SubBomId,
			SourceWarehouseId: in.SourceWarehouseId,
		})
	}
	return lines, nil
}

// buildBomOperations prices each operation: an explicit cost above zero wins, otherwise
// minutes/60 times the hour rate of the line's workstation or the operation's default one.
func buildBomOperations(tx *gorm.DB, inputs []NewBomOperation) ([]*BomOperation, error) {
	ops := make([]*BomOperation, 0, len(inputs))
	for i, in := range inputs {
		if in.TimeInMinutes.IsNegative() {
			return nil, fmt.Errorf("operations[%d]: time_in_minutes must be >= 0", i)
		}
		operation, err := getOperation(tx, in.OperationId)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		workstationId := in.WorkstationId
		if workstationId == nil {
			workstationId = operation.DefaultWorkstationId
		}
		var workstation *Workstation
		if workstationId != nil {
			if workstation, err = getWorkstation(tx, *workstationId); err != nil {
				return nil, fmt.Errorf("operations[%d]: %w", i, err)
			}
		}

		cost := decimal.Zero
		if in.OperatingCost != nil && in.OperatingCost.IsPositive() {
			cost = utils.RoundCurrency(*in.OperatingCost)
		} else if workstation != nil {
			cost = utils.HourlyCost(in.TimeInMinutes, workstation.HourRate)
		}
		ops = append(ops, &BomOperation{
			OperationId:   in.OperationId,
			WorkstationId: workstationId,
			Sequence:      i + 1,
			TimeInMinutes: in.TimeInMinutes,
			OperatingCost: cost,
		})
	}
	return ops, nil
}

func bomOperationsFromRouting(tx *gorm.DB, routingId int) ([]NewBomOperation, error) {
	routingOps, err := getRoutingOperations(tx, routingId)
	if err != nil {
		return nil, err
	}
	ops := make([]NewBomOperation, 0, len(routingOps))
	for _, rop := range routingOps {
		ops = append(ops, NewBomOperation{
			OperationId:   rop.OperationId,
			WorkstationId: rop.WorkstationId,
			TimeInMinutes: rop.TimeInMinutes,
		})
	}
	return ops, nil
}

func loadBomLines(tx *gorm.DB, bom *Bom) error {
	if err := tx.Where("bom_id = ?", bom.ID).Order("sequence, id").Find(&bom.Items).Error; err != nil {
		return err
	}
	return tx.Where("bom_id = ?", bom.ID).Order("sequence, id").Find(&bom.Operations).Error
}

func GetBom(ctx context.Context, id int) (*Bom, error) {
	db := config.GetDB().WithContext(ctx)
	var bom Bom
	if err := db.First(&bom, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := loadBomLines(db, &bom); err != nil {
		return nil, err
	}
	return &bom, nil
}

type BomFilter struct {
	CompanyId *int  `json:"company_id"`
	ItemId    *int  `json:"item_id"`
	IsActive  *bool `json:"is_active"`
	Limit     int   `json:"limit"`
	Offset    int   `json:"offset"`
}

func ListBoms(ctx context.Context, filter BomFilter) ([]*Bom, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&Bom{})
	if filter.CompanyId != nil {
		q = q.Where("company_id = ?", *filter.CompanyId)
	}
	if filter.ItemId != nil {
		q = q.Where("item_id = ?", *filter.ItemId)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	var boms []*Bom
	if err := q.Order("id DESC").Limit(pageLimit(filter.Limit)).Offset(filter.Offset).Find(&boms).Error; err != nil {
		return nil, err
	}
	if config.MfgDebugLogEnabled() {
		config.GetLogger().WithFields(logrus.Fields{"func": "ListBoms", "count": len(boms)}).Info("listed boms")
	}
	return boms, nil
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return config.SearchLimit
	}
	return limit
}
