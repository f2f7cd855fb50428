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

const defaultPlanningHorizonDays = 30

type ProductionPlan struct {
	ID                  int                       `gorm:"primary_key" json:"id"`
	CompanyId           int                       `gorm:"not null;index" json:"company_id"`
	Name                string                    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	PlanningPeriodStart time.Time                 `gorm:"not null" json:"planning_period_start"`
	PlanningPeriodEnd   time.Time                 `gorm:"not null" json:"planning_period_end"`
	Status              ProductionPlanStatus      `gorm:"size:20;not null;index" json:"status"`
	Items               []*ProductionPlanItem     `gorm:"foreignKey:ProductionPlanId" json:"items"`
	Materials           []*ProductionPlanMaterial `gorm:"foreignKey:ProductionPlanId" json:"materials"`
	CreatedAt           time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductionPlanItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ProductionPlanId int             `gorm:"index;not null" json:"production_plan_id"`
	ItemId           int             `gorm:"not null" json:"item_id"`
	BomId            int             `gorm:"not null" json:"bom_id"`
	PlannedQty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"planned_qty"`
	WarehouseId      *int            `json:"warehouse_id"`
	SalesOrderId     *int            `json:"sales_order_id"`
	WorkOrderId      *int            `gorm:"index" json:"work_order_id"`
}

// ProductionPlanMaterial rows are rebuilt from scratch on every MRP run.
type ProductionPlanMaterial struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ProductionPlanId int             `gorm:"index;not null" json:"production_plan_id"`
	ItemId           int             `gorm:"not null" json:"item_id"`
	WarehouseId      *int            `json:"warehouse_id"`
	RequiredQty      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"required_qty"`
	AvailableQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"available_qty"`
	OnOrderQty       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"on_order_qty"`
	ShortfallQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"shortfall_qty"`
}

type NewProductionPlan struct {
	CompanyId           int                     `json:"company_id" validate:"required"`
	PlanningHorizonDays *int                    `json:"planning_horizon_days" validate:"omitempty,min=1"`
	Items               []NewProductionPlanItem `json:"items" validate:"required,min=1,dive"`
}

type NewProductionPlanItem struct {
	ItemId       int             `json:"item_id" validate:"required"`
	BomId        int             `json:"bom_id" validate:"required"`
	PlannedQty   decimal.Decimal `json:"planned_qty"`
	WarehouseId  *int            `json:"warehouse_id"`
	SalesOrderId *int            `json:"sales_order_id"`
}

func CreateProductionPlan(ctx context.Context, input *NewProductionPlan) (*ProductionPlan, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	horizon := utils.DereferencePtr(input.PlanningHorizonDays, defaultPlanningHorizonDays)
	start := postingDateOrToday(nil)
	plan := ProductionPlan{
		CompanyId:           input.CompanyId,
		PlanningPeriodStart: start,
		PlanningPeriodEnd:   start.AddDate(0, 0, horizon),
		Status:              ProductionPlanStatusDraft,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		for i, in := range input.Items {
			if !in.PlannedQty.IsPositive() {
				return fmt.Errorf("items[%d]: planned_qty must be > 0", i)
			}
			if err := utils.ValidateResourceId[Item](tx, in.ItemId); err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			var bom Bom
			if err := tx.Select("id", "company_id", "item_id").First(&bom, in.BomId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("items[%d]: bom %d: %w", i, in.BomId, utils.ErrorRecordNotFound)
				}
				return err
			}
			if bom.ItemId != in.ItemId {
				return fmt.Errorf("items[%d]: bom %d produces item %d, not item %d", i, bom.ID, bom.ItemId, in.ItemId)
			}
			if bom.CompanyId != input.CompanyId {
				return fmt.Errorf("items[%d]: %w: bom %d is not in company %d", i, ErrCompanyMismatch, bom.ID, input.CompanyId)
			}
			if in.WarehouseId != nil {
				if err := utils.ValidateResourceId[Warehouse](tx, *in.WarehouseId); err != nil {
					return fmt.Errorf("items[%d]: %w", i, err)
				}
				if err := validateCompanyWarehouses(tx, input.CompanyId, []int{*in.WarehouseId}); err != nil {
					return fmt.Errorf("items[%d]: %w", i, err)
				}
			}
			plan.Items = append(plan.Items, &ProductionPlanItem{
				ItemId:       in.ItemId,
				BomId:        in.BomId,
				PlannedQty:   utils.RoundQty(in.PlannedQty),
				WarehouseId:  in.WarehouseId,
				SalesOrderId: in.SalesOrderId,
			})
		}
		name, err := NextName(tx, NamingEntityProductionPlan, input.CompanyId)
		if err != nil {
			return err
		}
		plan.Name = name
		if err := tx.Create(&plan).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, plan.ID, "production_plans", nil, plan, "Created production plan "+plan.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateProductionPlan", "create production plan", input, err)
		return nil, err
	}
	return &plan, nil
}

func lockProductionPlan(tx *gorm.DB, id int) (*ProductionPlan, error) {
	var plan ProductionPlan
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("production plan %d: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &plan, nil
}

func runProductionPlanAction(ctx context.Context, planId int, funcName string, fn func(tx *gorm.DB) error) error {
	release, err := utils.ObtainResourceLock(ctx, "production_plan", planId, "models", funcName)
	if err != nil {
		return err
	}
	defer release()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(fn)
	if err != nil {
		config.LogError(config.GetLogger(), "models", funcName, "production plan action failed", planId, err)
	}
	return err
}

type RunMrpResult struct {
	ProductionPlanId    int                  `json:"production_plan_id"`
	Status              ProductionPlanStatus `json:"status"`
	MaterialCount       int                  `json:"material_count"`
	TotalShortfallItems int                  `json:"total_shortfall_items"`
}

// RunMrp nets the exploded requirements of every plan item against stock and open purchase orders.
// Only draft plans can be planned; a successful run submits the plan.
func RunMrp(ctx context.Context, planId int) (*RunMrpResult, error) {
	var result RunMrpResult
	err := runProductionPlanAction(ctx, planId, "RunMrp", func(tx *gorm.DB) error {
		plan, err := lockProductionPlan(tx, planId)
		if err != nil {
			return err
		}
		if plan.Status != ProductionPlanStatusDraft {
			return invalidStatusError("production plan "+plan.Name, plan.Status, string(ProductionPlanStatusDraft))
		}
		materials, err := rebuildPlanMaterials(tx, plan)
		if err != nil {
			return err
		}

		before := *plan
		plan.Status = ProductionPlanStatusSubmitted
		if err := tx.Model(&ProductionPlan{}).Where("id = ?", plan.ID).Update("status", plan.Status).Error; err != nil {
			return err
		}
		result = RunMrpResult{
			ProductionPlanId: plan.ID,
			Status:           plan.Status,
			MaterialCount:    len(materials),
		}
		for _, m := range materials {
			if m.ShortfallQty.IsPositive() {
				result.TotalShortfallItems++
			}
		}
		if config.MfgDebugLogEnabled() {
			config.GetLogger().WithFields(logrus.Fields{
				"production_plan": plan.Name,
				"materials":       result.MaterialCount,
				"shortfalls":      result.TotalShortfallItems,
			}).Info("mrp run")
		}
		if err := recordManufacturingEvent(tx, plan.CompanyId, EventProductionPlanMrpCompleted, "production_plans", plan.ID, result); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionRunMrp, plan.ID, "production_plans", before, plan,
			fmt.Sprintf("MRP for %s: %d materials, %d short", plan.Name, result.MaterialCount, result.TotalShortfallItems))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type mrpKey struct {
	itemId      int
	warehouseId int
}

// rebuildPlanMaterials replaces the plan's material rows. Requirements are summed per (material, warehouse)
// across plan items; shortfall = max(0, required - available - on order).
func rebuildPlanMaterials(tx *gorm.DB, plan *ProductionPlan) ([]*ProductionPlanMaterial, error) {
	if err := tx.Where("production_plan_id = ?", plan.ID).Delete(&ProductionPlanMaterial{}).Error; err != nil {
		return nil, err
	}
	var items []*ProductionPlanItem
	if err := tx.Where("production_plan_id = ?", plan.ID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("production plan has no items")
	}

	var order []mrpKey
	required := make(map[mrpKey]decimal.Decimal)
	for _, item := range items {
		exploded, err := explodeBom(tx, item.BomId, item.PlannedQty)
		if err != nil {
			return nil, fmt.Errorf("plan item %d: %w", item.ID, err)
		}
		warehouseId := 0
		if item.WarehouseId != nil {
			warehouseId = *item.WarehouseId
		}
		for _, m := range exploded {
			key := mrpKey{itemId: m.ItemId, warehouseId: warehouseId}
			if _, ok := required[key]; !ok {
				order = append(order, key)
			}
			required[key] = required[key].Add(m.TotalQty)
		}
	}

	materials := make([]*ProductionPlanMaterial, 0, len(order))
	for _, key := range order {
		var available decimal.Decimal
		var err error
		var warehouseId *int
		if key.warehouseId > 0 {
			id := key.warehouseId
			warehouseId = &id
			available, err = GetStockBalance(tx, key.itemId, key.warehouseId)
		} else {
			available, err = GetCompanyStockBalance(tx, plan.CompanyId, key.itemId)
		}
		if err != nil {
			return nil, err
		}
		onOrder, err := getOnOrderQty(tx, plan.CompanyId, key.itemId)
		if err != nil {
			return nil, err
		}
		req := utils.RoundQty(required[key])
		shortfall := utils.MaxDecimal(decimal.Zero, req.Sub(available).Sub(onOrder))
		materials = append(materials, &ProductionPlanMaterial{
			ProductionPlanId: plan.ID,
			ItemId:           key.itemId,
			WarehouseId:      warehouseId,
			RequiredQty:      req,
			AvailableQty:     available,
			OnOrderQty:       onOrder,
			ShortfallQty:     utils.RoundQty(shortfall),
		})
	}
	if len(materials) > 0 {
		if err := tx.Create(&materials).Error; err != nil {
			return nil, err
		}
	}
	return materials, nil
}

type GenerateWorkOrdersResult struct {
	ProductionPlanId  int    `json:"production_plan_id"`
	WorkOrdersCreated int    `json:"work_orders_created"`
	WorkOrderIds      []int  `json:"work_order_ids"`
	Message           string `json:"message,omitempty"`
}

// GenerateWorkOrders creates a draft work order for every plan item that has none; running it again creates nothing.
func GenerateWorkOrders(ctx context.Context, planId int) (*GenerateWorkOrdersResult, error) {
	result := GenerateWorkOrdersResult{ProductionPlanId: planId, WorkOrderIds: []int{}}
	err := runProductionPlanAction(ctx, planId, "GenerateWorkOrders", func(tx *gorm.DB) error {
		plan, err := lockProductionPlan(tx, planId)
		if err != nil {
			return err
		}
		if plan.Status == ProductionPlanStatusCancelled {
			return invalidStatusError("production plan "+plan.Name, plan.Status, "not cancelled")
		}
		var items []*ProductionPlanItem
		if err := tx.Where("production_plan_id = ? AND work_order_id IS NULL", plan.ID).Order("id").Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			result.Message = "all plan items already have work orders"
			return nil
		}
		for _, item := range items {
			planRef := plan.ID
			order, err := createWorkOrderFromBom(tx, &NewWorkOrder{
				CompanyId:         plan.CompanyId,
				BomId:             item.BomId,
				Qty:               item.PlannedQty,
				TargetWarehouseId: item.WarehouseId,
				SalesOrderId:      item.SalesOrderId,
				ProductionPlanId:  &planRef,
			})
			if err != nil {
				return fmt.Errorf("plan item %d: %w", item.ID, err)
			}
			if err := tx.Model(&ProductionPlanItem{}).Where("id = ?", item.ID).Update("work_order_id", order.ID).Error; err != nil {
				return err
			}
			result.WorkOrderIds = append(result.WorkOrderIds, order.ID)
		}
		result.WorkOrdersCreated = len(result.WorkOrderIds)
		return createHistory(tx, HistoryActionGenerate, plan.ID, "production_plans", nil, result,
			fmt.Sprintf("Generated %d work orders for %s", result.WorkOrdersCreated, plan.Name))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type PurchaseRequest struct {
	ItemId       int             `json:"item_id"`
	ItemCode     string          `json:"item_code"`
	ItemName     string          `json:"item_name"`
	Uom          string          `json:"uom"`
	RequiredQty  decimal.Decimal `json:"required_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	OnOrderQty   decimal.Decimal `json:"on_order_qty"`
	ShortfallQty decimal.Decimal `json:"shortfall_qty"`
	WarehouseId  *int            `json:"warehouse_id"`
}

type GeneratePurchaseRequestsResult struct {
	ProductionPlanId   int                `json:"production_plan_id"`
	PurchaseRequests   []*PurchaseRequest `json:"purchase_requests"`
	ShortfallItemCount int                `json:"shortfall_item_count"`
}

// GeneratePurchaseRequests lists the plan's short materials for purchasing. It creates no purchase
// orders; the list is handed to the purchasing side through the outbox.
func GeneratePurchaseRequests(ctx context.Context, planId int) (*GeneratePurchaseRequestsResult, error) {
	result := GeneratePurchaseRequestsResult{ProductionPlanId: planId, PurchaseRequests: []*PurchaseRequest{}}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan ProductionPlan
		if err := tx.First(&plan, planId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("production plan %d: %w", planId, utils.ErrorRecordNotFound)
			}
			return err
		}
		if err := tx.Table("production_plan_materials AS ppm").
			Select("ppm.item_id, i.code AS item_code, i.name AS item_name, i.uom, ppm.required_qty, ppm.available_qty, ppm.on_order_qty, ppm.shortfall_qty, ppm.warehouse_id").
			Joins("LEFT JOIN items AS i ON i.id = ppm.item_id").
			Where("ppm.production_plan_id = ? AND ppm.shortfall_qty > 0", planId).
			Order("ppm.id").
			Scan(&result.PurchaseRequests).Error; err != nil {
			return err
		}
		result.ShortfallItemCount = len(result.PurchaseRequests)
		if result.ShortfallItemCount == 0 {
			return nil
		}
		return recordManufacturingEvent(tx, plan.CompanyId, EventProductionPlanPurchaseNeeds, "production_plans", plan.ID, result)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "GeneratePurchaseRequests", "generate purchase requests", planId, err)
		return nil, err
	}
	return &result, nil
}

func GetProductionPlan(ctx context.Context, id int) (*ProductionPlan, error) {
	db := config.GetDB()
	var plan ProductionPlan
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&plan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &plan, nil
}
