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

// WorkOrder builds Qty of ItemId against BomId.
// Status moves draft -> not_started -> in_process -> completed; cancelled is reachable from any non-terminal state.
type WorkOrder struct {
	ID                     int              `gorm:"primary_key" json:"id"`
	CompanyId              int              `gorm:"not null;index" json:"company_id"`
	Name                   string           `gorm:"size:50;not null;uniqueIndex" json:"name"`
	ItemId                 int              `gorm:"not null;index" json:"item_id"`
	BomId                  int              `gorm:"not null;index" json:"bom_id"`
	Qty                    decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"qty"`
	ProducedQty            decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"produced_qty"`
	Status                 WorkOrderStatus  `gorm:"size:20;not null;index" json:"status"`
	PlannedStartDate       *time.Time       `json:"planned_start_date"`
	PlannedEndDate         *time.Time       `json:"planned_end_date"`
	ActualStartDate        *time.Time       `json:"actual_start_date"`
	ActualEndDate          *time.Time       `json:"actual_end_date"`
	SourceWarehouseId      *int             `json:"source_warehouse_id"`
	TargetWarehouseId      *int             `json:"target_warehouse_id"`
	WipWarehouseId         *int             `json:"wip_warehouse_id"`
	MaterialTransferredQty decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"material_transferred_qty"`
	SalesOrderId           *int             `gorm:"index" json:"sales_order_id"`
	ProductionPlanId       *int             `gorm:"index" json:"production_plan_id"`
	Items                  []*WorkOrderItem `gorm:"foreignKey:WorkOrderId" json:"items"`
	JobCards               []*JobCard       `gorm:"foreignKey:WorkOrderId" json:"job_cards"`
	CreatedAt              time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// WorkOrderItem is a BOM line scaled to the order. TransferredQty never exceeds RequiredQty.
type WorkOrderItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	WorkOrderId       int             `gorm:"index;not null" json:"work_order_id"`
	ItemId            int             `gorm:"not null" json:"item_id"`
	RequiredQty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"required_qty"`
	TransferredQty    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"transferred_qty"`
	ConsumedQty       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"consumed_qty"`
	SourceWarehouseId *int            `json:"source_warehouse_id"`
}

type NewWorkOrder struct {
	CompanyId         int             `json:"company_id" validate:"required"`
	BomId             int             `json:"bom_id" validate:"required"`
	Qty               decimal.Decimal `json:"qty"`
	PlannedStartDate  *time.Time      `json:"planned_start_date"`
	PlannedEndDate    *time.Time      `json:"planned_end_date"`
	SourceWarehouseId *int            `json:"source_warehouse_id"`
	TargetWarehouseId *int            `json:"target_warehouse_id"`
	WipWarehouseId    *int            `json:"wip_warehouse_id"`
	SalesOrderId      *int            `json:"sales_order_id"`
	ProductionPlanId  *int            `json:"production_plan_id"`
}

type WorkOrderResult struct {
	WorkOrderId int             `json:"work_order_id"`
	Name        string          `json:"name"`
	ItemId      int             `json:"item_id"`
	BomId       int             `json:"bom_id"`
	Qty         decimal.Decimal `json:"qty"`
	Status      WorkOrderStatus `json:"status"`
	ItemCount   int             `json:"item_count"`
}

func CreateWorkOrder(ctx context.Context, input *NewWorkOrder) (*WorkOrderResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var order *WorkOrder
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = createWorkOrderFromBom(tx, input)
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateWorkOrder", "create work order", input, err)
		return nil, err
	}
	return &WorkOrderResult{
		WorkOrderId: order.ID,
		Name:        order.Name,
		ItemId:      order.ItemId,
		BomId:       order.BomId,
		Qty:         order.Qty,
		Status:      order.Status,
		ItemCount:   len(order.Items),
	}, nil
}

// createWorkOrderFromBom copies the BOM lines scaled by qty/bom.qty; repeated items are merged into one line.
func createWorkOrderFromBom(tx *gorm.DB, input *NewWorkOrder) (*WorkOrder, error) {
	if !input.Qty.IsPositive() {
		return nil, errors.New("qty must be > 0")
	}
	var bom Bom
	if err := tx.First(&bom, input.BomId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bom %d: %w", input.BomId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	if !bom.IsActive {
		return nil, fmt.Errorf("bom %s is not active", bom.Name)
	}
	if bom.CompanyId != input.CompanyId {
		return nil, fmt.Errorf("%w: bom %s is not in company %d", ErrCompanyMismatch, bom.Name, input.CompanyId)
	}
	if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
		return nil, err
	}
	var warehouseIds []int
	for _, id := range []*int{input.SourceWarehouseId, input.TargetWarehouseId, input.WipWarehouseId} {
		if id != nil {
			warehouseIds = append(warehouseIds, *id)
		}
	}
	if err := utils.MassValidateResourceIds(tx, []utils.ValidationRule[int]{
		{Model: &Warehouse{}, Ids: warehouseIds, Message: "warehouse not found"},
	}); err != nil {
		return nil, err
	}
	if err := validateCompanyWarehouses(tx, input.CompanyId, warehouseIds); err != nil {
		return nil, err
	}
	var lines []*BomItem
	if err := tx.Where("bom_id = ?", bom.ID).Order("sequence, id").Find(&lines).Error; err != nil {
		return nil, err
	}

	order := WorkOrder{
		CompanyId:         input.CompanyId,
		ItemId:            bom.ItemId,
		BomId:             bom.ID,
		Qty:               utils.RoundQty(input.Qty),
		Status:            WorkOrderStatusDraft,
		PlannedStartDate:  input.PlannedStartDate,
		PlannedEndDate:    input.PlannedEndDate,
		SourceWarehouseId: input.SourceWarehouseId,
		TargetWarehouseId: input.TargetWarehouseId,
		WipWarehouseId:    input.WipWarehouseId,
		SalesOrderId:      input.SalesOrderId,
		ProductionPlanId:  input.ProductionPlanId,
	}
	byItem := make(map[int]*WorkOrderItem)
	for _, line := range lines {
		required := line.Qty.Div(bom.Quantity).Mul(order.Qty)
		if existing, ok := byItem[line.ItemId]; ok {
			existing.RequiredQty = utils.RoundQty(existing.RequiredQty.Add(required))
			continue
		}
		sourceWarehouseId := line.SourceWarehouseId
		if sourceWarehouseId == nil {
			sourceWarehouseId = input.SourceWarehouseId
		}
		item := &WorkOrderItem{
			ItemId:            line.ItemId,
			RequiredQty:       utils.RoundQty(required),
			SourceWarehouseId: sourceWarehouseId,
		}
		byItem[line.ItemId] = item
		order.Items = append(order.Items, item)
	}

	name, err := NextName(tx, NamingEntityWorkOrder, input.CompanyId)
	if err != nil {
		return nil, err
	}
	order.Name = name
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}
	if err := createHistory(tx, HistoryActionCreate, order.ID, "work_orders", nil, order, "Created work order "+order.Name); err != nil {
		return nil, err
	}
	return &order, nil
}

// lockWorkOrder reads the header FOR UPDATE; every mutating work order action goes through it.
func lockWorkOrder(tx *gorm.DB, id int) (*WorkOrder, error) {
	var order WorkOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("work order %d: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &order, nil
}

// runWorkOrderAction wraps fn with the work order's distributed lock and one transaction.
func runWorkOrderAction(ctx context.Context, workOrderId int, funcName string, fn func(tx *gorm.DB) error) error {
	release, err := utils.ObtainResourceLock(ctx, "work_order", workOrderId, "models", funcName)
	if err != nil {
		return err
	}
	defer release()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(fn)
	if err != nil {
		config.LogError(config.GetLogger(), "models", funcName, "work order action failed", workOrderId, err)
	}
	return err
}

func logWorkOrderTransition(order *WorkOrder, from WorkOrderStatus, action string) {
	if !config.MfgDebugLogEnabled() {
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"work_order": order.Name,
		"action":     action,
		"from":       from,
		"to":         order.Status,
	}).Info("work order transition")
}

type StartWorkOrderResult struct {
	WorkOrderId     int             `json:"work_order_id"`
	Status          WorkOrderStatus `json:"status"`
	ActualStartDate time.Time       `json:"actual_start_date"`
}

func StartWorkOrder(ctx context.Context, id int) (*StartWorkOrderResult, error) {
	var result StartWorkOrderResult
	err := runWorkOrderAction(ctx, id, "StartWorkOrder", func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, id)
		if err != nil {
			return err
		}
		if order.Status != WorkOrderStatusDraft {
			return invalidStatusError("work order "+order.Name, order.Status, string(WorkOrderStatusDraft))
		}
		before := *order
		now := time.Now().UTC()
		order.Status = WorkOrderStatusNotStarted
		order.ActualStartDate = &now
		if err := tx.Model(&WorkOrder{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":            order.Status,
			"actual_start_date": &now,
		}).Error; err != nil {
			return err
		}
		logWorkOrderTransition(order, before.Status, HistoryActionStart)
		result = StartWorkOrderResult{WorkOrderId: id, Status: order.Status, ActualStartDate: now}
		return createHistory(tx, HistoryActionStart, id, "work_orders", before, order, "Started "+order.Name)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func GetWorkOrder(ctx context.Context, id int) (*WorkOrder, error) {
	db := config.GetDB()
	var order WorkOrder
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("JobCards", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

type WorkOrderFilter struct {
	CompanyId        *int             `json:"company_id"`
	Status           *WorkOrderStatus `json:"status"`
	ItemId           *int             `json:"item_id"`
	ProductionPlanId *int             `json:"production_plan_id"`
	Limit            int              `json:"limit"`
	Offset           int              `json:"offset"`
}

func ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]*WorkOrder, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&WorkOrder{})
	if filter.CompanyId != nil {
		q = q.Where("company_id = ?", *filter.CompanyId)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.ItemId != nil {
		q = q.Where("item_id = ?", *filter.ItemId)
	}
	if filter.ProductionPlanId != nil {
		q = q.Where("production_plan_id = ?", *filter.ProductionPlanId)
	}
	var orders []*WorkOrder
	if err := q.Order("id DESC").Limit(pageLimit(filter.Limit)).Offset(filter.Offset).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
