package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransferMaterialsInput struct {
	WorkOrderId int                    `json:"work_order_id" validate:"required"`
	Items       []TransferMaterialLine `json:"items" validate:"required,min=1,dive"`
	PostingDate *time.Time             `json:"posting_date"`
}

type TransferMaterialLine struct {
	ItemId      int             `json:"item_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	WarehouseId *int            `json:"warehouse_id"`
}

type TransferMaterialsResult struct {
	WorkOrderId      int `json:"work_order_id"`
	ItemsTransferred int `json:"items_transferred"`
	LedgerEntryCount int `json:"ledger_entry_count"`
	GlEntryCount     int `json:"gl_entry_count"`
}

// TransferWorkOrderMaterials moves components from their source warehouses into the order's WIP warehouse.
// The whole request is rejected if any line would take an item past its required qty.
func TransferWorkOrderMaterials(ctx context.Context, input *TransferMaterialsInput) (*TransferMaterialsResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var result TransferMaterialsResult
	err := runWorkOrderAction(ctx, input.WorkOrderId, "TransferWorkOrderMaterials", func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, input.WorkOrderId)
		if err != nil {
			return err
		}
		if order.Status != WorkOrderStatusNotStarted && order.Status != WorkOrderStatusInProcess {
			return invalidStatusError("work order "+order.Name, order.Status, "not_started or in_process")
		}
		if order.WipWarehouseId == nil {
			return fmt.Errorf("work order %s has no WIP warehouse", order.Name)
		}
		wipWarehouseId := *order.WipWarehouseId

		var items []*WorkOrderItem
		if err := tx.Where("work_order_id = ?", order.ID).Order("id").Find(&items).Error; err != nil {
			return err
		}
		byItem := make(map[int]*WorkOrderItem, len(items))
		for _, item := range items {
			byItem[item.ItemId] = item
		}

		pending := make(map[int]decimal.Decimal)
		var movements []StockLedgerInput
		var sourceWarehouseIds []int
		for i, line := range input.Items {
			if !line.Qty.IsPositive() {
				return fmt.Errorf("items[%d]: qty must be > 0", i)
			}
			woItem, ok := byItem[line.ItemId]
			if !ok {
				return fmt.Errorf("items[%d]: item %d is not in work order %s", i, line.ItemId, order.Name)
			}
			qty := utils.RoundQty(line.Qty)
			already := woItem.TransferredQty.Add(pending[line.ItemId])
			if already.Add(qty).GreaterThan(woItem.RequiredQty) {
				return fmt.Errorf("%w: items[%d] item %d: transferring %s with %s already transferred, required %s",
					ErrTransferExceedsRequired, i, line.ItemId, qty.String(), already.String(), woItem.RequiredQty.String())
			}

			sourceWarehouseId := line.WarehouseId
			if sourceWarehouseId == nil {
				sourceWarehouseId = woItem.SourceWarehouseId
			}
			if sourceWarehouseId == nil {
				sourceWarehouseId = order.SourceWarehouseId
			}
			if sourceWarehouseId == nil {
				return fmt.Errorf("items[%d]: no source warehouse on the request, the order item or the order", i)
			}
			if *sourceWarehouseId == wipWarehouseId {
				return fmt.Errorf("items[%d]: source warehouse is the WIP warehouse", i)
			}
			sourceWarehouseIds = append(sourceWarehouseIds, *sourceWarehouseId)

			rate, err := GetValuationRate(tx, line.ItemId, *sourceWarehouseId)
			if err != nil {
				return err
			}
			movements = append(movements,
				StockLedgerInput{ItemId: line.ItemId, WarehouseId: *sourceWarehouseId, ActualQty: qty.Neg()},
				StockLedgerInput{ItemId: line.ItemId, WarehouseId: wipWarehouseId, ActualQty: qty, IncomingRate: rate},
			)
			pending[line.ItemId] = pending[line.ItemId].Add(qty)
		}
		if err := utils.MassValidateResourceIds(tx, []utils.ValidationRule[int]{
			{Model: &Warehouse{}, Ids: sourceWarehouseIds, Message: "source warehouse not found"},
		}); err != nil {
			return err
		}
		if err := validateCompanyWarehouses(tx, order.CompanyId, sourceWarehouseIds); err != nil {
			return err
		}

		posted, err := postStockAndGl(tx, order.CompanyId, VoucherTypeWorkOrder, order.ID, postingDateOrToday(input.PostingDate), movements)
		if err != nil {
			return err
		}

		before := *order
		total := decimal.Zero
		for _, item := range items {
			qty, ok := pending[item.ItemId]
			if !ok {
				continue
			}
			item.TransferredQty = utils.RoundQty(item.TransferredQty.Add(qty))
			if err := tx.Model(&WorkOrderItem{}).Where("id = ?", item.ID).
				Update("transferred_qty", item.TransferredQty).Error; err != nil {
				return err
			}
			total = total.Add(qty)
		}
		order.MaterialTransferredQty = utils.RoundQty(order.MaterialTransferredQty.Add(total))
		if order.Status == WorkOrderStatusNotStarted {
			order.Status = WorkOrderStatusInProcess
		}
		if err := tx.Model(&WorkOrder{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"material_transferred_qty": order.MaterialTransferredQty,
			"status":                   order.Status,
		}).Error; err != nil {
			return err
		}
		logWorkOrderTransition(order, before.Status, HistoryActionTransfer)

		result = TransferMaterialsResult{
			WorkOrderId:      order.ID,
			ItemsTransferred: len(pending),
			LedgerEntryCount: len(posted.Entries),
			GlEntryCount:     posted.GlEntryCount,
		}
		return createHistory(tx, HistoryActionTransfer, order.ID, "work_orders", before, order,
			fmt.Sprintf("Transferred %d items for %s", len(pending), order.Name))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type CompleteWorkOrderInput struct {
	WorkOrderId int              `json:"work_order_id" validate:"required"`
	ProducedQty *decimal.Decimal `json:"produced_qty"`
	PostingDate *time.Time       `json:"posting_date"`
}

type CompleteWorkOrderResult struct {
	WorkOrderId      int             `json:"work_order_id"`
	Status           WorkOrderStatus `json:"status"`
	ProducedQty      decimal.Decimal `json:"produced_qty"`
	RmCost           decimal.Decimal `json:"rm_cost"`
	OperatingCost    decimal.Decimal `json:"operating_cost"`
	ProductionCost   decimal.Decimal `json:"production_cost"`
	FgRate           decimal.Decimal `json:"fg_rate"`
	LedgerEntryCount int             `json:"ledger_entry_count"`
	GlEntryCount     int             `json:"gl_entry_count"`
}

// CompleteWorkOrder receives the finished goods at the rolled-up production cost and consumes
// everything transferred into WIP. Postings use the completion voucher so they never mix with transfers.
func CompleteWorkOrder(ctx context.Context, input *CompleteWorkOrderInput) (*CompleteWorkOrderResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var result CompleteWorkOrderResult
	err := runWorkOrderAction(ctx, input.WorkOrderId, "CompleteWorkOrder", func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, input.WorkOrderId)
		if err != nil {
			return err
		}
		if order.Status != WorkOrderStatusInProcess {
			return invalidStatusError("work order "+order.Name, order.Status, string(WorkOrderStatusInProcess))
		}
		produced := utils.RoundQty(utils.DereferencePtr(input.ProducedQty, order.Qty))
		if !produced.IsPositive() {
			return errors.New("produced_qty must be > 0")
		}
		if order.TargetWarehouseId == nil {
			return fmt.Errorf("work order %s has no target warehouse", order.Name)
		}

		var items []*WorkOrderItem
		if err := tx.Where("work_order_id = ?", order.ID).Order("id").Find(&items).Error; err != nil {
			return err
		}
		rmCost := decimal.Zero
		var consumption []StockLedgerInput
		for _, item := range items {
			if !item.TransferredQty.IsPositive() {
				continue
			}
			if order.WipWarehouseId == nil {
				return fmt.Errorf("work order %s has transferred material but no WIP warehouse", order.Name)
			}
			rate, err := GetValuationRate(tx, item.ItemId, *order.WipWarehouseId)
			if err != nil {
				return err
			}
			rmCost = rmCost.Add(utils.RoundCurrency(item.TransferredQty.Mul(rate)))
			consumption = append(consumption, StockLedgerInput{
				ItemId:      item.ItemId,
				WarehouseId: *order.WipWarehouseId,
				ActualQty:   item.TransferredQty.Neg(),
			})
		}
		rmCost = utils.RoundCurrency(rmCost)

		operatingCost, err := completedJobCardCost(tx, order.ID)
		if err != nil {
			return err
		}
		productionCost := utils.RoundCurrency(rmCost.Add(operatingCost))
		fgRate := utils.RoundCurrency(productionCost.Div(produced))

		movements := append([]StockLedgerInput{{
			ItemId:       order.ItemId,
			WarehouseId:  *order.TargetWarehouseId,
			ActualQty:    produced,
			IncomingRate: fgRate,
		}}, consumption...)
		posted, err := postStockAndGl(tx, order.CompanyId, VoucherTypeWorkOrderCompletion, order.ID, postingDateOrToday(input.PostingDate), movements)
		if err != nil {
			return err
		}

		before := *order
		now := time.Now().UTC()
		order.Status = WorkOrderStatusCompleted
		order.ProducedQty = produced
		order.ActualEndDate = &now
		if err := tx.Model(&WorkOrderItem{}).Where("work_order_id = ?", order.ID).
			Update("consumed_qty", gorm.Expr("transferred_qty")).Error; err != nil {
			return err
		}
		if err := tx.Model(&WorkOrder{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"status":          order.Status,
			"produced_qty":    order.ProducedQty,
			"actual_end_date": &now,
		}).Error; err != nil {
			return err
		}
		logWorkOrderTransition(order, before.Status, HistoryActionComplete)

		result = CompleteWorkOrderResult{
			WorkOrderId:      order.ID,
			Status:           order.Status,
			ProducedQty:      produced,
			RmCost:           rmCost,
			OperatingCost:    operatingCost,
			ProductionCost:   productionCost,
			FgRate:           fgRate,
			LedgerEntryCount: len(posted.Entries),
			GlEntryCount:     posted.GlEntryCount,
		}
		if err := recordManufacturingEvent(tx, order.CompanyId, EventWorkOrderCompleted, "work_orders", order.ID, result); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionComplete, order.ID, "work_orders", before, order, "Completed "+order.Name)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// completedJobCardCost sums minutes/60 * hour rate over completed job cards that have a workstation.
func completedJobCardCost(tx *gorm.DB, workOrderId int) (decimal.Decimal, error) {
	var cards []*JobCard
	if err := tx.Where("work_order_id = ? AND status = ?", workOrderId, JobCardStatusCompleted).
		Order("id").Find(&cards).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, card := range cards {
		if card.WorkstationId == nil || !card.TotalTimeInMinutes.IsPositive() {
			continue
		}
		workstation, err := getWorkstation(tx, *card.WorkstationId)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(utils.HourlyCost(card.TotalTimeInMinutes, workstation.HourRate))
	}
	return utils.RoundCurrency(total), nil
}

type CancelWorkOrderInput struct {
	WorkOrderId int        `json:"work_order_id" validate:"required"`
	Reason      string     `json:"reason" validate:"max=255"`
	PostingDate *time.Time `json:"posting_date"`
}

type CancelWorkOrderResult struct {
	WorkOrderId           int             `json:"work_order_id"`
	Status                WorkOrderStatus `json:"status"`
	ReversedLedgerEntries int             `json:"reversed_ledger_entries"`
	ReversedGlEntries     int             `json:"reversed_gl_entries"`
	JobCardsCancelled     int             `json:"job_cards_cancelled"`
	Message               string          `json:"message,omitempty"`
}

// CancelWorkOrder reverses the transfer and completion postings (either may be absent)
// and cancels the order's open job cards.
func CancelWorkOrder(ctx context.Context, input *CancelWorkOrderInput) (*CancelWorkOrderResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var result CancelWorkOrderResult
	err := runWorkOrderAction(ctx, input.WorkOrderId, "CancelWorkOrder", func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, input.WorkOrderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return invalidStatusError("work order "+order.Name, order.Status, "draft, not_started or in_process")
		}
		reason := input.Reason
		if reason == "" {
			reason = "work order cancelled"
		}
		postingDate := postingDateOrToday(input.PostingDate)

		result.WorkOrderId = order.ID
		for _, voucherType := range []VoucherType{VoucherTypeWorkOrder, VoucherTypeWorkOrderCompletion} {
			sleCount, glCount, err := reverseStockAndGl(tx, order.CompanyId, voucherType, order.ID, postingDate, reason)
			if err != nil {
				return err
			}
			result.ReversedLedgerEntries += sleCount
			result.ReversedGlEntries += glCount
		}
		if result.ReversedLedgerEntries == 0 && result.ReversedGlEntries == 0 {
			result.Message = "no ledger postings to reverse"
		}

		res := tx.Model(&JobCard{}).
			Where("work_order_id = ? AND status IN ?", order.ID, []JobCardStatus{JobCardStatusOpen, JobCardStatusInProcess}).
			Update("status", JobCardStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		result.JobCardsCancelled = int(res.RowsAffected)

		before := *order
		order.Status = WorkOrderStatusCancelled
		if err := tx.Model(&WorkOrder{}).Where("id = ?", order.ID).Update("status", order.Status).Error; err != nil {
			return err
		}
		result.Status = order.Status
		logWorkOrderTransition(order, before.Status, HistoryActionCancel)

		if err := recordManufacturingEvent(tx, order.CompanyId, EventWorkOrderCancelled, "work_orders", order.ID, result); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCancel, order.ID, "work_orders", before, order, "Cancelled "+order.Name+": "+reason)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
