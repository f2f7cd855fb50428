package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type assembly struct {
	*fixture
	product *models.Item
	frame   *models.Item
	motor   *models.Item
	bomId   int
}

// newAssembly stocks 100 frames at 5 and 50 motors at 10; one product takes 2 frames and 1 motor.
func newAssembly(t *testing.T) *assembly {
	t.Helper()
	f := setupManufacturing(t)
	a := &assembly{
		fixture: f,
		product: f.item(t, "SCOOTER"),
		frame:   f.item(t, "FRAME"),
		motor:   f.item(t, "MOTOR"),
	}
	a.bomId = f.bom(t, a.product.ID, "1", leaf(a.frame.ID, "2", "5"), leaf(a.motor.ID, "1", "10")).BomId
	f.receive(t, f.stores.ID, a.frame.ID, "100", "5")
	f.receive(t, f.stores.ID, a.motor.ID, "50", "10")
	return a
}

func (a *assembly) workOrder(t *testing.T, qty string) *models.WorkOrderResult {
	t.Helper()
	result, err := models.CreateWorkOrder(a.ctx, &models.NewWorkOrder{
		CompanyId:         a.company.ID,
		BomId:             a.bomId,
		Qty:               dec(qty),
		SourceWarehouseId: &a.stores.ID,
		WipWarehouseId:    &a.wip.ID,
		TargetWarehouseId: &a.finished.ID,
	})
	if err != nil {
		t.Fatalf("CreateWorkOrder: %v", err)
	}
	return result
}

func (a *assembly) startedWorkOrder(t *testing.T, qty string) *models.WorkOrderResult {
	t.Helper()
	wo := a.workOrder(t, qty)
	if _, err := models.StartWorkOrder(a.ctx, wo.WorkOrderId); err != nil {
		t.Fatalf("StartWorkOrder: %v", err)
	}
	return wo
}

func (a *assembly) transfer(workOrderId int, lines ...models.TransferMaterialLine) (*models.TransferMaterialsResult, error) {
	return models.TransferWorkOrderMaterials(a.ctx, &models.TransferMaterialsInput{WorkOrderId: workOrderId, Items: lines})
}

func line(itemId int, qty string) models.TransferMaterialLine {
	return models.TransferMaterialLine{ItemId: itemId, Qty: dec(qty)}
}

func ledgerCount(t *testing.T, voucherType models.VoucherType, voucherId int) int {
	t.Helper()
	entries, err := models.GetStockLedgerEntries(config.GetDB(), voucherType, voucherId)
	if err != nil {
		t.Fatalf("GetStockLedgerEntries: %v", err)
	}
	return len(entries)
}

func assertGlBalanced(t *testing.T, voucherType models.VoucherType, voucherId int) {
	t.Helper()
	entries, err := models.GetGlEntries(config.GetDB(), voucherType, voucherId)
	if err != nil {
		t.Fatalf("GetGlEntries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected gl entries for %s %d", voucherType, voucherId)
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		t.Fatalf("%s %d: debit %s != credit %s", voucherType, voucherId, debit, credit)
	}
}

func TestWorkOrderLifecycle(t *testing.T) {
	a := newAssembly(t)
	ws := a.workstation(t, "Line 1", "60")
	assemble := a.operation(t, "Final assembly", &ws.ID)

	wo := a.workOrder(t, "10")
	if wo.Status != models.WorkOrderStatusDraft || wo.ItemCount != 2 {
		t.Fatalf("expected a draft order with 2 items, got %+v", wo)
	}
	order, err := models.GetWorkOrder(a.ctx, wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	assertDecimal(t, "frame required", order.Items[0].RequiredQty, "20")
	assertDecimal(t, "motor required", order.Items[1].RequiredQty, "10")

	started, err := models.StartWorkOrder(a.ctx, wo.WorkOrderId)
	if err != nil {
		t.Fatalf("StartWorkOrder: %v", err)
	}
	if started.Status != models.WorkOrderStatusNotStarted {
		t.Fatalf("expected not_started after start, got %s", started.Status)
	}

	transferred, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "20"), line(a.motor.ID, "10"))
	if err != nil {
		t.Fatalf("TransferWorkOrderMaterials: %v", err)
	}
	if transferred.LedgerEntryCount != 4 {
		t.Fatalf("expected an issue and a receipt per line, got %d ledger entries", transferred.LedgerEntryCount)
	}
	assertGlBalanced(t, models.VoucherTypeWorkOrder, wo.WorkOrderId)
	assertDecimal(t, "frames left in stores", a.balance(t, a.stores.ID, a.frame.ID), "80")
	assertDecimal(t, "frames in wip", a.balance(t, a.wip.ID, a.frame.ID), "20")

	card, err := models.CreateJobCard(a.ctx, &models.NewJobCard{WorkOrderId: wo.WorkOrderId, OperationId: assemble.ID})
	if err != nil {
		t.Fatalf("CreateJobCard: %v", err)
	}
	if card.WorkstationId == nil || *card.WorkstationId != ws.ID {
		t.Fatalf("job card should default to the operation's workstation")
	}
	assertDecimal(t, "job card qty", card.ForQuantity, "10")
	if _, err := models.StartJobCard(a.ctx, card.ID); err != nil {
		t.Fatalf("StartJobCard: %v", err)
	}
	if _, err := models.CompleteJobCard(a.ctx, &models.CompleteJobCardInput{JobCardId: card.ID, TimeInMinutes: dec("90")}); err != nil {
		t.Fatalf("CompleteJobCard: %v", err)
	}

	completed, err := models.CompleteWorkOrder(a.ctx, &models.CompleteWorkOrderInput{WorkOrderId: wo.WorkOrderId})
	if err != nil {
		t.Fatalf("CompleteWorkOrder: %v", err)
	}
	if completed.Status != models.WorkOrderStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	// 20 frames at 5 and 10 motors at 10; 90 minutes at 60/hour
	assertDecimal(t, "rm cost", completed.RmCost, "200")
	assertDecimal(t, "operating cost", completed.OperatingCost, "90")
	assertDecimal(t, "production cost", completed.ProductionCost, "290")
	assertDecimal(t, "fg rate", completed.FgRate, "29")
	if completed.LedgerEntryCount != 3 {
		t.Fatalf("expected 1 receipt and 2 consumptions, got %d", completed.LedgerEntryCount)
	}
	assertGlBalanced(t, models.VoucherTypeWorkOrderCompletion, wo.WorkOrderId)
	assertDecimal(t, "finished goods", a.balance(t, a.finished.ID, a.product.ID), "10")
	assertDecimal(t, "frames left in wip", a.balance(t, a.wip.ID, a.frame.ID), "0")
	assertDecimal(t, "motors left in wip", a.balance(t, a.wip.ID, a.motor.ID), "0")

	rate, err := models.GetValuationRate(config.GetDB(), a.product.ID, a.finished.ID)
	if err != nil {
		t.Fatalf("GetValuationRate: %v", err)
	}
	assertDecimal(t, "finished goods rate", rate, "29")

	status, err := models.GetOutboxStatus(a.ctx, "work_orders", wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetOutboxStatus: %v", err)
	}
	if status.EventType != models.EventWorkOrderCompleted || status.PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("expected a pending completion event, got %+v", status)
	}

	histories, err := models.GetHistories(a.ctx, "work_orders", wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetHistories: %v", err)
	}
	want := []string{models.HistoryActionCreate, models.HistoryActionStart, models.HistoryActionTransfer, models.HistoryActionComplete}
	if len(histories) != len(want) {
		t.Fatalf("expected %d history rows, got %d", len(want), len(histories))
	}
	for i, h := range histories {
		if h.ActionType != want[i] || h.UserName != "Test" {
			t.Fatalf("history %d: got %s by %s, want %s by Test", i, h.ActionType, h.UserName, want[i])
		}
	}

	if _, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: wo.WorkOrderId}); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("cancelling a completed order: expected ErrInvalidStatus, got %v", err)
	}
}

func TestWorkOrderStatusGates(t *testing.T) {
	a := newAssembly(t)
	wo := a.workOrder(t, "5")

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "1")); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("transfer on a draft order: expected ErrInvalidStatus, got %v", err)
	}
	if _, err := models.CreateJobCard(a.ctx, &models.NewJobCard{WorkOrderId: wo.WorkOrderId, OperationId: 1}); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("job card on a draft order: expected ErrInvalidStatus, got %v", err)
	}
	if _, err := models.StartWorkOrder(a.ctx, wo.WorkOrderId); err != nil {
		t.Fatalf("StartWorkOrder: %v", err)
	}
	if _, err := models.StartWorkOrder(a.ctx, wo.WorkOrderId); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("starting twice: expected ErrInvalidStatus, got %v", err)
	}
	if _, err := models.CompleteWorkOrder(a.ctx, &models.CompleteWorkOrderInput{WorkOrderId: wo.WorkOrderId}); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("completing before any transfer: expected ErrInvalidStatus, got %v", err)
	}
	if ledgerCount(t, models.VoucherTypeWorkOrderCompletion, wo.WorkOrderId) != 0 {
		t.Fatalf("a rejected completion must not post")
	}
}

func TestTransferCannotExceedRequiredQty(t *testing.T) {
	a := newAssembly(t)
	wo := a.startedWorkOrder(t, "10")

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "15")); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if n := ledgerCount(t, models.VoucherTypeWorkOrder, wo.WorkOrderId); n != 2 {
		t.Fatalf("expected 2 ledger entries after the first transfer, got %d", n)
	}

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "10")); !errors.Is(err, models.ErrTransferExceedsRequired) {
		t.Fatalf("expected ErrTransferExceedsRequired, got %v", err)
	}
	// repeated lines in one request count together
	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "3"), line(a.frame.ID, "3")); !errors.Is(err, models.ErrTransferExceedsRequired) {
		t.Fatalf("expected ErrTransferExceedsRequired for repeated lines, got %v", err)
	}
	// one good line does not save a request with a bad one
	if _, err := a.transfer(wo.WorkOrderId, line(a.motor.ID, "5"), line(a.frame.ID, "6")); !errors.Is(err, models.ErrTransferExceedsRequired) {
		t.Fatalf("expected ErrTransferExceedsRequired for a mixed request, got %v", err)
	}
	if n := ledgerCount(t, models.VoucherTypeWorkOrder, wo.WorkOrderId); n != 2 {
		t.Fatalf("rejected transfers must not post, got %d ledger entries", n)
	}
	assertDecimal(t, "motors in stores", a.balance(t, a.stores.ID, a.motor.ID), "50")

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "5")); err != nil {
		t.Fatalf("transfer up to the required qty: %v", err)
	}
	order, err := models.GetWorkOrder(a.ctx, wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	assertDecimal(t, "frames transferred", order.Items[0].TransferredQty, "20")
	assertDecimal(t, "order transferred total", order.MaterialTransferredQty, "20")
	if order.Status != models.WorkOrderStatusInProcess {
		t.Fatalf("expected in_process, got %s", order.Status)
	}

	if _, err := a.transfer(wo.WorkOrderId, line(a.product.ID, "1")); err == nil {
		t.Fatalf("expected an error transferring an item that is not on the order")
	}
}

func TestTransferFailsOnInsufficientStock(t *testing.T) {
	a := newAssembly(t)
	wo := a.startedWorkOrder(t, "60")

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "120")); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if n := ledgerCount(t, models.VoucherTypeWorkOrder, wo.WorkOrderId); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
	order, err := models.GetWorkOrder(a.ctx, wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if order.Status != models.WorkOrderStatusNotStarted {
		t.Fatalf("a failed transfer must not move the order, got %s", order.Status)
	}
	assertDecimal(t, "frames transferred", order.Items[0].TransferredQty, "0")
}

func TestTransferRejectsWipAsSource(t *testing.T) {
	a := newAssembly(t)
	result, err := models.CreateWorkOrder(a.ctx, &models.NewWorkOrder{
		CompanyId:         a.company.ID,
		BomId:             a.bomId,
		Qty:               dec("1"),
		SourceWarehouseId: &a.wip.ID,
		WipWarehouseId:    &a.wip.ID,
	})
	if err != nil {
		t.Fatalf("CreateWorkOrder: %v", err)
	}
	if _, err := models.StartWorkOrder(a.ctx, result.WorkOrderId); err != nil {
		t.Fatalf("StartWorkOrder: %v", err)
	}
	if _, err := a.transfer(result.WorkOrderId, line(a.frame.ID, "1")); err == nil {
		t.Fatalf("expected an error when the source is the WIP warehouse")
	}
	override := line(a.frame.ID, "1")
	override.WarehouseId = &a.stores.ID
	if _, err := a.transfer(result.WorkOrderId, override); err != nil {
		t.Fatalf("a line-level source warehouse should win: %v", err)
	}
}

func TestCancelDraftWorkOrder(t *testing.T) {
	a := newAssembly(t)
	wo := a.workOrder(t, "3")

	result, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: wo.WorkOrderId, Reason: "customer withdrew"})
	if err != nil {
		t.Fatalf("CancelWorkOrder: %v", err)
	}
	if result.Status != models.WorkOrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if result.Message != "no ledger postings to reverse" || result.ReversedLedgerEntries != 0 {
		t.Fatalf("unexpected result for a draft cancel: %+v", result)
	}
	if _, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: wo.WorkOrderId}); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("cancelling twice: expected ErrInvalidStatus, got %v", err)
	}
	status, err := models.GetOutboxStatus(a.ctx, "work_orders", wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetOutboxStatus: %v", err)
	}
	if status.EventType != models.EventWorkOrderCancelled {
		t.Fatalf("expected a cancellation event, got %s", status.EventType)
	}
}

func TestCancelReversesTransfersOnce(t *testing.T) {
	a := newAssembly(t)
	op := a.operation(t, "Weld", nil)
	wo := a.startedWorkOrder(t, "10")

	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "20"), line(a.motor.ID, "4")); err != nil {
		t.Fatalf("TransferWorkOrderMaterials: %v", err)
	}
	if _, err := models.CreateJobCard(a.ctx, &models.NewJobCard{WorkOrderId: wo.WorkOrderId, OperationId: op.ID}); err != nil {
		t.Fatalf("CreateJobCard: %v", err)
	}

	result, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: wo.WorkOrderId})
	if err != nil {
		t.Fatalf("CancelWorkOrder: %v", err)
	}
	if result.ReversedLedgerEntries != 4 || result.ReversedGlEntries == 0 {
		t.Fatalf("expected 4 reversed ledger entries and some gl reversals, got %+v", result)
	}
	if result.JobCardsCancelled != 1 || result.Message != "" {
		t.Fatalf("expected one cancelled job card and no message, got %+v", result)
	}
	assertDecimal(t, "frames back in stores", a.balance(t, a.stores.ID, a.frame.ID), "100")
	assertDecimal(t, "motors back in stores", a.balance(t, a.stores.ID, a.motor.ID), "50")
	assertDecimal(t, "frames in wip", a.balance(t, a.wip.ID, a.frame.ID), "0")
	assertGlBalanced(t, models.VoucherTypeWorkOrder, wo.WorkOrderId)

	rate, err := models.GetValuationRate(config.GetDB(), a.frame.ID, a.stores.ID)
	if err != nil {
		t.Fatalf("GetValuationRate: %v", err)
	}
	assertDecimal(t, "frame rate after reversal", rate, "5")

	err = config.GetDB().WithContext(a.ctx).Transaction(func(tx *gorm.DB) error {
		sles, err := models.ReverseStockLedgerEntries(tx, models.VoucherTypeWorkOrder, wo.WorkOrderId, a.company.CreatedAt, "again")
		if err != nil {
			return err
		}
		gls, err := models.ReverseGlEntries(tx, models.VoucherTypeWorkOrder, wo.WorkOrderId, a.company.CreatedAt, "again")
		if err != nil {
			return err
		}
		if sles != 0 || gls != 0 {
			t.Errorf("second reversal should be a no-op, reversed %d stock and %d gl entries", sles, gls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second reversal: %v", err)
	}
	if n := ledgerCount(t, models.VoucherTypeWorkOrder, wo.WorkOrderId); n != 8 {
		t.Fatalf("expected 4 originals and 4 reversals, got %d entries", n)
	}
}

func TestLedgerEntriesAreAppendOnly(t *testing.T) {
	a := newAssembly(t)
	db := config.GetDB().WithContext(a.ctx)

	var entry models.StockLedgerEntry
	if err := db.Where("item_id = ?", a.frame.ID).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if err := db.Delete(&entry).Error; !errors.Is(err, models.ErrLedgerImmutable) {
		t.Fatalf("deleting a stock ledger entry: expected ErrLedgerImmutable, got %v", err)
	}
	if err := db.Model(&entry).Update("actual_qty", dec("1")).Error; !errors.Is(err, models.ErrLedgerImmutable) {
		t.Fatalf("editing a stock ledger entry: expected ErrLedgerImmutable, got %v", err)
	}
}

func TestWorkOrderMergesRepeatedBomItems(t *testing.T) {
	f := setupManufacturing(t)
	kit, bolt := f.item(t, "KIT"), f.item(t, "BOLT")
	bom := f.bom(t, kit.ID, "2", leaf(bolt.ID, "1", "1"), leaf(bolt.ID, "3", "1"))

	wo, err := models.CreateWorkOrder(f.ctx, &models.NewWorkOrder{CompanyId: f.company.ID, BomId: bom.BomId, Qty: dec("5")})
	if err != nil {
		t.Fatalf("CreateWorkOrder: %v", err)
	}
	if wo.ItemCount != 1 {
		t.Fatalf("expected the repeated item merged into one line, got %d", wo.ItemCount)
	}
	order, err := models.GetWorkOrder(f.ctx, wo.WorkOrderId)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	// (1 + 3) / 2 * 5
	assertDecimal(t, "bolts required", order.Items[0].RequiredQty, "10")
}

func TestCompleteWorkOrderWithPartialOutput(t *testing.T) {
	a := newAssembly(t)
	wo := a.startedWorkOrder(t, "4")
	if _, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "8"), line(a.motor.ID, "4")); err != nil {
		t.Fatalf("TransferWorkOrderMaterials: %v", err)
	}

	completed, err := models.CompleteWorkOrder(a.ctx, &models.CompleteWorkOrderInput{WorkOrderId: wo.WorkOrderId, ProducedQty: decPtr("3")})
	if err != nil {
		t.Fatalf("CompleteWorkOrder: %v", err)
	}
	// 8*5 + 4*10 = 80 spread over 3 units
	assertDecimal(t, "production cost", completed.ProductionCost, "80")
	assertDecimal(t, "fg rate", completed.FgRate, "26.67")
	assertDecimal(t, "finished goods", a.balance(t, a.finished.ID, a.product.ID), "3")
	assertGlBalanced(t, models.VoucherTypeWorkOrderCompletion, wo.WorkOrderId)
}

func TestWorkOrderRejectsOtherCompanyRecords(t *testing.T) {
	a := newAssembly(t)
	other, err := models.CreateCompany(a.ctx, &models.NewCompany{Name: "Other Works"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	otherStores, err := models.CreateWarehouse(a.ctx, &models.NewWarehouse{CompanyId: other.ID, Name: "Other Stores"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}

	_, err = models.CreateWorkOrder(a.ctx, &models.NewWorkOrder{CompanyId: other.ID, BomId: a.bomId, Qty: dec("1")})
	if !errors.Is(err, models.ErrCompanyMismatch) {
		t.Fatalf("expected ErrCompanyMismatch for another company's bom, got %v", err)
	}
	_, err = models.CreateWorkOrder(a.ctx, &models.NewWorkOrder{
		CompanyId:         a.company.ID,
		BomId:             a.bomId,
		Qty:               dec("1"),
		SourceWarehouseId: &a.stores.ID,
		WipWarehouseId:    &otherStores.ID,
	})
	if !errors.Is(err, models.ErrCompanyMismatch) {
		t.Fatalf("expected ErrCompanyMismatch for another company's warehouse, got %v", err)
	}

	wo := a.startedWorkOrder(t, "1")
	foreign := line(a.frame.ID, "1")
	foreign.WarehouseId = &otherStores.ID
	if _, err := a.transfer(wo.WorkOrderId, foreign); !errors.Is(err, models.ErrCompanyMismatch) {
		t.Fatalf("expected ErrCompanyMismatch transferring from another company's warehouse, got %v", err)
	}
	if n := ledgerCount(t, models.VoucherTypeWorkOrder, wo.WorkOrderId); n != 0 {
		t.Fatalf("rejected transfer must not post, got %d ledger entries", n)
	}
}

func TestTransferCountsDistinctItems(t *testing.T) {
	a := newAssembly(t)
	wo := a.startedWorkOrder(t, "10")

	result, err := a.transfer(wo.WorkOrderId, line(a.frame.ID, "4"), line(a.frame.ID, "6"), line(a.motor.ID, "10"))
	if err != nil {
		t.Fatalf("TransferWorkOrderMaterials: %v", err)
	}
	if result.ItemsTransferred != 2 {
		t.Fatalf("expected 2 distinct items transferred, got %d", result.ItemsTransferred)
	}
	if result.LedgerEntryCount != 6 {
		t.Fatalf("expected an out and in entry per line, got %d", result.LedgerEntryCount)
	}
}
