package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

func TestManufacturingStatusCounts(t *testing.T) {
	a := newAssembly(t)
	ws := a.workstation(t, "Paint booth", "45")
	paint := a.operation(t, "Paint", &ws.ID)

	draft := a.workOrder(t, "1")
	started := a.startedWorkOrder(t, "2")
	if _, err := models.CreateJobCard(a.ctx, &models.NewJobCard{WorkOrderId: started.WorkOrderId, OperationId: paint.ID}); err != nil {
		t.Fatalf("CreateJobCard: %v", err)
	}
	if _, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: draft.WorkOrderId}); err != nil {
		t.Fatalf("CancelWorkOrder: %v", err)
	}

	supplier := a.supplier(t, "Outsourced Assembly")
	sco, err := models.CreateSubcontractingOrder(a.ctx, &models.NewSubcontractingOrder{
		CompanyId:  a.company.ID,
		SupplierId: supplier.ID,
		BomId:      a.bomId,
		Qty:        dec("5"),
	})
	if err != nil {
		t.Fatalf("CreateSubcontractingOrder: %v", err)
	}
	if sco.Status != models.SubcontractingOrderStatusDraft || sco.ServiceItemId != a.product.ID {
		t.Fatalf("expected a draft order for the bom's item, got %+v", sco)
	}

	status, err := models.GetManufacturingStatus(a.ctx, &a.company.ID)
	if err != nil {
		t.Fatalf("GetManufacturingStatus: %v", err)
	}
	if status.TotalBoms != 1 || status.ActiveBoms != 1 {
		t.Fatalf("expected 1 active bom, got %d of %d", status.ActiveBoms, status.TotalBoms)
	}
	if status.TotalWorkOrders != 2 ||
		status.WorkOrdersByStatus[models.WorkOrderStatusCancelled] != 1 ||
		status.WorkOrdersByStatus[models.WorkOrderStatusNotStarted] != 1 {
		t.Fatalf("unexpected work order counts %+v", status.WorkOrdersByStatus)
	}
	if status.OpenJobCards != 1 || status.ActiveSubcontractingOrders != 1 {
		t.Fatalf("expected 1 open job card and 1 subcontracting order, got %+v", status)
	}
	if status.ActiveOperations != 1 || status.ActiveWorkstations != 1 {
		t.Fatalf("expected 1 operation and 1 workstation, got %+v", status)
	}

	other := 9999
	empty, err := models.GetManufacturingStatus(a.ctx, &other)
	if err != nil {
		t.Fatalf("GetManufacturingStatus for another company: %v", err)
	}
	if empty.TotalWorkOrders != 0 || empty.OpenJobCards != 0 {
		t.Fatalf("another company should see nothing, got %+v", empty)
	}
}

func TestReprocessOutboxRequeuesEvents(t *testing.T) {
	a := newAssembly(t)
	wo := a.workOrder(t, "1")

	if _, err := models.ReprocessOutbox(a.ctx, "work_orders", wo.WorkOrderId); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("nothing to requeue yet: expected ErrorRecordNotFound, got %v", err)
	}
	if _, err := models.CancelWorkOrder(a.ctx, &models.CancelWorkOrderInput{WorkOrderId: wo.WorkOrderId}); err != nil {
		t.Fatalf("CancelWorkOrder: %v", err)
	}
	status, err := models.ReprocessOutbox(a.ctx, "work_orders", wo.WorkOrderId)
	if err != nil {
		t.Fatalf("ReprocessOutbox: %v", err)
	}
	if status.PublishStatus != models.OutboxPublishStatusPending || status.PublishAttempts != 0 {
		t.Fatalf("expected a pending event with no attempts, got %+v", status)
	}
}
