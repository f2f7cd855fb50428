package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

type planScenario struct {
	*fixture
	gadget *models.Item
	widget *models.Item
	bomId  int
	order  *models.PurchaseOrder
}

// newPlanScenario: a gadget takes one widget; 40 widgets are in stores and 20 more are on order.
func newPlanScenario(t *testing.T) *planScenario {
	t.Helper()
	f := setupManufacturing(t)
	s := &planScenario{fixture: f, gadget: f.item(t, "GADGET"), widget: f.item(t, "WIDGET")}
	s.bomId = f.bom(t, s.gadget.ID, "1", leaf(s.widget.ID, "1", "2")).BomId
	f.receive(t, f.stores.ID, s.widget.ID, "40", "2")

	supplier := f.supplier(t, "Widget Works")
	order, err := models.CreatePurchaseOrder(f.ctx, &models.NewPurchaseOrder{
		CompanyId:   f.company.ID,
		SupplierId:  supplier.ID,
		WarehouseId: &f.stores.ID,
		Details:     []models.NewPurchaseOrderDetail{{ItemId: s.widget.ID, Qty: dec("20"), Rate: dec("2")}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	s.order = order
	return s
}

func (s *planScenario) plan(t *testing.T, items ...models.NewProductionPlanItem) *models.ProductionPlan {
	t.Helper()
	plan, err := models.CreateProductionPlan(s.ctx, &models.NewProductionPlan{CompanyId: s.company.ID, Items: items})
	if err != nil {
		t.Fatalf("CreateProductionPlan: %v", err)
	}
	return plan
}

func (s *planScenario) gadgets(qty string) models.NewProductionPlanItem {
	return models.NewProductionPlanItem{ItemId: s.gadget.ID, BomId: s.bomId, PlannedQty: dec(qty), WarehouseId: &s.stores.ID}
}

func onlyMaterial(t *testing.T, materials []*models.ProductionPlanMaterial) *models.ProductionPlanMaterial {
	t.Helper()
	if len(materials) != 1 {
		t.Fatalf("expected exactly one material row, got %d", len(materials))
	}
	return materials[0]
}

func TestRunMrpComputesShortfall(t *testing.T) {
	s := newPlanScenario(t)
	plan := s.plan(t, s.gadgets("100"))
	if plan.Status != models.ProductionPlanStatusDraft {
		t.Fatalf("a new plan should be draft, got %s", plan.Status)
	}
	if !plan.PlanningPeriodEnd.Equal(plan.PlanningPeriodStart.AddDate(0, 0, 30)) {
		t.Fatalf("expected a 30 day horizon, got %s to %s", plan.PlanningPeriodStart, plan.PlanningPeriodEnd)
	}

	result, err := models.RunMrp(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("RunMrp: %v", err)
	}
	if result.Status != models.ProductionPlanStatusSubmitted || result.MaterialCount != 1 || result.TotalShortfallItems != 1 {
		t.Fatalf("unexpected mrp result %+v", result)
	}

	stored, err := models.GetProductionPlan(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetProductionPlan: %v", err)
	}
	m := onlyMaterial(t, stored.Materials)
	if m.ItemId != s.widget.ID || m.WarehouseId == nil || *m.WarehouseId != s.stores.ID {
		t.Fatalf("unexpected material row %+v", m)
	}
	assertDecimal(t, "required", m.RequiredQty, "100")
	assertDecimal(t, "available", m.AvailableQty, "40")
	assertDecimal(t, "on order", m.OnOrderQty, "20")
	assertDecimal(t, "shortfall", m.ShortfallQty, "40")

	if _, err := models.RunMrp(s.ctx, plan.ID); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("a submitted plan cannot be planned again: expected ErrInvalidStatus, got %v", err)
	}

	status, err := models.GetOutboxStatus(s.ctx, "production_plans", plan.ID)
	if err != nil {
		t.Fatalf("GetOutboxStatus: %v", err)
	}
	if status.EventType != models.EventProductionPlanMrpCompleted {
		t.Fatalf("expected an mrp event, got %s", status.EventType)
	}
}

func TestRebuildPlanMaterialsReplacesRows(t *testing.T) {
	s := newPlanScenario(t)
	plan := s.plan(t, s.gadgets("100"))

	first, err := models.RebuildPlanMaterials(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	assertDecimal(t, "first shortfall", onlyMaterial(t, first).ShortfallQty, "40")

	second, err := models.RebuildPlanMaterials(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	assertDecimal(t, "second shortfall", onlyMaterial(t, second).ShortfallQty, "40")

	stored, err := models.GetProductionPlan(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetProductionPlan: %v", err)
	}
	assertDecimal(t, "stored shortfall", onlyMaterial(t, stored.Materials).ShortfallQty, "40")
}

func TestMrpNetsPurchaseOrderProgress(t *testing.T) {
	s := newPlanScenario(t)
	plan := s.plan(t, s.gadgets("100"))

	// receiving moves qty from on order to available; the shortfall does not change
	if _, err := models.ReceivePurchaseOrder(s.ctx, &models.PurchaseOrderReceipt{
		PurchaseOrderId: s.order.ID,
		Items:           []models.PurchaseOrderReceiptLine{{PurchaseOrderDetailId: s.order.Details[0].ID, Qty: dec("5")}},
	}); err != nil {
		t.Fatalf("ReceivePurchaseOrder: %v", err)
	}
	materials, err := models.RebuildPlanMaterials(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("RebuildPlanMaterials: %v", err)
	}
	m := onlyMaterial(t, materials)
	assertDecimal(t, "available after receipt", m.AvailableQty, "45")
	assertDecimal(t, "on order after receipt", m.OnOrderQty, "15")
	assertDecimal(t, "shortfall after receipt", m.ShortfallQty, "40")

	if _, err := models.SetPurchaseOrderStatus(s.ctx, s.order.ID, models.PurchaseOrderStatusCancelled); err != nil {
		t.Fatalf("SetPurchaseOrderStatus: %v", err)
	}
	materials, err = models.RebuildPlanMaterials(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("RebuildPlanMaterials: %v", err)
	}
	m = onlyMaterial(t, materials)
	assertDecimal(t, "on order after cancel", m.OnOrderQty, "0")
	assertDecimal(t, "shortfall after cancel", m.ShortfallQty, "55")
}

func TestRunMrpAggregatesAcrossPlanItems(t *testing.T) {
	s := newPlanScenario(t)
	bracket := s.item(t, "BRACKET")
	bracketBom := s.bom(t, bracket.ID, "2", leaf(s.widget.ID, "3", "2"))

	plan := s.plan(t,
		s.gadgets("10"),
		models.NewProductionPlanItem{ItemId: bracket.ID, BomId: bracketBom.BomId, PlannedQty: dec("4"), WarehouseId: &s.stores.ID},
		// no warehouse: netted against stock in every warehouse
		models.NewProductionPlanItem{ItemId: s.gadget.ID, BomId: s.bomId, PlannedQty: dec("5")},
	)
	if _, err := models.RunMrp(s.ctx, plan.ID); err != nil {
		t.Fatalf("RunMrp: %v", err)
	}
	stored, err := models.GetProductionPlan(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetProductionPlan: %v", err)
	}
	if len(stored.Materials) != 2 {
		t.Fatalf("expected one row per (material, warehouse), got %d", len(stored.Materials))
	}
	inStores, anywhere := stored.Materials[0], stored.Materials[1]
	if inStores.WarehouseId == nil || anywhere.WarehouseId != nil {
		t.Fatalf("expected the warehouse row first, got %+v and %+v", inStores, anywhere)
	}
	// 10 gadgets plus 3/2*4 for the brackets
	assertDecimal(t, "required in stores", inStores.RequiredQty, "16")
	assertDecimal(t, "shortfall in stores", inStores.ShortfallQty, "0")
	assertDecimal(t, "required anywhere", anywhere.RequiredQty, "5")
	assertDecimal(t, "available anywhere", anywhere.AvailableQty, "40")
}

func TestCreateProductionPlanValidatesItems(t *testing.T) {
	s := newPlanScenario(t)
	_, err := models.CreateProductionPlan(s.ctx, &models.NewProductionPlan{
		CompanyId: s.company.ID,
		Items:     []models.NewProductionPlanItem{{ItemId: s.widget.ID, BomId: s.bomId, PlannedQty: dec("1")}},
	})
	if err == nil {
		t.Fatalf("expected an error when the bom does not produce the plan item")
	}
	_, err = models.CreateProductionPlan(s.ctx, &models.NewProductionPlan{
		CompanyId: s.company.ID,
		Items:     []models.NewProductionPlanItem{s.gadgets("0")},
	})
	if err == nil {
		t.Fatalf("expected an error for a zero planned qty")
	}
	_, err = models.CreateProductionPlan(s.ctx, &models.NewProductionPlan{
		CompanyId: s.company.ID,
		Items:     []models.NewProductionPlanItem{{ItemId: s.gadget.ID, BomId: 9999, PlannedQty: dec("1")}},
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound for a missing bom, got %v", err)
	}
}

func TestGenerateWorkOrdersOncePerPlanItem(t *testing.T) {
	s := newPlanScenario(t)
	plan := s.plan(t, s.gadgets("6"), s.gadgets("4"))

	result, err := models.GenerateWorkOrders(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GenerateWorkOrders: %v", err)
	}
	if result.WorkOrdersCreated != 2 || len(result.WorkOrderIds) != 2 {
		t.Fatalf("expected 2 work orders, got %+v", result)
	}
	order, err := models.GetWorkOrder(s.ctx, result.WorkOrderIds[0])
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if order.Status != models.WorkOrderStatusDraft || order.ProductionPlanId == nil || *order.ProductionPlanId != plan.ID {
		t.Fatalf("generated order should be a draft linked to the plan, got %+v", order)
	}
	if order.TargetWarehouseId == nil || *order.TargetWarehouseId != s.stores.ID {
		t.Fatalf("generated order should target the plan item warehouse")
	}
	assertDecimal(t, "generated qty", order.Qty, "6")

	again, err := models.GenerateWorkOrders(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GenerateWorkOrders again: %v", err)
	}
	if again.WorkOrdersCreated != 0 || again.Message != "all plan items already have work orders" {
		t.Fatalf("a second run should create nothing, got %+v", again)
	}
	linked, err := models.ListWorkOrders(s.ctx, models.WorkOrderFilter{ProductionPlanId: &plan.ID})
	if err != nil {
		t.Fatalf("ListWorkOrders: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected 2 work orders for the plan, got %d", len(linked))
	}

	stored, err := models.GetProductionPlan(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetProductionPlan: %v", err)
	}
	for _, item := range stored.Items {
		if item.WorkOrderId == nil {
			t.Fatalf("plan item %d has no work order", item.ID)
		}
	}
}

func TestGeneratePurchaseRequestsListsShortfalls(t *testing.T) {
	s := newPlanScenario(t)
	plan := s.plan(t, s.gadgets("100"))

	empty, err := models.GeneratePurchaseRequests(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GeneratePurchaseRequests before mrp: %v", err)
	}
	if empty.ShortfallItemCount != 0 || len(empty.PurchaseRequests) != 0 {
		t.Fatalf("expected no requests before mrp, got %+v", empty)
	}

	if _, err := models.RunMrp(s.ctx, plan.ID); err != nil {
		t.Fatalf("RunMrp: %v", err)
	}
	result, err := models.GeneratePurchaseRequests(s.ctx, plan.ID)
	if err != nil {
		t.Fatalf("GeneratePurchaseRequests: %v", err)
	}
	if result.ShortfallItemCount != 1 {
		t.Fatalf("expected one purchase request, got %d", result.ShortfallItemCount)
	}
	req := result.PurchaseRequests[0]
	if req.ItemId != s.widget.ID || req.ItemCode != "WIDGET" {
		t.Fatalf("unexpected request %+v", req)
	}
	assertDecimal(t, "requested shortfall", req.ShortfallQty, "40")

	status, err := models.GetOutboxStatus(s.ctx, "production_plans", plan.ID)
	if err != nil {
		t.Fatalf("GetOutboxStatus: %v", err)
	}
	if status.EventType != models.EventProductionPlanPurchaseNeeds {
		t.Fatalf("expected a purchase request event, got %s", status.EventType)
	}

	var orders int64
	if err := config.GetDB().Model(&models.PurchaseOrder{}).Count(&orders).Error; err != nil {
		t.Fatalf("count purchase orders: %v", err)
	}
	if orders != 1 {
		t.Fatalf("generating requests must not create purchase orders, found %d", orders)
	}
}
