package reports_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/models/reports"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestExportProductionPlanMaterials(t *testing.T) {
	db, err := config.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	config.SetDB(db)
	if err := models.MigrateTableWith(db); err != nil {
		t.Fatalf("MigrateTableWith: %v", err)
	}
	ctx := utils.SetUserIdInContext(context.Background(), 1)

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: "Export Co"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	stores, err := models.CreateWarehouse(ctx, &models.NewWarehouse{CompanyId: company.ID, Name: "Stores"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	gadget, err := models.CreateItem(ctx, &models.NewItem{Code: "GADGET", Name: "Gadget"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	widget, err := models.CreateItem(ctx, &models.NewItem{Code: "WIDGET", Name: "Widget", Uom: "Pcs"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	bom, err := models.CreateBom(ctx, &models.NewBom{
		CompanyId: company.ID,
		ItemId:    gadget.ID,
		Quantity:  decimal.NewFromInt(1),
		Items:     []models.NewBomItem{{ItemId: widget.ID, Qty: decimal.NewFromInt(3), Rate: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("CreateBom: %v", err)
	}
	if _, err := models.CreateStockReceipt(ctx, &models.NewStockReceipt{
		CompanyId:   company.ID,
		WarehouseId: stores.ID,
		Items:       []models.NewStockReceiptItem{{ItemId: widget.ID, Qty: decimal.NewFromInt(10), Rate: decimal.NewFromInt(2)}},
	}); err != nil {
		t.Fatalf("CreateStockReceipt: %v", err)
	}
	plan, err := models.CreateProductionPlan(ctx, &models.NewProductionPlan{
		CompanyId: company.ID,
		Items: []models.NewProductionPlanItem{
			{ItemId: gadget.ID, BomId: bom.BomId, PlannedQty: decimal.NewFromInt(4), WarehouseId: &stores.ID},
		},
	})
	if err != nil {
		t.Fatalf("CreateProductionPlan: %v", err)
	}

	if _, err := reports.ExportProductionPlanMaterials(ctx, plan.ID, false); err == nil {
		t.Fatalf("exporting before mrp should fail")
	}
	if _, err := reports.ExportProductionPlanMaterials(ctx, 9999, false); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound for a missing plan, got %v", err)
	}
	if _, err := models.RunMrp(ctx, plan.ID); err != nil {
		t.Fatalf("RunMrp: %v", err)
	}

	export, err := reports.ExportProductionPlanMaterials(ctx, plan.ID, false)
	if err != nil {
		t.Fatalf("ExportProductionPlanMaterials: %v", err)
	}
	if export.RowCount != 1 || export.Uploaded || export.FileName != plan.Name+"-materials.xlsx" {
		t.Fatalf("unexpected export %+v", export)
	}

	f, err := excelize.OpenReader(bytes.NewReader(export.Content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Materials")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected a heading and one material row, got %d rows", len(rows))
	}
	if rows[0][0] != "Item Code" || rows[0][7] != "Shortfall" {
		t.Fatalf("unexpected headings %v", rows[0])
	}
	want := []string{"WIDGET", "Widget", "Pcs", "Stores", "12", "10", "0", "2"}
	for i, w := range want {
		if rows[1][i] != w {
			t.Fatalf("column %d: got %q, want %q (row %v)", i+1, rows[1][i], w, rows[1])
		}
	}
}
