package models_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
)

type fixture struct {
	ctx      context.Context
	company  *models.Company
	stores   *models.Warehouse
	wip      *models.Warehouse
	finished *models.Warehouse
}

// setupManufacturing gives each test its own in-memory database with one company and three warehouses.
// WIP carries its own inventory account so transfers post GL lines.
func setupManufacturing(t *testing.T) *fixture {
	t.Helper()
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
	ctx = utils.SetUserNameInContext(ctx, "Test")

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: "Acme Fabrication", Abbreviation: "AF"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	f := &fixture{ctx: ctx, company: company}
	f.stores = f.warehouse(t, "Stores", nil)
	wipAccount, err := models.CreateAccount(ctx, &models.NewAccount{
		CompanyId:   company.ID,
		Code:        "WIP",
		Name:        "Work In Progress",
		AccountType: models.AccountTypeStock,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	f.wip = f.warehouse(t, "Work In Progress", &wipAccount.ID)
	f.finished = f.warehouse(t, "Finished Goods", nil)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: got %s, want %s", label, got.String(), want)
	}
}

func (f *fixture) warehouse(t *testing.T, name string, accountId *int) *models.Warehouse {
	t.Helper()
	w, err := models.CreateWarehouse(f.ctx, &models.NewWarehouse{CompanyId: f.company.ID, Name: name, AccountId: accountId})
	if err != nil {
		t.Fatalf("CreateWarehouse %s: %v", name, err)
	}
	return w
}

func (f *fixture) item(t *testing.T, code string) *models.Item {
	t.Helper()
	item, err := models.CreateItem(f.ctx, &models.NewItem{Code: code, Name: "Item " + code, Uom: "Nos"})
	if err != nil {
		t.Fatalf("CreateItem %s: %v", code, err)
	}
	return item
}

func leaf(itemId int, qty string, rate string) models.NewBomItem {
	return models.NewBomItem{ItemId: itemId, Qty: dec(qty), Rate: dec(rate)}
}

func subAssembly(itemId int, bomId int, qty string) models.NewBomItem {
	return models.NewBomItem{ItemId: itemId, Qty: dec(qty), IsSubAssembly: true, SubBomId: intPtr(bomId)}
}

func (f *fixture) bom(t *testing.T, itemId int, yield string, lines ...models.NewBomItem) *models.BomResult {
	t.Helper()
	result, err := models.CreateBom(f.ctx, &models.NewBom{
		CompanyId: f.company.ID,
		ItemId:    itemId,
		Quantity:  dec(yield),
		Items:     lines,
	})
	if err != nil {
		t.Fatalf("CreateBom for item %d: %v", itemId, err)
	}
	return result
}

func (f *fixture) receive(t *testing.T, warehouseId int, itemId int, qty string, rate string) {
	t.Helper()
	_, err := models.CreateStockReceipt(f.ctx, &models.NewStockReceipt{
		CompanyId:   f.company.ID,
		WarehouseId: warehouseId,
		Items:       []models.NewStockReceiptItem{{ItemId: itemId, Qty: dec(qty), Rate: dec(rate)}},
	})
	if err != nil {
		t.Fatalf("CreateStockReceipt item %d: %v", itemId, err)
	}
}

func (f *fixture) balance(t *testing.T, warehouseId int, itemId int) decimal.Decimal {
	t.Helper()
	qty, err := models.GetStockBalance(config.GetDB(), itemId, warehouseId)
	if err != nil {
		t.Fatalf("GetStockBalance item %d warehouse %d: %v", itemId, warehouseId, err)
	}
	return qty
}

func (f *fixture) workstation(t *testing.T, name string, hourRate string) *models.Workstation {
	t.Helper()
	w, err := models.CreateWorkstation(f.ctx, &models.NewWorkstation{Name: name, HourRate: dec(hourRate)})
	if err != nil {
		t.Fatalf("CreateWorkstation %s: %v", name, err)
	}
	return w
}

func (f *fixture) operation(t *testing.T, name string, workstationId *int) *models.Operation {
	t.Helper()
	op, err := models.CreateOperation(f.ctx, &models.NewOperation{Name: name, DefaultWorkstationId: workstationId})
	if err != nil {
		t.Fatalf("CreateOperation %s: %v", name, err)
	}
	return op
}

func (f *fixture) supplier(t *testing.T, name string) *models.Supplier {
	t.Helper()
	s, err := models.CreateSupplier(f.ctx, &models.NewSupplier{CompanyId: f.company.ID, Name: name})
	if err != nil {
		t.Fatalf("CreateSupplier %s: %v", name, err)
	}
	return s
}

// explosionTotals maps item id to exploded qty.
func explosionTotals(result *models.BomExplosionResult) map[int]decimal.Decimal {
	totals := make(map[int]decimal.Decimal, len(result.Materials))
	for _, m := range result.Materials {
		totals[m.ItemId] = m.TotalQty
	}
	return totals
}
