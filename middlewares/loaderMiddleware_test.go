package middlewares

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupLoaderDB(t *testing.T) (*gorm.DB, context.Context) {
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
	return db, utils.SetUserIdInContext(context.Background(), 1)
}

// countQueries counts SELECTs against table from now on.
func countQueries(db *gorm.DB, table string) *int32 {
	var n int32
	db.Callback().Query().After("gorm:query").Register("test:count_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			atomic.AddInt32(&n, 1)
		}
	})
	return &n
}

func createItem(t *testing.T, ctx context.Context, code string) *models.Item {
	t.Helper()
	item, err := models.CreateItem(ctx, &models.NewItem{Code: code, Name: "Item " + code, Uom: "Nos"})
	if err != nil {
		t.Fatalf("CreateItem %s: %v", code, err)
	}
	return item
}

func TestItemLoaderBatchesAndReportsMissingIds(t *testing.T) {
	db, ctx := setupLoaderDB(t)
	bolt := createItem(t, ctx, "BOLT")
	nut := createItem(t, ctx, "NUT")

	queries := countQueries(db, "items")
	ctx = WithLoaders(ctx, db)

	items, errs := GetItems(ctx, []int{bolt.ID, nut.ID, 999})
	if len(errs) != 3 || errs[0] != nil || errs[1] != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if !errors.Is(errs[2], utils.ErrorRecordNotFound) {
		t.Fatalf("expected not found for the missing id, got %v", errs[2])
	}
	if items[0].Code != "BOLT" || items[1].Code != "NUT" {
		t.Fatalf("items out of order: %+v %+v", items[0], items[1])
	}

	again, err := GetItem(ctx, nut.ID)
	if err != nil || again.ID != nut.ID {
		t.Fatalf("GetItem: %+v %v", again, err)
	}
	if got := atomic.LoadInt32(queries); got != 1 {
		t.Fatalf("expected one batched items query, got %d", got)
	}
}

func TestBomItemLoaderGroupsLinesByBom(t *testing.T) {
	db, ctx := setupLoaderDB(t)
	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: "Loader Co", Abbreviation: "LC"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	chair := createItem(t, ctx, "CHAIR")
	table := createItem(t, ctx, "TABLE")
	leg := createItem(t, ctx, "LEG")
	seat := createItem(t, ctx, "SEAT")
	newBom := func(itemId int, lines ...models.NewBomItem) *models.BomResult {
		result, err := models.CreateBom(ctx, &models.NewBom{
			CompanyId: company.ID,
			ItemId:    itemId,
			Quantity:  decimal.NewFromInt(1),
			Items:     lines,
		})
		if err != nil {
			t.Fatalf("CreateBom: %v", err)
		}
		return result
	}
	chairBom := newBom(chair.ID,
		models.NewBomItem{ItemId: leg.ID, Qty: decimal.NewFromInt(4)},
		models.NewBomItem{ItemId: seat.ID, Qty: decimal.NewFromInt(1)},
	)
	tableBom := newBom(table.ID, models.NewBomItem{ItemId: leg.ID, Qty: decimal.NewFromInt(4)})

	queries := countQueries(db, "bom_items")
	ctx = WithLoaders(ctx, db)

	lines, errs := For(ctx).bomItemLoader.LoadMany(ctx, []int{chairBom.BomId, tableBom.BomId, 999})()
	if errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if len(lines[0]) != 2 || lines[0][0].ItemId != leg.ID || lines[0][1].ItemId != seat.ID {
		t.Fatalf("chair lines: %+v", lines[0])
	}
	if len(lines[1]) != 1 || lines[1][0].BomId != tableBom.BomId {
		t.Fatalf("table lines: %+v", lines[1])
	}
	if len(lines[2]) != 0 {
		t.Fatalf("a bom without lines should load none, got %+v", lines[2])
	}
	if got := atomic.LoadInt32(queries); got != 1 {
		t.Fatalf("expected one batched bom_items query, got %d", got)
	}
}
