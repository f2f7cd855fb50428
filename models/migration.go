package models

import (
	"log"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := MigrateTableWith(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

// MigrateTableWith migrates every manufacturing table on db.
func MigrateTableWith(db *gorm.DB) error {
	return db.AutoMigrate(
		&Company{}, &Account{}, &Item{}, &Warehouse{}, &Supplier{},
		&NamingSeries{}, &History{},
		&Workstation{}, &Operation{}, &Routing{}, &RoutingOperation{},
		&Bom{}, &BomItem{}, &BomOperation{},
		&WorkOrder{}, &WorkOrderItem{}, &JobCard{},
		&ProductionPlan{}, &ProductionPlanItem{}, &ProductionPlanMaterial{},
		&SubcontractingOrder{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&StockReceipt{}, &StockReceiptItem{},
		&StockLedgerEntry{}, &GlEntry{},
		&ManufacturingEventRecord{}, &ReconciliationReport{},
	)
}
