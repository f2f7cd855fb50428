package models

import (
	"errors"
	"fmt"
)

type WorkOrderStatus string

const (
	WorkOrderStatusDraft      WorkOrderStatus = "draft"
	WorkOrderStatusNotStarted WorkOrderStatus = "not_started"
	WorkOrderStatusInProcess  WorkOrderStatus = "in_process"
	WorkOrderStatusStopped    WorkOrderStatus = "stopped"
	WorkOrderStatusCompleted  WorkOrderStatus = "completed"
	WorkOrderStatusCancelled  WorkOrderStatus = "cancelled"
)

var AllWorkOrderStatuses = []WorkOrderStatus{
	WorkOrderStatusDraft,
	WorkOrderStatusNotStarted,
	WorkOrderStatusInProcess,
	WorkOrderStatusStopped,
	WorkOrderStatusCompleted,
	WorkOrderStatusCancelled,
}

func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderStatusCompleted || s == WorkOrderStatusCancelled
}

type JobCardStatus string

const (
	JobCardStatusOpen      JobCardStatus = "open"
	JobCardStatusInProcess JobCardStatus = "in_process"
	JobCardStatusCompleted JobCardStatus = "completed"
	JobCardStatusCancelled JobCardStatus = "cancelled"
)

type ProductionPlanStatus string

const (
	ProductionPlanStatusDraft             ProductionPlanStatus = "draft"
	ProductionPlanStatusSubmitted         ProductionPlanStatus = "submitted"
	ProductionPlanStatusMaterialRequested ProductionPlanStatus = "material_requested"
	ProductionPlanStatusCancelled         ProductionPlanStatus = "cancelled"
)

type SubcontractingOrderStatus string

const (
	SubcontractingOrderStatusDraft             SubcontractingOrderStatus = "draft"
	SubcontractingOrderStatusSubmitted         SubcontractingOrderStatus = "submitted"
	SubcontractingOrderStatusPartiallyReceived SubcontractingOrderStatus = "partially_received"
	SubcontractingOrderStatusCompleted         SubcontractingOrderStatus = "completed"
	SubcontractingOrderStatusCancelled         SubcontractingOrderStatus = "cancelled"
)

type WorkstationStatus string

const (
	WorkstationStatusActive      WorkstationStatus = "active"
	WorkstationStatusMaintenance WorkstationStatus = "maintenance"
	WorkstationStatusOffline     WorkstationStatus = "offline"
)

func (s WorkstationStatus) IsValid() bool {
	switch s {
	case WorkstationStatusActive, WorkstationStatusMaintenance, WorkstationStatusOffline:
		return true
	}
	return false
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft             PurchaseOrderStatus = "draft"
	PurchaseOrderStatusSubmitted         PurchaseOrderStatus = "submitted"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "partially_received"
	PurchaseOrderStatusCompleted         PurchaseOrderStatus = "completed"
	PurchaseOrderStatusClosed            PurchaseOrderStatus = "closed"
	PurchaseOrderStatusCancelled         PurchaseOrderStatus = "cancelled"
)

func (s PurchaseOrderStatus) IsValid() bool {
	switch s {
	case PurchaseOrderStatusDraft, PurchaseOrderStatusSubmitted, PurchaseOrderStatusPartiallyReceived,
		PurchaseOrderStatusCompleted, PurchaseOrderStatusClosed, PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

// VoucherType keys stock ledger and GL postings together with the voucher id.
type VoucherType string

const (
	VoucherTypeWorkOrder           VoucherType = "WO"
	VoucherTypeWorkOrderCompletion VoucherType = "WOC"
	VoucherTypeStockReceipt        VoucherType = "SR"
	VoucherTypePurchaseReceipt     VoucherType = "PR"
)

// Naming series entity types.
const (
	NamingEntityBom                 = "bom"
	NamingEntityWorkOrder           = "work_order"
	NamingEntityJobCard             = "job_card"
	NamingEntityProductionPlan      = "production_plan"
	NamingEntitySubcontractingOrder = "subcontracting_order"
	NamingEntityPurchaseOrder       = "purchase_order"
	NamingEntityStockReceipt        = "stock_receipt"
)

var (
	// ErrCircularBomReference is returned when a BOM is reached again below itself.
	ErrCircularBomReference = errors.New("circular bom reference")
	// ErrBomDepthExceeded is returned when sub-assembly nesting goes deeper than MaxBomExplosionDepth.
	ErrBomDepthExceeded = errors.New("bom explosion exceeded maximum depth")

	ErrInvalidStatus           = errors.New("invalid status for this action")
	ErrTransferExceedsRequired = errors.New("transfer would exceed required qty")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrUnbalancedGl            = errors.New("gl entries are not balanced")
	ErrNoFieldsToUpdate        = errors.New("no fields to update")
	ErrLedgerImmutable         = errors.New("ledger entries are append-only")
	ErrCompanyMismatch         = errors.New("record belongs to another company")
)

func invalidStatusError(entity string, status any, allowed string) error {
	return fmt.Errorf("%w: %s is %v, must be %s", ErrInvalidStatus, entity, status, allowed)
}
