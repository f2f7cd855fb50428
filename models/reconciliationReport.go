package models

import "time"

// ReconciliationReport is one drift finding from RunLedgerReconciliation.
type ReconciliationReport struct {
	ID            int         `gorm:"primary_key" json:"id"`
	CompanyId     int         `gorm:"index;not null" json:"company_id"`
	CheckType     string      `gorm:"size:50;index;not null" json:"check_type"`
	VoucherType   VoucherType `gorm:"size:10;index;not null" json:"voucher_type"`
	VoucherId     int         `gorm:"index;not null" json:"voucher_id"`
	Details       string      `gorm:"type:text" json:"details"`
	CorrelationId string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ReconciliationCheckGlBalance     = "GL_BALANCE"
	ReconciliationCheckStockVsLedger = "STOCK_VS_GL"
)
