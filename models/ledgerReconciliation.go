package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
)

type LedgerReconciliationResult struct {
	CompanyId       int                     `json:"company_id"`
	CorrelationId   string                  `json:"correlation_id"`
	VouchersChecked int                     `json:"vouchers_checked"`
	Findings        []*ReconciliationReport `json:"findings"`
}

type voucherKey struct {
	VoucherType VoucherType
	VoucherId   int
}

// RunLedgerReconciliation checks every voucher of the company: its GL lines must balance and the net stock
// value it moved must equal the net it posted to inventory accounts. Findings are stored in
// reconciliation_reports under one correlation id.
func RunLedgerReconciliation(ctx context.Context, companyId int) (*LedgerReconciliationResult, error) {
	db := config.GetDB().WithContext(ctx)

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	result := &LedgerReconciliationResult{CompanyId: companyId, CorrelationId: cid, Findings: []*ReconciliationReport{}}

	company, err := getCompany(db, companyId)
	if err != nil {
		return nil, err
	}
	inventoryAccounts := []int{company.StockInHandAccountId}
	var warehouseAccounts []int
	if err := db.Model(&Warehouse{}).Where("company_id = ? AND account_id IS NOT NULL", companyId).
		Pluck("account_id", &warehouseAccounts).Error; err != nil {
		return nil, err
	}
	inventoryAccounts = utils.UniqueSlice(append(inventoryAccounts, warehouseAccounts...))

	var glRows []struct {
		VoucherType     VoucherType
		VoucherId       int
		TotalDebit      decimal.Decimal
		TotalCredit     decimal.Decimal
		InventoryNet    decimal.Decimal
		InventoryLines  int
	}
	if err := db.Model(&GlEntry{}).
		Select(`voucher_type, voucher_id,
			SUM(debit) AS total_debit,
			SUM(credit) AS total_credit,
			SUM(CASE WHEN account_id IN ? THEN debit - credit ELSE 0 END) AS inventory_net,
			SUM(CASE WHEN account_id IN ? THEN 1 ELSE 0 END) AS inventory_lines`, inventoryAccounts, inventoryAccounts).
		Where("company_id = ?", companyId).
		Group("voucher_type, voucher_id").
		Scan(&glRows).Error; err != nil {
		return nil, err
	}

	var sleRows []struct {
		VoucherType VoucherType
		VoucherId   int
		Total       decimal.Decimal
	}
	if err := db.Model(&StockLedgerEntry{}).
		Select("voucher_type, voucher_id, SUM(stock_value_difference) AS total").
		Where("company_id = ?", companyId).
		Group("voucher_type, voucher_id").
		Scan(&sleRows).Error; err != nil {
		return nil, err
	}

	type voucherTotals struct {
		glSeen         bool
		inventoryNet   decimal.Decimal
		inventoryLines int
		stockValue     decimal.Decimal
	}
	totals := make(map[voucherKey]*voucherTotals)
	var order []voucherKey
	get := func(k voucherKey) *voucherTotals {
		t, ok := totals[k]
		if !ok {
			t = &voucherTotals{}
			totals[k] = t
			order = append(order, k)
		}
		return t
	}

	now := time.Now().UTC()
	addFinding := func(check string, k voucherKey, details string) {
		result.Findings = append(result.Findings, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     check,
			VoucherType:   k.VoucherType,
			VoucherId:     k.VoucherId,
			Details:       details,
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	for _, r := range glRows {
		k := voucherKey{r.VoucherType, r.VoucherId}
		t := get(k)
		t.glSeen = true
		t.inventoryNet = r.InventoryNet
		t.inventoryLines = r.InventoryLines
		if !r.TotalDebit.Equal(r.TotalCredit) {
			addFinding(ReconciliationCheckGlBalance, k, fmt.Sprintf("debit %s != credit %s", r.TotalDebit, r.TotalCredit))
		}
	}
	for _, r := range sleRows {
		get(voucherKey{r.VoucherType, r.VoucherId}).stockValue = r.Total
	}

	cent := decimal.New(1, -2)
	for _, k := range order {
		t := totals[k]
		// GL amounts are rounded to cents once per inventory line.
		tolerance := cent.Mul(decimal.NewFromInt(int64(t.inventoryLines + 1)))
		if t.stockValue.Sub(t.inventoryNet).Abs().GreaterThan(tolerance) {
			addFinding(ReconciliationCheckStockVsLedger, k,
				fmt.Sprintf("stock value %s != inventory gl %s", t.stockValue.StringFixed(4), t.inventoryNet.StringFixed(4)))
		}
	}
	result.VouchersChecked = len(order)

	if len(result.Findings) > 0 {
		if err := db.Create(&result.Findings).Error; err != nil {
			return nil, err
		}
	}
	return result, nil
}
