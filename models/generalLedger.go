package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GlEntry is one general-ledger line. Like the stock ledger it is append-only;
// only the reversal linkage columns may change after insert.
type GlEntry struct {
	ID                int             `gorm:"primary_key" json:"id"`
	CompanyId         int             `gorm:"not null;index" json:"company_id"`
	AccountId         int             `gorm:"not null;index" json:"account_id"`
	PostingDate       time.Time       `gorm:"not null;index" json:"posting_date"`
	VoucherType       VoucherType     `gorm:"size:10;not null;index:idx_gl_voucher,priority:1" json:"voucher_type"`
	VoucherId         int             `gorm:"not null;index:idx_gl_voucher,priority:2" json:"voucher_id"`
	Debit             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"debit"`
	Credit            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"credit"`
	Remarks           string          `gorm:"size:255" json:"remarks"`
	IsReversal        bool            `gorm:"not null;default:false" json:"is_reversal"`
	ReversesEntryId   *int            `gorm:"index" json:"reverses_entry_id"`
	ReversedByEntryId *int            `gorm:"index" json:"reversed_by_entry_id"`
	ReversalReason    *string         `gorm:"size:255" json:"reversal_reason"`
	ReversedAt        *time.Time      `json:"reversed_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type GlEntryInput struct {
	AccountId int
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Remarks   string
}

func (e *GlEntry) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("CompanyId", "AccountId", "PostingDate", "VoucherType", "VoucherId", "Debit", "Credit") {
		return ErrLedgerImmutable
	}
	return nil
}

func (e *GlEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

// InsertGlEntries posts a balanced set of lines. Zero lines are dropped; an unbalanced set fails with ErrUnbalancedGl.
func InsertGlEntries(tx *gorm.DB, entries []GlEntryInput, voucherType VoucherType, voucherId int, postingDate time.Time, companyId int) ([]int, error) {
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	rows := make([]*GlEntry, 0, len(entries))
	for i, in := range entries {
		debit := utils.RoundCurrency(in.Debit)
		credit := utils.RoundCurrency(in.Credit)
		if debit.IsNegative() || credit.IsNegative() {
			return nil, fmt.Errorf("gl entry %d: debit and credit must be >= 0", i)
		}
		if debit.IsZero() && credit.IsZero() {
			continue
		}
		if in.AccountId <= 0 {
			return nil, fmt.Errorf("gl entry %d: account is required", i)
		}
		totalDebit = totalDebit.Add(debit)
		totalCredit = totalCredit.Add(credit)
		rows = append(rows, &GlEntry{
			CompanyId:   companyId,
			AccountId:   in.AccountId,
			PostingDate: postingDate,
			VoucherType: voucherType,
			VoucherId:   voucherId,
			Debit:       debit,
			Credit:      credit,
			Remarks:     in.Remarks,
		})
	}
	if !totalDebit.Equal(totalCredit) {
		return nil, fmt.Errorf("%w: debit %s, credit %s", ErrUnbalancedGl, totalDebit.String(), totalCredit.String())
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		if err := tx.Create(row).Error; err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// ReverseGlEntries appends a debit/credit swapped copy of every live line of the voucher.
// Already reversed lines are skipped.
func ReverseGlEntries(tx *gorm.DB, voucherType VoucherType, voucherId int, postingDate time.Time, reason string) (int, error) {
	var originals []*GlEntry
	if err := tx.Where("voucher_type = ? AND voucher_id = ? AND is_reversal = ? AND reversed_by_entry_id IS NULL", voucherType, voucherId, false).
		Order("id").
		Find(&originals).Error; err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	reasonCopy := reason
	for _, o := range originals {
		rev := &GlEntry{
			CompanyId:       o.CompanyId,
			AccountId:       o.AccountId,
			PostingDate:     postingDate,
			VoucherType:     o.VoucherType,
			VoucherId:       o.VoucherId,
			Debit:           o.Credit,
			Credit:          o.Debit,
			Remarks:         "REV: " + o.Remarks,
			IsReversal:      true,
			ReversesEntryId: &o.ID,
			ReversalReason:  &reasonCopy,
		}
		if err := tx.Create(rev).Error; err != nil {
			return 0, err
		}
		if err := tx.Model(&GlEntry{}).
			Where("id = ?", o.ID).
			Updates(map[string]interface{}{
				"reversed_by_entry_id": rev.ID,
				"reversal_reason":      &reasonCopy,
				"reversed_at":          &now,
			}).Error; err != nil {
			return 0, err
		}
	}
	return len(originals), nil
}

// BuildPerpetualInventoryGl turns stock value movements into GL lines: one line per inventory account
// (the warehouse's own account, else the company's stock-in-hand account) and the residual
// against the company's stock-adjustment account.
func BuildPerpetualInventoryGl(tx *gorm.DB, sles []*StockLedgerEntry, companyId int) ([]GlEntryInput, error) {
	if len(sles) == 0 {
		return nil, nil
	}
	company, err := getCompany(tx, companyId)
	if err != nil {
		return nil, err
	}

	accountCache := make(map[int]int)
	var accountOrder []int
	sums := make(map[int]decimal.Decimal)
	for _, sle := range sles {
		accountId, err := inventoryAccountFor(tx, sle.WarehouseId, company, accountCache)
		if err != nil {
			return nil, err
		}
		if _, ok := sums[accountId]; !ok {
			accountOrder = append(accountOrder, accountId)
		}
		sums[accountId] = sums[accountId].Add(sle.StockValueDifference)
	}

	var entries []GlEntryInput
	net := decimal.Zero
	for _, accountId := range accountOrder {
		amount := utils.RoundCurrency(sums[accountId])
		if amount.IsZero() {
			continue
		}
		net = net.Add(amount)
		entries = append(entries, glLine(accountId, amount, "Stock value movement"))
	}
	if !net.IsZero() {
		entries = append(entries, glLine(company.StockAdjustmentAccountId, net.Neg(), "Stock adjustment"))
	}
	return entries, nil
}

// glLine debits a positive amount and credits a negative one.
func glLine(accountId int, amount decimal.Decimal, remarks string) GlEntryInput {
	if amount.IsNegative() {
		return GlEntryInput{AccountId: accountId, Credit: amount.Neg(), Remarks: remarks}
	}
	return GlEntryInput{AccountId: accountId, Debit: amount, Remarks: remarks}
}

func GetGlEntries(tx *gorm.DB, voucherType VoucherType, voucherId int) ([]*GlEntry, error) {
	var entries []*GlEntry
	err := tx.Where("voucher_type = ? AND voucher_id = ?", voucherType, voucherId).Order("id").Find(&entries).Error
	return entries, err
}
