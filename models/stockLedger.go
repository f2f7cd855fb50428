package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockLedgerEntry is one stock movement. Rows are never edited or deleted;
// a cancelled voucher gets reversal rows that point back at the originals.
type StockLedgerEntry struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	CompanyId            int             `gorm:"not null;index" json:"company_id"`
	ItemId               int             `gorm:"not null;index:idx_sle_item_warehouse,priority:1" json:"item_id"`
	WarehouseId          int             `gorm:"not null;index:idx_sle_item_warehouse,priority:2" json:"warehouse_id"`
	PostingDate          time.Time       `gorm:"not null;index" json:"posting_date"`
	VoucherType          VoucherType     `gorm:"size:10;not null;index:idx_sle_voucher,priority:1" json:"voucher_type"`
	VoucherId            int             `gorm:"not null;index:idx_sle_voucher,priority:2" json:"voucher_id"`
	ActualQty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"actual_qty"`
	IncomingRate         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"incoming_rate"`
	ValuationRate        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"valuation_rate"`
	QtyAfterTransaction  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_after_transaction"`
	StockValue           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"stock_value"`
	StockValueDifference decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"stock_value_difference"`
	IsReversal           bool            `gorm:"not null;default:false" json:"is_reversal"`
	ReversesEntryId      *int            `gorm:"index" json:"reverses_entry_id"`
	ReversedByEntryId    *int            `gorm:"index" json:"reversed_by_entry_id"`
	ReversalReason       *string         `gorm:"size:255" json:"reversal_reason"`
	ReversedAt           *time.Time      `json:"reversed_at"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// StockLedgerInput is one requested movement. Positive qty is a receipt valued at IncomingRate;
// negative qty is an issue valued at the warehouse's current moving-average rate.
type StockLedgerInput struct {
	ItemId       int
	WarehouseId  int
	ActualQty    decimal.Decimal
	IncomingRate decimal.Decimal
}

func (e *StockLedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("CompanyId", "ItemId", "WarehouseId", "PostingDate", "VoucherType", "VoucherId",
		"ActualQty", "IncomingRate", "ValuationRate", "QtyAfterTransaction", "StockValue", "StockValueDifference") {
		return ErrLedgerImmutable
	}
	return nil
}

func (e *StockLedgerEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func lastStockLedgerEntry(tx *gorm.DB, itemId int, warehouseId int) (*StockLedgerEntry, error) {
	var entries []*StockLedgerEntry
	if err := tx.Where("item_id = ? AND warehouse_id = ?", itemId, warehouseId).
		Order("id DESC").Limit(1).Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// InsertStockLedgerEntries appends one row per input, keeping the running qty and value
// of every (item, warehouse) pair. An issue that would take the balance below zero fails
// with ErrInsufficientStock unless ALLOW_NEGATIVE_STOCK is set.
func InsertStockLedgerEntries(tx *gorm.DB, entries []StockLedgerInput, voucherType VoucherType, voucherId int, postingDate time.Time, companyId int) ([]*StockLedgerEntry, error) {
	allowNegative := config.AllowNegativeStock()
	rows := make([]*StockLedgerEntry, 0, len(entries))
	for i, in := range entries {
		qty := utils.RoundQty(in.ActualQty)
		if qty.IsZero() {
			return nil, fmt.Errorf("stock ledger entry %d: qty must not be zero", i)
		}
		if in.IncomingRate.IsNegative() {
			return nil, fmt.Errorf("stock ledger entry %d: incoming rate must be >= 0", i)
		}
		last, err := lastStockLedgerEntry(tx, in.ItemId, in.WarehouseId)
		if err != nil {
			return nil, err
		}
		prevQty, prevValue, prevRate := decimal.Zero, decimal.Zero, decimal.Zero
		if last != nil {
			prevQty, prevValue, prevRate = last.QtyAfterTransaction, last.StockValue, last.ValuationRate
		}

		newQty := utils.RoundQty(prevQty.Add(qty))
		if newQty.IsNegative() && !allowNegative {
			return nil, fmt.Errorf("%w: item %d in warehouse %d has %s, needs %s",
				ErrInsufficientStock, in.ItemId, in.WarehouseId, prevQty.String(), qty.Neg().String())
		}

		var diff, rate decimal.Decimal
		if qty.IsPositive() {
			diff = utils.RoundCurrency(qty.Mul(in.IncomingRate))
			rate = utils.RoundRate(in.IncomingRate)
			if newQty.IsPositive() {
				rate = utils.RoundRate(prevValue.Add(diff).Div(newQty))
			}
		} else {
			rate = prevRate
			diff = utils.RoundCurrency(qty.Mul(rate))
			if newQty.IsZero() {
				diff = prevValue.Neg()
			}
		}

		row := &StockLedgerEntry{
			CompanyId:            companyId,
			ItemId:               in.ItemId,
			WarehouseId:          in.WarehouseId,
			PostingDate:          postingDate,
			VoucherType:          voucherType,
			VoucherId:            voucherId,
			ActualQty:            qty,
			IncomingRate:         utils.RoundRate(in.IncomingRate),
			ValuationRate:        rate,
			QtyAfterTransaction:  newQty,
			StockValue:           prevValue.Add(diff),
			StockValueDifference: diff,
		}
		if err := tx.Create(row).Error; err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReverseStockLedgerEntries appends a reversal for every live row of the voucher, newest first.
// Rows already reversed are skipped, so calling it twice (or on a voucher with no postings) returns 0.
func ReverseStockLedgerEntries(tx *gorm.DB, voucherType VoucherType, voucherId int, postingDate time.Time, reason string) (int, error) {
	var originals []*StockLedgerEntry
	if err := tx.Where("voucher_type = ? AND voucher_id = ? AND is_reversal = ? AND reversed_by_entry_id IS NULL", voucherType, voucherId, false).
		Order("id DESC").
		Find(&originals).Error; err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	reasonCopy := reason

	for _, o := range originals {
		last, err := lastStockLedgerEntry(tx, o.ItemId, o.WarehouseId)
		if err != nil {
			return 0, err
		}
		qty := o.ActualQty.Neg()
		diff := o.StockValueDifference.Neg()
		newQty := utils.RoundQty(last.QtyAfterTransaction.Add(qty))
		newValue := last.StockValue.Add(diff)
		rate := last.ValuationRate
		if newQty.IsPositive() {
			rate = utils.RoundRate(newValue.Div(newQty))
		}

		rev := &StockLedgerEntry{
			CompanyId:            o.CompanyId,
			ItemId:               o.ItemId,
			WarehouseId:          o.WarehouseId,
			PostingDate:          postingDate,
			VoucherType:          o.VoucherType,
			VoucherId:            o.VoucherId,
			ActualQty:            qty,
			IncomingRate:         o.IncomingRate,
			ValuationRate:        rate,
			QtyAfterTransaction:  newQty,
			StockValue:           newValue,
			StockValueDifference: diff,
			IsReversal:           true,
			ReversesEntryId:      &o.ID,
			ReversalReason:       &reasonCopy,
		}
		if err := tx.Create(rev).Error; err != nil {
			return 0, err
		}
		if err := tx.Model(&StockLedgerEntry{}).
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

// GetValuationRate is the moving-average rate after the latest movement, zero when the pair has none.
func GetValuationRate(tx *gorm.DB, itemId int, warehouseId int) (decimal.Decimal, error) {
	last, err := lastStockLedgerEntry(tx, itemId, warehouseId)
	if err != nil || last == nil {
		return decimal.Zero, err
	}
	return last.ValuationRate, nil
}

func GetStockBalance(tx *gorm.DB, itemId int, warehouseId int) (decimal.Decimal, error) {
	last, err := lastStockLedgerEntry(tx, itemId, warehouseId)
	if err != nil || last == nil {
		return decimal.Zero, err
	}
	return last.QtyAfterTransaction, nil
}

// GetCompanyStockBalance sums the item's movements over every warehouse of the company.
func GetCompanyStockBalance(tx *gorm.DB, companyId int, itemId int) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := tx.Model(&StockLedgerEntry{}).
		Select("COALESCE(SUM(actual_qty), 0) AS total").
		Where("company_id = ? AND item_id = ?", companyId, itemId).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return utils.RoundQty(result.Total), nil
}

func GetStockLedgerEntries(tx *gorm.DB, voucherType VoucherType, voucherId int) ([]*StockLedgerEntry, error) {
	var entries []*StockLedgerEntry
	err := tx.Where("voucher_type = ? AND voucher_id = ?", voucherType, voucherId).Order("id").Find(&entries).Error
	return entries, err
}

// postingDateOrToday truncates to the UTC calendar day.
func postingDateOrToday(p *time.Time) time.Time {
	t := time.Now().UTC()
	if p != nil && !p.IsZero() {
		t = p.UTC()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
