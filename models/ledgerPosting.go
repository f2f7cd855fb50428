package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// acquireCompanyPostingLock serializes ledger posting per company across instances using MySQL advisory locks.
// GET_LOCK is connection-scoped, so it must run on the transaction that posts. Other dialects rely on row locks.
func acquireCompanyPostingLock(tx *gorm.DB, companyId int) (func(), error) {
	if tx.Dialector.Name() != "mysql" {
		return func() {}, nil
	}
	lockName := fmt.Sprintf("mfg-posting:%d", companyId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		return nil, fmt.Errorf("could not acquire posting lock for company_id=%d", companyId)
	}
	return func() {
		var released int
		_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
	}, nil
}

type postingResult struct {
	Entries      []*StockLedgerEntry
	GlEntryCount int
}

// postStockAndGl writes the stock movements of one voucher and the GL derived from them.
func postStockAndGl(tx *gorm.DB, companyId int, voucherType VoucherType, voucherId int, postingDate time.Time, inputs []StockLedgerInput) (*postingResult, error) {
	release, err := acquireCompanyPostingLock(tx, companyId)
	if err != nil {
		return nil, err
	}
	defer release()

	sles, err := InsertStockLedgerEntries(tx, inputs, voucherType, voucherId, postingDate, companyId)
	if err != nil {
		return nil, err
	}
	glInputs, err := BuildPerpetualInventoryGl(tx, sles, companyId)
	if err != nil {
		return nil, err
	}
	glIds, err := InsertGlEntries(tx, glInputs, voucherType, voucherId, postingDate, companyId)
	if err != nil {
		return nil, err
	}
	return &postingResult{Entries: sles, GlEntryCount: len(glIds)}, nil
}

// reverseStockAndGl reverses both ledgers of a voucher; a voucher with nothing posted reverses nothing.
func reverseStockAndGl(tx *gorm.DB, companyId int, voucherType VoucherType, voucherId int, postingDate time.Time, reason string) (int, int, error) {
	release, err := acquireCompanyPostingLock(tx, companyId)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	sleCount, err := ReverseStockLedgerEntries(tx, voucherType, voucherId, postingDate, reason)
	if err != nil {
		return 0, 0, err
	}
	glCount, err := ReverseGlEntries(tx, voucherType, voucherId, postingDate, reason)
	if err != nil {
		return 0, 0, err
	}
	return sleCount, glCount, nil
}
