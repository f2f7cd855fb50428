package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockReceipt brings opening or found stock into a warehouse at a given rate.
type StockReceipt struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	CompanyId   int                 `gorm:"index;not null" json:"company_id"`
	Name        string              `gorm:"size:50;not null;uniqueIndex" json:"name"`
	WarehouseId int                 `gorm:"not null" json:"warehouse_id"`
	PostingDate time.Time           `gorm:"not null" json:"posting_date"`
	TotalAmount decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Remarks     string              `gorm:"type:text" json:"remarks"`
	Items       []*StockReceiptItem `gorm:"foreignKey:StockReceiptId" json:"items"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

type StockReceiptItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	StockReceiptId int             `gorm:"index;not null" json:"stock_receipt_id"`
	ItemId         int             `gorm:"not null" json:"item_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Rate           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"rate"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
}

type NewStockReceipt struct {
	CompanyId   int                   `json:"company_id" validate:"required"`
	WarehouseId int                   `json:"warehouse_id" validate:"required"`
	PostingDate *time.Time            `json:"posting_date"`
	Remarks     string                `json:"remarks"`
	Items       []NewStockReceiptItem `json:"items" validate:"required,min=1,dive"`
}

type NewStockReceiptItem struct {
	ItemId int             `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
	Rate   decimal.Decimal `json:"rate"`
}

type StockReceiptResult struct {
	StockReceiptId   int    `json:"stock_receipt_id"`
	Name             string `json:"name"`
	LedgerEntryCount int    `json:"ledger_entry_count"`
	GlEntryCount     int    `json:"gl_entry_count"`
}

func CreateStockReceipt(ctx context.Context, input *NewStockReceipt) (*StockReceiptResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	receipt := StockReceipt{
		CompanyId:   input.CompanyId,
		WarehouseId: input.WarehouseId,
		PostingDate: postingDateOrToday(input.PostingDate),
		Remarks:     input.Remarks,
	}
	itemIds := make([]int, 0, len(input.Items))
	for i, line := range input.Items {
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("items[%d]: qty must be > 0", i)
		}
		if line.Rate.IsNegative() {
			return nil, fmt.Errorf("items[%d]: rate must be >= 0", i)
		}
		amount := utils.RoundCurrency(line.Qty.Mul(line.Rate))
		receipt.TotalAmount = receipt.TotalAmount.Add(amount)
		receipt.Items = append(receipt.Items, &StockReceiptItem{
			ItemId: line.ItemId,
			Qty:    utils.RoundQty(line.Qty),
			Rate:   line.Rate,
			Amount: amount,
		})
		itemIds = append(itemIds, line.ItemId)
	}

	var result StockReceiptResult
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		if err := utils.MassValidateResourceIds(tx, []utils.ValidationRule[int]{
			{Model: &Item{}, Ids: itemIds, Message: "item not found"},
			{Model: &Warehouse{}, Ids: []int{input.WarehouseId}, Message: "warehouse not found",
				Filter: utils.Filter{Cond: "company_id = ?", Values: []interface{}{input.CompanyId}}},
		}); err != nil {
			return err
		}
		name, err := NextName(tx, NamingEntityStockReceipt, input.CompanyId)
		if err != nil {
			return err
		}
		receipt.Name = name
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}

		movements := make([]StockLedgerInput, 0, len(receipt.Items))
		for _, line := range receipt.Items {
			movements = append(movements, StockLedgerInput{
				ItemId:       line.ItemId,
				WarehouseId:  receipt.WarehouseId,
				ActualQty:    line.Qty,
				IncomingRate: line.Rate,
			})
		}
		posted, err := postStockAndGl(tx, receipt.CompanyId, VoucherTypeStockReceipt, receipt.ID, receipt.PostingDate, movements)
		if err != nil {
			return err
		}
		result = StockReceiptResult{
			StockReceiptId:   receipt.ID,
			Name:             receipt.Name,
			LedgerEntryCount: len(posted.Entries),
			GlEntryCount:     posted.GlEntryCount,
		}
		return createHistory(tx, HistoryActionCreate, receipt.ID, "stock_receipts", nil, receipt, "Received stock "+receipt.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreateStockReceipt", "create stock receipt", input, err)
		return nil, err
	}
	return &result, nil
}
