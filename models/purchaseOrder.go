package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseOrder struct {
	ID          int                    `gorm:"primary_key" json:"id"`
	CompanyId   int                    `gorm:"index;not null" json:"company_id"`
	SupplierId  int                    `gorm:"index;not null" json:"supplier_id"`
	Name        string                 `gorm:"size:50;not null;uniqueIndex" json:"name"`
	OrderDate   time.Time              `gorm:"not null" json:"order_date"`
	WarehouseId *int                   `json:"warehouse_id"`
	Status      PurchaseOrderStatus    `gorm:"size:20;not null;index" json:"status"`
	TotalAmount decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Details     []*PurchaseOrderDetail `gorm:"foreignKey:PurchaseOrderId" json:"purchase_order_details"`
	CreatedAt   time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"index;not null" json:"item_id"`
	WarehouseId     *int            `json:"warehouse_id"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	ReceivedQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"received_qty"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
}

type NewPurchaseOrder struct {
	CompanyId   int                      `json:"company_id" validate:"required"`
	SupplierId  int                      `json:"supplier_id" validate:"required"`
	OrderDate   *time.Time               `json:"order_date"`
	WarehouseId *int                     `json:"warehouse_id"`
	Status      PurchaseOrderStatus      `json:"status"`
	Details     []NewPurchaseOrderDetail `json:"purchase_order_details" validate:"required,min=1,dive"`
}

type NewPurchaseOrderDetail struct {
	ItemId      int             `json:"item_id" validate:"required"`
	WarehouseId *int            `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
}

type PurchaseOrderReceipt struct {
	PurchaseOrderId int                        `json:"purchase_order_id" validate:"required"`
	PostingDate     *time.Time                 `json:"posting_date"`
	Items           []PurchaseOrderReceiptLine `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderReceiptLine struct {
	PurchaseOrderDetailId int             `json:"purchase_order_detail_id" validate:"required"`
	Qty                   decimal.Decimal `json:"qty"`
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = PurchaseOrderStatusSubmitted
	}
	if status != PurchaseOrderStatusDraft && status != PurchaseOrderStatusSubmitted {
		return nil, errors.New("a new purchase order must be draft or submitted")
	}

	order := PurchaseOrder{
		CompanyId:   input.CompanyId,
		SupplierId:  input.SupplierId,
		OrderDate:   postingDateOrToday(input.OrderDate),
		WarehouseId: input.WarehouseId,
		Status:      status,
	}
	var itemIds, warehouseIds []int
	if input.WarehouseId != nil {
		warehouseIds = append(warehouseIds, *input.WarehouseId)
	}
	for i, d := range input.Details {
		if !d.Qty.IsPositive() {
			return nil, fmt.Errorf("purchase_order_details[%d]: qty must be > 0", i)
		}
		if d.Rate.IsNegative() {
			return nil, fmt.Errorf("purchase_order_details[%d]: rate must be >= 0", i)
		}
		amount := utils.RoundCurrency(d.Qty.Mul(d.Rate))
		order.TotalAmount = order.TotalAmount.Add(amount)
		order.Details = append(order.Details, &PurchaseOrderDetail{
			ItemId:      d.ItemId,
			WarehouseId: d.WarehouseId,
			Qty:         utils.RoundQty(d.Qty),
			Rate:        d.Rate,
			Amount:      amount,
		})
		itemIds = append(itemIds, d.ItemId)
		if d.WarehouseId != nil {
			warehouseIds = append(warehouseIds, *d.WarehouseId)
		}
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[Company](tx, input.CompanyId); err != nil {
			return err
		}
		if err := utils.MassValidateResourceIds(tx, []utils.ValidationRule[int]{
			{Model: &Supplier{}, Ids: []int{input.SupplierId}, Message: "supplier not found"},
			{Model: &Item{}, Ids: itemIds, Message: "item not found"},
			{Model: &Warehouse{}, Ids: warehouseIds, Message: "warehouse not found"},
		}); err != nil {
			return err
		}
		name, err := NextName(tx, NamingEntityPurchaseOrder, input.CompanyId)
		if err != nil {
			return err
		}
		order.Name = name
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, order.ID, "purchase_orders", nil, order, "Created purchase order "+order.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "CreatePurchaseOrder", "create purchase order", input, err)
		return nil, err
	}
	return &order, nil
}

// ReceivePurchaseOrder books received quantities against order lines and brings the stock in at the line rate.
func ReceivePurchaseOrder(ctx context.Context, input *PurchaseOrderReceipt) (*PurchaseOrder, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var order PurchaseOrder
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, input.PurchaseOrderId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if order.Status != PurchaseOrderStatusSubmitted && order.Status != PurchaseOrderStatusPartiallyReceived {
			return invalidStatusError("purchase order", order.Status, "submitted or partially_received")
		}
		before := order
		if err := tx.Where("purchase_order_id = ?", order.ID).Order("id").Find(&order.Details).Error; err != nil {
			return err
		}
		byId := make(map[int]*PurchaseOrderDetail, len(order.Details))
		for _, d := range order.Details {
			byId[d.ID] = d
		}

		var movements []StockLedgerInput
		for i, line := range input.Items {
			detail, ok := byId[line.PurchaseOrderDetailId]
			if !ok {
				return fmt.Errorf("items[%d]: line %d does not belong to %s", i, line.PurchaseOrderDetailId, order.Name)
			}
			if !line.Qty.IsPositive() {
				return fmt.Errorf("items[%d]: qty must be > 0", i)
			}
			received := detail.ReceivedQty.Add(line.Qty)
			if received.GreaterThan(detail.Qty) {
				return fmt.Errorf("items[%d]: receiving %s would exceed ordered %s", i, received.String(), detail.Qty.String())
			}
			warehouseId := order.WarehouseId
			if detail.WarehouseId != nil {
				warehouseId = detail.WarehouseId
			}
			if warehouseId == nil {
				return fmt.Errorf("items[%d]: no warehouse on line or order", i)
			}
			detail.ReceivedQty = utils.RoundQty(received)
			if err := tx.Model(&PurchaseOrderDetail{}).Where("id = ?", detail.ID).
				Update("received_qty", detail.ReceivedQty).Error; err != nil {
				return err
			}
			movements = append(movements, StockLedgerInput{
				ItemId:       detail.ItemId,
				WarehouseId:  *warehouseId,
				ActualQty:    line.Qty,
				IncomingRate: detail.Rate,
			})
		}

		if _, err := postStockAndGl(tx, order.CompanyId, VoucherTypePurchaseReceipt, order.ID, postingDateOrToday(input.PostingDate), movements); err != nil {
			return err
		}

		order.Status = PurchaseOrderStatusCompleted
		for _, d := range order.Details {
			if d.ReceivedQty.LessThan(d.Qty) {
				order.Status = PurchaseOrderStatusPartiallyReceived
				break
			}
		}
		if err := tx.Model(&PurchaseOrder{}).Where("id = ?", order.ID).Update("status", order.Status).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, order.ID, "purchase_orders", before, order, "Received against "+order.Name)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ReceivePurchaseOrder", "receive purchase order", input, err)
		return nil, err
	}
	return &order, nil
}

func SetPurchaseOrderStatus(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {
	if !status.IsValid() {
		return nil, errors.New("invalid purchase order status " + string(status))
	}
	db := config.GetDB()
	var order PurchaseOrder
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if order.Status == PurchaseOrderStatusCancelled || order.Status == PurchaseOrderStatusClosed {
			return invalidStatusError("purchase order", order.Status, "open")
		}
		before := order
		order.Status = status
		if err := tx.Model(&PurchaseOrder{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, order.ID, "purchase_orders", before, order, fmt.Sprintf("Set %s to %s", order.Name, status))
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// getOnOrderQty is the still-outstanding qty on purchase order lines for the item,
// ignoring cancelled and closed orders and fully received lines.
func getOnOrderQty(tx *gorm.DB, companyId int, itemId int) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := tx.Table("purchase_order_details AS pod").
		Select("COALESCE(SUM(pod.qty - pod.received_qty), 0) AS total").
		Joins("JOIN purchase_orders AS po ON po.id = pod.purchase_order_id").
		Where("pod.item_id = ? AND po.company_id = ?", itemId, companyId).
		Where("po.status NOT IN ?", []PurchaseOrderStatus{PurchaseOrderStatusCancelled, PurchaseOrderStatusClosed}).
		Where("pod.qty > pod.received_qty").
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return utils.RoundQty(result.Total), nil
}
