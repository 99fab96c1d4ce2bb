package procurement

import (
	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate and event type names
const (
	AggregateTypePurchaseOrder = "PurchaseOrder"

	EventTypePurchaseOrderCreated       = "purchase_order.created"
	EventTypePurchaseOrderStatusChanged = "purchase_order.status_changed"
	EventTypeVouchersImported           = "voucher.imported"
)

// PurchaseOrderCreatedEvent is raised once the order has been committed
type PurchaseOrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string          `json:"order_number"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      OrderStatus     `json:"status"`
	ItemCount   int             `json:"item_count"`
	SubOrders   int             `json:"sub_orders"`
}

// NewPurchaseOrderCreatedEvent snapshots the order
func NewPurchaseOrderCreatedEvent(o *PurchaseOrder) *PurchaseOrderCreatedEvent {
	return &PurchaseOrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseOrderCreated, AggregateTypePurchaseOrder, o.ID),
		OrderNumber:     o.OrderNumber,
		TotalPrice:      o.TotalPrice,
		Status:          o.Status,
		ItemCount:       len(o.Items),
		SubOrders:       len(o.SubOrders),
	}
}

// PurchaseOrderStatusChangedEvent is raised on every effective status change
type PurchaseOrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
}

func NewPurchaseOrderStatusChangedEvent(o *PurchaseOrder, from OrderStatus) *PurchaseOrderStatusChangedEvent {
	return &PurchaseOrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseOrderStatusChanged, AggregateTypePurchaseOrder, o.ID),
		OrderNumber:     o.OrderNumber,
		From:            from,
		To:              o.Status,
	}
}

// VouchersImportedEvent is raised after an import batch has been committed
type VouchersImportedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string `json:"order_number"`
	Count       int    `json:"count"`
}

func NewVouchersImportedEvent(orderID uuid.UUID, orderNumber string, count int) *VouchersImportedEvent {
	return &VouchersImportedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVouchersImported, AggregateTypePurchaseOrder, orderID),
		OrderNumber:     orderNumber,
		Count:           count,
	}
}
