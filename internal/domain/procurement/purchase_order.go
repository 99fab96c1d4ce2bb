package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PurchaseOrderItem is one supplier-product line of a purchase order.
// UnitCost and Subtotal are fixed at creation and never recomputed.
type PurchaseOrderItem struct {
	ID              uuid.UUID
	PurchaseOrderID uuid.UUID
	SupplierID      uuid.UUID
	ProductID       uuid.UUID
	ProductName     string
	ProductSKU      string
	Quantity        int
	UnitCost        decimal.Decimal
	Subtotal        decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPurchaseOrderItem creates a line priced from the product snapshot
func NewPurchaseOrderItem(orderID, supplierID uuid.UUID, product *Product, quantity int) (*PurchaseOrderItem, error) {
	if product == nil || product.ID == uuid.Nil {
		return nil, NewValidationError("product is required")
	}
	if supplierID == uuid.Nil {
		return nil, NewValidationError("supplier is required for product %s", product.SKU)
	}
	if quantity < 1 {
		return nil, NewValidationError("quantity for product %s must be at least 1", product.SKU)
	}
	if product.UnitCost.IsNegative() {
		return nil, NewValidationError("unit cost for product %s cannot be negative", product.SKU)
	}

	now := time.Now()
	return &PurchaseOrderItem{
		ID:              uuid.New(),
		PurchaseOrderID: orderID,
		SupplierID:      supplierID,
		ProductID:       product.ID,
		ProductName:     product.Name,
		ProductSKU:      product.SKU,
		Quantity:        quantity,
		UnitCost:        product.UnitCost,
		Subtotal:        product.UnitCost.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// PurchaseOrder is the aggregate root of a procurement transaction
type PurchaseOrder struct {
	shared.BaseAggregateRoot
	OrderNumber string
	TotalPrice  decimal.Decimal
	Status      OrderStatus
	Items       []PurchaseOrderItem
	SubOrders   []PurchaseOrderSupplier
}

var _ shared.AggregateRoot = (*PurchaseOrder)(nil)

// NewPurchaseOrder creates an empty pending order
func NewPurchaseOrder(orderNumber string) (*PurchaseOrder, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, NewValidationError("order number cannot be empty")
	}
	return &PurchaseOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		TotalPrice:        decimal.Zero,
		Status:            OrderStatusPending,
	}, nil
}

// GenerateOrderNumber returns a human readable order number such as PO-20260102-1A2B3C4D
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), suffix)
}

// AddItem appends a priced line and accumulates the total
func (o *PurchaseOrder) AddItem(supplierID uuid.UUID, product *Product, quantity int) (*PurchaseOrderItem, error) {
	if o.Status != OrderStatusPending {
		return nil, shared.NewDomainError(shared.CodeInvalidStateTransition,
			"items can only be added to a pending purchase order")
	}
	item, err := NewPurchaseOrderItem(o.ID, supplierID, product, quantity)
	if err != nil {
		return nil, err
	}
	o.Items = append(o.Items, *item)
	o.recalculateTotal()
	return &o.Items[len(o.Items)-1], nil
}

// AddSubOrder attaches the record of one external supplier call
func (o *PurchaseOrder) AddSubOrder(sub *PurchaseOrderSupplier) {
	sub.PurchaseOrderID = o.ID
	o.SubOrders = append(o.SubOrders, *sub)
}

func (o *PurchaseOrder) recalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	o.TotalPrice = total
	o.Touch()
}

// ItemsForSupplier returns the lines that belong to the given supplier
func (o *PurchaseOrder) ItemsForSupplier(supplierID uuid.UUID) []PurchaseOrderItem {
	var out []PurchaseOrderItem
	for _, item := range o.Items {
		if item.SupplierID == supplierID {
			out = append(out, item)
		}
	}
	return out
}

// ItemBySKU finds the line carrying sku. SKUs are unique within an order.
func (o *PurchaseOrder) ItemBySKU(sku string) (*PurchaseOrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ProductSKU == sku {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// TotalQuantity is the number of vouchers the order expects
func (o *PurchaseOrder) TotalQuantity() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// TransitionTo moves the order to status and records a change event.
// It returns false when the status was already current.
func (o *PurchaseOrder) TransitionTo(status OrderStatus) (bool, error) {
	if !status.IsValid() {
		return false, NewValidationError("unknown order status %q", status)
	}
	if !o.Status.CanTransitionTo(status) {
		return false, NewTransitionError("purchase order", o.Status, status)
	}
	if o.Status == status {
		return false, nil
	}
	from := o.Status
	o.Status = status
	o.Touch()
	o.AddDomainEvent(NewPurchaseOrderStatusChangedEvent(o, from))
	return true, nil
}
