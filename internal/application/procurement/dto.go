package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/shopspring/decimal"
)

// ==================== Purchase Order DTOs ====================

// CreatePurchaseOrderRequest represents a request to create a purchase order.
// Each line names its own supplier, so one order may span several suppliers.
type CreatePurchaseOrderRequest struct {
	Items []CreatePurchaseOrderItemInput `json:"items" binding:"required,min=1,dive"`
}

// CreatePurchaseOrderItemInput represents one requested line
type CreatePurchaseOrderItemInput struct {
	SupplierID uuid.UUID `json:"supplier_id" binding:"required"`
	ProductID  uuid.UUID `json:"product_id" binding:"required"`
	Quantity   int       `json:"quantity" binding:"required,min=1"`
}

// PurchaseOrderResponse represents a purchase order in API responses
type PurchaseOrderResponse struct {
	ID          uuid.UUID                       `json:"id"`
	OrderNumber string                          `json:"order_number"`
	TotalPrice  decimal.Decimal                 `json:"total_price"`
	Status      string                          `json:"status"`
	Items       []PurchaseOrderItemResponse     `json:"items"`
	SubOrders   []PurchaseOrderSupplierResponse `json:"sub_orders"`
	Vouchers    *VoucherCountsResponse          `json:"vouchers,omitempty"`
	CreatedAt   time.Time                       `json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// PurchaseOrderItemResponse represents an order line
type PurchaseOrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	SupplierID  uuid.UUID       `json:"supplier_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// PurchaseOrderSupplierResponse represents a supplier sub-order
type PurchaseOrderSupplierResponse struct {
	ID            uuid.UUID `json:"id"`
	SupplierID    uuid.UUID `json:"supplier_id"`
	TransactionID *string   `json:"transaction_id,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// VoucherCountsResponse summarizes the vouchers recorded for an order
type VoucherCountsResponse struct {
	Expected   int   `json:"expected"`
	Available  int64 `json:"available"`
	Processing int64 `json:"processing"`
}

// ToPurchaseOrderResponse converts the aggregate to a response
func ToPurchaseOrderResponse(o *procurement.PurchaseOrder) PurchaseOrderResponse {
	resp := PurchaseOrderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		TotalPrice:  o.TotalPrice,
		Status:      o.Status.String(),
		Items:       make([]PurchaseOrderItemResponse, 0, len(o.Items)),
		SubOrders:   make([]PurchaseOrderSupplierResponse, 0, len(o.SubOrders)),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, PurchaseOrderItemResponse{
			ID:          item.ID,
			SupplierID:  item.SupplierID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
			Subtotal:    item.Subtotal,
		})
	}
	for _, sub := range o.SubOrders {
		resp.SubOrders = append(resp.SubOrders, PurchaseOrderSupplierResponse{
			ID:            sub.ID,
			SupplierID:    sub.SupplierID,
			TransactionID: sub.TransactionID,
			Status:        sub.Status.String(),
			FailureReason: sub.FailureReason,
		})
	}
	return resp
}

// ==================== Reconciliation DTOs ====================

// ReconciliationSummary reports one reconciliation run
type ReconciliationSummary struct {
	TotalOrders         int                   `json:"total_orders"`
	ProcessedOrders     int                   `json:"processed_orders"`
	SkippedOrders       int                   `json:"skipped_orders"`
	FailedOrders        int                   `json:"failed_orders"`
	TotalVouchersAdded  int                   `json:"total_vouchers_added"`
	PlaceholdersCreated int                   `json:"placeholders_created"`
	CompletedSubOrders  int                   `json:"completed_sub_orders"`
	FailedSubOrders     int                   `json:"failed_sub_orders"`
	Errors              []ReconciliationError `json:"errors"`
	StartedAt           time.Time             `json:"started_at"`
	Duration            time.Duration         `json:"duration_ns"`
}

// ReconciliationError describes a sub-order that could not be reconciled
type ReconciliationError struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	SubOrderID  uuid.UUID `json:"sub_order_id"`
	Error       string    `json:"error"`
}

// ==================== Import DTOs ====================

// ImportVouchersRequest carries explicit voucher codes
type ImportVouchersRequest struct {
	Codes []string `json:"codes" binding:"required,min=1"`
}

// ImportResult reports a committed import batch
type ImportResult struct {
	PurchaseOrderID uuid.UUID `json:"purchase_order_id"`
	OrderNumber     string    `json:"order_number"`
	Imported        int       `json:"imported"`
}

// ==================== Voucher DTOs ====================

// AccessContext identifies who is revealing a voucher code and from where
type AccessContext struct {
	ActorID   string
	Action    procurement.VoucherAccessAction
	IPAddress string
	UserAgent string
}

// RevealedVoucherResponse carries a decrypted voucher code
type RevealedVoucherResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	PinCode      string    `json:"pin_code,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Status       string    `json:"status"`
}
