package procurement

import (
	"context"

	"github.com/google/uuid"
)

// CatalogReader resolves products and suppliers referenced by order lines
type CatalogReader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	FindSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error)
	FindSupplierBySlug(ctx context.Context, slug SupplierSlug) (*Supplier, error)
}

// PurchaseOrderRepository persists the order aggregate
type PurchaseOrderRepository interface {
	// FindByID loads the order with its items and sub-orders
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	// Create inserts the order, its items and sub-orders
	Create(ctx context.Context, order *PurchaseOrder) error
	// UpdateStatus persists only the status column
	UpdateStatus(ctx context.Context, order *PurchaseOrder) error
}

// SubOrderRepository persists PurchaseOrderSupplier rows
type SubOrderRepository interface {
	// FindPending lists processing sub-orders with a transaction id for the supplier
	FindPending(ctx context.Context, supplierID uuid.UUID) ([]PurchaseOrderSupplier, error)
	// ClaimPending re-reads a sub-order under a row lock and returns ErrNotFound
	// when it is no longer pending
	ClaimPending(ctx context.Context, id uuid.UUID) (*PurchaseOrderSupplier, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]PurchaseOrderSupplier, error)
	UpdateStatus(ctx context.Context, sub *PurchaseOrderSupplier) error
}

// VoucherRepository persists vouchers
type VoucherRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Voucher, error)
	FindByOrderAndCodeHash(ctx context.Context, orderID uuid.UUID, codeHash string) (*Voucher, error)
	FindByOrderAndStockID(ctx context.Context, orderID uuid.UUID, stockID string) (*Voucher, error)
	// ExistingCodeHashes returns the subset of hashes already stored on any voucher
	ExistingCodeHashes(ctx context.Context, hashes []string) ([]string, error)
	// CountAvailableByItems counts available vouchers linked to the given items
	CountAvailableByItems(ctx context.Context, itemIDs []uuid.UUID) (int64, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (map[VoucherStatus]int64, error)
	Create(ctx context.Context, v *Voucher) error
	CreateBatch(ctx context.Context, vouchers []*Voucher) error
	Update(ctx context.Context, v *Voucher) error
}

// VoucherAuditLogRepository appends audit entries
type VoucherAuditLogRepository interface {
	Append(ctx context.Context, entry *VoucherAuditLog) error
}
