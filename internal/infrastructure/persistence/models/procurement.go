package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PurchaseOrderModel is the persistence model for the PurchaseOrder aggregate root.
type PurchaseOrderModel struct {
	BaseModel
	OrderNumber string                       `gorm:"type:varchar(50);not null;uniqueIndex"`
	TotalPrice  decimal.Decimal              `gorm:"type:decimal(18,4);not null;default:0"`
	Status      procurement.OrderStatus      `gorm:"type:varchar(20);not null;default:'pending';index"`
	Items       []PurchaseOrderItemModel     `gorm:"foreignKey:PurchaseOrderID;references:ID"`
	SubOrders   []PurchaseOrderSupplierModel `gorm:"foreignKey:PurchaseOrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PurchaseOrderModel) TableName() string {
	return "purchase_orders"
}

// ToDomain converts the persistence model to a domain PurchaseOrder.
func (m *PurchaseOrderModel) ToDomain() *procurement.PurchaseOrder {
	order := &procurement.PurchaseOrder{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
		},
		OrderNumber: m.OrderNumber,
		TotalPrice:  m.TotalPrice,
		Status:      m.Status,
		Items:       make([]procurement.PurchaseOrderItem, len(m.Items)),
		SubOrders:   make([]procurement.PurchaseOrderSupplier, len(m.SubOrders)),
	}
	for i := range m.Items {
		order.Items[i] = *m.Items[i].ToDomain()
	}
	for i := range m.SubOrders {
		order.SubOrders[i] = *m.SubOrders[i].ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain PurchaseOrder.
func (m *PurchaseOrderModel) FromDomain(o *procurement.PurchaseOrder) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.OrderNumber = o.OrderNumber
	m.TotalPrice = o.TotalPrice
	m.Status = o.Status
	m.Items = make([]PurchaseOrderItemModel, len(o.Items))
	for i := range o.Items {
		m.Items[i] = *PurchaseOrderItemModelFromDomain(&o.Items[i])
		m.Items[i].LineNo = i + 1
	}
	m.SubOrders = make([]PurchaseOrderSupplierModel, len(o.SubOrders))
	for i := range o.SubOrders {
		m.SubOrders[i] = *PurchaseOrderSupplierModelFromDomain(&o.SubOrders[i])
	}
}

// PurchaseOrderModelFromDomain creates a new persistence model from a domain PurchaseOrder.
func PurchaseOrderModelFromDomain(o *procurement.PurchaseOrder) *PurchaseOrderModel {
	m := &PurchaseOrderModel{}
	m.FromDomain(o)
	return m
}

// PurchaseOrderItemModel is the persistence model for one order line.
// LineNo keeps the submission order, which voucher import assignment relies on.
type PurchaseOrderItemModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	PurchaseOrderID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo          int             `gorm:"not null;default:0"`
	SupplierID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName     string          `gorm:"type:varchar(200);not null"`
	ProductSKU      string          `gorm:"column:product_sku;type:varchar(100);not null"`
	Quantity        int             `gorm:"not null"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PurchaseOrderItemModel) TableName() string {
	return "purchase_order_items"
}

// ToDomain converts the persistence model to a domain PurchaseOrderItem.
func (m *PurchaseOrderItemModel) ToDomain() *procurement.PurchaseOrderItem {
	return &procurement.PurchaseOrderItem{
		ID:              m.ID,
		PurchaseOrderID: m.PurchaseOrderID,
		SupplierID:      m.SupplierID,
		ProductID:       m.ProductID,
		ProductName:     m.ProductName,
		ProductSKU:      m.ProductSKU,
		Quantity:        m.Quantity,
		UnitCost:        m.UnitCost,
		Subtotal:        m.Subtotal,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// PurchaseOrderItemModelFromDomain creates a persistence model from a domain PurchaseOrderItem.
func PurchaseOrderItemModelFromDomain(i *procurement.PurchaseOrderItem) *PurchaseOrderItemModel {
	return &PurchaseOrderItemModel{
		ID:              i.ID,
		PurchaseOrderID: i.PurchaseOrderID,
		SupplierID:      i.SupplierID,
		ProductID:       i.ProductID,
		ProductName:     i.ProductName,
		ProductSKU:      i.ProductSKU,
		Quantity:        i.Quantity,
		UnitCost:        i.UnitCost,
		Subtotal:        i.Subtotal,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

// PurchaseOrderSupplierModel records one external supplier call of an order.
type PurchaseOrderSupplierModel struct {
	ID              uuid.UUID                       `gorm:"type:uuid;primary_key"`
	PurchaseOrderID uuid.UUID                       `gorm:"type:uuid;not null;index"`
	SupplierID      uuid.UUID                       `gorm:"type:uuid;not null;index:idx_pos_supplier_status,priority:1"`
	TransactionID   *string                         `gorm:"type:varchar(255)"`
	Status          procurement.SupplierOrderStatus `gorm:"type:varchar(20);not null;index:idx_pos_supplier_status,priority:2"`
	FailureReason   string                          `gorm:"type:text"`
	CreatedAt       time.Time                       `gorm:"not null"`
	UpdatedAt       time.Time                       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PurchaseOrderSupplierModel) TableName() string {
	return "purchase_order_suppliers"
}

// ToDomain converts the persistence model to a domain PurchaseOrderSupplier.
func (m *PurchaseOrderSupplierModel) ToDomain() *procurement.PurchaseOrderSupplier {
	return &procurement.PurchaseOrderSupplier{
		ID:              m.ID,
		PurchaseOrderID: m.PurchaseOrderID,
		SupplierID:      m.SupplierID,
		TransactionID:   m.TransactionID,
		Status:          m.Status,
		FailureReason:   m.FailureReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// PurchaseOrderSupplierModelFromDomain creates a persistence model from a domain sub-order.
func PurchaseOrderSupplierModelFromDomain(s *procurement.PurchaseOrderSupplier) *PurchaseOrderSupplierModel {
	return &PurchaseOrderSupplierModel{
		ID:              s.ID,
		PurchaseOrderID: s.PurchaseOrderID,
		SupplierID:      s.SupplierID,
		TransactionID:   s.TransactionID,
		Status:          s.Status,
		FailureReason:   s.FailureReason,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// VoucherModel is the persistence model for a voucher. Code and PinCode hold ciphertext.
type VoucherModel struct {
	ID                  uuid.UUID                 `gorm:"type:uuid;primary_key"`
	PurchaseOrderID     uuid.UUID                 `gorm:"type:uuid;not null;index;uniqueIndex:idx_voucher_order_stock,priority:1"`
	PurchaseOrderItemID *uuid.UUID                `gorm:"type:uuid;index"`
	Code                *string                   `gorm:"type:text"`
	CodeHash            *string                   `gorm:"type:varchar(64);uniqueIndex"`
	SerialNumber        *string                   `gorm:"type:text"`
	PinCode             *string                   `gorm:"type:text"`
	StockID             *string                   `gorm:"type:varchar(255);uniqueIndex:idx_voucher_order_stock,priority:2"`
	Status              procurement.VoucherStatus `gorm:"type:varchar(20);not null;index"`
	Source              procurement.VoucherSource `gorm:"type:varchar(20);not null"`
	CreatedAt           time.Time                 `gorm:"not null"`
	UpdatedAt           time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VoucherModel) TableName() string {
	return "vouchers"
}

// ToDomain converts the persistence model to a domain Voucher.
func (m *VoucherModel) ToDomain() *procurement.Voucher {
	return &procurement.Voucher{
		ID:                  m.ID,
		PurchaseOrderID:     m.PurchaseOrderID,
		PurchaseOrderItemID: m.PurchaseOrderItemID,
		Code:                m.Code,
		CodeHash:            m.CodeHash,
		SerialNumber:        m.SerialNumber,
		PinCode:             m.PinCode,
		StockID:             m.StockID,
		Status:              m.Status,
		Source:              m.Source,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// VoucherModelFromDomain creates a persistence model from a domain Voucher.
func VoucherModelFromDomain(v *procurement.Voucher) *VoucherModel {
	return &VoucherModel{
		ID:                  v.ID,
		PurchaseOrderID:     v.PurchaseOrderID,
		PurchaseOrderItemID: v.PurchaseOrderItemID,
		Code:                v.Code,
		CodeHash:            v.CodeHash,
		SerialNumber:        v.SerialNumber,
		PinCode:             v.PinCode,
		StockID:             v.StockID,
		Status:              v.Status,
		Source:              v.Source,
		CreatedAt:           v.CreatedAt,
		UpdatedAt:           v.UpdatedAt,
	}
}

// VoucherAuditLogModel is an append-only row written whenever a code is revealed.
type VoucherAuditLogModel struct {
	ID        uuid.UUID                       `gorm:"type:uuid;primary_key"`
	VoucherID uuid.UUID                       `gorm:"type:uuid;not null;index"`
	ActorID   string                          `gorm:"type:varchar(100);not null;index"`
	Action    procurement.VoucherAccessAction `gorm:"type:varchar(20);not null"`
	IPAddress string                          `gorm:"type:varchar(64)"`
	UserAgent string                          `gorm:"type:varchar(512)"`
	CreatedAt time.Time                       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VoucherAuditLogModel) TableName() string {
	return "voucher_audit_logs"
}

// VoucherAuditLogModelFromDomain creates a persistence model from a domain audit entry.
func VoucherAuditLogModelFromDomain(e *procurement.VoucherAuditLog) *VoucherAuditLogModel {
	return &VoucherAuditLogModel{
		ID:        e.ID,
		VoucherID: e.VoucherID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
}

// AllModels lists every model, in dependency order, for schema bootstrapping in tests.
func AllModels() []any {
	return []any{
		&SupplierModel{},
		&ProductModel{},
		&PurchaseOrderModel{},
		&PurchaseOrderItemModel{},
		&PurchaseOrderSupplierModel{},
		&VoucherModel{},
		&VoucherAuditLogModel{},
	}
}
