package models

import (
	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/shopspring/decimal"
)

// SupplierModel is the persistence model for the supplier catalog.
type SupplierModel struct {
	BaseModel
	Name   string                   `gorm:"type:varchar(200);not null"`
	Slug   procurement.SupplierSlug `gorm:"type:varchar(50);not null;uniqueIndex"`
	Type   procurement.SupplierType `gorm:"type:varchar(20);not null;default:'internal'"`
	Active bool                     `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (SupplierModel) TableName() string {
	return "suppliers"
}

// ToDomain converts the persistence model to a domain Supplier.
func (m *SupplierModel) ToDomain() *procurement.Supplier {
	return &procurement.Supplier{
		ID:     m.ID,
		Name:   m.Name,
		Slug:   m.Slug,
		Type:   m.Type,
		Active: m.Active,
	}
}

// ProductModel is the persistence model for the product catalog.
type ProductModel struct {
	BaseModel
	SupplierID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name       string          `gorm:"type:varchar(200);not null"`
	SKU        string          `gorm:"column:sku;type:varchar(100);not null;uniqueIndex"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product.
func (m *ProductModel) ToDomain() *procurement.Product {
	return &procurement.Product{
		ID:         m.ID,
		SupplierID: m.SupplierID,
		Name:       m.Name,
		SKU:        m.SKU,
		UnitCost:   m.UnitCost,
	}
}
