package procurement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupplierType distinguishes stock held in-house from drop-ship suppliers with an API
type SupplierType string

const (
	SupplierTypeInternal SupplierType = "internal"
	SupplierTypeExternal SupplierType = "external"
)

// SupplierSlug identifies an external supplier integration.
type SupplierSlug string

// The closed set of integrated suppliers. Each has its own protocol, see SupplierClients.
const (
	// SupplierSlugEzCards delivers codes asynchronously behind a transaction id
	SupplierSlugEzCards SupplierSlug = "ezcards"
	// SupplierSlugGift2Games returns one code per single-unit order call
	SupplierSlugGift2Games SupplierSlug = "gift2games"
)

// Supplier is a read model of the supplier catalog
type Supplier struct {
	ID     uuid.UUID
	Name   string
	Slug   SupplierSlug
	Type   SupplierType
	Active bool
}

// IsExternal returns true when orders for this supplier go through an API
func (s *Supplier) IsExternal() bool {
	return s.Type == SupplierTypeExternal
}

// Product is a read model of the product catalog.
// UnitCost is the current purchase price and is copied onto order items.
type Product struct {
	ID         uuid.UUID
	SupplierID uuid.UUID
	Name       string
	SKU        string
	UnitCost   decimal.Decimal
}
