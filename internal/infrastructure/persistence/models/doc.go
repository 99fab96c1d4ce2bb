// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities carry no GORM tags
// 2. Persistence models hold all GORM annotations and table mappings
// 3. ToDomain/FromDomain mappers convert between the two
//
// Structure:
// - base.go: shared timestamp columns
// - catalog.go: suppliers and products
// - procurement.go: purchase orders, items, supplier sub-orders, vouchers, audit log
package models
