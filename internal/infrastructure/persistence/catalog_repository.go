package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalogRepository reads suppliers and products
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindProduct finds a product by its ID
func (r *GormCatalogRepository) FindProduct(ctx context.Context, id uuid.UUID) (*procurement.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSupplier finds a supplier by its ID
func (r *GormCatalogRepository) FindSupplier(ctx context.Context, id uuid.UUID) (*procurement.Supplier, error) {
	var model models.SupplierModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSupplierBySlug finds the supplier row of an integration
func (r *GormCatalogRepository) FindSupplierBySlug(ctx context.Context, slug procurement.SupplierSlug) (*procurement.Supplier, error) {
	var model models.SupplierModel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ procurement.CatalogReader = (*GormCatalogRepository)(nil)
