package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSubOrderRepository persists purchase_order_suppliers rows
type GormSubOrderRepository struct {
	db *gorm.DB
}

// NewGormSubOrderRepository creates a new GormSubOrderRepository
func NewGormSubOrderRepository(db *gorm.DB) *GormSubOrderRepository {
	return &GormSubOrderRepository{db: db}
}

func pendingScope(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND transaction_id IS NOT NULL AND transaction_id <> ''",
		procurement.SupplierOrderStatusProcessing)
}

// FindPending lists processing sub-orders with a transaction id, oldest first
func (r *GormSubOrderRepository) FindPending(ctx context.Context, supplierID uuid.UUID) ([]procurement.PurchaseOrderSupplier, error) {
	var rows []models.PurchaseOrderSupplierModel
	if err := r.db.WithContext(ctx).
		Scopes(pendingScope).
		Where("supplier_id = ?", supplierID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSubOrders(rows), nil
}

// ClaimPending re-reads the sub-order under FOR UPDATE SKIP LOCKED on PostgreSQL.
// A row held by another run, or one that is no longer pending, yields ErrNotFound.
func (r *GormSubOrderRepository) ClaimPending(ctx context.Context, id uuid.UUID) (*procurement.PurchaseOrderSupplier, error) {
	query := r.db.WithContext(ctx).Scopes(pendingScope).Where("id = ?", id)
	if isPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var row models.PurchaseOrderSupplierModel
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

// FindByOrder lists every sub-order of a purchase order
func (r *GormSubOrderRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]procurement.PurchaseOrderSupplier, error) {
	var rows []models.PurchaseOrderSupplierModel
	if err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSubOrders(rows), nil
}

// UpdateStatus persists status and failure reason
func (r *GormSubOrderRepository) UpdateStatus(ctx context.Context, sub *procurement.PurchaseOrderSupplier) error {
	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrderSupplierModel{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"status":         sub.Status,
			"failure_reason": sub.FailureReason,
			"updated_at":     updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountPendingSubOrders returns the pending backlog keyed by supplier slug
func (r *GormSubOrderRepository) CountPendingSubOrders(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Slug  string
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Table("purchase_order_suppliers AS pos").
		Select("s.slug AS slug, COUNT(*) AS total").
		Joins("JOIN suppliers s ON s.id = pos.supplier_id").
		Where("pos.status = ? AND pos.transaction_id IS NOT NULL AND pos.transaction_id <> ''",
			procurement.SupplierOrderStatusProcessing).
		Group("s.slug").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Slug] = row.Total
	}
	return counts, nil
}

func toSubOrders(rows []models.PurchaseOrderSupplierModel) []procurement.PurchaseOrderSupplier {
	subs := make([]procurement.PurchaseOrderSupplier, len(rows))
	for i := range rows {
		subs[i] = *rows[i].ToDomain()
	}
	return subs
}

var _ procurement.SubOrderRepository = (*GormSubOrderRepository)(nil)
