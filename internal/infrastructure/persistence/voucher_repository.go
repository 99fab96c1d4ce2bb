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

const (
	voucherBatchSize = 200
	// hashLookupChunk keeps IN lists well below driver parameter limits
	hashLookupChunk = 500
)

// ErrDuplicateVoucherCode is returned when a code fingerprint is already stored
var ErrDuplicateVoucherCode = shared.NewDomainError(shared.CodeValidationFailed, "voucher code already exists")

// GormVoucherRepository implements VoucherRepository using GORM
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewGormVoucherRepository creates a new GormVoucherRepository
func NewGormVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// FindByID finds a voucher by its ID
func (r *GormVoucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Voucher, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByOrderAndCodeHash finds the voucher of an order carrying the given code fingerprint
func (r *GormVoucherRepository) FindByOrderAndCodeHash(ctx context.Context, orderID uuid.UUID, codeHash string) (*procurement.Voucher, error) {
	return r.first(r.db.WithContext(ctx).
		Where("purchase_order_id = ? AND code_hash = ?", orderID, codeHash))
}

// FindByOrderAndStockID finds the voucher of an order allocated under a supplier stock id
func (r *GormVoucherRepository) FindByOrderAndStockID(ctx context.Context, orderID uuid.UUID, stockID string) (*procurement.Voucher, error) {
	return r.first(r.db.WithContext(ctx).
		Where("purchase_order_id = ? AND stock_id = ?", orderID, stockID))
}

func (r *GormVoucherRepository) first(query *gorm.DB) (*procurement.Voucher, error) {
	var model models.VoucherModel
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistingCodeHashes returns which of hashes are already stored on any voucher
func (r *GormVoucherRepository) ExistingCodeHashes(ctx context.Context, hashes []string) ([]string, error) {
	var found []string
	for start := 0; start < len(hashes); start += hashLookupChunk {
		end := min(start+hashLookupChunk, len(hashes))
		var chunk []string
		if err := r.db.WithContext(ctx).
			Model(&models.VoucherModel{}).
			Where("code_hash IN ?", hashes[start:end]).
			Pluck("code_hash", &chunk).Error; err != nil {
			return nil, err
		}
		found = append(found, chunk...)
	}
	return found, nil
}

// CountAvailableByItems counts available vouchers linked to the given order lines
func (r *GormVoucherRepository) CountAvailableByItems(ctx context.Context, itemIDs []uuid.UUID) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoucherModel{}).
		Where("purchase_order_item_id IN ? AND status = ?", itemIDs, procurement.VoucherStatusAvailable).
		Count(&count).Error
	return count, err
}

// CountByOrder groups the vouchers of an order by status
func (r *GormVoucherRepository) CountByOrder(ctx context.Context, orderID uuid.UUID) (map[procurement.VoucherStatus]int64, error) {
	var rows []struct {
		Status procurement.VoucherStatus
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.VoucherModel{}).
		Select("status, COUNT(*) AS total").
		Where("purchase_order_id = ?", orderID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[procurement.VoucherStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// Create inserts one voucher
func (r *GormVoucherRepository) Create(ctx context.Context, v *procurement.Voucher) error {
	return translateVoucherError(r.db.WithContext(ctx).Create(models.VoucherModelFromDomain(v)).Error)
}

// CreateBatch inserts vouchers in chunks
func (r *GormVoucherRepository) CreateBatch(ctx context.Context, vouchers []*procurement.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	rows := make([]*models.VoucherModel, len(vouchers))
	for i, v := range vouchers {
		rows[i] = models.VoucherModelFromDomain(v)
	}
	return translateVoucherError(r.db.WithContext(ctx).CreateInBatches(rows, voucherBatchSize).Error)
}

// Update writes every column of the voucher
func (r *GormVoucherRepository) Update(ctx context.Context, v *procurement.Voucher) error {
	model := models.VoucherModelFromDomain(v)
	result := r.db.WithContext(ctx).
		Model(&models.VoucherModel{}).
		Where("id = ?", v.ID).
		Select("purchase_order_item_id", "code", "code_hash", "serial_number", "pin_code", "stock_id", "status", "updated_at").
		Updates(model)
	if result.Error != nil {
		return translateVoucherError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func translateVoucherError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateVoucherCode
	}
	return err
}

var _ procurement.VoucherRepository = (*GormVoucherRepository)(nil)

// GormVoucherAuditLogRepository appends voucher access records
type GormVoucherAuditLogRepository struct {
	db *gorm.DB
}

// NewGormVoucherAuditLogRepository creates a new GormVoucherAuditLogRepository
func NewGormVoucherAuditLogRepository(db *gorm.DB) *GormVoucherAuditLogRepository {
	return &GormVoucherAuditLogRepository{db: db}
}

// Append inserts an audit entry
func (r *GormVoucherAuditLogRepository) Append(ctx context.Context, entry *procurement.VoucherAuditLog) error {
	return r.db.WithContext(ctx).Create(models.VoucherAuditLogModelFromDomain(entry)).Error
}

var _ procurement.VoucherAuditLogRepository = (*GormVoucherAuditLogRepository)(nil)
