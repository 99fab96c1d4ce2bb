package persistence

import (
	"context"

	appprocurement "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/domain/procurement"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// If fn returns an error the transaction is rolled back, otherwise it is committed.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appprocurement.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) PurchaseOrders() procurement.PurchaseOrderRepository {
	return NewGormPurchaseOrderRepository(r.tx)
}

func (r *gormTransactionalRepositories) SubOrders() procurement.SubOrderRepository {
	return NewGormSubOrderRepository(r.tx)
}

func (r *gormTransactionalRepositories) Vouchers() procurement.VoucherRepository {
	return NewGormVoucherRepository(r.tx)
}

func (r *gormTransactionalRepositories) AuditLogs() procurement.VoucherAuditLogRepository {
	return NewGormVoucherAuditLogRepository(r.tx)
}

var _ appprocurement.TransactionScope = (*GormTransactionScope)(nil)
var _ appprocurement.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
