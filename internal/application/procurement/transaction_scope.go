package procurement

import (
	"context"

	"github.com/manavault/backend/internal/domain/procurement"
)

// TransactionScope provides transactional access to procurement repositories.
// If fn returns an error the transaction is rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes repositories bound to the same database transaction.
type TransactionalRepositories interface {
	PurchaseOrders() procurement.PurchaseOrderRepository
	SubOrders() procurement.SubOrderRepository
	Vouchers() procurement.VoucherRepository
	AuditLogs() procurement.VoucherAuditLogRepository
}

// NoOpTransactionScope runs fn against plain repositories without a transaction.
// Used by tests and tooling that has no database transaction support.
type NoOpTransactionScope struct {
	orders    procurement.PurchaseOrderRepository
	subOrders procurement.SubOrderRepository
	vouchers  procurement.VoucherRepository
	auditLogs procurement.VoucherAuditLogRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	orders procurement.PurchaseOrderRepository,
	subOrders procurement.SubOrderRepository,
	vouchers procurement.VoucherRepository,
	auditLogs procurement.VoucherAuditLogRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		orders:    orders,
		subOrders: subOrders,
		vouchers:  vouchers,
		auditLogs: auditLogs,
	}
}

func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) PurchaseOrders() procurement.PurchaseOrderRepository { return s.orders }
func (s *NoOpTransactionScope) SubOrders() procurement.SubOrderRepository           { return s.subOrders }
func (s *NoOpTransactionScope) Vouchers() procurement.VoucherRepository             { return s.vouchers }
func (s *NoOpTransactionScope) AuditLogs() procurement.VoucherAuditLogRepository    { return s.auditLogs }

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
