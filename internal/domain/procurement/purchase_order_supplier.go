package procurement

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PurchaseOrderSupplier tracks the fulfillment of one external supplier's lines
// within a purchase order. Internal suppliers never get one.
type PurchaseOrderSupplier struct {
	ID              uuid.UUID
	PurchaseOrderID uuid.UUID
	SupplierID      uuid.UUID
	TransactionID   *string
	Status          SupplierOrderStatus
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func newSubOrder(supplierID uuid.UUID, status SupplierOrderStatus) *PurchaseOrderSupplier {
	now := time.Now()
	return &PurchaseOrderSupplier{
		ID:         uuid.New(),
		SupplierID: supplierID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewProcessingSubOrder records an accepted asynchronous order
func NewProcessingSubOrder(supplierID uuid.UUID, transactionID string) (*PurchaseOrderSupplier, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, NewValidationError("transaction id is required for a processing sub-order")
	}
	sub := newSubOrder(supplierID, SupplierOrderStatusProcessing)
	sub.TransactionID = &transactionID
	return sub, nil
}

// NewCompletedSubOrder records a supplier call that delivered everything immediately
func NewCompletedSubOrder(supplierID uuid.UUID) *PurchaseOrderSupplier {
	return newSubOrder(supplierID, SupplierOrderStatusCompleted)
}

// NewFailedSubOrder records a supplier call that could not be placed
func NewFailedSubOrder(supplierID uuid.UUID, reason string) *PurchaseOrderSupplier {
	sub := newSubOrder(supplierID, SupplierOrderStatusFailed)
	sub.FailureReason = truncate(reason, 1000)
	return sub
}

// IsPending returns true when reconciliation still has work for this sub-order
func (s *PurchaseOrderSupplier) IsPending() bool {
	return s.Status == SupplierOrderStatusProcessing && s.TransactionID != nil && *s.TransactionID != ""
}

// TransitionTo applies a status change allowed by the transition table.
// It returns false when the status was already current.
func (s *PurchaseOrderSupplier) TransitionTo(status SupplierOrderStatus) (bool, error) {
	if !status.IsValid() {
		return false, NewValidationError("unknown sub-order status %q", status)
	}
	if !s.Status.CanTransitionTo(status) {
		return false, NewTransitionError("sub-order", s.Status, status)
	}
	if s.Status == status {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return true, nil
}

// Complete marks the sub-order as fully delivered
func (s *PurchaseOrderSupplier) Complete() (bool, error) {
	return s.TransitionTo(SupplierOrderStatusCompleted)
}

// Fail marks the sub-order as unrecoverable
func (s *PurchaseOrderSupplier) Fail(reason string) (bool, error) {
	changed, err := s.TransitionTo(SupplierOrderStatusFailed)
	if err == nil && changed {
		s.FailureReason = truncate(reason, 1000)
	}
	return changed, err
}

// truncate cuts s to at most n bytes without splitting a rune. Invalid UTF-8
// is replaced first so the result is always storable in a text column.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
