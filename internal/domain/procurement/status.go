package procurement

// OrderStatus represents the overall status of a purchase order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// IsTerminal returns true when no further status change is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusFailed
}

// CanTransitionTo checks if the status can transition to the target status.
// Re-applying the current status is always allowed so that recomputation stays idempotent.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s == target {
		return true
	}
	switch s {
	case OrderStatusPending:
		return target == OrderStatusProcessing || target == OrderStatusCompleted ||
			target == OrderStatusFailed || target == OrderStatusCancelled
	case OrderStatusProcessing:
		return target == OrderStatusCompleted || target == OrderStatusFailed ||
			target == OrderStatusCancelled
	}
	return false
}

// SupplierOrderStatus is the status of one external supplier's slice of an order
type SupplierOrderStatus string

const (
	SupplierOrderStatusProcessing SupplierOrderStatus = "processing"
	SupplierOrderStatusCompleted  SupplierOrderStatus = "completed"
	SupplierOrderStatusFailed     SupplierOrderStatus = "failed"
)

func (s SupplierOrderStatus) IsValid() bool {
	switch s {
	case SupplierOrderStatusProcessing, SupplierOrderStatusCompleted, SupplierOrderStatusFailed:
		return true
	}
	return false
}

func (s SupplierOrderStatus) String() string {
	return string(s)
}

// CanTransitionTo allows processing -> completed|failed and same-state re-application.
func (s SupplierOrderStatus) CanTransitionTo(target SupplierOrderStatus) bool {
	if s == target {
		return true
	}
	return s == SupplierOrderStatusProcessing &&
		(target == SupplierOrderStatusCompleted || target == SupplierOrderStatusFailed)
}

// VoucherStatus is the availability of a single voucher
type VoucherStatus string

const (
	// VoucherStatusProcessing marks a placeholder whose code the supplier has not generated yet
	VoucherStatusProcessing VoucherStatus = "processing"
	VoucherStatusAvailable  VoucherStatus = "available"
)

func (s VoucherStatus) IsValid() bool {
	return s == VoucherStatusProcessing || s == VoucherStatusAvailable
}

func (s VoucherStatus) String() string {
	return string(s)
}

// CanTransitionTo allows processing -> available only. An available voucher never
// goes back to processing.
func (s VoucherStatus) CanTransitionTo(target VoucherStatus) bool {
	if s == target {
		return true
	}
	return s == VoucherStatusProcessing && target == VoucherStatusAvailable
}
