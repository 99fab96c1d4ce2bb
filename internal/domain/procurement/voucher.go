package procurement

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoucherSource records how a voucher entered the system
type VoucherSource string

const (
	VoucherSourceSupplier VoucherSource = "supplier"
	VoucherSourceImport   VoucherSource = "import"
)

// SealedCode is an encrypted voucher code together with its keyed fingerprint.
// The fingerprint is deterministic, so it can be used for equality lookups
// while the ciphertext is randomized on every encryption.
type SealedCode struct {
	Ciphertext  string
	Fingerprint string
}

// Voucher is a single redeemable code. Code and PinCode hold ciphertext only.
type Voucher struct {
	ID                  uuid.UUID
	PurchaseOrderID     uuid.UUID
	PurchaseOrderItemID *uuid.UUID
	Code                *string
	CodeHash            *string
	SerialNumber        *string
	PinCode             *string
	StockID             *string
	Status              VoucherStatus
	Source              VoucherSource
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func newVoucher(orderID uuid.UUID, itemID *uuid.UUID, status VoucherStatus, source VoucherSource) *Voucher {
	now := time.Now()
	return &Voucher{
		ID:                  uuid.New(),
		PurchaseOrderID:     orderID,
		PurchaseOrderItemID: itemID,
		Status:              status,
		Source:              source,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewAvailableVoucher creates a voucher whose code is already known
func NewAvailableVoucher(orderID uuid.UUID, itemID *uuid.UUID, code SealedCode, source VoucherSource) (*Voucher, error) {
	if orderID == uuid.Nil {
		return nil, NewValidationError("voucher requires a purchase order")
	}
	if code.Ciphertext == "" || code.Fingerprint == "" {
		return nil, NewValidationError("voucher code cannot be empty")
	}
	v := newVoucher(orderID, itemID, VoucherStatusAvailable, source)
	v.Code = &code.Ciphertext
	v.CodeHash = &code.Fingerprint
	return v, nil
}

// NewPlaceholderVoucher creates a voucher the supplier has allocated but not yet issued.
// It is keyed by the supplier stock id until the code arrives.
func NewPlaceholderVoucher(orderID uuid.UUID, itemID *uuid.UUID, stockID string) (*Voucher, error) {
	if strings.TrimSpace(stockID) == "" {
		return nil, NewValidationError("placeholder voucher requires a stock id")
	}
	v := newVoucher(orderID, itemID, VoucherStatusProcessing, VoucherSourceSupplier)
	v.StockID = &stockID
	return v, nil
}

// IsPlaceholder reports whether the code has not been delivered yet
func (v *Voucher) IsPlaceholder() bool {
	return v.Code == nil
}

// Fulfil stores a delivered code and makes the voucher available.
// Calling it again on an available voucher refreshes the code fields.
func (v *Voucher) Fulfil(code SealedCode) error {
	if code.Ciphertext == "" || code.Fingerprint == "" {
		return NewValidationError("voucher code cannot be empty")
	}
	if !v.Status.CanTransitionTo(VoucherStatusAvailable) {
		return NewTransitionError("voucher", v.Status, VoucherStatusAvailable)
	}
	v.Code = &code.Ciphertext
	v.CodeHash = &code.Fingerprint
	v.Status = VoucherStatusAvailable
	v.UpdatedAt = time.Now()
	return nil
}

// MarkProcessing is only valid for vouchers that never became available
func (v *Voucher) MarkProcessing() error {
	if !v.Status.CanTransitionTo(VoucherStatusProcessing) {
		return NewTransitionError("voucher", v.Status, VoucherStatusProcessing)
	}
	v.Status = VoucherStatusProcessing
	v.UpdatedAt = time.Now()
	return nil
}

// SetPinCode stores an encrypted PIN
func (v *Voucher) SetPinCode(ciphertext string) {
	if ciphertext == "" {
		return
	}
	v.PinCode = &ciphertext
	v.UpdatedAt = time.Now()
}

// SetSerialNumber stores the supplier serial number
func (v *Voucher) SetSerialNumber(serial string) {
	if serial == "" {
		return
	}
	v.SerialNumber = &serial
	v.UpdatedAt = time.Now()
}

// SetStockID stores the supplier stock id used before a code exists
func (v *Voucher) SetStockID(stockID string) {
	if stockID == "" {
		return
	}
	v.StockID = &stockID
	v.UpdatedAt = time.Now()
}

// AssignItem links the voucher to its order line
func (v *Voucher) AssignItem(itemID uuid.UUID) {
	v.PurchaseOrderItemID = &itemID
	v.UpdatedAt = time.Now()
}

// VoucherAccessAction is what an operator did with a voucher code
type VoucherAccessAction string

const (
	VoucherAccessView VoucherAccessAction = "view"
	VoucherAccessCopy VoucherAccessAction = "copy"
)

func (a VoucherAccessAction) IsValid() bool {
	return a == VoucherAccessView || a == VoucherAccessCopy
}

// VoucherAuditLog is an append-only record of a voucher code being revealed
type VoucherAuditLog struct {
	ID        uuid.UUID
	VoucherID uuid.UUID
	ActorID   string
	Action    VoucherAccessAction
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// NewVoucherAuditLog creates an audit entry
func NewVoucherAuditLog(voucherID uuid.UUID, actorID string, action VoucherAccessAction, ip, userAgent string) (*VoucherAuditLog, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, NewValidationError("actor is required to access a voucher code")
	}
	if !action.IsValid() {
		return nil, NewValidationError("unknown voucher access action %q", action)
	}
	return &VoucherAuditLog{
		ID:        uuid.New(),
		VoucherID: voucherID,
		ActorID:   actorID,
		Action:    action,
		IPAddress: truncate(ip, 64),
		UserAgent: truncate(userAgent, 512),
		CreatedAt: time.Now(),
	}, nil
}
