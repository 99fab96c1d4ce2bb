package procurement

import "context"

// Supplier-side statuses reported by the asynchronous supplier
const (
	SupplierStatusProcessing = "PROCESSING"
	SupplierStatusCompleted  = "COMPLETED"
	SupplierStatusFailed     = "FAILED"
	SupplierStatusCancelled  = "CANCELLED"
	SupplierStatusCanceled   = "CANCELED"
	SupplierStatusRejected   = "REJECTED"
)

// MaxSupplierReferenceLength bounds transaction and stock ids accepted from a supplier
const MaxSupplierReferenceLength = 255

// UnitVoucher is the result of one single-unit order with the synchronous supplier
type UnitVoucher struct {
	Code         string
	SerialNumber string
	PinCode      string
}

// SyncSupplierClient places single-unit orders that return the voucher immediately
type SyncSupplierClient interface {
	PlaceOrder(ctx context.Context, sku string, quantity int, referenceNumber string) (*UnitVoucher, error)
}

// OrderLine is one product requested from the asynchronous supplier
type OrderLine struct {
	SKU      string
	Quantity int
}

// OrderLineResult is the supplier's per-line acknowledgement
type OrderLineResult struct {
	SKU      string
	Quantity int
	Status   string
}

// AsyncOrderResult is the acknowledgement of an asynchronous order
type AsyncOrderResult struct {
	TransactionID string
	Status        string
	LineResults   []OrderLineResult
}

// VoucherCodeEntry is one allocated unit in a fetch response.
// RedeemCode is empty until the supplier has generated it.
type VoucherCodeEntry struct {
	StockID    string
	Status     string
	RedeemCode string
	PinCode    string
}

// IsCompleted returns true for an entry that carries its final code
func (e VoucherCodeEntry) IsCompleted() bool {
	return e.Status == SupplierStatusCompleted && e.RedeemCode != ""
}

// IsPending returns true for an entry that has a stock id but no code yet
func (e VoucherCodeEntry) IsPending() bool {
	return e.Status == SupplierStatusProcessing && e.RedeemCode == "" && e.StockID != ""
}

// IsFailed returns true for an entry the supplier will never deliver
func (e VoucherCodeEntry) IsFailed() bool {
	switch e.Status {
	case SupplierStatusFailed, SupplierStatusCancelled, SupplierStatusCanceled, SupplierStatusRejected:
		return true
	}
	return false
}

// VoucherCodesLine groups fetched entries by SKU
type VoucherCodesLine struct {
	SKU   string
	Codes []VoucherCodeEntry
}

// VoucherCodesResult is the response to a voucher code poll
type VoucherCodesResult struct {
	Items []VoucherCodesLine
}

// AsyncSupplierClient places whole orders and is polled later for the codes
type AsyncSupplierClient interface {
	PlaceOrder(ctx context.Context, items []OrderLine, orderNumber string) (*AsyncOrderResult, error)
	FetchVoucherCodes(ctx context.Context, transactionID string) (*VoucherCodesResult, error)
}

// SupplierClients is the closed mapping from supplier slug to integration.
// Only the two known suppliers are represented; a nil field means not configured.
type SupplierClients struct {
	EzCards    AsyncSupplierClient
	Gift2Games SyncSupplierClient
}

// CodeCipher seals voucher secrets before they reach storage
type CodeCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
	SafeDecrypt(encoded string) (string, bool)
	Fingerprint(plaintext string) string
}

// Seal encrypts code and computes its fingerprint
func Seal(c CodeCipher, code string) (SealedCode, error) {
	ct, err := c.Encrypt(code)
	if err != nil {
		return SealedCode{}, err
	}
	return SealedCode{Ciphertext: ct, Fingerprint: c.Fingerprint(code)}, nil
}
