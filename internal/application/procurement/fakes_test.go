package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ==================== In-memory store ====================

// memStore is a transactional in-memory implementation of the procurement
// repositories. A failing Execute restores the state it started from.
type memStore struct {
	orders    map[uuid.UUID]procurement.PurchaseOrder
	subOrders map[uuid.UUID]procurement.PurchaseOrderSupplier
	vouchers  map[uuid.UUID]procurement.Voucher
	audits    []procurement.VoucherAuditLog
	failures  map[string]error

	// createBudget limits successful voucher inserts when >= 0
	createBudget int
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[uuid.UUID]procurement.PurchaseOrder),
		subOrders: make(map[uuid.UUID]procurement.PurchaseOrderSupplier),
		vouchers:  make(map[uuid.UUID]procurement.Voucher),
		failures:  make(map[string]error),

		createBudget: -1,
	}
}

func (s *memStore) failOn(op string, err error) { s.failures[op] = err }

func (s *memStore) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func (s *memStore) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	orders    map[uuid.UUID]procurement.PurchaseOrder
	subOrders map[uuid.UUID]procurement.PurchaseOrderSupplier
	vouchers  map[uuid.UUID]procurement.Voucher
	audits    []procurement.VoucherAuditLog
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		orders:    make(map[uuid.UUID]procurement.PurchaseOrder, len(s.orders)),
		subOrders: make(map[uuid.UUID]procurement.PurchaseOrderSupplier, len(s.subOrders)),
		vouchers:  make(map[uuid.UUID]procurement.Voucher, len(s.vouchers)),
		audits:    append([]procurement.VoucherAuditLog(nil), s.audits...),
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.subOrders {
		snap.subOrders[k] = v
	}
	for k, v := range s.vouchers {
		snap.vouchers[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.orders = snap.orders
	s.subOrders = snap.subOrders
	s.vouchers = snap.vouchers
	s.audits = snap.audits
}

func (s *memStore) PurchaseOrders() procurement.PurchaseOrderRepository { return memOrderRepo{s} }
func (s *memStore) SubOrders() procurement.SubOrderRepository           { return memSubOrderRepo{s} }
func (s *memStore) Vouchers() procurement.VoucherRepository             { return memVoucherRepo{s} }
func (s *memStore) AuditLogs() procurement.VoucherAuditLogRepository    { return memAuditRepo{s} }

// seedOrder stores an order and its sub-orders directly
func (s *memStore) seedOrder(o *procurement.PurchaseOrder) {
	for _, sub := range o.SubOrders {
		s.subOrders[sub.ID] = sub
	}
	stored := *o
	stored.Items = append([]procurement.PurchaseOrderItem(nil), o.Items...)
	stored.SubOrders = nil
	s.orders[o.ID] = stored
}

func (s *memStore) vouchersForOrder(orderID uuid.UUID) []procurement.Voucher {
	var out []procurement.Voucher
	for _, v := range s.vouchers {
		if v.PurchaseOrderID == orderID {
			out = append(out, v)
		}
	}
	return out
}

func (s *memStore) countVouchers(orderID uuid.UUID, status procurement.VoucherStatus) int {
	n := 0
	for _, v := range s.vouchersForOrder(orderID) {
		if v.Status == status {
			n++
		}
	}
	return n
}

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.PurchaseOrder, error) {
	if err := r.s.fail("orders.FindByID"); err != nil {
		return nil, err
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	o.Items = append([]procurement.PurchaseOrderItem(nil), o.Items...)
	o.SubOrders = nil
	for _, sub := range r.s.subOrders {
		if sub.PurchaseOrderID == id {
			o.SubOrders = append(o.SubOrders, sub)
		}
	}
	return &o, nil
}

func (r memOrderRepo) Create(_ context.Context, order *procurement.PurchaseOrder) error {
	if err := r.s.fail("orders.Create"); err != nil {
		return err
	}
	r.s.seedOrder(order)
	return nil
}

func (r memOrderRepo) UpdateStatus(_ context.Context, order *procurement.PurchaseOrder) error {
	if err := r.s.fail("orders.UpdateStatus"); err != nil {
		return err
	}
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Status = order.Status
	r.s.orders[order.ID] = stored
	return nil
}

type memSubOrderRepo struct{ s *memStore }

func (r memSubOrderRepo) FindPending(_ context.Context, supplierID uuid.UUID) ([]procurement.PurchaseOrderSupplier, error) {
	if err := r.s.fail("subOrders.FindPending"); err != nil {
		return nil, err
	}
	var out []procurement.PurchaseOrderSupplier
	for _, sub := range r.s.subOrders {
		if sub.SupplierID == supplierID && sub.IsPending() {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r memSubOrderRepo) ClaimPending(_ context.Context, id uuid.UUID) (*procurement.PurchaseOrderSupplier, error) {
	sub, ok := r.s.subOrders[id]
	if !ok || !sub.IsPending() {
		return nil, shared.ErrNotFound
	}
	return &sub, nil
}

func (r memSubOrderRepo) FindByOrder(_ context.Context, orderID uuid.UUID) ([]procurement.PurchaseOrderSupplier, error) {
	var out []procurement.PurchaseOrderSupplier
	for _, sub := range r.s.subOrders {
		if sub.PurchaseOrderID == orderID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r memSubOrderRepo) UpdateStatus(_ context.Context, sub *procurement.PurchaseOrderSupplier) error {
	r.s.subOrders[sub.ID] = *sub
	return nil
}

type memVoucherRepo struct{ s *memStore }

func (r memVoucherRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.Voucher, error) {
	v, ok := r.s.vouchers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &v, nil
}

func (r memVoucherRepo) FindByOrderAndCodeHash(_ context.Context, orderID uuid.UUID, codeHash string) (*procurement.Voucher, error) {
	for _, v := range r.s.vouchers {
		if v.PurchaseOrderID == orderID && v.CodeHash != nil && *v.CodeHash == codeHash {
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memVoucherRepo) FindByOrderAndStockID(_ context.Context, orderID uuid.UUID, stockID string) (*procurement.Voucher, error) {
	for _, v := range r.s.vouchers {
		if v.PurchaseOrderID == orderID && v.StockID != nil && *v.StockID == stockID {
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memVoucherRepo) ExistingCodeHashes(_ context.Context, hashes []string) ([]string, error) {
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	var out []string
	for _, v := range r.s.vouchers {
		if v.CodeHash != nil && want[*v.CodeHash] {
			out = append(out, *v.CodeHash)
		}
	}
	return out, nil
}

func (r memVoucherRepo) CountAvailableByItems(_ context.Context, itemIDs []uuid.UUID) (int64, error) {
	want := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	var n int64
	for _, v := range r.s.vouchers {
		if v.PurchaseOrderItemID != nil && want[*v.PurchaseOrderItemID] && v.Status == procurement.VoucherStatusAvailable {
			n++
		}
	}
	return n, nil
}

func (r memVoucherRepo) CountByOrder(_ context.Context, orderID uuid.UUID) (map[procurement.VoucherStatus]int64, error) {
	out := make(map[procurement.VoucherStatus]int64)
	for _, v := range r.s.vouchersForOrder(orderID) {
		out[v.Status]++
	}
	return out, nil
}

func (r memVoucherRepo) Create(_ context.Context, v *procurement.Voucher) error {
	if err := r.s.fail("vouchers.Create"); err != nil {
		return err
	}
	if r.s.createBudget == 0 {
		return errors.New("voucher insert failed")
	}
	if r.s.createBudget > 0 {
		r.s.createBudget--
	}
	r.s.vouchers[v.ID] = *v
	return nil
}

func (r memVoucherRepo) CreateBatch(ctx context.Context, vouchers []*procurement.Voucher) error {
	if err := r.s.fail("vouchers.CreateBatch"); err != nil {
		return err
	}
	for _, v := range vouchers {
		r.s.vouchers[v.ID] = *v
	}
	return nil
}

func (r memVoucherRepo) Update(_ context.Context, v *procurement.Voucher) error {
	if _, ok := r.s.vouchers[v.ID]; !ok {
		return shared.ErrNotFound
	}
	r.s.vouchers[v.ID] = *v
	return nil
}

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Append(_ context.Context, entry *procurement.VoucherAuditLog) error {
	if err := r.s.fail("audit.Append"); err != nil {
		return err
	}
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

// ==================== Catalog ====================

type memCatalog struct {
	suppliers map[uuid.UUID]*procurement.Supplier
	products  map[uuid.UUID]*procurement.Product
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		suppliers: make(map[uuid.UUID]*procurement.Supplier),
		products:  make(map[uuid.UUID]*procurement.Product),
	}
}

func (c *memCatalog) addSupplier(name string, slug procurement.SupplierSlug, typ procurement.SupplierType) *procurement.Supplier {
	s := &procurement.Supplier{ID: uuid.New(), Name: name, Slug: slug, Type: typ, Active: true}
	c.suppliers[s.ID] = s
	return s
}

func (c *memCatalog) addProduct(supplier *procurement.Supplier, sku, cost string) *procurement.Product {
	p := &procurement.Product{
		ID:         uuid.New(),
		SupplierID: supplier.ID,
		Name:       "Product " + sku,
		SKU:        sku,
		UnitCost:   decimal.RequireFromString(cost),
	}
	c.products[p.ID] = p
	return p
}

func (c *memCatalog) FindProduct(_ context.Context, id uuid.UUID) (*procurement.Product, error) {
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

func (c *memCatalog) FindSupplier(_ context.Context, id uuid.UUID) (*procurement.Supplier, error) {
	if s, ok := c.suppliers[id]; ok {
		return s, nil
	}
	return nil, shared.ErrNotFound
}

func (c *memCatalog) FindSupplierBySlug(_ context.Context, slug procurement.SupplierSlug) (*procurement.Supplier, error) {
	for _, s := range c.suppliers {
		if s.Slug == slug {
			return s, nil
		}
	}
	return nil, shared.ErrNotFound
}

// ==================== Cipher ====================

// fakeCipher produces readable, randomized ciphertext so tests can assert on it
type fakeCipher struct {
	mu sync.Mutex
	n  int
}

func (c *fakeCipher) Encrypt(plaintext string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("enc:%d:%s", c.n, plaintext), nil
}

func (c *fakeCipher) Decrypt(encoded string) (string, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || parts[0] != "enc" {
		return "", procurement.ErrDecryptionFailed
	}
	return parts[2], nil
}

func (c *fakeCipher) SafeDecrypt(encoded string) (string, bool) {
	p, err := c.Decrypt(encoded)
	return p, err == nil
}

func (c *fakeCipher) Fingerprint(plaintext string) string {
	return "fp:" + plaintext
}

// ==================== Mocks ====================

type MockAsyncSupplierClient struct {
	mock.Mock
}

func (m *MockAsyncSupplierClient) PlaceOrder(ctx context.Context, items []procurement.OrderLine, orderNumber string) (*procurement.AsyncOrderResult, error) {
	args := m.Called(ctx, items, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*procurement.AsyncOrderResult), args.Error(1)
}

func (m *MockAsyncSupplierClient) FetchVoucherCodes(ctx context.Context, transactionID string) (*procurement.VoucherCodesResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*procurement.VoucherCodesResult), args.Error(1)
}

type MockSyncSupplierClient struct {
	mock.Mock
}

func (m *MockSyncSupplierClient) PlaceOrder(ctx context.Context, sku string, quantity int, referenceNumber string) (*procurement.UnitVoucher, error) {
	args := m.Called(ctx, sku, quantity, referenceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*procurement.UnitVoucher), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// eventTypes extracts event types from a recorded Publish call
func eventTypes(call mock.Call) []string {
	events := call.Arguments.Get(1).([]shared.DomainEvent)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}
