package procurement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reconcileFixture struct {
	store     *memStore
	catalog   *memCatalog
	cipher    *fakeCipher
	ezcards   *procurement.Supplier
	client    *MockAsyncSupplierClient
	publisher *MockEventPublisher
	svc       *ReconciliationService
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		store:     newMemStore(),
		catalog:   newMemCatalog(),
		cipher:    &fakeCipher{},
		client:    new(MockAsyncSupplierClient),
		publisher: new(MockEventPublisher),
	}
	f.ezcards = f.catalog.addSupplier("EzCards", procurement.SupplierSlugEzCards, procurement.SupplierTypeExternal)
	f.svc = NewReconciliationService(f.catalog, f.store.SubOrders(), f.store, f.client, f.cipher, zap.NewNop())
	f.svc.SetEventPublisher(f.publisher)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

// seedPendingOrder stores a processing order with one ezcards line and its sub-order
func (f *reconcileFixture) seedPendingOrder(t *testing.T, number, sku string, qty int, txID string) (*procurement.PurchaseOrder, *procurement.PurchaseOrderSupplier) {
	t.Helper()
	product := f.catalog.addProduct(f.ezcards, sku, "10.00")
	order, err := procurement.NewPurchaseOrder(number)
	require.NoError(t, err)
	_, err = order.AddItem(f.ezcards.ID, product, qty)
	require.NoError(t, err)
	sub, err := procurement.NewProcessingSubOrder(f.ezcards.ID, txID)
	require.NoError(t, err)
	order.AddSubOrder(sub)
	_, err = order.TransitionTo(procurement.OrderStatusProcessing)
	require.NoError(t, err)
	order.ClearDomainEvents()
	f.store.seedOrder(order)
	return order, &order.SubOrders[0]
}

func completedEntry(stockID, code string) procurement.VoucherCodeEntry {
	return procurement.VoucherCodeEntry{StockID: stockID, Status: procurement.SupplierStatusCompleted, RedeemCode: code, PinCode: "pin-" + code}
}

func pendingEntry(stockID string) procurement.VoucherCodeEntry {
	return procurement.VoucherCodeEntry{StockID: stockID, Status: procurement.SupplierStatusProcessing}
}

func codesFor(sku string, entries ...procurement.VoucherCodeEntry) *procurement.VoucherCodesResult {
	return &procurement.VoucherCodesResult{Items: []procurement.VoucherCodesLine{{SKU: sku, Codes: entries}}}
}

func TestReconciliationService_PartialDelivery(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-1", "EZ-STEAM", 3, "tx-1")

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-1").Return(codesFor("EZ-STEAM",
		completedEntry("s1", "CODE-1"),
		completedEntry("s2", "CODE-2"),
		pendingEntry("s3"),
	), nil)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalOrders)
	assert.Equal(t, 1, summary.ProcessedOrders)
	assert.Equal(t, 2, summary.TotalVouchersAdded)
	assert.Equal(t, 1, summary.PlaceholdersCreated)
	assert.Equal(t, 0, summary.CompletedSubOrders)
	assert.Empty(t, summary.Errors)

	vouchers := f.store.vouchersForOrder(order.ID)
	require.Len(t, vouchers, 3)
	assert.Equal(t, 2, f.store.countVouchers(order.ID, procurement.VoucherStatusAvailable))
	assert.Equal(t, 1, f.store.countVouchers(order.ID, procurement.VoucherStatusProcessing))
	for _, v := range vouchers {
		if v.Status == procurement.VoucherStatusProcessing {
			assert.Nil(t, v.Code)
			require.NotNil(t, v.StockID)
			assert.Equal(t, "s3", *v.StockID)
			continue
		}
		require.NotNil(t, v.Code)
		plain, err := f.cipher.Decrypt(*v.Code)
		require.NoError(t, err)
		assert.Contains(t, []string{"CODE-1", "CODE-2"}, plain)
		assert.NotEqual(t, plain, *v.Code)
		require.NotNil(t, v.PinCode)
	}

	assert.Equal(t, procurement.SupplierOrderStatusProcessing, f.store.subOrders[sub.ID].Status)
	assert.Equal(t, procurement.OrderStatusProcessing, f.store.orders[order.ID].Status)
}

func TestReconciliationService_Idempotent(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-2", "EZ-PSN", 3, "tx-2")

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-2").Return(codesFor("EZ-PSN",
		completedEntry("s1", "A"),
		completedEntry("s2", "B"),
		pendingEntry("s3"),
	), nil)

	first, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalVouchersAdded)
	before := f.store.snapshot()

	second, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.ProcessedOrders)
	assert.Equal(t, 0, second.TotalVouchersAdded)
	assert.Equal(t, 0, second.PlaceholdersCreated)
	assert.Len(t, f.store.vouchersForOrder(order.ID), 3)
	assert.Equal(t, before.vouchers, f.store.vouchers)
	assert.Equal(t, procurement.SupplierOrderStatusProcessing, f.store.subOrders[sub.ID].Status)
}

func TestReconciliationService_CompletesAfterLaterDelivery(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-3", "EZ-XBOX", 3, "tx-3")

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-3").Return(codesFor("EZ-XBOX",
		completedEntry("s1", "A"),
		completedEntry("s2", "B"),
		pendingEntry("s3"),
	), nil).Once()
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-3").Return(codesFor("EZ-XBOX",
		completedEntry("s1", "A"),
		completedEntry("s2", "B"),
		completedEntry("s3", "C"),
	), nil)

	_, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalVouchersAdded)
	assert.Equal(t, 1, summary.CompletedSubOrders)

	assert.Len(t, f.store.vouchersForOrder(order.ID), 3)
	assert.Equal(t, 3, f.store.countVouchers(order.ID, procurement.VoucherStatusAvailable))
	assert.Equal(t, procurement.SupplierOrderStatusCompleted, f.store.subOrders[sub.ID].Status)
	assert.Equal(t, procurement.OrderStatusCompleted, f.store.orders[order.ID].Status)

	var published []string
	for _, call := range f.publisher.Calls {
		published = append(published, eventTypes(call)...)
	}
	assert.Equal(t, []string{procurement.EventTypePurchaseOrderStatusChanged}, published)

	// nothing left to do
	third, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.TotalOrders)
	f.client.AssertNumberOfCalls(t, "FetchVoucherCodes", 2)
}

func TestReconciliationService_NeverRegressesAvailableVoucher(t *testing.T) {
	f := newReconcileFixture(t)
	order, _ := f.seedPendingOrder(t, "PO-4", "EZ-1", 2, "tx-4")

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-4").Return(codesFor("EZ-1", completedEntry("s1", "A")), nil).Once()
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-4").Return(codesFor("EZ-1", pendingEntry("s1")), nil)

	_, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	_, err = f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)

	vouchers := f.store.vouchersForOrder(order.ID)
	require.Len(t, vouchers, 1)
	assert.Equal(t, procurement.VoucherStatusAvailable, vouchers[0].Status)
}

func TestReconciliationService_FailuresAreIsolated(t *testing.T) {
	f := newReconcileFixture(t)
	orderA, subA := f.seedPendingOrder(t, "PO-A", "EZ-A", 1, "tx-a")
	orderB, subB := f.seedPendingOrder(t, "PO-B", "EZ-B", 1, "tx-b")

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-a").Return(nil, procurement.ErrSupplierRequestFailed)
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-b").Return(codesFor("EZ-B", completedEntry("s1", "B1")), nil)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalOrders)
	assert.Equal(t, 1, summary.ProcessedOrders)
	assert.Equal(t, 1, summary.FailedOrders)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, orderA.ID, summary.Errors[0].OrderID)
	assert.Equal(t, "PO-A", summary.Errors[0].OrderNumber)
	assert.Contains(t, summary.Errors[0].Error, "Supplier request failed")

	assert.Empty(t, f.store.vouchersForOrder(orderA.ID))
	assert.Equal(t, procurement.SupplierOrderStatusProcessing, f.store.subOrders[subA.ID].Status)
	assert.Equal(t, procurement.OrderStatusProcessing, f.store.orders[orderA.ID].Status)
	assert.Len(t, f.store.vouchersForOrder(orderB.ID), 1)
	assert.Equal(t, procurement.SupplierOrderStatusCompleted, f.store.subOrders[subB.ID].Status)
	assert.Equal(t, procurement.OrderStatusCompleted, f.store.orders[orderB.ID].Status)
}

func TestReconciliationService_RejectedFetchFailsSubOrder(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-404", "EZ-404", 2, "tx-404")
	rejected := fmt.Errorf("ezcards fetch_codes failed: HTTP 404: unknown transaction: %w", procurement.ErrSupplierRejected)
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-404").Return(nil, rejected)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedOrders)
	assert.Equal(t, 0, summary.FailedOrders)
	assert.Equal(t, 1, summary.FailedSubOrders)
	assert.Empty(t, summary.Errors)

	stored := f.store.subOrders[sub.ID]
	assert.Equal(t, procurement.SupplierOrderStatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "HTTP 404")
	assert.Equal(t, procurement.OrderStatusFailed, f.store.orders[order.ID].Status)

	var published []string
	for _, call := range f.publisher.Calls {
		published = append(published, eventTypes(call)...)
	}
	assert.Equal(t, []string{procurement.EventTypePurchaseOrderStatusChanged}, published)

	for run := 0; run < 2; run++ {
		again, err := f.svc.ReconcileAllPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, again.TotalOrders)
	}
	f.client.AssertNumberOfCalls(t, "FetchVoucherCodes", 1)
}

func TestReconciliationService_TerminalEntries(t *testing.T) {
	failedEntry := func(stockID, status string) procurement.VoucherCodeEntry {
		return procurement.VoucherCodeEntry{StockID: stockID, Status: status}
	}

	t.Run("every unit failed", func(t *testing.T) {
		f := newReconcileFixture(t)
		order, sub := f.seedPendingOrder(t, "PO-T1", "EZ-T1", 2, "tx-t1")
		f.client.On("FetchVoucherCodes", mock.Anything, "tx-t1").Return(codesFor("EZ-T1",
			failedEntry("s1", procurement.SupplierStatusFailed),
			failedEntry("s2", procurement.SupplierStatusCancelled),
		), nil)

		summary, err := f.svc.ReconcileAllPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.FailedSubOrders)
		assert.Empty(t, f.store.vouchersForOrder(order.ID))

		stored := f.store.subOrders[sub.ID]
		assert.Equal(t, procurement.SupplierOrderStatusFailed, stored.Status)
		assert.Contains(t, stored.FailureReason, "EZ-T1")
		assert.Equal(t, procurement.OrderStatusFailed, f.store.orders[order.ID].Status)

		again, err := f.svc.ReconcileAllPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, again.TotalOrders)
	})

	t.Run("some units still deliverable", func(t *testing.T) {
		f := newReconcileFixture(t)
		order, sub := f.seedPendingOrder(t, "PO-T2", "EZ-T2", 2, "tx-t2")
		f.client.On("FetchVoucherCodes", mock.Anything, "tx-t2").Return(codesFor("EZ-T2",
			completedEntry("s1", "T2-A"),
			failedEntry("s2", procurement.SupplierStatusFailed),
		), nil)

		summary, err := f.svc.ReconcileAllPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, summary.FailedSubOrders)
		assert.Equal(t, 1, summary.TotalVouchersAdded)
		assert.Equal(t, procurement.SupplierOrderStatusProcessing, f.store.subOrders[sub.ID].Status)
		assert.Equal(t, procurement.OrderStatusProcessing, f.store.orders[order.ID].Status)
	})
}

func TestReconciliationService_FailureRollsBackSubOrderWrites(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-R", "EZ-R", 2, "tx-r")
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-r").Return(codesFor("EZ-R",
		completedEntry("s1", "R1"),
		completedEntry("s2", "R2"),
	), nil)
	f.store.createBudget = 1

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedOrders)
	assert.Empty(t, f.store.vouchersForOrder(order.ID))
	assert.Equal(t, procurement.SupplierOrderStatusProcessing, f.store.subOrders[sub.ID].Status)
}

func TestReconciliationService_UnknownSKUSkipped(t *testing.T) {
	f := newReconcileFixture(t)
	order, _ := f.seedPendingOrder(t, "PO-U", "EZ-U", 1, "tx-u")
	f.client.On("FetchVoucherCodes", mock.Anything, "tx-u").Return(codesFor("SOMETHING-ELSE", completedEntry("s1", "X")), nil)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedOrders)
	assert.Equal(t, 0, summary.TotalVouchersAdded)
	assert.Empty(t, f.store.vouchersForOrder(order.ID))
}

func TestReconciliationService_FailedSiblingKeepsOrderFailed(t *testing.T) {
	f := newReconcileFixture(t)
	order, sub := f.seedPendingOrder(t, "PO-F", "EZ-F", 1, "tx-f")
	failed := procurement.NewFailedSubOrder(uuid.New(), "gift2games down")
	failed.PurchaseOrderID = order.ID
	f.store.subOrders[failed.ID] = *failed

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-f").Return(codesFor("EZ-F", completedEntry("s1", "F1")), nil)

	_, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, procurement.SupplierOrderStatusCompleted, f.store.subOrders[sub.ID].Status)
	assert.Equal(t, procurement.OrderStatusFailed, f.store.orders[order.ID].Status)
}

func TestReconciliationService_CancelledOrderStillRecordsVouchers(t *testing.T) {
	f := newReconcileFixture(t)
	order, _ := f.seedPendingOrder(t, "PO-C", "EZ-C", 2, "tx-c")
	stored := f.store.orders[order.ID]
	stored.Status = procurement.OrderStatusCancelled
	f.store.orders[order.ID] = stored

	f.client.On("FetchVoucherCodes", mock.Anything, "tx-c").Return(codesFor("EZ-C", completedEntry("s1", "C1")), nil)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedOrders)
	assert.Len(t, f.store.vouchersForOrder(order.ID), 1)
	assert.Equal(t, procurement.OrderStatusCancelled, f.store.orders[order.ID].Status)
}

// staleSubOrders returns a pending list captured before another run finished the work
type staleSubOrders struct {
	memSubOrderRepo
	pending []procurement.PurchaseOrderSupplier
}

func (r staleSubOrders) FindPending(context.Context, uuid.UUID) ([]procurement.PurchaseOrderSupplier, error) {
	return r.pending, nil
}

func TestReconciliationService_SkipsClaimedSubOrders(t *testing.T) {
	f := newReconcileFixture(t)
	_, sub := f.seedPendingOrder(t, "PO-S", "EZ-S", 1, "tx-s")
	stale := *sub

	done := f.store.subOrders[sub.ID]
	_, err := done.Complete()
	require.NoError(t, err)
	f.store.subOrders[sub.ID] = done

	f.svc = NewReconciliationService(f.catalog, staleSubOrders{memSubOrderRepo{f.store}, []procurement.PurchaseOrderSupplier{stale}},
		f.store, f.client, f.cipher, nil)

	summary, err := f.svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedOrders)
	assert.Equal(t, 0, summary.ProcessedOrders)
	f.client.AssertNotCalled(t, "FetchVoucherCodes", mock.Anything, mock.Anything)
}

func TestReconciliationService_NoClient(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t, "PO-N", "EZ-N", 1, "tx-n")
	svc := NewReconciliationService(f.catalog, f.store.SubOrders(), f.store, nil, f.cipher, nil)

	summary, err := svc.ReconcileAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalOrders)
}

func TestReconciliationService_ListFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.store.failOn("subOrders.FindPending", errors.New("connection reset"))

	_, err := f.svc.ReconcileAllPending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
