package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockCodeExtractor struct {
	mock.Mock
}

func (m *MockCodeExtractor) Extract(filename string, data []byte) ([]string, error) {
	args := m.Called(filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type importFixture struct {
	store     *memStore
	cipher    *fakeCipher
	extractor *MockCodeExtractor
	publisher *MockEventPublisher
	svc       *VoucherImportService
	order     *procurement.PurchaseOrder
}

// newImportFixture seeds an internal order with two lines: 2 units then 1 unit
func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	f := &importFixture{
		store:     newMemStore(),
		cipher:    &fakeCipher{},
		extractor: new(MockCodeExtractor),
		publisher: new(MockEventPublisher),
	}
	catalog := newMemCatalog()
	internal := catalog.addSupplier("Warehouse", "warehouse", procurement.SupplierTypeInternal)

	order, err := procurement.NewPurchaseOrder("PO-IMPORT-1")
	require.NoError(t, err)
	_, err = order.AddItem(internal.ID, catalog.addProduct(internal, "GC-25", "25.00"), 2)
	require.NoError(t, err)
	_, err = order.AddItem(internal.ID, catalog.addProduct(internal, "GC-50", "50.00"), 1)
	require.NoError(t, err)
	f.store.seedOrder(order)
	f.order = order

	f.svc = NewVoucherImportService(f.store, f.cipher, f.extractor, zap.NewNop())
	f.svc.SetEventPublisher(f.publisher)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func TestVoucherImportService_ImportCodes(t *testing.T) {
	f := newImportFixture(t)

	result, err := f.svc.ImportCodes(context.Background(), f.order.ID, []string{"AAA-1", " BBB-2 ", "CCC-3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, "PO-IMPORT-1", result.OrderNumber)

	vouchers := f.store.vouchersForOrder(f.order.ID)
	require.Len(t, vouchers, 3)

	perItem := map[uuid.UUID][]string{}
	for _, v := range vouchers {
		assert.Equal(t, procurement.VoucherStatusAvailable, v.Status)
		assert.Equal(t, procurement.VoucherSourceImport, v.Source)
		require.NotNil(t, v.Code)
		plain, err := f.cipher.Decrypt(*v.Code)
		require.NoError(t, err)
		assert.NotEqual(t, plain, *v.Code)
		require.NotNil(t, v.PurchaseOrderItemID)
		perItem[*v.PurchaseOrderItemID] = append(perItem[*v.PurchaseOrderItemID], plain)
	}
	assert.ElementsMatch(t, []string{"AAA-1", "BBB-2"}, perItem[f.order.Items[0].ID])
	assert.Equal(t, []string{"CCC-3"}, perItem[f.order.Items[1].ID])

	require.Len(t, f.publisher.Calls, 1)
	assert.Equal(t, []string{procurement.EventTypeVouchersImported}, eventTypes(f.publisher.Calls[0]))
}

func TestVoucherImportService_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		codes   []string
		message string
	}{
		{"too few", []string{"A", "B"}, "expects 3 voucher codes but 2 were submitted"},
		{"too many", []string{"A", "B", "C", "D"}, "expects 3 voucher codes but 4 were submitted"},
		{"duplicate within batch", []string{"A", "A", "B"}, "row 2: duplicate voucher code"},
		{"empty row", []string{"A", "  ", "B"}, "row 2: voucher code is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newImportFixture(t)
			_, err := f.svc.ImportCodes(context.Background(), f.order.ID, tt.codes)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidationFailed)
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, f.store.vouchers)
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestVoucherImportService_CaseSensitiveCodes(t *testing.T) {
	f := newImportFixture(t)
	_, err := f.svc.ImportCodes(context.Background(), f.order.ID, []string{"abc", "ABC", "Abc"})
	require.NoError(t, err)
	assert.Len(t, f.store.vouchers, 3)
}

func TestVoucherImportService_ExistingCode(t *testing.T) {
	f := newImportFixture(t)
	sealed, err := procurement.Seal(f.cipher, "TAKEN")
	require.NoError(t, err)
	existing, err := procurement.NewAvailableVoucher(uuid.New(), nil, sealed, procurement.VoucherSourceSupplier)
	require.NoError(t, err)
	f.store.vouchers[existing.ID] = *existing

	_, err = f.svc.ImportCodes(context.Background(), f.order.ID, []string{"NEW-1", "NEW-2", "TAKEN"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
	assert.Contains(t, err.Error(), `row 3: voucher code "TAKEN" already exists`)
	assert.Len(t, f.store.vouchers, 1)
}

func TestVoucherImportService_PersistenceFailure(t *testing.T) {
	f := newImportFixture(t)
	f.store.failOn("vouchers.CreateBatch", errors.New("deadlock"))

	_, err := f.svc.ImportCodes(context.Background(), f.order.ID, []string{"A", "B", "C"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPersistence)
	assert.Empty(t, f.store.vouchers)
}

func TestVoucherImportService_OrderNotFound(t *testing.T) {
	f := newImportFixture(t)
	_, err := f.svc.ImportCodes(context.Background(), uuid.New(), []string{"A"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestVoucherImportService_ImportFile(t *testing.T) {
	f := newImportFixture(t)
	data := []byte("code\nX1\nX2\nX3\n")
	f.extractor.On("Extract", "codes.csv", data).Return([]string{"X1", "X2", "X3"}, nil)

	result, err := f.svc.ImportFile(context.Background(), f.order.ID, "codes.csv", data)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	f.extractor.AssertExpectations(t)
}

func TestVoucherImportService_ImportFile_ExtractError(t *testing.T) {
	f := newImportFixture(t)
	f.extractor.On("Extract", "codes.zip", mock.Anything).
		Return(nil, procurement.NewValidationError("archive contains no spreadsheet files"))

	_, err := f.svc.ImportFile(context.Background(), f.order.ID, "codes.zip", []byte("PK"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
	assert.Empty(t, f.store.vouchers)
}

func TestFileFormat(t *testing.T) {
	assert.Equal(t, "zip", fileFormat("batch.ZIP"))
	assert.Equal(t, "xlsx", fileFormat("codes.xlsx"))
	assert.Equal(t, "csv", fileFormat("codes.csv"))
	assert.Equal(t, "unknown", fileFormat("codes.pdf"))
}
