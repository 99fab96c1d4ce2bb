package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	procapp "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/interfaces/http/dto"
	"github.com/manavault/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type stubOrders struct {
	created *procapp.CreatePurchaseOrderRequest
	resp    *procapp.PurchaseOrderResponse
	err     error
}

func (s *stubOrders) Create(_ context.Context, req procapp.CreatePurchaseOrderRequest) (*procapp.PurchaseOrderResponse, error) {
	s.created = &req
	return s.resp, s.err
}

func (s *stubOrders) GetByID(_ context.Context, id uuid.UUID) (*procapp.PurchaseOrderResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &procapp.PurchaseOrderResponse{ID: id, OrderNumber: "PO-20261019-ABCDEF12"}, nil
}

type stubImporter struct {
	codes    []string
	filename string
	data     []byte
	err      error
}

func (s *stubImporter) ImportCodes(_ context.Context, orderID uuid.UUID, codes []string) (*procapp.ImportResult, error) {
	s.codes = codes
	return &procapp.ImportResult{PurchaseOrderID: orderID, Imported: len(codes)}, s.err
}

func (s *stubImporter) ImportFile(_ context.Context, orderID uuid.UUID, filename string, data []byte) (*procapp.ImportResult, error) {
	s.filename, s.data = filename, data
	return &procapp.ImportResult{PurchaseOrderID: orderID, Imported: 1}, s.err
}

type stubRevealer struct {
	access procapp.AccessContext
	err    error
}

func (s *stubRevealer) RevealCode(_ context.Context, id uuid.UUID, access procapp.AccessContext) (*procapp.RevealedVoucherResponse, error) {
	s.access = access
	if s.err != nil {
		return nil, s.err
	}
	return &procapp.RevealedVoucherResponse{ID: id, Code: "ABCD-1234", Status: "available"}, nil
}

type stubReconciler struct {
	summary *procapp.ReconciliationSummary
	err     error
}

func (s stubReconciler) ReconcileAllPending(context.Context) (*procapp.ReconciliationSummary, error) {
	return s.summary, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, dto.Response) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"validation", procurement.NewValidationError("quantity must be positive"), 400, "VALIDATION_FAILED", "quantity must be positive"},
		{"not found", shared.NewDomainError(procurement.CodeProductNotFound, "product not found"), 404, "PRODUCT_NOT_FOUND", "product not found"},
		{"supplier down", shared.WrapDomainError(procurement.CodeSupplierRequestFailed, "ezcards order failed", errors.New("dial tcp")), 502, "SUPPLIER_REQUEST_FAILED", "ezcards order failed"},
		{"persistence hides detail", shared.WrapDomainError(shared.CodePersistenceFailed, "insert voucher", errors.New("pq: duplicate key")), 500, "PERSISTENCE_FAILED", "An unexpected error occurred"},
		{"plain error", errors.New("boom"), 500, dto.ErrCodeInternal, "An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			r := newEngine()
			r.GET("/", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w, resp := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestPurchaseOrderHandler_Create(t *testing.T) {
	orders := &stubOrders{resp: &procapp.PurchaseOrderResponse{OrderNumber: "PO-20261019-0000ABCD", Status: "completed"}}
	h := NewPurchaseOrderHandler(orders, &stubImporter{}, 1<<20)
	r := newEngine()
	r.POST("/purchase-orders", h.Create)

	supplierID, productID := uuid.New(), uuid.New()
	body := `{"items":[{"supplier_id":"` + supplierID.String() + `","product_id":"` + productID.String() + `","quantity":2}]}`
	w, resp := serve(r, jsonRequest(http.MethodPost, "/purchase-orders", body))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	require.NotNil(t, orders.created)
	assert.Equal(t, productID, orders.created.Items[0].ProductID)
	assert.Equal(t, 2, orders.created.Items[0].Quantity)
}

func TestPurchaseOrderHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty items", `{"items":[]}`},
		{"missing items", `{}`},
		{"zero quantity", `{"items":[{"supplier_id":"` + uuid.NewString() + `","product_id":"` + uuid.NewString() + `","quantity":0}]}`},
		{"malformed", `{"items":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &stubOrders{}
			r := newEngine()
			r.POST("/purchase-orders", NewPurchaseOrderHandler(orders, nil, 0).Create)

			w, resp := serve(r, jsonRequest(http.MethodPost, "/purchase-orders", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
			assert.Nil(t, orders.created)
		})
	}
}

func TestPurchaseOrderHandler_Get(t *testing.T) {
	r := newEngine()
	h := NewPurchaseOrderHandler(&stubOrders{}, nil, 0)
	r.GET("/purchase-orders/:id", h.Get)

	id := uuid.New()
	w, resp := serve(r, httptest.NewRequest(http.MethodGet, "/purchase-orders/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, id.String(), data["id"])

	w, resp = serve(r, httptest.NewRequest(http.MethodGet, "/purchase-orders/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "id", resp.Error.Details[0].Field)

	r2 := newEngine()
	r2.GET("/purchase-orders/:id", NewPurchaseOrderHandler(&stubOrders{err: shared.NewDomainError(shared.CodeNotFound, "purchase order not found")}, nil, 0).Get)
	w, _ = serve(r2, httptest.NewRequest(http.MethodGet, "/purchase-orders/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseOrderHandler_ImportJSON(t *testing.T) {
	importer := &stubImporter{}
	r := newEngine()
	r.POST("/purchase-orders/:id/vouchers/import", NewPurchaseOrderHandler(nil, importer, 1<<20).ImportVouchers)

	path := "/purchase-orders/" + uuid.NewString() + "/vouchers/import"
	w, resp := serve(r, jsonRequest(http.MethodPost, path, `{"codes":["AAA","BBB"]}`))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"AAA", "BBB"}, importer.codes)
	assert.Equal(t, float64(2), resp.Data.(map[string]any)["imported"])

	w, _ = serve(r, jsonRequest(http.MethodPost, path, `{"codes":[]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPurchaseOrderHandler_ImportFile(t *testing.T) {
	importer := &stubImporter{}
	r := newEngine()
	r.POST("/purchase-orders/:id/vouchers/import", NewPurchaseOrderHandler(nil, importer, 8).ImportVouchers)
	path := "/purchase-orders/" + uuid.NewString() + "/vouchers/import"

	w, _ := serve(r, multipartRequest(t, path, "file", "codes.csv", []byte("code\nX1\n")))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "codes.csv", importer.filename)
	assert.Equal(t, []byte("code\nX1\n"), importer.data)

	// reads stop one byte past the limit
	serve(r, multipartRequest(t, path, "file", "big.csv", bytes.Repeat([]byte("a"), 64)))
	assert.Len(t, importer.data, 9)

	w, resp := serve(r, multipartRequest(t, path, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file", resp.Error.Details[0].Field)
}

func TestVoucherHandler_RevealCode(t *testing.T) {
	revealer := &stubRevealer{}
	r := newEngine()
	r.GET("/vouchers/:id/code", NewVoucherHandler(revealer).RevealCode)
	path := "/vouchers/" + uuid.NewString() + "/code"

	req := httptest.NewRequest(http.MethodGet, path+"?action=copy", nil)
	req.Header.Set("X-Actor-ID", "ops@manavault")
	req.Header.Set("User-Agent", "console/1.0")
	w, resp := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "ABCD-1234", resp.Data.(map[string]any)["code"])
	assert.Equal(t, procurement.VoucherAccessCopy, revealer.access.Action)
	assert.Equal(t, "ops@manavault", revealer.access.ActorID)
	assert.Equal(t, "console/1.0", revealer.access.UserAgent)
	assert.NotEmpty(t, revealer.access.IPAddress)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Actor-ID", "ops")
	serve(r, req)
	assert.Equal(t, procurement.VoucherAccessView, revealer.access.Action, "view is the default action")

	w, resp = serve(r, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "X-Actor-ID", resp.Error.Details[0].Field)

	req = httptest.NewRequest(http.MethodGet, path+"?action=print", nil)
	req.Header.Set("X-Actor-ID", "ops")
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoucherHandler_RevealPlaceholder(t *testing.T) {
	r := newEngine()
	r.GET("/vouchers/:id/code", NewVoucherHandler(&stubRevealer{
		err: shared.NewDomainError(shared.CodeInvalidStateTransition, "voucher code has not been delivered yet"),
	}).RevealCode)

	req := httptest.NewRequest(http.MethodGet, "/vouchers/"+uuid.NewString()+"/code", nil)
	req.Header.Set("X-Actor-ID", "ops")
	w, resp := serve(r, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "voucher code has not been delivered yet", resp.Error.Message)
}

func TestReconciliationHandler_Run(t *testing.T) {
	r := newEngine()
	r.POST("/reconciliation/run", NewReconciliationHandler(stubReconciler{summary: &procapp.ReconciliationSummary{
		TotalOrders:        2,
		TotalVouchersAdded: 5,
		Errors: []procapp.ReconciliationError{
			{OrderNumber: "PO-20261019-00000001", Error: "supplier timeout"},
		},
	}}).Run)

	w, resp := serve(r, httptest.NewRequest(http.MethodPost, "/reconciliation/run", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(5), data["total_vouchers_added"])
	assert.Len(t, data["errors"], 1)

	r2 := newEngine()
	r2.POST("/reconciliation/run", NewReconciliationHandler(stubReconciler{
		err: shared.NewDomainError(procurement.CodeSupplierNotConfigured, "ezcards is not configured"),
	}).Run)
	w, _ = serve(r2, httptest.NewRequest(http.MethodPost, "/reconciliation/run", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSystemHandler_Health(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewSystemHandler(stubPinger{}, "1.2.0").Health)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"version":"1.2.0"`)

	r = gin.New()
	r.GET("/health", NewSystemHandler(stubPinger{err: errors.New("conn refused")}, "").Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
