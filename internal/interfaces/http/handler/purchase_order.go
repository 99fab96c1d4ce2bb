package handler

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	procapp "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/interfaces/http/dto"
)

// PurchaseOrderUseCases is what the handler needs from the order service.
type PurchaseOrderUseCases interface {
	Create(ctx context.Context, req procapp.CreatePurchaseOrderRequest) (*procapp.PurchaseOrderResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*procapp.PurchaseOrderResponse, error)
}

// VoucherImporter attaches manually supplied codes to an order.
type VoucherImporter interface {
	ImportCodes(ctx context.Context, orderID uuid.UUID, codes []string) (*procapp.ImportResult, error)
	ImportFile(ctx context.Context, orderID uuid.UUID, filename string, data []byte) (*procapp.ImportResult, error)
}

// PurchaseOrderHandler handles purchase order endpoints
type PurchaseOrderHandler struct {
	BaseHandler
	orders      PurchaseOrderUseCases
	importer    VoucherImporter
	maxFileSize int64
}

// NewPurchaseOrderHandler creates a PurchaseOrderHandler. Uploaded files are
// read up to maxFileSize+1 bytes so the extractor can reject oversize input.
func NewPurchaseOrderHandler(orders PurchaseOrderUseCases, importer VoucherImporter, maxFileSize int64) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{orders: orders, importer: importer, maxFileSize: maxFileSize}
}

// Create places a purchase order.
// POST /api/v1/purchase-orders
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	var req procapp.CreatePurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	order, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// Get returns an order with items, sub-orders and voucher counts.
// GET /api/v1/purchase-orders/:id
func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// ImportVouchers attaches codes from a JSON body or a multipart "file" upload.
// POST /api/v1/purchase-orders/:id/vouchers/import
func (h *PurchaseOrderHandler) ImportVouchers(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var (
		result *procapp.ImportResult
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		filename, data, ok := h.readUpload(c)
		if !ok {
			return
		}
		result, err = h.importer.ImportFile(c.Request.Context(), id, filename, data)
	} else {
		var req procapp.ImportVouchersRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			h.BindError(c, bindErr)
			return
		}
		result, err = h.importer.ImportCodes(c.Request.Context(), id, req.Codes)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

func (h *PurchaseOrderHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "file", Message: "This field is required"}})
		return "", nil, false
	}
	f, err := header.Open()
	if err != nil {
		h.HandleError(c, err)
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxFileSize+1))
	if err != nil {
		h.HandleError(c, err)
		return "", nil, false
	}
	return header.Filename, data, true
}

func (h *PurchaseOrderHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}
