package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	procapp "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/interfaces/http/dto"
)

// VoucherRevealer decrypts a voucher code and records the access.
type VoucherRevealer interface {
	RevealCode(ctx context.Context, voucherID uuid.UUID, access procapp.AccessContext) (*procapp.RevealedVoucherResponse, error)
}

// VoucherHandler serves voucher code reveals
type VoucherHandler struct {
	BaseHandler
	vouchers VoucherRevealer
}

// NewVoucherHandler creates a VoucherHandler
func NewVoucherHandler(vouchers VoucherRevealer) *VoucherHandler {
	return &VoucherHandler{vouchers: vouchers}
}

type revealQuery struct {
	Action string `form:"action" binding:"omitempty,oneof=view copy"`
}

// RevealCode returns the decrypted code. The caller names itself in
// X-Actor-ID; every successful reveal leaves an audit row.
// GET /api/v1/vouchers/:id/code?action=view|copy
func (h *VoucherHandler) RevealCode(c *gin.Context) {
	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	var q revealQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	actor := strings.TrimSpace(c.GetHeader(logger.ActorHeader))
	if actor == "" {
		h.ValidationError(c, []dto.ValidationDetail{{Field: logger.ActorHeader, Message: "This field is required"}})
		return
	}

	action := procurement.VoucherAccessView
	if q.Action != "" {
		action = procurement.VoucherAccessAction(q.Action)
	}

	resp, err := h.vouchers.RevealCode(c.Request.Context(), uuid.MustParse(uri.ID), procapp.AccessContext{
		ActorID:   actor,
		Action:    action,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	h.Success(c, resp)
}
