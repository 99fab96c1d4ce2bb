package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	procapp "github.com/manavault/backend/internal/application/procurement"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	ReconcileAllPending(ctx context.Context) (*procapp.ReconciliationSummary, error)
}

// ReconciliationHandler exposes on-demand reconciliation
type ReconciliationHandler struct {
	BaseHandler
	reconciler Reconciler
}

// NewReconciliationHandler creates a ReconciliationHandler
func NewReconciliationHandler(reconciler Reconciler) *ReconciliationHandler {
	return &ReconciliationHandler{reconciler: reconciler}
}

// Run reconciles every pending async sub-order and returns the summary.
// Per sub-order failures are reported in the summary, not as an error status.
// POST /api/v1/reconciliation/run
func (h *ReconciliationHandler) Run(c *gin.Context) {
	summary, err := h.reconciler.ReconcileAllPending(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
