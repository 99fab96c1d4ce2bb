package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconciliationService merges voucher codes delivered asynchronously by the
// supplier into the vouchers table. Every write is keyed by code fingerprint or
// stock id, so repeated and overlapping runs are safe.
type ReconciliationService struct {
	catalog        procurement.CatalogReader
	subOrders      procurement.SubOrderRepository
	txScope        TransactionScope
	client         procurement.AsyncSupplierClient
	cipher         procurement.CodeCipher
	statusService  *PurchaseOrderStatusService
	eventPublisher shared.EventPublisher
	metrics        *telemetry.ProcurementMetrics
	logger         *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService. client may be nil
// when the asynchronous supplier is not configured.
func NewReconciliationService(
	catalog procurement.CatalogReader,
	subOrders procurement.SubOrderRepository,
	txScope TransactionScope,
	client procurement.AsyncSupplierClient,
	cipher procurement.CodeCipher,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		catalog:       catalog,
		subOrders:     subOrders,
		txScope:       txScope,
		client:        client,
		cipher:        cipher,
		statusService: NewPurchaseOrderStatusService(),
		logger:        logger,
	}
}

// SetEventPublisher sets the publisher for order status changes
func (s *ReconciliationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the procurement metrics collector
func (s *ReconciliationService) SetMetrics(m *telemetry.ProcurementMetrics) {
	s.metrics = m
}

// subOrderOutcome is the result of reconciling one sub-order
type subOrderOutcome struct {
	skipped      bool
	added        int
	placeholders int
	completed    bool
	failed       bool
	orderNumber  string
	events       []shared.DomainEvent
}

// ReconcileAllPending reconciles every processing sub-order of the asynchronous
// supplier. Failures are isolated per sub-order and reported in the summary; only
// failing to list the pending work returns an error.
func (s *ReconciliationService) ReconcileAllPending(ctx context.Context) (*ReconciliationSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "run")
	defer span.End()

	summary := &ReconciliationSummary{StartedAt: time.Now(), Errors: []ReconciliationError{}}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	if s.client == nil {
		s.logger.Debug("Asynchronous supplier not configured, nothing to reconcile")
		return summary, nil
	}

	supplier, err := s.catalog.FindSupplierBySlug(ctx, procurement.SupplierSlugEzCards)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Debug("Asynchronous supplier not registered, nothing to reconcile")
			return summary, nil
		}
		telemetry.RecordError(span, err)
		return nil, asPersistenceError("find supplier", err)
	}

	pending, err := s.subOrders.FindPending(ctx, supplier.ID)
	if err != nil {
		s.logger.Error("Failed to list pending sub-orders", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, asPersistenceError("find pending sub-orders", err)
	}
	summary.TotalOrders = len(pending)
	telemetry.SetAttribute(span, "pending_sub_orders", len(pending))
	if len(pending) == 0 {
		s.logger.Debug("No pending sub-orders to reconcile")
		return summary, nil
	}

	s.logger.Info("Reconciling pending sub-orders", zap.Int("count", len(pending)))

	var events []shared.DomainEvent
	for _, sub := range pending {
		if ctx.Err() != nil {
			s.logger.Warn("Reconciliation interrupted", zap.Error(ctx.Err()))
			break
		}

		outcome, err := s.reconcileSubOrder(ctx, sub)
		switch {
		case err != nil:
			summary.FailedOrders++
			summary.Errors = append(summary.Errors, ReconciliationError{
				OrderID:     sub.PurchaseOrderID,
				OrderNumber: outcome.orderNumber,
				SubOrderID:  sub.ID,
				Error:       err.Error(),
			})
			s.logger.Error("Failed to reconcile sub-order",
				zap.String("sub_order_id", sub.ID.String()),
				zap.String("order_id", sub.PurchaseOrderID.String()),
				zap.String("order_number", outcome.orderNumber),
				zap.Error(err),
			)
		case outcome.skipped:
			summary.SkippedOrders++
		default:
			summary.ProcessedOrders++
			summary.TotalVouchersAdded += outcome.added
			summary.PlaceholdersCreated += outcome.placeholders
			if outcome.completed {
				summary.CompletedSubOrders++
			}
			events = append(events, outcome.events...)
		}
	}

	if s.eventPublisher != nil && len(events) > 0 {
		if err := s.eventPublisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish reconciliation events", zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordVouchersAdded(ctx, string(procurement.VoucherSourceSupplier), summary.TotalVouchersAdded)
		s.metrics.RecordReconciliationRun(ctx, summary.FailedOrders, time.Since(summary.StartedAt))
	}

	telemetry.SetAttributes(span,
		"processed", summary.ProcessedOrders,
		"skipped", summary.SkippedOrders,
		"failed", summary.FailedOrders,
		telemetry.SpanAttrVoucherCount, summary.TotalVouchersAdded,
	)
	s.logger.Info("Reconciliation finished",
		zap.Int("total", summary.TotalOrders),
		zap.Int("processed", summary.ProcessedOrders),
		zap.Int("skipped", summary.SkippedOrders),
		zap.Int("failed", summary.FailedOrders),
		zap.Int("vouchers_added", summary.TotalVouchersAdded),
		zap.Int("placeholders_created", summary.PlaceholdersCreated),
		zap.Int("failed_sub_orders", summary.FailedSubOrders),
	)
	return summary, nil
}

// reconcileSubOrder processes one sub-order in its own transaction. The row is
// claimed first so that a concurrent run skips it instead of waiting.
func (s *ReconciliationService) reconcileSubOrder(ctx context.Context, pending procurement.PurchaseOrderSupplier) (subOrderOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "sub_order",
		telemetry.WithAttribute(telemetry.SpanAttrSubOrderID, pending.ID.String()),
	)
	defer span.End()

	var outcome subOrderOutcome
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		outcome = subOrderOutcome{}

		sub, err := repos.SubOrders().ClaimPending(ctx, pending.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				outcome.skipped = true
				return nil
			}
			return err
		}

		order, err := repos.PurchaseOrders().FindByID(ctx, sub.PurchaseOrderID)
		if err != nil {
			return err
		}
		outcome.orderNumber = order.OrderNumber
		logger := s.logger.With(
			zap.String("order_number", order.OrderNumber),
			zap.String("transaction_id", *sub.TransactionID),
		)
		telemetry.SetAttributes(span,
			telemetry.SpanAttrOrderNumber, order.OrderNumber,
			telemetry.SpanAttrTransactionID, *sub.TransactionID,
		)

		var failureReason string
		codes, err := s.client.FetchVoucherCodes(ctx, *sub.TransactionID)
		switch {
		case errors.Is(err, procurement.ErrSupplierRejected):
			failureReason = err.Error()
		case err != nil:
			return err
		default:
			if failureReason, err = s.applyCodes(ctx, repos.Vouchers(), logger, order, sub, codes, &outcome); err != nil {
				return err
			}
		}

		complete, err := s.isFullyDelivered(ctx, repos.Vouchers(), order, sub.SupplierID)
		if err != nil {
			return err
		}
		switch {
		case complete:
			if _, err := sub.Complete(); err != nil {
				return err
			}
			outcome.completed = true
		case failureReason != "":
			if _, err := sub.Fail(failureReason); err != nil {
				return err
			}
			outcome.failed = true
			logger.Warn("Sub-order failed at the supplier", zap.String("reason", sub.FailureReason))
		}
		if outcome.completed || outcome.failed {
			if err := repos.SubOrders().UpdateStatus(ctx, sub); err != nil {
				return err
			}
		}

		siblings, err := repos.SubOrders().FindByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for i := range siblings {
			if siblings[i].ID == sub.ID {
				siblings[i] = *sub
			}
		}
		changed, err := order.TransitionTo(s.statusService.ComputeForSubOrders(siblings))
		if err != nil {
			// e.g. an order cancelled by an operator; vouchers are still recorded
			logger.Warn("Order status not updated", zap.Error(err))
			return nil
		}
		if changed {
			if err := repos.PurchaseOrders().UpdateStatus(ctx, order); err != nil {
				return err
			}
			outcome.events = order.GetDomainEvents()
			order.ClearDomainEvents()
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return outcome, err
	}
	return outcome, nil
}

// applyCodes merges one fetch response into the vouchers table. It returns a
// failure reason when some line has entries and every one of them is terminal-failed.
func (s *ReconciliationService) applyCodes(ctx context.Context, vouchers procurement.VoucherRepository, logger *zap.Logger, order *procurement.PurchaseOrder, sub *procurement.PurchaseOrderSupplier, codes *procurement.VoucherCodesResult, outcome *subOrderOutcome) (string, error) {
	var failed []string
	for _, line := range codes.Items {
		item, ok := order.ItemBySKU(line.SKU)
		if !ok || item.SupplierID != sub.SupplierID {
			logger.Warn("Supplier returned codes for an unknown sku", zap.String("sku", line.SKU))
			continue
		}
		terminal := 0
		for _, entry := range line.Codes {
			switch {
			case entry.IsCompleted():
				added, err := s.upsertDeliveredVoucher(ctx, vouchers, order.ID, item.ID, entry)
				if err != nil {
					return "", fmt.Errorf("sku %s stock %s: %w", line.SKU, entry.StockID, err)
				}
				if added {
					outcome.added++
				}
			case entry.IsPending():
				created, err := s.ensurePlaceholder(ctx, vouchers, order.ID, item.ID, entry.StockID)
				if err != nil {
					return "", fmt.Errorf("sku %s stock %s: %w", line.SKU, entry.StockID, err)
				}
				if created {
					outcome.placeholders++
				}
			case entry.IsFailed():
				terminal++
			default:
				logger.Debug("Ignoring voucher entry",
					zap.String("sku", line.SKU),
					zap.String("stock_id", entry.StockID),
					zap.String("supplier_status", entry.Status),
				)
			}
		}
		if terminal > 0 && terminal == len(line.Codes) {
			failed = append(failed, line.SKU)
		}
	}
	if len(failed) == 0 {
		return "", nil
	}
	return "supplier reported every unit failed for " + strings.Join(failed, ", "), nil
}

// upsertDeliveredVoucher records a delivered code. An existing row is matched by
// code fingerprint first, then by stock id. It returns true when a voucher became
// available during this call.
func (s *ReconciliationService) upsertDeliveredVoucher(ctx context.Context, vouchers procurement.VoucherRepository, orderID, itemID uuid.UUID, entry procurement.VoucherCodeEntry) (bool, error) {
	fingerprint := s.cipher.Fingerprint(entry.RedeemCode)

	existing, err := vouchers.FindByOrderAndCodeHash(ctx, orderID, fingerprint)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return false, err
	}
	if existing == nil && entry.StockID != "" {
		existing, err = vouchers.FindByOrderAndStockID(ctx, orderID, entry.StockID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
	}

	if existing == nil {
		sealed, err := procurement.Seal(s.cipher, entry.RedeemCode)
		if err != nil {
			return false, err
		}
		v, err := procurement.NewAvailableVoucher(orderID, &itemID, sealed, procurement.VoucherSourceSupplier)
		if err != nil {
			return false, err
		}
		v.SetStockID(entry.StockID)
		if err := s.applyPin(v, entry.PinCode); err != nil {
			return false, err
		}
		if err := vouchers.Create(ctx, v); err != nil {
			return false, err
		}
		return true, nil
	}

	becameAvailable := existing.Status != procurement.VoucherStatusAvailable
	dirty := false
	if existing.CodeHash == nil || *existing.CodeHash != fingerprint {
		sealed, err := procurement.Seal(s.cipher, entry.RedeemCode)
		if err != nil {
			return false, err
		}
		if err := existing.Fulfil(sealed); err != nil {
			return false, err
		}
		dirty = true
	}
	if existing.StockID == nil && entry.StockID != "" {
		existing.SetStockID(entry.StockID)
		dirty = true
	}
	if existing.PinCode == nil && entry.PinCode != "" {
		if err := s.applyPin(existing, entry.PinCode); err != nil {
			return false, err
		}
		dirty = true
	}
	if existing.PurchaseOrderItemID == nil {
		existing.AssignItem(itemID)
		dirty = true
	}
	if !dirty {
		return false, nil
	}
	if err := vouchers.Update(ctx, existing); err != nil {
		return false, err
	}
	return becameAvailable, nil
}

// ensurePlaceholder creates a processing voucher for stockID unless one exists.
// Existing rows are never touched, so an available voucher never regresses.
func (s *ReconciliationService) ensurePlaceholder(ctx context.Context, vouchers procurement.VoucherRepository, orderID, itemID uuid.UUID, stockID string) (bool, error) {
	existing, err := vouchers.FindByOrderAndStockID(ctx, orderID, stockID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	v, err := procurement.NewPlaceholderVoucher(orderID, &itemID, stockID)
	if err != nil {
		return false, err
	}
	if err := vouchers.Create(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ReconciliationService) applyPin(v *procurement.Voucher, pin string) error {
	if pin == "" {
		return nil
	}
	sealed, err := s.cipher.Encrypt(pin)
	if err != nil {
		return err
	}
	v.SetPinCode(sealed)
	return nil
}

// isFullyDelivered reports whether every unit ordered from the supplier has an available voucher
func (s *ReconciliationService) isFullyDelivered(ctx context.Context, vouchers procurement.VoucherRepository, order *procurement.PurchaseOrder, supplierID uuid.UUID) (bool, error) {
	items := order.ItemsForSupplier(supplierID)
	if len(items) == 0 {
		return true, nil
	}
	expected := 0
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		expected += item.Quantity
		ids = append(ids, item.ID)
	}
	available, err := vouchers.CountAvailableByItems(ctx, ids)
	if err != nil {
		return false, err
	}
	return available >= int64(expected), nil
}
