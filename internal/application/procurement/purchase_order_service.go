package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PurchaseOrderService places purchase orders across internal and external suppliers
type PurchaseOrderService struct {
	catalog        procurement.CatalogReader
	txScope        TransactionScope
	clients        procurement.SupplierClients
	cipher         procurement.CodeCipher
	statusService  *PurchaseOrderStatusService
	eventPublisher shared.EventPublisher
	metrics        *telemetry.ProcurementMetrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewPurchaseOrderService creates a new PurchaseOrderService
func NewPurchaseOrderService(
	catalog procurement.CatalogReader,
	txScope TransactionScope,
	clients procurement.SupplierClients,
	cipher procurement.CodeCipher,
	logger *zap.Logger,
) *PurchaseOrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseOrderService{
		catalog:       catalog,
		txScope:       txScope,
		clients:       clients,
		cipher:        cipher,
		statusService: NewPurchaseOrderStatusService(),
		logger:        logger,
		now:           time.Now,
	}
}

// SetEventPublisher sets the publisher used after an order is committed
func (s *PurchaseOrderService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the procurement metrics collector
func (s *PurchaseOrderService) SetMetrics(m *telemetry.ProcurementMetrics) {
	s.metrics = m
}

// resolvedLine is a request line with its catalog records
type resolvedLine struct {
	supplier *procurement.Supplier
	product  *procurement.Product
	quantity int
}

// supplierGroup is the set of order items for one supplier, in request order
type supplierGroup struct {
	supplier *procurement.Supplier
	items    []procurement.PurchaseOrderItem
}

// Create validates the request, calls external suppliers and records the order
// atomically. Supplier failures become failed sub-orders; they never fail the call.
func (s *PurchaseOrderService) Create(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "purchase_order", "create")
	defer span.End()

	lines, err := s.resolveLines(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	order, err := procurement.NewPurchaseOrder(procurement.GenerateOrderNumber(s.now()))
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, err := order.AddItem(line.supplier.ID, line.product, line.quantity); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, order.ID.String(),
		telemetry.SpanAttrOrderNumber, order.OrderNumber,
		"items_count", len(order.Items),
	)

	logger := s.logger.With(zap.String("order_number", order.OrderNumber))
	var vouchers []*procurement.Voucher

	for _, group := range groupBySupplier(order, lines) {
		if !group.supplier.IsExternal() {
			continue
		}
		switch group.supplier.Slug {
		case procurement.SupplierSlugEzCards:
			order.AddSubOrder(s.placeAsyncOrder(ctx, logger, order, group))
		case procurement.SupplierSlugGift2Games:
			sub, placed, err := s.placeSyncOrder(ctx, logger, order, group)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
			order.AddSubOrder(sub)
			vouchers = append(vouchers, placed...)
		}
	}

	status := procurement.OrderStatusCompleted
	if len(order.SubOrders) > 0 {
		status = s.statusService.ComputeForSubOrders(order.SubOrders)
	}
	if _, err := order.TransitionTo(status); err != nil {
		return nil, err
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.PurchaseOrders().Create(ctx, order); err != nil {
			return err
		}
		if len(vouchers) > 0 {
			if err := repos.Vouchers().CreateBatch(ctx, vouchers); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = asPersistenceError("create purchase order", err)
		logger.Error("Failed to persist purchase order", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrOrderStatus, order.Status.String())
	logger.Info("Purchase order created",
		zap.String("order_id", order.ID.String()),
		zap.String("status", order.Status.String()),
		zap.String("total_price", order.TotalPrice.String()),
		zap.Int("sub_orders", len(order.SubOrders)),
		zap.Int("vouchers", len(vouchers)),
	)

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(ctx, order.Status.String())
		s.metrics.RecordVouchersAdded(ctx, string(procurement.VoucherSourceSupplier), len(vouchers))
	}

	events := append([]shared.DomainEvent{procurement.NewPurchaseOrderCreatedEvent(order)}, order.GetDomainEvents()...)
	order.ClearDomainEvents()
	s.publish(ctx, events)

	response := ToPurchaseOrderResponse(order)
	return &response, nil
}

// GetByID loads an order with its lines, sub-orders and voucher counts
func (s *PurchaseOrderService) GetByID(ctx context.Context, id uuid.UUID) (*PurchaseOrderResponse, error) {
	var response PurchaseOrderResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.PurchaseOrders().FindByID(ctx, id)
		if err != nil {
			return err
		}
		counts, err := repos.Vouchers().CountByOrder(ctx, id)
		if err != nil {
			return err
		}
		response = ToPurchaseOrderResponse(order)
		response.Vouchers = &VoucherCountsResponse{
			Expected:   order.TotalQuantity(),
			Available:  counts[procurement.VoucherStatusAvailable],
			Processing: counts[procurement.VoucherStatusProcessing],
		}
		return nil
	})
	if err != nil {
		return nil, asPersistenceError("get purchase order", err)
	}
	return &response, nil
}

// resolveLines validates the request and loads every supplier and product before
// any external call is made.
func (s *PurchaseOrderService) resolveLines(ctx context.Context, req CreatePurchaseOrderRequest) ([]resolvedLine, error) {
	if len(req.Items) == 0 {
		return nil, procurement.NewValidationError("purchase order requires at least one item")
	}

	suppliers := make(map[uuid.UUID]*procurement.Supplier)
	seenProducts := make(map[uuid.UUID]int)
	seenSKUs := make(map[string]int)
	lines := make([]resolvedLine, 0, len(req.Items))

	for i, in := range req.Items {
		row := i + 1
		if in.SupplierID == uuid.Nil {
			return nil, procurement.NewValidationError("item %d: supplier_id is required", row)
		}
		if in.ProductID == uuid.Nil {
			return nil, procurement.NewValidationError("item %d: product_id is required", row)
		}
		if in.Quantity < 1 {
			return nil, procurement.NewValidationError("item %d: quantity must be at least 1", row)
		}
		if prev, ok := seenProducts[in.ProductID]; ok {
			return nil, procurement.NewValidationError("item %d: product already requested by item %d", row, prev)
		}
		seenProducts[in.ProductID] = row

		supplier, ok := suppliers[in.SupplierID]
		if !ok {
			found, err := s.catalog.FindSupplier(ctx, in.SupplierID)
			if err != nil {
				return nil, translateNotFound(err, procurement.ErrSupplierNotFound)
			}
			if !found.Active {
				return nil, procurement.NewValidationError("item %d: supplier %s is inactive", row, found.Name)
			}
			if err := s.checkSupplierConfigured(found); err != nil {
				return nil, err
			}
			suppliers[in.SupplierID] = found
			supplier = found
		}

		product, err := s.catalog.FindProduct(ctx, in.ProductID)
		if err != nil {
			return nil, translateNotFound(err, procurement.ErrProductNotFound)
		}
		if product.SupplierID != uuid.Nil && product.SupplierID != supplier.ID {
			return nil, procurement.NewValidationError("item %d: product %s is not offered by supplier %s", row, product.SKU, supplier.Name)
		}
		if prev, ok := seenSKUs[product.SKU]; ok {
			return nil, procurement.NewValidationError("item %d: duplicate sku %s in order (item %d)", row, product.SKU, prev)
		}
		seenSKUs[product.SKU] = row

		lines = append(lines, resolvedLine{supplier: supplier, product: product, quantity: in.Quantity})
	}
	return lines, nil
}

func (s *PurchaseOrderService) checkSupplierConfigured(supplier *procurement.Supplier) error {
	if !supplier.IsExternal() {
		return nil
	}
	configured := false
	switch supplier.Slug {
	case procurement.SupplierSlugEzCards:
		configured = s.clients.EzCards != nil
	case procurement.SupplierSlugGift2Games:
		configured = s.clients.Gift2Games != nil
	}
	if !configured {
		return shared.NewDomainError(procurement.CodeSupplierNotConfigured,
			fmt.Sprintf("supplier %q has no configured integration", supplier.Slug))
	}
	return nil
}

// placeAsyncOrder submits the whole group in one call. Any failure is recorded on
// the returned sub-order.
func (s *PurchaseOrderService) placeAsyncOrder(ctx context.Context, logger *zap.Logger, order *procurement.PurchaseOrder, group supplierGroup) *procurement.PurchaseOrderSupplier {
	lines := make([]procurement.OrderLine, 0, len(group.items))
	for _, item := range group.items {
		lines = append(lines, procurement.OrderLine{SKU: item.ProductSKU, Quantity: item.Quantity})
	}
	logger = logger.With(zap.String("supplier", string(group.supplier.Slug)))

	result, err := s.clients.EzCards.PlaceOrder(ctx, lines, order.OrderNumber)
	if err != nil {
		logger.Warn("Supplier order failed", zap.Error(err))
		return procurement.NewFailedSubOrder(group.supplier.ID, err.Error())
	}

	sub, err := procurement.NewProcessingSubOrder(group.supplier.ID, result.TransactionID)
	if err != nil {
		logger.Warn("Supplier accepted order without a transaction id",
			zap.String("supplier_status", result.Status))
		return procurement.NewFailedSubOrder(group.supplier.ID, "supplier returned no transaction id")
	}
	logger.Info("Supplier order accepted",
		zap.String("transaction_id", result.TransactionID),
		zap.String("supplier_status", result.Status),
	)
	return sub
}

// unitResult is one successful single-unit purchase
type unitResult struct {
	sku     string
	voucher *procurement.UnitVoucher
}

// placeSyncOrder buys each unit separately. Failed units are logged and skipped;
// successful units are kept. Only cipher failures abort the order.
func (s *PurchaseOrderService) placeSyncOrder(ctx context.Context, logger *zap.Logger, order *procurement.PurchaseOrder, group supplierGroup) (*procurement.PurchaseOrderSupplier, []*procurement.Voucher, error) {
	logger = logger.With(zap.String("supplier", string(group.supplier.Slug)))

	var (
		results []unitResult
		ordered int
		lastErr error
	)
	for _, item := range group.items {
		for unit := 1; unit <= item.Quantity; unit++ {
			ordered++
			ref := fmt.Sprintf("%s-%s-%d", order.OrderNumber, item.ProductSKU, unit)
			v, err := s.clients.Gift2Games.PlaceOrder(ctx, item.ProductSKU, 1, ref)
			if err != nil {
				lastErr = err
				logger.Warn("Supplier unit order failed",
					zap.String("sku", item.ProductSKU),
					zap.String("reference", ref),
					zap.Error(err),
				)
				continue
			}
			results = append(results, unitResult{sku: item.ProductSKU, voucher: v})
		}
	}

	if len(results) == 0 {
		reason := "no units were delivered"
		if lastErr != nil {
			reason = lastErr.Error()
		}
		return procurement.NewFailedSubOrder(group.supplier.ID, reason), nil, nil
	}
	if len(results) < ordered {
		logger.Warn("Supplier under-delivered",
			zap.Int("ordered", ordered),
			zap.Int("delivered", len(results)),
		)
	}

	vouchers, err := s.vouchersFromUnits(logger, order, results)
	if err != nil {
		return nil, nil, err
	}
	return procurement.NewCompletedSubOrder(group.supplier.ID), vouchers, nil
}

// vouchersFromUnits matches delivered units to order lines by SKU and seals their codes
func (s *PurchaseOrderService) vouchersFromUnits(logger *zap.Logger, order *procurement.PurchaseOrder, results []unitResult) ([]*procurement.Voucher, error) {
	perItem := make(map[uuid.UUID]int)
	vouchers := make([]*procurement.Voucher, 0, len(results))

	for _, r := range results {
		item, ok := order.ItemBySKU(r.sku)
		if !ok {
			logger.Warn("Delivered voucher does not match any order line", zap.String("sku", r.sku))
			continue
		}
		perItem[item.ID]++
		if perItem[item.ID] > item.Quantity {
			logger.Warn("Order line received more vouchers than ordered",
				zap.String("sku", r.sku),
				zap.Int("ordered", item.Quantity),
				zap.Int("received", perItem[item.ID]),
			)
		}

		sealed, err := procurement.Seal(s.cipher, r.voucher.Code)
		if err != nil {
			return nil, fmt.Errorf("seal voucher code: %w", err)
		}
		itemID := item.ID
		v, err := procurement.NewAvailableVoucher(order.ID, &itemID, sealed, procurement.VoucherSourceSupplier)
		if err != nil {
			return nil, err
		}
		v.SetSerialNumber(r.voucher.SerialNumber)
		if r.voucher.PinCode != "" {
			pin, err := s.cipher.Encrypt(r.voucher.PinCode)
			if err != nil {
				return nil, fmt.Errorf("seal voucher pin: %w", err)
			}
			v.SetPinCode(pin)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, nil
}

func (s *PurchaseOrderService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish purchase order events", zap.Error(err))
	}
}

// groupBySupplier groups order items by supplier in first-seen order
func groupBySupplier(order *procurement.PurchaseOrder, lines []resolvedLine) []supplierGroup {
	var groups []supplierGroup
	index := make(map[uuid.UUID]int)
	for i, item := range order.Items {
		pos, ok := index[item.SupplierID]
		if !ok {
			pos = len(groups)
			index[item.SupplierID] = pos
			groups = append(groups, supplierGroup{supplier: lines[i].supplier})
		}
		groups[pos].items = append(groups[pos].items, item)
	}
	return groups
}

// translateNotFound maps a repository not-found to a specific domain error
func translateNotFound(err, notFound error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return notFound
	}
	return asPersistenceError("catalog lookup", err)
}

// asPersistenceError keeps domain errors intact and wraps anything else
func asPersistenceError(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return procurement.NewPersistenceError(op, err)
}
