// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ProcurementMetrics tracks purchase orders, supplier traffic, reconciliation
// and voucher imports.
type ProcurementMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	orderCreatedTotal       *Counter
	supplierRequestTotal    *Counter
	supplierRequestDuration *Histogram
	vouchersAddedTotal      *Counter
	reconciliationRunTotal  *Counter
	reconciliationFailures  *Counter
	reconciliationDuration  *Histogram
	importBatchTotal        *Counter

	pendingSubOrders *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	pendingProvider PendingSubOrderProvider
}

// PendingSubOrderProvider reports how many supplier sub-orders are awaiting reconciliation
type PendingSubOrderProvider interface {
	CountPendingSubOrders(ctx context.Context) (map[string]int64, error)
}

// ProcurementMetricsConfig holds configuration for procurement metrics.
type ProcurementMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	PendingProvider PendingSubOrderProvider
}

// NewProcurementMetrics creates a new ProcurementMetrics instance.
func NewProcurementMetrics(cfg ProcurementMetricsConfig) (*ProcurementMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &ProcurementMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		pendingProvider: cfg.PendingProvider,
	}

	var err error
	if pm.orderCreatedTotal, err = NewCounter(cfg.Meter,
		"manavault_purchase_order_created_total",
		"Total number of purchase orders created",
		"{orders}",
	); err != nil {
		return nil, err
	}
	if pm.supplierRequestTotal, err = NewCounter(cfg.Meter,
		"manavault_supplier_request_total",
		"Total number of supplier API requests",
		"{requests}",
	); err != nil {
		return nil, err
	}
	if pm.supplierRequestDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "manavault_supplier_request_duration_seconds",
		Description: "Supplier API request duration including retries",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.vouchersAddedTotal, err = NewCounter(cfg.Meter,
		"manavault_voucher_added_total",
		"Total number of vouchers that became available",
		"{vouchers}",
	); err != nil {
		return nil, err
	}
	if pm.reconciliationRunTotal, err = NewCounter(cfg.Meter,
		"manavault_reconciliation_run_total",
		"Total number of reconciliation runs",
		"{runs}",
	); err != nil {
		return nil, err
	}
	if pm.reconciliationFailures, err = NewCounter(cfg.Meter,
		"manavault_reconciliation_suborder_failed_total",
		"Total number of sub-orders that failed to reconcile",
		"{suborders}",
	); err != nil {
		return nil, err
	}
	if pm.reconciliationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "manavault_reconciliation_duration_seconds",
		Description: "Duration of a full reconciliation run",
		Unit:        "s",
		Boundaries:  []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}); err != nil {
		return nil, err
	}
	if pm.importBatchTotal, err = NewCounter(cfg.Meter,
		"manavault_voucher_import_batch_total",
		"Total number of voucher import batches",
		"{batches}",
	); err != nil {
		return nil, err
	}
	if pm.pendingSubOrders, err = NewGauge(cfg.Meter,
		"manavault_pending_suborders",
		"Sub-orders awaiting voucher reconciliation",
		"{suborders}",
	); err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordOrderCreated records a purchase order with its initial status
func (pm *ProcurementMetrics) RecordOrderCreated(ctx context.Context, status string) {
	pm.orderCreatedTotal.Inc(ctx, AttrOrderStatus.String(status))
}

// ObserveSupplierRequest records one supplier call. It satisfies supplier.RequestObserver.
func (pm *ProcurementMetrics) ObserveSupplierRequest(ctx context.Context, supplier, operation string, statusCode int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := []attribute.KeyValue{
		AttrSupplier.String(supplier),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
		AttrHTTPStatusCode.Int(statusCode),
	}
	pm.supplierRequestTotal.Inc(ctx, attrs...)
	pm.supplierRequestDuration.RecordDuration(ctx, duration, attrs[:3]...)
}

// RecordVouchersAdded counts vouchers that became available
func (pm *ProcurementMetrics) RecordVouchersAdded(ctx context.Context, source string, count int) {
	if count <= 0 {
		return
	}
	pm.vouchersAddedTotal.Add(ctx, int64(count), AttrVoucherSource.String(source))
}

// RecordReconciliationRun records the outcome of a reconciliation pass
func (pm *ProcurementMetrics) RecordReconciliationRun(ctx context.Context, failed int, duration time.Duration) {
	outcome := "success"
	if failed > 0 {
		outcome = "partial"
	}
	pm.reconciliationRunTotal.Inc(ctx, AttrOutcome.String(outcome))
	if failed > 0 {
		pm.reconciliationFailures.Add(ctx, int64(failed))
	}
	pm.reconciliationDuration.RecordDuration(ctx, duration)
}

// RecordImportBatch records a voucher import attempt
func (pm *ProcurementMetrics) RecordImportBatch(ctx context.Context, format string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	pm.importBatchTotal.Inc(ctx, AttrImportFormat.String(format), AttrOutcome.String(outcome))
}

// RecordPendingSubOrders records the backlog for one supplier
func (pm *ProcurementMetrics) RecordPendingSubOrders(ctx context.Context, supplier string, count int64) {
	pm.pendingSubOrders.Record(ctx, count, AttrSupplier.String(supplier))
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of the pending sub-order gauge.
// This is non-blocking - use Stop() to stop collection.
func (pm *ProcurementMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go pm.runPeriodicCollection(ctx, interval)
	})
}

func (pm *ProcurementMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collectPending(ctx)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic procurement metrics collection")
			return
		case <-ctx.Done():
			pm.logger.Info("Context cancelled, stopping periodic procurement metrics collection")
			return
		case <-ticker.C:
			pm.collectPending(ctx)
		}
	}
}

func (pm *ProcurementMetrics) collectPending(ctx context.Context) {
	if pm.pendingProvider == nil {
		pm.logger.Debug("No pending sub-order provider configured, skipping collection")
		return
	}
	counts, err := pm.pendingProvider.CountPendingSubOrders(ctx)
	if err != nil {
		pm.logger.Warn("Failed to count pending sub-orders", zap.Error(err))
		return
	}
	for supplier, count := range counts {
		pm.RecordPendingSubOrders(ctx, supplier, count)
	}
}

// Stop stops the periodic collection.
func (pm *ProcurementMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewProcurementMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
