package procurement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CodeExtractor turns an uploaded file (csv, xlsx or a zip of those) into an
// ordered list of voucher codes.
type CodeExtractor interface {
	Extract(filename string, data []byte) ([]string, error)
}

// VoucherImportService loads operator-supplied voucher codes for a purchase order
// as one all-or-nothing batch.
type VoucherImportService struct {
	txScope        TransactionScope
	cipher         procurement.CodeCipher
	extractor      CodeExtractor
	eventPublisher shared.EventPublisher
	metrics        *telemetry.ProcurementMetrics
	logger         *zap.Logger
}

// NewVoucherImportService creates a new VoucherImportService
func NewVoucherImportService(txScope TransactionScope, cipher procurement.CodeCipher, extractor CodeExtractor, logger *zap.Logger) *VoucherImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoucherImportService{
		txScope:   txScope,
		cipher:    cipher,
		extractor: extractor,
		logger:    logger,
	}
}

// SetEventPublisher sets the publisher for import events
func (s *VoucherImportService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the procurement metrics collector
func (s *VoucherImportService) SetMetrics(m *telemetry.ProcurementMetrics) {
	s.metrics = m
}

// ImportCodes imports an explicit list of codes
func (s *VoucherImportService) ImportCodes(ctx context.Context, orderID uuid.UUID, codes []string) (*ImportResult, error) {
	result, err := s.importBatch(ctx, orderID, codes, "list")
	if s.metrics != nil {
		s.metrics.RecordImportBatch(ctx, "list", err)
	}
	return result, err
}

// ImportFile extracts codes from an uploaded spreadsheet, csv or zip and imports them
func (s *VoucherImportService) ImportFile(ctx context.Context, orderID uuid.UUID, filename string, data []byte) (*ImportResult, error) {
	format := fileFormat(filename)
	if s.extractor == nil {
		return nil, procurement.NewValidationError("file imports are not enabled")
	}
	codes, err := s.extractor.Extract(filename, data)
	if err == nil {
		var result *ImportResult
		result, err = s.importBatch(ctx, orderID, codes, format)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordImportBatch(ctx, format, nil)
			}
			return result, nil
		}
	}
	if s.metrics != nil {
		s.metrics.RecordImportBatch(ctx, format, err)
	}
	return nil, err
}

func (s *VoucherImportService) importBatch(ctx context.Context, orderID uuid.UUID, codes []string, format string) (*ImportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "voucher_import", "import",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrImportFormat, format),
	)
	defer span.End()

	var result *ImportResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.PurchaseOrders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		expected := order.TotalQuantity()
		if len(codes) != expected {
			return procurement.NewValidationError(
				"order %s expects %d voucher codes but %d were submitted", order.OrderNumber, expected, len(codes))
		}

		sealed, err := s.validateAndSeal(ctx, repos.Vouchers(), codes)
		if err != nil {
			return err
		}

		vouchers := make([]*procurement.Voucher, 0, len(sealed))
		next := 0
		for _, item := range order.Items {
			for n := 0; n < item.Quantity; n++ {
				itemID := item.ID
				v, err := procurement.NewAvailableVoucher(order.ID, &itemID, sealed[next], procurement.VoucherSourceImport)
				if err != nil {
					return err
				}
				vouchers = append(vouchers, v)
				next++
			}
		}

		if err := repos.Vouchers().CreateBatch(ctx, vouchers); err != nil {
			return err
		}
		result = &ImportResult{PurchaseOrderID: order.ID, OrderNumber: order.OrderNumber, Imported: len(vouchers)}
		return nil
	})
	if err != nil {
		err = asPersistenceError("import vouchers", err)
		telemetry.RecordError(span, err)
		s.logger.Warn("Voucher import rejected",
			zap.String("order_id", orderID.String()),
			zap.String("format", format),
			zap.Int("rows", len(codes)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Vouchers imported",
		zap.String("order_number", result.OrderNumber),
		zap.Int("count", result.Imported),
	)
	if s.metrics != nil {
		s.metrics.RecordVouchersAdded(ctx, string(procurement.VoucherSourceImport), result.Imported)
	}
	if s.eventPublisher != nil {
		event := procurement.NewVouchersImportedEvent(result.PurchaseOrderID, result.OrderNumber, result.Imported)
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish voucher import event", zap.Error(err))
		}
	}
	return result, nil
}

// validateAndSeal checks every row and encrypts the codes. Rows are numbered from 1.
// Uniqueness is case-sensitive, within the batch and against stored vouchers.
func (s *VoucherImportService) validateAndSeal(ctx context.Context, vouchers procurement.VoucherRepository, codes []string) ([]procurement.SealedCode, error) {
	firstSeen := make(map[string]int, len(codes))
	rowByHash := make(map[string]int, len(codes))
	hashes := make([]string, 0, len(codes))

	for i, raw := range codes {
		row := i + 1
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, procurement.NewValidationError("row %d: voucher code is empty", row)
		}
		if prev, ok := firstSeen[code]; ok {
			return nil, procurement.NewValidationError("row %d: duplicate voucher code %q (first seen at row %d)", row, code, prev)
		}
		firstSeen[code] = row
		hash := s.cipher.Fingerprint(code)
		rowByHash[hash] = row
		hashes = append(hashes, hash)
	}

	existing, err := vouchers.ExistingCodeHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		first := 0
		for _, h := range existing {
			if row := rowByHash[h]; row > 0 && (first == 0 || row < first) {
				first = row
			}
		}
		return nil, procurement.NewValidationError("row %d: voucher code %q already exists", first, strings.TrimSpace(codes[first-1]))
	}

	sealed := make([]procurement.SealedCode, 0, len(codes))
	for _, raw := range codes {
		sc, err := procurement.Seal(s.cipher, strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		sealed = append(sealed, sc)
	}
	return sealed, nil
}

func fileFormat(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return "zip"
	case strings.HasSuffix(name, ".xlsx"):
		return "xlsx"
	case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".txt"):
		return "csv"
	default:
		return "unknown"
	}
}
