package procurement

import (
	"context"

	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// VoucherService serves voucher codes to authorized operators. Every reveal is audited.
type VoucherService struct {
	txScope TransactionScope
	cipher  procurement.CodeCipher
	logger  *zap.Logger
}

// NewVoucherService creates a new VoucherService
func NewVoucherService(txScope TransactionScope, cipher procurement.CodeCipher, logger *zap.Logger) *VoucherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoucherService{txScope: txScope, cipher: cipher, logger: logger}
}

// RevealCode decrypts a voucher code and appends an audit entry in the same transaction.
// Values that do not decrypt are returned as stored, since rows written before
// encryption was introduced hold plaintext.
func (s *VoucherService) RevealCode(ctx context.Context, voucherID uuid.UUID, access AccessContext) (*RevealedVoucherResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "voucher", "reveal",
		telemetry.WithAttribute(telemetry.SpanAttrVoucherID, voucherID.String()),
	)
	defer span.End()

	entry, err := procurement.NewVoucherAuditLog(voucherID, access.ActorID, access.Action, access.IPAddress, access.UserAgent)
	if err != nil {
		return nil, err
	}

	var resp *RevealedVoucherResponse
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		v, err := repos.Vouchers().FindByID(ctx, voucherID)
		if err != nil {
			return err
		}
		if v.IsPlaceholder() {
			return shared.NewDomainError(shared.CodeInvalidStateTransition, "voucher code has not been delivered yet")
		}

		resp = &RevealedVoucherResponse{
			ID:     v.ID,
			Code:   s.readable(v.ID, "code", *v.Code),
			Status: v.Status.String(),
		}
		if v.PinCode != nil {
			resp.PinCode = s.readable(v.ID, "pin_code", *v.PinCode)
		}
		if v.SerialNumber != nil {
			resp.SerialNumber = *v.SerialNumber
		}
		return repos.AuditLogs().Append(ctx, entry)
	})
	if err != nil {
		err = asPersistenceError("reveal voucher code", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Voucher code revealed",
		zap.String("voucher_id", voucherID.String()),
		zap.String("actor_id", access.ActorID),
		zap.String("action", string(access.Action)),
	)
	return resp, nil
}

func (s *VoucherService) readable(id uuid.UUID, field, stored string) string {
	if plain, ok := s.cipher.SafeDecrypt(stored); ok {
		return plain
	}
	s.logger.Warn("Voucher field is not encrypted, returning stored value",
		zap.String("voucher_id", id.String()),
		zap.String("field", field),
	)
	return stored
}
