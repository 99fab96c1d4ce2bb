package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/logger"
)

// IdempotencyKeyHeader is the optional client supplied deduplication key.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxIdempotencyKeyLength bounds the header so keys stay cheap to store.
const maxIdempotencyKeyLength = 200

// Idempotency rejects a repeated Idempotency-Key within ttl with 409
// DUPLICATE_REQUEST. A key whose request failed is released so the client
// can retry. Requests without the header pass through.
func Idempotency(store shared.IdempotencyStore, scope string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			AbortWithError(c, shared.CodeValidationFailed, "Idempotency-Key must be at most 200 characters")
			return
		}

		ctx := c.Request.Context()
		log := logger.L(ctx)
		storeKey := scope + ":" + key

		fresh, err := store.MarkProcessed(ctx, storeKey, ttl)
		if err != nil {
			// the store being down must not block order intake
			log.Warn("Idempotency store unavailable, continuing without deduplication", zap.Error(err))
			c.Next()
			return
		}
		if !fresh {
			log.Info("Duplicate request rejected", zap.String("idempotency_key", key))
			AbortWithError(c, shared.CodeDuplicateRequest, "A request with this Idempotency-Key was already accepted")
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := store.Release(ctx, storeKey); err != nil {
				log.Warn("Failed to release idempotency key", zap.String("idempotency_key", key), zap.Error(err))
			}
		}
	}
}
