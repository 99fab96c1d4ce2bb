// Package middleware provides the gin middleware of the procurement API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/interfaces/http/dto"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength caps client supplied request ids.
const MaxRequestIDLength = 128

// RequestID reuses a client X-Request-ID or generates one, and stores it
// under logger.GinRequestIDKey.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > MaxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(logger.GinRequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(logger.GinRequestIDKey)
}

// AbortWithError writes the standard error body and stops the chain.
func AbortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, GetRequestID(c)))
}

// NoRoute answers unknown paths with the standard error body.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithError(c, dto.ErrCodeRouteNotFound, "route "+c.Request.Method+" "+c.Request.URL.Path+" does not exist")
	}
}

// NoMethod answers a known path with an unsupported method.
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithError(c, dto.ErrCodeMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}
}
