// Package handler holds the gin handlers of the procurement API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/interfaces/http/dto"
	"github.com/manavault/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		middleware.GetRequestID(c),
		details,
	))
}

// BindError answers a failed ShouldBind*. Validator errors carry per-field
// details; anything else is a malformed body.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if details := middleware.ValidationDetails(err); details != nil {
		h.ValidationError(c, details)
		return
	}
	h.ErrorWithCode(c, dto.ErrCodeValidationFailed, "Malformed request: "+err.Error())
}

// HandleError converts domain errors to HTTP responses. Messages of codes
// that map to 500 are replaced so ciphertext and driver details stay in the logs.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	log := logger.GetGinLogger(c)

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		log.Error("Unhandled error", zap.Error(err))
		h.ErrorWithCode(c, dto.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	if !dto.ExposesMessage(domainErr.Code) {
		log.Error("Request failed", zap.String("error_code", domainErr.Code), zap.Error(err))
		h.ErrorWithCode(c, domainErr.Code, "An unexpected error occurred")
		return
	}
	log.Info("Request rejected", zap.String("error_code", domainErr.Code), zap.String("reason", domainErr.Message))
	h.ErrorWithCode(c, domainErr.Code, domainErr.Message)
}
