package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/middleware"
	"crm-pipeline-api/internal/response"
)

// handleServiceError maps service layer errors to HTTP responses. Details
// are logged and never written to the client.
func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.SendError(c, http.StatusNotFound, response.ErrCodeNotFound, "Resource not found")
		return
	}

	var appErr *response.AppError
	if errors.As(err, &appErr) {
		status := mapErrorCodeToHTTPStatus(appErr.Code)
		fields := []zap.Field{
			zap.String("code", appErr.Code),
			zap.String("path", c.FullPath()),
			zap.String("details", appErr.Details),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Service error", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("Request rejected", fields...)
		}
		response.SendError(c, status, appErr.Code, appErr.Message)
		return
	}

	logger.Error("Unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
	response.SendError(c, http.StatusInternalServerError, response.ErrCodeInternal, "Internal server error")
}

// mapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func mapErrorCodeToHTTPStatus(code string) int {
	switch code {
	case response.ErrCodeNotFound:
		return http.StatusNotFound
	case response.ErrCodeAlreadyExists, response.ErrCodeConflict:
		return http.StatusConflict
	case response.ErrCodeValidation:
		return http.StatusBadRequest
	case response.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case response.ErrCodeForbidden:
		return http.StatusForbidden
	case response.ErrCodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// currentUser returns the authenticated caller or writes a 401
func currentUser(c *gin.Context) (domain.User, bool) {
	user, ok := middleware.GetUser(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return domain.User{}, false
	}
	return user, true
}
