package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/utils"
)

// HandleServiceError maps domain errors to HTTP responses. Authentication
// failures always produce the same generic 401 body.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch {
	case services.IsUnauthenticatedError(err):
		logger.Debug("unauthenticated", zap.Error(err))
		w.Header().Set("WWW-Authenticate", `Bearer realm="hr-auth"`)
		writeErr = utils.WriteUnauthorized(w, services.ErrUnauthenticated.Message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, services.ErrForbidden.Message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, services.ErrorMessage(err), details)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, services.ErrorMessage(err))

	case services.IsConflictError(err):
		writeErr = utils.WriteError(w, http.StatusConflict, services.ErrorMessage(err), details)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, services.ErrRateLimitExceeded.Message, 0)

	case services.IsDeliveryFailureError(err):
		// Notifier failures are distinct from auth failures
		logger.Error("notification delivery failed", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, services.ErrDeliveryFailed.Message, nil)

	case services.IsConfigurationError(err):
		logger.Error("configuration error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "service misconfigured")

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.FieldDetails(err)); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
