package errors

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Common error creators for frequent use cases

// NewTransportError creates an error for connectivity and timeout failures.
func NewTransportError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransport, fmt.Sprintf("%s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Could not reach the server")
}

// NewServerRejectionError creates an error for a non-2xx backend response.
func NewServerRejectionError(operation string, statusCode int, serverMessage string) *AppError {
	msg := fmt.Sprintf("%s rejected with status %d", operation, statusCode)
	appErr := New(ErrCodeServerRejection, msg).
		WithContext("operation", operation).
		WithContext("status_code", statusCode)
	if serverMessage != "" {
		appErr = appErr.WithUserMessage(serverMessage)
	} else {
		appErr = appErr.WithUserMessage("The server rejected the request")
	}
	// 5xx responses are worth a user retry, 4xx generally are not
	appErr.Retryable = statusCode >= 500
	return appErr
}

// NewDecodeError creates an error for a malformed backend response.
func NewDecodeError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDecode, fmt.Sprintf("failed to decode %s response", operation)).
		WithContext("operation", operation).
		WithUserMessage("Received an unexpected response from the server")
}

// NewUploadError creates an error for a media upload collaborator failure.
func NewUploadError(err error) *AppError {
	return WrapRetryable(err, ErrCodeUpload, "media upload failed").
		WithUserMessage("Could not upload the attachment")
}

// NewCacheError creates an error for local cache failures with operation context.
func NewCacheError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeCache, fmt.Sprintf("cache operation failed: %s", operation)).
		WithContext("operation", operation)
}

// NewNotFoundError creates a not found error with resource context.
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier)
}

// LogError logs an error with its structured context, retryable errors at
// warn level and the rest at error level.
func LogError(logger *logrus.Logger, err error, message string) {
	fields := logrus.Fields{"error": err}
	if appErr, ok := err.(*AppError); ok {
		fields["error_code"] = appErr.Code
		fields["retryable"] = appErr.Retryable
		for k, v := range appErr.Context {
			fields[k] = v
		}
	}
	if IsRetryable(err) {
		logger.WithFields(fields).Warn(message)
		return
	}
	logger.WithFields(fields).Error(message)
}
