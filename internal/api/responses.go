package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boardwatch/boardwatch/pkg/errors"
	"github.com/boardwatch/boardwatch/pkg/resilience"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// CreatedResponse sends a 201 Created response
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, &APIError{
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

// NotFoundResponse sends a 404 Not Found response
func NotFoundResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusNotFound, &APIError{
		Code:    "NOT_FOUND",
		Message: message,
	})
}

// ErrorResponseFromError sends an error response based on the error
// type. Circuit rejections and exhausted retries surface as 503 so
// callers know the failure is on a dependency, not the request.
func ErrorResponseFromError(c *gin.Context, err error) {
	var open *resilience.CircuitOpenError
	if stderrors.As(err, &open) {
		errorResponse(c, http.StatusServiceUnavailable, &APIError{
			Code:    "CIRCUIT_OPEN",
			Message: err.Error(),
			Details: map[string]interface{}{"category": open.Category},
		})
		return
	}

	var exhausted *resilience.RetryExhaustedError
	if stderrors.As(err, &exhausted) {
		errorResponse(c, http.StatusServiceUnavailable, &APIError{
			Code:    "RETRY_EXHAUSTED",
			Message: err.Error(),
			Details: map[string]interface{}{"category": exhausted.Category},
		})
		return
	}

	var statusCode int
	var apiError *APIError

	switch e := err.(type) {
	case *errors.AppError:
		switch e.Type {
		case errors.ErrorTypeValidation:
			statusCode = http.StatusBadRequest
		case errors.ErrorTypeNotFound:
			statusCode = http.StatusNotFound
		case errors.ErrorTypeConflict:
			statusCode = http.StatusConflict
		case errors.ErrorTypeRateLimit:
			statusCode = http.StatusTooManyRequests
		case errors.ErrorTypeTimeout:
			statusCode = http.StatusRequestTimeout
		case errors.ErrorTypeUnavailable, errors.ErrorTypeExternal:
			statusCode = http.StatusServiceUnavailable
		default:
			statusCode = http.StatusInternalServerError
		}

		apiError = &APIError{
			Code:    e.Code,
			Message: e.Message,
		}
		if len(e.Details) > 0 {
			apiError.Details = make(map[string]interface{}, len(e.Details))
			for k, v := range e.Details {
				apiError.Details[k] = v
			}
		}
	default:
		statusCode = http.StatusInternalServerError
		apiError = &APIError{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		}
	}

	errorResponse(c, statusCode, apiError)
}

func errorResponse(c *gin.Context, statusCode int, apiError *APIError) {
	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}
