// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pos-device-service/pkg/driver"
)

// APIResponse is the envelope every endpoint answers with
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError describes a failed request. DeviceCode is the code a device
// reported when it refused the operation.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	DeviceCode string `json:"device_code,omitempty"`
}

// ErrorClass is the status and envelope code a family of errors is reported with
type ErrorClass struct {
	Status int
	Code   string
}

var (
	ClassInvalidRequest = ErrorClass{Status: http.StatusBadRequest, Code: "BAD_REQUEST"}
	ClassValidation     = ErrorClass{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR"}
	ClassNotFound       = ErrorClass{Status: http.StatusNotFound, Code: "NOT_FOUND"}
	ClassDeviceNotReady = ErrorClass{Status: http.StatusConflict, Code: "DEVICE_NOT_READY"}
	ClassUnsupported    = ErrorClass{Status: http.StatusUnprocessableEntity, Code: "UNSUPPORTED"}
	ClassInternal       = ErrorClass{Status: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR"}
	ClassDevice         = ErrorClass{Status: http.StatusBadGateway, Code: "DEVICE_ERROR"}
)

// ErrorClasses maps sentinel errors to classes. Rules match in the order
// they were added; anything else gets the fallback class.
type ErrorClasses struct {
	fallback ErrorClass
	rules    []errorRule
}

type errorRule struct {
	class   ErrorClass
	targets []error
}

// NewErrorClasses creates an empty mapping
func NewErrorClasses(fallback ErrorClass) *ErrorClasses {
	return &ErrorClasses{fallback: fallback}
}

// Add reports errors matching any of targets, via errors.Is, as class
func (m *ErrorClasses) Add(class ErrorClass, targets ...error) *ErrorClasses {
	m.rules = append(m.rules, errorRule{class: class, targets: targets})
	return m
}

// Classify returns the class of the first rule err matches
func (m *ErrorClasses) Classify(err error) ErrorClass {
	for _, rule := range m.rules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule.class
			}
		}
	}
	return m.fallback
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

// ErrorResponse sends an error envelope with the class's status and code
func ErrorResponse(c *gin.Context, class ErrorClass, message string, err error) {
	c.JSON(class.Status, APIResponse{
		Success:   false,
		Message:   message,
		Error:     newAPIError(class, message, err),
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

// ValidationErrorResponse lists the failed rule per request field
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	c.JSON(ClassValidation.Status, APIResponse{
		Success:   false,
		Message:   "Validation failed",
		Error:     newAPIError(ClassValidation, "Request validation failed", nil),
		Data:      gin.H{"validation_errors": fields},
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

func newAPIError(class ErrorClass, message string, err error) *APIError {
	apiErr := &APIError{Code: class.Code, Message: message}
	if err == nil {
		return apiErr
	}
	apiErr.Details = err.Error()

	var devErr *driver.DeviceError
	if errors.As(err, &devErr) {
		apiErr.DeviceCode = devErr.Code
	}
	return apiErr
}
