// internal/handler/errors.go
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"pos-device-service/internal/fiscal"
	"pos-device-service/internal/service"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
	"pos-device-service/pkg/driver"
)

// apiErrors maps service and driver sentinels to response classes.
// Anything unrecognised is a device-side failure.
var apiErrors = utils.NewErrorClasses(utils.ClassDevice).
	Add(utils.ClassNotFound,
		service.ErrDeviceNotConnected,
		service.ErrUnknownDrawerProfile).
	Add(utils.ClassDeviceNotReady,
		driver.ErrNotInitialized,
		driver.ErrBusy).
	Add(utils.ClassUnsupported,
		driver.ErrNotSupported,
		driver.ErrUnsupportedTransaction,
		driver.ErrUnknownProtocol,
		service.ErrDisplayNotConfigured).
	Add(utils.ClassInvalidRequest,
		driver.ErrInvalidRequest,
		transport.ErrInvalidConfig,
		fiscal.ErrMissingItems,
		fiscal.ErrEmptyOrder,
		service.ErrEmptyCardID,
		service.ErrInvalidProbe)

// respondError writes the error envelope; device-side failures are logged
func respondError(c *gin.Context, logger *utils.ServiceLogger, message string, err error) {
	class := apiErrors.Classify(err)
	if class == utils.ClassDevice {
		logger.Error(message,
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	utils.ErrorResponse(c, class, message, err)
}

// respondBindError reports a request body that failed to decode or validate
func respondBindError(c *gin.Context, message string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		utils.ErrorResponse(c, utils.ClassInvalidRequest, message, err)
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	utils.ValidationErrorResponse(c, fields)
}
