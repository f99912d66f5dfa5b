// internal/handler/device_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/utils"
)

// DeviceController is the device manager surface the HTTP API drives
type DeviceController interface {
	ConnectDevice(ctx context.Context, cfg *model.DeviceConfig) error
	DisconnectDevice(ctx context.Context, deviceID string) error
	GetDeviceStatus(ctx context.Context, deviceID string) *model.DeviceStatus
	TestConnection(ctx context.Context, cfg *model.DeviceConfig) error
	ConnectedDeviceIDs() []string
}

// DeviceHandler handles device connection HTTP requests
type DeviceHandler struct {
	devices DeviceController
	logger  *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices DeviceController, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.POST("/connect", h.ConnectDevice)
		devices.POST("/test", h.TestDevice)

		deviceRoutes := devices.Group("/:device_id")
		{
			deviceRoutes.POST("/disconnect", h.DisconnectDevice)
			deviceRoutes.GET("/status", h.GetDeviceStatus)
		}
	}
}

// ListDevices lists connected device ids
// @Summary List connected devices
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{devices=[]string}} "Connected devices"
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connected devices retrieved", gin.H{
		"devices": h.devices.ConnectedDeviceIDs(),
	})
}

// ConnectDevice connects (or reconnects) a device
// @Summary Connect a device
// @Description Builds the protocol adapter for the config and initializes it. An existing connection with the same id is torn down first.
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body model.DeviceConfig true "Device config"
// @Success 200 {object} utils.APIResponse "Device connected"
// @Failure 400 {object} utils.APIResponse "Invalid config"
// @Failure 422 {object} utils.APIResponse "Unknown protocol"
// @Failure 502 {object} utils.APIResponse "Device unreachable or initialization failed"
// @Router /devices/connect [post]
func (h *DeviceHandler) ConnectDevice(c *gin.Context) {
	var cfg model.DeviceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondBindError(c, "Invalid device config", err)
		return
	}

	if err := h.devices.ConnectDevice(c.Request.Context(), &cfg); err != nil {
		respondError(c, h.logger, "Failed to connect device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device connected", gin.H{"device_id": cfg.DeviceID})
}

// TestDevice probes a device config without keeping a connection
// @Summary Test a device connection
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body model.DeviceConfig true "Device config"
// @Success 200 {object} utils.APIResponse "Device reachable"
// @Failure 502 {object} utils.APIResponse "Device unreachable"
// @Router /devices/test [post]
func (h *DeviceHandler) TestDevice(c *gin.Context) {
	var cfg model.DeviceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondBindError(c, "Invalid device config", err)
		return
	}

	if err := h.devices.TestConnection(c.Request.Context(), &cfg); err != nil {
		respondError(c, h.logger, "Device test failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device reachable", gin.H{"device_id": cfg.DeviceID})
}

// DisconnectDevice disconnects a device; unknown ids are not an error
// @Summary Disconnect a device
// @Tags Devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Device disconnected"
// @Router /devices/{device_id}/disconnect [post]
func (h *DeviceHandler) DisconnectDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	if err := h.devices.DisconnectDevice(c.Request.Context(), deviceID); err != nil {
		respondError(c, h.logger, "Failed to disconnect device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", gin.H{"device_id": deviceID})
}

// GetDeviceStatus reports device status. It always answers 200; an unknown
// device is reported as not connected.
// @Summary Device status
// @Tags Devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.DeviceStatus} "Device status"
// @Router /devices/{device_id}/status [get]
func (h *DeviceHandler) GetDeviceStatus(c *gin.Context) {
	status := h.devices.GetDeviceStatus(c.Request.Context(), c.Param("device_id"))
	utils.SuccessResponse(c, http.StatusOK, "Device status retrieved", status)
}
