// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-device-service/internal/service"
	"pos-device-service/internal/utils"
)

// DeviceDiscoverer finds candidate device endpoints
type DeviceDiscoverer interface {
	SerialPorts(ctx context.Context) ([]*service.DiscoveredDevice, error)
	Probe(ctx context.Context, req *service.ProbeRequest) ([]*service.DiscoveredDevice, error)
}

// DiscoveryHandler handles device discovery HTTP requests
type DiscoveryHandler struct {
	discovery DeviceDiscoverer
	logger    *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discovery DeviceDiscoverer, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discovery: discovery,
		logger:    utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/serial-ports", h.ListSerialPorts)
		discovery.POST("/probe", h.Probe)
	}
}

// ListSerialPorts lists serial ports on this host
// @Summary List serial ports
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.DiscoveredDevice} "Serial ports"
// @Router /discovery/serial-ports [get]
func (h *DiscoveryHandler) ListSerialPorts(c *gin.Context) {
	ports, err := h.discovery.SerialPorts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Serial port scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports retrieved", ports)
}

// Probe checks which TCP ports of a host accept connections
// @Summary Probe a host
// @Tags Discovery
// @Accept json
// @Produce json
// @Param request body service.ProbeRequest true "Host and ports"
// @Success 200 {object} utils.APIResponse{data=[]service.DiscoveredDevice} "Open ports"
// @Router /discovery/probe [post]
func (h *DiscoveryHandler) Probe(c *gin.Context) {
	var req service.ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid probe request", err)
		return
	}

	found, err := h.discovery.Probe(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "Probe failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Probe completed", found)
}
