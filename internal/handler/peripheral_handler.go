// internal/handler/peripheral_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-device-service/internal/service"
	"pos-device-service/internal/utils"
)

// DrawerController kicks configured cash drawers
type DrawerController interface {
	Kick(ctx context.Context, profileID string) (*service.KickResult, error)
	Profiles() []string
}

// LoyaltyTapper accepts loyalty card taps
type LoyaltyTapper interface {
	Tap(cardID string) (*service.TapResult, error)
}

// DisplayWriter writes to the customer display
type DisplayWriter interface {
	Show(line1, line2 string) error
}

// TapRequest is a loyalty card tap
type TapRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

// DisplayRequest is the text for both display lines
type DisplayRequest struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// PeripheralHandler handles drawer, loyalty and customer display requests
type PeripheralHandler struct {
	drawer  DrawerController
	loyalty LoyaltyTapper
	display DisplayWriter
	logger  *utils.ServiceLogger
}

// NewPeripheralHandler creates a new peripheral handler
func NewPeripheralHandler(drawer DrawerController, loyalty LoyaltyTapper, display DisplayWriter, logger *zap.Logger) *PeripheralHandler {
	return &PeripheralHandler{
		drawer:  drawer,
		loyalty: loyalty,
		display: display,
		logger:  utils.NewServiceLogger(logger, "peripheral-handler"),
	}
}

// RegisterRoutes registers peripheral routes
func (h *PeripheralHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/drawer/profiles", h.ListDrawerProfiles)
	router.POST("/drawer/:profile_id/kick", h.KickDrawer)
	router.POST("/loyalty/tap", h.LoyaltyTap)
	router.POST("/display", h.ShowDisplay)
}

// ListDrawerProfiles lists configured drawer profiles
// @Summary List drawer profiles
// @Tags Peripherals
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{profiles=[]string}} "Profiles"
// @Router /drawer/profiles [get]
func (h *PeripheralHandler) ListDrawerProfiles(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Drawer profiles retrieved", gin.H{
		"profiles": h.drawer.Profiles(),
	})
}

// KickDrawer opens a cash drawer
// @Summary Open a cash drawer
// @Description A rate-limited or unreachable drawer is a 200 response with success=false and a reason.
// @Tags Peripherals
// @Produce json
// @Param profile_id path string true "Drawer profile"
// @Success 200 {object} utils.APIResponse{data=service.KickResult} "Kick outcome"
// @Failure 404 {object} utils.APIResponse "Unknown profile"
// @Router /drawer/{profile_id}/kick [post]
func (h *PeripheralHandler) KickDrawer(c *gin.Context) {
	result, err := h.drawer.Kick(c.Request.Context(), c.Param("profile_id"))
	if err != nil {
		respondError(c, h.logger, "Drawer kick failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Drawer kick processed", result)
}

// LoyaltyTap reports a loyalty card tap
// @Summary Loyalty card tap
// @Tags Peripherals
// @Accept json
// @Produce json
// @Param request body TapRequest true "Card"
// @Success 200 {object} utils.APIResponse{data=service.TapResult} "Tap outcome"
// @Router /loyalty/tap [post]
func (h *PeripheralHandler) LoyaltyTap(c *gin.Context) {
	var req TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid tap request", err)
		return
	}

	result, err := h.loyalty.Tap(req.CardID)
	if err != nil {
		respondError(c, h.logger, "Tap rejected", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Tap processed", result)
}

// ShowDisplay writes two lines to the customer display
// @Summary Customer display text
// @Tags Peripherals
// @Accept json
// @Produce json
// @Param request body DisplayRequest true "Lines"
// @Success 200 {object} utils.APIResponse "Displayed"
// @Failure 422 {object} utils.APIResponse "No display configured"
// @Router /display [post]
func (h *PeripheralHandler) ShowDisplay(c *gin.Context) {
	var req DisplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid display request", err)
		return
	}

	if err := h.display.Show(req.Line1, req.Line2); err != nil {
		respondError(c, h.logger, "Display write failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Displayed", nil)
}
