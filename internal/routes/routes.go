// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/handler"
	"pos-device-service/internal/middleware"
	"pos-device-service/internal/utils"
)

// Handlers are the dependencies the HTTP surface is built from
type Handlers struct {
	Devices      handler.DeviceController
	Transactions handler.TransactionRunner
	Receipts     handler.ReceiptIssuer
	Drawer       handler.DrawerController
	Loyalty      handler.LoyaltyTapper
	Display      handler.DisplayWriter
	Discovery    handler.DeviceDiscoverer
	Events       handler.EventSource
	// Journal is nil when operations are journaled in memory
	Journal handler.HealthChecker
}

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	handlers Handlers
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, handlers Handlers) *Router {
	return &Router{
		config:   config,
		logger:   logger,
		handlers: handlers,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	h := r.handlers

	healthHandler := handler.NewHealthHandler(h.Journal, h.Devices, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(h.Devices, r.logger)
	operationHandler := handler.NewOperationHandler(h.Transactions, h.Receipts, r.logger)
	peripheralHandler := handler.NewPeripheralHandler(h.Drawer, h.Loyalty, h.Display, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(h.Discovery, r.logger)
	wsHandler := handler.NewWebSocketHandler(h.Events, r.logger)

	// Health and metrics routes
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	operationHandler.RegisterRoutes(apiV1)
	peripheralHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	wsHandler.RegisterRoutes(router.Group("/ws"))

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
