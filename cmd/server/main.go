// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "pos-device-service/docs"
	"pos-device-service/internal/config"
	"pos-device-service/internal/database"
	"pos-device-service/internal/driver"
	"pos-device-service/internal/event"
	"pos-device-service/internal/handler"
	"pos-device-service/internal/repository"
	"pos-device-service/internal/routes"
	"pos-device-service/internal/safety"
	"pos-device-service/internal/service"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
	pkgdriver "pos-device-service/pkg/driver"
)

const memoryJournalCapacity = 1000

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Background work is stopped through this context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Infrastructure
	serialPool *transport.SerialPool
	events     *event.Bus
	builder    *driver.Builder

	// Repositories
	operationRepo repository.OperationRepository

	// Services
	deviceManager      *service.DeviceManager
	transactionService *service.TransactionService
	receiptService     *service.ReceiptService
	drawerService      *service.DrawerService
	loyaltyService     *service.LoyaltyService
	displayService     *service.DisplayService
	scannerService     *service.ScannerService
	discoveryService   *service.DiscoveryService
}

// @title POS Device Service API
// @version 1.0.0
// @description Local bridge between POS software and fiscal printers, payment terminals and peripherals

// @host localhost:8084
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "pos-device-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeJournal(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	app.initializeDriverRegistry()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeJournal connects the PostgreSQL journal and runs migrations, or
// falls back to an in-memory journal when it is disabled
func (app *Application) initializeJournal() error {
	if !app.config.Journal.Enabled {
		app.operationRepo = repository.NewMemoryOperationRepository(memoryJournalCapacity)
		app.logger.Info("Operation journal kept in memory", zap.Int("capacity", memoryJournalCapacity))
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.config.Journal.MigrationsPath, app.logger)
	if err := migrator.Up(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.operationRepo = repository.NewOperationRepository(db, app.logger)
	app.logger.Info("Journal database initialized successfully")
	return nil
}

// initializeDriverRegistry sets up the protocol registry and the device builder
func (app *Application) initializeDriverRegistry() {
	registry := driver.NewRegistry(app.logger)
	driver.RegisterDefaultProtocols(registry, app.logger)

	dev := app.config.Device
	app.serialPool = transport.NewSerialPool(app.logger)
	app.builder = driver.NewBuilder(registry, app.serialPool, app.transportSettings(),
		pkgdriver.Options{TransactionTimeout: dev.TransactionTimeout}, app.logger)

	app.logger.Info("Protocol registry initialized successfully",
		zap.Any("protocols", registry.Protocols()),
	)
}

func (app *Application) transportSettings() transport.Settings {
	dev := app.config.Device
	return transport.Settings{
		ConnectTimeout:    dev.TCPConnectTimeout,
		ReadTimeout:       dev.TCPReadTimeout,
		WriteTimeout:      dev.TCPWriteTimeout,
		SerialReadTimeout: dev.SerialReadTimeout,
		DefaultBaudRate:   dev.SerialBaudRate,
	}
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	cfg := app.config

	app.events = event.NewBus(app.logger)
	app.deviceManager = service.NewDeviceManager(app.builder, app.events, cfg.Device.OperationTimeout, app.logger)
	app.transactionService = service.NewTransactionService(app.deviceManager, app.operationRepo, app.events, app.logger)

	app.drawerService = service.NewDrawerService(cfg.Drawer, safety.NewDrawerLimiter(cfg.Drawer.MinInterval),
		app.transportSettings(), app.events, app.logger)
	app.receiptService = service.NewReceiptService(app.transactionService, app.drawerService, cfg.Fiscal, app.logger)

	app.loyaltyService = service.NewLoyaltyService(safety.NewCardDebounce(cfg.Loyalty.DebounceWindow), app.events, app.logger)
	if cfg.Loyalty.Reader.Enabled() {
		app.loyaltyService.AttachReader(app.lineReaderConfig(cfg.Loyalty.Reader), app.serialPool, app.logger)
	}
	if cfg.Scanner.Enabled() {
		app.scannerService = service.NewScannerService(app.lineReaderConfig(cfg.Scanner), app.serialPool, app.events, app.logger)
	}
	app.displayService = service.NewDisplayService(cfg.Display, app.serialPool, cfg.Device.SerialReadTimeout, app.logger)
	app.discoveryService = service.NewDiscoveryService(cfg.Device.TCPConnectTimeout, app.logger)

	app.logger.Info("Services initialized successfully")
}

func (app *Application) lineReaderConfig(p config.SerialPeripheral) service.LineReaderConfig {
	return service.LineReaderConfig{
		Port:         p.Port,
		BaudRate:     p.BaudRate,
		ReadTimeout:  app.config.Device.SerialReadTimeout,
		PollInterval: app.config.Device.ReaderPollInterval,
		Backoff:      app.config.Device.ReaderBackoff,
	}
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	handlers := routes.Handlers{
		Devices:      app.deviceManager,
		Transactions: app.transactionService,
		Receipts:     app.receiptService,
		Drawer:       app.drawerService,
		Loyalty:      app.loyaltyService,
		Display:      app.displayService,
		Discovery:    app.discoveryService,
		Events:       app.events,
	}
	var journal handler.HealthChecker
	if app.database != nil {
		journal = app.database
	}
	handlers.Journal = journal

	router := routes.NewRouter(app.config, app.logger, handlers).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	app.goBackground(app.events.Run)
	app.goBackground(app.loyaltyService.Run)
	if app.scannerService != nil {
		app.goBackground(app.scannerService.Run)
	}
	app.goBackground(app.startCleanupService)
	app.goBackground(app.connectConfiguredDevices)

	app.logger.Info("Background services started")
}

func (app *Application) goBackground(run func(ctx context.Context)) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		run(app.ctx)
	}()
}

// connectConfiguredDevices connects every configured device. A failure is
// logged and leaves the device disconnected.
func (app *Application) connectConfiguredDevices(ctx context.Context) {
	for i := range app.config.Devices {
		cfg := app.config.Devices[i]
		if err := app.deviceManager.ConnectDevice(ctx, &cfg); err != nil {
			app.logger.Warn("Configured device not connected",
				zap.String("device_id", cfg.DeviceID),
				zap.String("protocol", string(cfg.Protocol)),
				zap.String("address", cfg.Address()),
				zap.Error(err),
			)
			continue
		}
		app.logger.Info("Configured device connected", zap.String("device_id", cfg.DeviceID))
	}
}

// startCleanupService drops journal rows past the retention period
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started", zap.Duration("retention", app.config.Journal.Retention))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cleanupCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		deleted, err := app.operationRepo.DeleteOldOperations(cleanupCtx, time.Now().Add(-app.config.Journal.Retention))
		cancel()

		if err != nil {
			app.logger.Error("Failed to cleanup old operations", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Cleaned up old operations", zap.Int64("deleted", deleted))
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "pos-device-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.cancel()
	app.wg.Wait()

	app.deviceManager.Shutdown(ctx)
	app.displayService.Close()
	app.serialPool.CloseAll()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()

	return nil
}
