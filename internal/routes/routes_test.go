package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/event"
	"pos-device-service/internal/middleware"
	"pos-device-service/internal/service"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)

	logger := zap.NewNop()
	manager := service.NewDeviceManager(nil, nil, time.Second, logger)

	return NewRouter(cfg, logger, Handlers{
		Devices: manager,
		Events:  event.NewBus(logger),
	}).SetupRouter()
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealthWithoutJournal(t *testing.T) {
	engine := newTestEngine(t)

	w := serve(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/live").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestDeviceListRoute(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/api/v1/devices")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"devices":[]`)
}

func TestDocsRedirect(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/docs")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/swagger/index.html", w.Header().Get("Location"))
}
