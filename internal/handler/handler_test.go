package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/event"
	"pos-device-service/internal/fiscal"
	"pos-device-service/internal/model"
	"pos-device-service/internal/service"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDevices struct {
	connectErr error
	testErr    error
	connected  []*model.DeviceConfig
}

func (f *fakeDevices) ConnectDevice(ctx context.Context, cfg *model.DeviceConfig) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = append(f.connected, cfg)
	return nil
}

func (f *fakeDevices) DisconnectDevice(ctx context.Context, deviceID string) error { return nil }

func (f *fakeDevices) GetDeviceStatus(ctx context.Context, deviceID string) *model.DeviceStatus {
	return &model.DeviceStatus{DeviceID: deviceID}
}

func (f *fakeDevices) TestConnection(ctx context.Context, cfg *model.DeviceConfig) error {
	return f.testErr
}

func (f *fakeDevices) ConnectedDeviceIDs() []string {
	ids := []string{}
	for _, cfg := range f.connected {
		ids = append(ids, cfg.DeviceID)
	}
	return ids
}

type fakeTransactions struct {
	err  error
	raw  []byte
	last *model.TransactionRequest
}

func (f *fakeTransactions) Process(ctx context.Context, deviceID string, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = req
	return model.NewTransactionResponse(req).Complete(model.TransactionStatusDeclined), nil
}

func (f *fakeTransactions) Settle(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.SettlementResult{Success: true, TransactionCount: 2}, nil
}

func (f *fakeTransactions) XReport(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	if deviceID != "ecr-1" {
		return nil, fmt.Errorf("%s: %w", deviceID, driver.ErrNotSupported)
	}
	return &model.SettlementResult{Success: true, TransactionCount: 7}, nil
}

func (f *fakeTransactions) SendRaw(ctx context.Context, deviceID string, data []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.raw = data
	return len(data), nil
}

func (f *fakeTransactions) History(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error) {
	return []*model.DeviceOperation{}, nil
}

type fakeReceipts struct{ err error }

func (f *fakeReceipts) IssueReceipt(ctx context.Context, deviceID string, req *service.ReceiptRequest) (*service.ReceiptResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ReceiptResult{PrintMode: "device", Printed: true}, nil
}

type fakeDrawer struct{ result *service.KickResult }

func (f *fakeDrawer) Kick(ctx context.Context, profileID string) (*service.KickResult, error) {
	if profileID != "bar" {
		return nil, service.ErrUnknownDrawerProfile
	}
	return f.result, nil
}

func (f *fakeDrawer) Profiles() []string { return []string{"bar"} }

type fakeLoyalty struct{}

func (fakeLoyalty) Tap(cardID string) (*service.TapResult, error) {
	return &service.TapResult{Success: true, CardID: cardID}, nil
}

type fakeDisplay struct{ err error }

func (f fakeDisplay) Show(line1, line2 string) error { return f.err }

type testAPI struct {
	devices      *fakeDevices
	transactions *fakeTransactions
	receipts     *fakeReceipts
	drawer       *fakeDrawer
	engine       *gin.Engine
}

func newTestAPI() *testAPI {
	api := &testAPI{
		devices:      &fakeDevices{},
		transactions: &fakeTransactions{},
		receipts:     &fakeReceipts{},
		drawer:       &fakeDrawer{result: &service.KickResult{Success: true, Reason: service.KickOpened}},
		engine:       gin.New(),
	}
	logger := zap.NewNop()
	group := api.engine.Group("/api/v1")
	NewDeviceHandler(api.devices, logger).RegisterRoutes(group)
	NewOperationHandler(api.transactions, api.receipts, logger).RegisterRoutes(group)
	NewPeripheralHandler(api.drawer, fakeLoyalty{}, fakeDisplay{err: service.ErrDisplayNotConfigured}, logger).RegisterRoutes(group)
	NewHealthHandler(nil, api.devices, &config.Config{App: config.AppConfig{Name: "pos-device-service"}}, logger).RegisterRoutes(api.engine)
	return api
}

func (a *testAPI) do(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("ghost: %w", service.ErrDeviceNotConnected), http.StatusNotFound},
		{service.ErrUnknownDrawerProfile, http.StatusNotFound},
		{driver.ErrNotInitialized, http.StatusConflict},
		{driver.ErrBusy, http.StatusConflict},
		{driver.ErrNotSupported, http.StatusUnprocessableEntity},
		{driver.ErrUnsupportedTransaction, http.StatusUnprocessableEntity},
		{driver.ErrUnknownProtocol, http.StatusUnprocessableEntity},
		{driver.ErrInvalidRequest, http.StatusBadRequest},
		{transport.ErrInvalidConfig, http.StatusBadRequest},
		{fmt.Errorf("invalid order: %w", fiscal.ErrEmptyOrder), http.StatusBadRequest},
		{service.ErrEmptyCardID, http.StatusBadRequest},
		{errors.New("dial tcp 10.0.0.5:20007: connection refused"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, apiErrors.Classify(tt.err).Status, tt.err.Error())
	}
}

func TestConnectDevice(t *testing.T) {
	api := newTestAPI()

	w, _ := api.do(http.MethodPost, "/api/v1/devices/connect",
		`{"device_id":"card-1","protocol":"ZVT","connection_type":"TCP","host":"10.0.0.5","port":20007}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, api.devices.connected, 1)
	assert.Equal(t, model.ProtocolZVT, api.devices.connected[0].Protocol)

	w, body := api.do(http.MethodGet, "/api/v1/devices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"card-1"}, body["data"].(map[string]interface{})["devices"])
}

func TestConnectDeviceMissingFields(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/devices/connect", `{"device_id":"card-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, api.devices.connected)

	apiErr := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", apiErr["code"])
	fields := body["data"].(map[string]interface{})["validation_errors"].(map[string]interface{})
	assert.Equal(t, "required", fields["Protocol"])
	assert.Equal(t, "required", fields["ConnectionType"])
}

func TestConnectDeviceMalformedJSON(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/devices/connect", `{"device_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", body["error"].(map[string]interface{})["code"])
}

func TestConnectDeviceInitFailure(t *testing.T) {
	api := newTestAPI()
	api.devices.connectErr = errors.New("initialize card-1: registration rejected")

	w, body := api.do(http.MethodPost, "/api/v1/devices/connect",
		`{"device_id":"card-1","protocol":"ZVT","connection_type":"TCP","host":"10.0.0.5"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestStatusOfUnknownDeviceIs200(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodGet, "/api/v1/devices/ghost/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ghost", data["device_id"])
}

func TestTransactionOutcomes(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/devices/card-1/transactions", `{"transaction_type":"SALE","amount":1250}`)
	assert.Equal(t, http.StatusOK, w.Code, "a decline is not an HTTP error")
	assert.Equal(t, "DECLINED", body["data"].(map[string]interface{})["status"])
	assert.Equal(t, int64(1250), api.transactions.last.Amount)

	api.transactions.err = fmt.Errorf("card-1: %w", driver.ErrBusy)
	w, body = api.do(http.MethodPost, "/api/v1/devices/card-1/transactions", `{"transaction_type":"SALE","amount":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DEVICE_NOT_READY", body["error"].(map[string]interface{})["code"])

	api.transactions.err = fmt.Errorf("ghost: %w", service.ErrDeviceNotConnected)
	w, _ = api.do(http.MethodPost, "/api/v1/devices/ghost/settlement", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettlementRefusedByDevice(t *testing.T) {
	api := newTestAPI()
	api.transactions.err = fmt.Errorf("ecr-1: %w", &driver.DeviceError{Code: "E12", Message: "fiscal memory full"})

	w, body := api.do(http.MethodPost, "/api/v1/devices/ecr-1/settlement", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	apiErr := body["error"].(map[string]interface{})
	assert.Equal(t, "DEVICE_ERROR", apiErr["code"])
	assert.Equal(t, "E12", apiErr["device_code"])
}

func TestXReport(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/devices/ecr-1/x-report", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), body["data"].(map[string]interface{})["transaction_count"])

	w, _ = api.do(http.MethodPost, "/api/v1/devices/card-1/x-report", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSendRawDecodesBase64(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/devices/printer-1/raw", `{"data":"G0A="}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{0x1B, 0x40}, api.transactions.raw)
	assert.Equal(t, float64(2), body["data"].(map[string]interface{})["bytes_sent"])

	w, _ = api.do(http.MethodPost, "/api/v1/devices/printer-1/raw", `{"data":"not base64!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFiscalReceipt(t *testing.T) {
	api := newTestAPI()

	w, _ := api.do(http.MethodPost, "/api/v1/devices/fiscal-1/fiscal-receipt", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "order is required")

	api.receipts.err = fmt.Errorf("invalid order: %w", fiscal.ErrMissingItems)
	w, _ = api.do(http.MethodPost, "/api/v1/devices/fiscal-1/fiscal-receipt", `{"order":{"id":"o-1"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	api.receipts.err = nil
	w, body := api.do(http.MethodPost, "/api/v1/devices/fiscal-1/fiscal-receipt", `{"order":{"id":"o-1","items":[{"name":"Tea","quantity":1,"unitPrice":"2.00"}]}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["data"].(map[string]interface{})["printed"])
}

func TestListOperationsRejectsBadLimit(t *testing.T) {
	api := newTestAPI()

	w, _ := api.do(http.MethodGet, "/api/v1/devices/card-1/operations?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodGet, "/api/v1/devices/card-1/operations?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDrawerKick(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodPost, "/api/v1/drawer/bar/kick", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["data"].(map[string]interface{})["success"])

	api.drawer.result = &service.KickResult{Success: false, Reason: service.KickRateLimited, RetryAfterMs: 1500}
	w, body = api.do(http.MethodPost, "/api/v1/drawer/bar/kick", "")
	assert.Equal(t, http.StatusOK, w.Code, "a denial is not an HTTP error")
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "rate-limited", data["reason"])
	assert.Equal(t, float64(1500), data["retry_after_ms"])

	w, _ = api.do(http.MethodPost, "/api/v1/drawer/kitchen/kick", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPeripherals(t *testing.T) {
	api := newTestAPI()

	w, _ := api.do(http.MethodPost, "/api/v1/loyalty/tap", `{"card_id":"0xCAFE"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(http.MethodPost, "/api/v1/loyalty/tap", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodPost, "/api/v1/display", `{"line1":"TOTAL","line2":"5.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthWithMemoryJournal(t *testing.T) {
	api := newTestAPI()

	w, body := api.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, _ = api.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type brokenJournal struct{}

func (brokenJournal) HealthCheck(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthWithUnreachableJournal(t *testing.T) {
	engine := gin.New()
	NewHealthHandler(brokenJournal{}, &fakeDevices{}, &config.Config{}, zap.NewNop()).RegisterRoutes(engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebSocketStreamsEvents(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	engine := gin.New()
	NewWebSocketHandler(bus, zap.NewNop()).RegisterRoutes(engine.Group("/ws"))
	server := httptest.NewServer(engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events?types=DRAWER_OPENED"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is made right after the upgrade; publish until it lands
	var message WebSocketMessage
	received := make(chan error, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		received <- conn.ReadJSON(&message)
	}()

	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-received:
			require.NoError(t, err)
			assert.Equal(t, "DRAWER_OPENED", message.Type)
			return
		case <-ticker.C:
			bus.Publish(model.NewDeviceEvent(model.EventBarcodeScanned, "", "scanner", nil))
			bus.Publish(model.NewDeviceEvent(model.EventDrawerOpened, "", "drawer-service", nil))
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

