// internal/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_device_transactions_total",
		Help: "Device transactions by device, type and terminal status",
	}, []string{"device_id", "type", "status"})

	transactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_device_transaction_duration_seconds",
		Help:    "Device round trip time of a transaction",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 90},
	}, []string{"device_id", "type"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_device_settlements_total",
		Help: "End-of-day closes by device and outcome",
	}, []string{"device_id", "success"})

	drawerKicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_device_drawer_kicks_total",
		Help: "Drawer kick requests by outcome",
	}, []string{"result"})

	connectedDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_device_connected_devices",
		Help: "Devices currently registered in the device manager",
	})

	readerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_device_reader_errors_total",
		Help: "Read errors seen by background serial readers",
	}, []string{"reader"})

	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_device_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_device_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "endpoint"})
)

// ObserveTransaction records one completed transaction
func ObserveTransaction(deviceID, txType, status string, duration time.Duration) {
	transactionsTotal.WithLabelValues(deviceID, txType, status).Inc()
	transactionDuration.WithLabelValues(deviceID, txType).Observe(duration.Seconds())
}

// ObserveSettlement records one end-of-day close
func ObserveSettlement(deviceID string, success bool) {
	settlementsTotal.WithLabelValues(deviceID, strconv.FormatBool(success)).Inc()
}

// ObserveDrawerKick records a drawer kick outcome (opened, rate-limited, unreachable)
func ObserveDrawerKick(result string) {
	drawerKicksTotal.WithLabelValues(result).Inc()
}

// SetConnectedDevices sets the connected device gauge
func SetConnectedDevices(n int) {
	connectedDevices.Set(float64(n))
}

// ReaderError counts a background reader failure
func ReaderError(reader string) {
	readerErrorsTotal.WithLabelValues(reader).Inc()
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
