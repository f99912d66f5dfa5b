// pkg/driver/protocol.go
package driver

import (
	"context"
	"errors"

	"pos-device-service/internal/model"
)

var (
	ErrNotInitialized         = errors.New("driver: adapter not initialized")
	ErrBusy                   = errors.New("driver: adapter busy")
	ErrNotSupported           = errors.New("driver: operation not supported")
	ErrUnsupportedTransaction = errors.New("driver: transaction type not supported by this protocol")
	ErrUnknownProtocol        = errors.New("driver: unknown protocol")
	ErrInvalidRequest         = errors.New("driver: invalid request")
)

// Protocol is the operation set every wire protocol adapter implements.
//
// State machine: Uninitialized -> Initialized (Initialize) -> Busy (during
// ProcessTransaction / Settlement) -> Initialized. Abort is reachable from any
// state. Everything except Initialize and TestConnection fails with
// ErrNotInitialized before any I/O on an uninitialized adapter.
type Protocol interface {
	// Initialize opens the transport and performs the protocol handshake.
	Initialize(ctx context.Context) error

	// ProcessTransaction drives one request through the device. Once it returns
	// a nil error the response carries a terminal status.
	ProcessTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error)

	// CancelTransaction cancels whatever is in flight, best effort.
	CancelTransaction(ctx context.Context) error

	GetStatus(ctx context.Context) (*model.DeviceStatus, error)

	// Settlement performs the end-of-day close and reports the device's own totals.
	Settlement(ctx context.Context) (*model.SettlementResult, error)

	// XReport is optional and fails with ErrNotSupported by default.
	XReport(ctx context.Context) (*model.SettlementResult, error)

	// Abort tears the adapter down. The adapter is left idle even when an
	// error is returned.
	Abort(ctx context.Context) error

	// TestConnection probes reachability without changing device state.
	TestConnection(ctx context.Context) error

	// SendRaw writes bytes without protocol framing.
	SendRaw(ctx context.Context, data []byte) (int, error)

	ProtocolType() model.ProtocolType
}

// NoXReport provides the default XReport for adapters without one
type NoXReport struct{}

// XReport reports ErrNotSupported
func (NoXReport) XReport(ctx context.Context) (*model.SettlementResult, error) {
	return nil, ErrNotSupported
}
