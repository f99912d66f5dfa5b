// pkg/driver/response.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-device-service/internal/model"
)

// Error codes carried by terminal responses the adapter produced itself
const (
	CodeTimeout   = "TIMEOUT"
	CodeCancelled = "CANCELLED"
	CodeIO        = "IO_ERROR"
	CodeProtocol  = "PROTOCOL_ERROR"
)

// Options are adapter settings shared by every protocol
type Options struct {
	// TransactionTimeout bounds one transaction round trip; zero leaves
	// only the caller's deadline in effect.
	TransactionTimeout time.Duration
}

// WithTransactionTimeout applies the configured transaction deadline
func (o Options) WithTransactionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.TransactionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.TransactionTimeout)
}

// DeviceError is a refusal or failure reported by the device itself
type DeviceError struct {
	Code    string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device error %s", e.Code)
	}
	return fmt.Sprintf("device error %s: %s", e.Code, e.Message)
}

// ProtocolError reports a malformed or unexpected frame
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Resolve completes resp with the terminal status matching an error raised
// during the device round trip. Deadlines become Timeout and cancellation
// becomes Cancelled.
func Resolve(ctx context.Context, resp *model.TransactionResponse, err error) *model.TransactionResponse {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return resp.Fail(model.TransactionStatusTimeout, CodeTimeout, "device did not answer before the deadline")
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return resp.Fail(model.TransactionStatusCancelled, CodeCancelled, "transaction cancelled")
	}

	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return resp.Fail(model.TransactionStatusError, devErr.Code, devErr.Message)
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return resp.Fail(model.TransactionStatusError, CodeProtocol, protoErr.Reason)
	}
	return resp.Fail(model.TransactionStatusError, CodeIO, err.Error())
}
