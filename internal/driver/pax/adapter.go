// internal/driver/pax/adapter.go
package pax

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/driver/wire"
	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
	"pos-device-service/pkg/driver"
)

const cancelTimeout = 2 * time.Second

var transactionTypes = map[model.TransactionType]string{
	model.TransactionSale:              "01",
	model.TransactionRefund:            "02",
	model.TransactionPreAuth:           "03",
	model.TransactionPreAuthCompletion: "04",
	model.TransactionVoid:              "16",
}

// Adapter drives a PAX-style payment terminal
type Adapter struct {
	driver.NoXReport

	transport transport.Transport
	config    *model.DeviceConfig
	options   driver.Options
	logger    *utils.DeviceLogger

	life driver.Lifecycle
	ioMu sync.Mutex
	// stale is set when an exchange ended without its reply; the next
	// exchange drops pending input first. Guarded by ioMu.
	stale      bool
	cancelWait time.Duration

	infoMu     sync.RWMutex
	serial     string
	appVersion string
}

// New creates an uninitialized PAX adapter over t
func New(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) *Adapter {
	return &Adapter{
		transport: t,
		config:    cfg,
		options:   opts,
		logger:     utils.NewDeviceLogger(logger, cfg.DeviceID, string(model.ProtocolPAX)),
		cancelWait: cancelTimeout,
	}
}

// ProtocolType returns PAX
func (a *Adapter) ProtocolType() model.ProtocolType {
	return model.ProtocolPAX
}

// Initialize opens the transport and runs the A00 initialize command
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.life.State() != driver.StateUninitialized {
		return nil
	}

	if err := a.transport.Open(ctx); err != nil {
		a.logger.LogConnection("open", a.transport.Address(), false, err)
		return err
	}
	a.ioMu.Lock()
	a.stale = false
	a.ioMu.Unlock()

	if err := a.identify(ctx); err != nil {
		_ = a.transport.Close()
		a.logger.LogConnection("handshake", a.transport.Address(), false, err)
		return fmt.Errorf("PAX initialize with %s failed: %w", a.transport.Address(), err)
	}

	a.life.MarkInitialized()
	a.logger.LogConnection("initialize", a.transport.Address(), true, nil)
	return nil
}

// identify runs A00 and records serial number and application version
func (a *Adapter) identify(ctx context.Context) error {
	resp, err := a.exchange(ctx, CmdInitialize, RplInitialize)
	if err != nil {
		return err
	}
	if !resp.Approved() {
		return &driver.DeviceError{Code: resp.Code, Message: resp.Message}
	}

	a.infoMu.Lock()
	defer a.infoMu.Unlock()
	a.serial = at(resp.Payload, 0)
	a.appVersion = at(resp.Payload, 2)
	return nil
}

// ProcessTransaction runs a T00 credit transaction
func (a *Adapter) ProcessTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	start := time.Now()
	resp, err := a.processTransaction(ctx, req)

	status := ""
	if resp != nil {
		status = string(resp.Status)
	}
	a.logger.LogTransaction(req.TransactionID, string(req.Type), status, req.Amount, time.Since(start), err)
	return resp, err
}

func (a *Adapter) processTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	if err := a.life.RequireInitialized("process_transaction"); err != nil {
		return nil, err
	}
	fields, err := creditFields(req)
	if err != nil {
		return nil, err
	}

	opCtx, err := a.life.Begin(ctx, "process_transaction")
	if err != nil {
		return nil, err
	}
	defer a.life.End()

	opCtx, cancel := a.options.WithTransactionTimeout(opCtx)
	defer cancel()

	resp := model.NewTransactionResponse(req)

	reply, err := a.exchange(opCtx, CmdCredit, RplCredit, fields...)
	if err != nil {
		if opCtx.Err() != nil {
			a.cancelOnTerminal(ctx, RplCredit)
		}
		return driver.Resolve(opCtx, resp, err), nil
	}

	fillResponse(resp, reply)

	switch reply.Code {
	case ResultApproved:
		return resp.Complete(model.TransactionStatusApproved), nil
	case ResultDeclined:
		return resp.Fail(model.TransactionStatusDeclined, reply.Code, reply.Message), nil
	case ResultTimeout:
		return resp.Fail(model.TransactionStatusTimeout, reply.Code, reply.Message), nil
	case ResultAborted:
		return resp.Fail(model.TransactionStatusCancelled, reply.Code, reply.Message), nil
	default:
		return resp.Fail(model.TransactionStatusError, reply.Code, reply.Message), nil
	}
}

// creditFields builds transaction type, amount, account and trace fields
func creditFields(req *model.TransactionRequest) ([]string, error) {
	txType, ok := transactionTypes[req.Type]
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.Type, driver.ErrUnsupportedTransaction)
	}

	needsOriginal := req.Type == model.TransactionVoid || req.Type == model.TransactionPreAuthCompletion
	if needsOriginal && (req.OriginalTransaction == nil || *req.OriginalTransaction == "") {
		return nil, fmt.Errorf("%s requires the original transaction reference: %w", req.Type, driver.ErrInvalidRequest)
	}
	if req.Type != model.TransactionVoid && req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d: %w", req.Amount, driver.ErrInvalidRequest)
	}

	tip := ""
	if req.TipAmount != nil {
		tip = strconv.FormatInt(*req.TipAmount, 10)
	}
	original := ""
	if req.OriginalTransaction != nil {
		original = *req.OriginalTransaction
	}

	return []string{
		txType,
		joinSub(strconv.FormatInt(req.Amount, 10), tip),
		"",
		joinSub(req.TransactionID, "", original),
	}, nil
}

// fillResponse maps host, account and trace information.
// Payload: host info, transaction type, amount info, account info, trace info.
func fillResponse(resp *model.TransactionResponse, reply *Response) {
	host := subFields(at(reply.Payload, 0))
	if code := at(host, 2); code != "" {
		resp.AuthCode = &code
	}

	account := subFields(at(reply.Payload, 3))
	if pan := at(account, 0); pan != "" {
		resp.Card = &model.CardInfo{
			MaskedPAN: pan,
			EntryMode: at(account, 1),
			Expiry:    at(account, 2),
			CardType:  at(account, 3),
		}
	}

	trace := subFields(at(reply.Payload, 4))
	if ref := at(trace, 1); ref != "" {
		resp.TerminalRef = &ref
	}
}

// cancelOnTerminal sends A14 even when ctx is already done, then reads off
// frames until the interrupted command's reply arrives. If it does not
// arrive in time the adapter stays stale.
func (a *Adapter) cancelOnTerminal(ctx context.Context, reply string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cancelWait)
	defer cancel()

	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	a.stale = true
	// The terminal may answer with the late reply instead of an ACK, so the
	// frame is written without waiting for one.
	if _, err := a.transport.Write(cancelCtx, encodeFrame(CmdCancel)); err != nil {
		a.logger.Warn("Failed to send cancel to terminal", zap.Error(err))
		return
	}
	if err := a.awaitReply(cancelCtx, reply); err != nil {
		a.logger.Warn("Terminal did not answer the cancelled command", zap.String("reply", reply), zap.Error(err))
		return
	}
	a.stale = false
}

// awaitReply ACKs incoming frames until one carries the reply command.
// Stray ACK bytes are skipped by readFrame. Caller holds ioMu.
func (a *Adapter) awaitReply(ctx context.Context, reply string) error {
	for {
		body, err := readFrame(ctx, a.transport)
		if errors.Is(err, errBadChecksum) {
			if _, err := a.transport.Write(ctx, []byte{wire.NAK}); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if _, err := a.transport.Write(ctx, []byte{wire.ACK}); err != nil {
			return err
		}
		resp, err := parseResponse(body)
		if err != nil {
			continue
		}
		a.logger.Debug("Drained PAX reply", zap.String("command", resp.Command), zap.String("code", resp.Code))
		if resp.Command == reply {
			return nil
		}
	}
}

// CancelTransaction interrupts the running command; A14 is sent to the
// terminal before ProcessTransaction returns.
func (a *Adapter) CancelTransaction(ctx context.Context) error {
	if err := a.life.RequireInitialized("cancel_transaction"); err != nil {
		return err
	}
	if a.life.CancelInFlight() {
		a.logger.Info("In-flight card transaction cancelled")
	}
	return nil
}

// GetStatus re-runs A00. A busy terminal is reported without I/O.
func (a *Adapter) GetStatus(ctx context.Context) (*model.DeviceStatus, error) {
	if err := a.life.RequireInitialized("get_status"); err != nil {
		return nil, err
	}

	status := &model.DeviceStatus{DeviceID: a.config.DeviceID, Connected: a.transport.IsOpen()}
	if a.life.State() == driver.StateBusy {
		status.Busy = true
	} else if err := a.identify(ctx); err != nil {
		msg := err.Error()
		status.Error = &msg
	} else {
		status.Ready = true
	}

	a.infoMu.RLock()
	defer a.infoMu.RUnlock()
	if a.serial != "" {
		serial := a.serial
		status.SerialNumber = &serial
	}
	if a.appVersion != "" {
		version := a.appVersion
		status.FirmwareVersion = &version
	}
	return status, nil
}

// Settlement runs B00 batch close. Payload: total count, total amount.
func (a *Adapter) Settlement(ctx context.Context) (*model.SettlementResult, error) {
	opCtx, err := a.life.Begin(ctx, "settlement")
	if err != nil {
		return nil, err
	}
	defer a.life.End()

	opCtx, cancel := a.options.WithTransactionTimeout(opCtx)
	defer cancel()

	reply, err := a.exchange(opCtx, CmdBatchClose, RplBatchClose)
	if err != nil {
		if opCtx.Err() != nil {
			a.cancelOnTerminal(ctx, RplBatchClose)
		}
		msg := err.Error()
		return &model.SettlementResult{Success: false, Error: &msg}, nil
	}
	if !reply.Approved() {
		msg := fmt.Sprintf("%s: %s", reply.Code, reply.Message)
		return &model.SettlementResult{Success: false, Error: &msg}, nil
	}

	count, err := parseTotal(at(reply.Payload, 0))
	if err != nil {
		msg := fmt.Sprintf("batch total count: %v", err)
		return &model.SettlementResult{Success: false, Error: &msg}, nil
	}
	total, err := parseTotal(at(reply.Payload, 1))
	if err != nil {
		msg := fmt.Sprintf("batch total amount: %v", err)
		return &model.SettlementResult{Success: false, Error: &msg}, nil
	}
	return &model.SettlementResult{Success: true, TransactionCount: count, TotalAmount: total}, nil
}

// parseTotal reads a batch total field; an absent field counts as zero
func parseTotal(field string) (int64, error) {
	if field == "" {
		return 0, nil
	}
	return strconv.ParseInt(field, 10, 64)
}

// Abort cancels anything in flight and closes the transport
func (a *Adapter) Abort(ctx context.Context) error {
	if a.life.CancelInFlight() {
		a.logger.Warn("Aborted while an operation was in flight")
	}
	a.life.Reset()

	if err := a.transport.Close(); err != nil {
		a.logger.Warn("Failed to close transport on abort", zap.Error(err))
	}
	a.logger.LogConnection("abort", a.transport.Address(), true, nil)
	return nil
}

// TestConnection runs A00, opening the transport around it when the
// adapter is not initialized. Cached identity is left untouched.
func (a *Adapter) TestConnection(ctx context.Context) error {
	switch a.life.State() {
	case driver.StateBusy:
		return nil
	case driver.StateUninitialized:
		if err := a.transport.Open(ctx); err != nil {
			return err
		}
		defer a.transport.Close()
	}

	resp, err := a.exchange(ctx, CmdInitialize, RplInitialize)
	if err != nil {
		return err
	}
	if !resp.Approved() {
		return &driver.DeviceError{Code: resp.Code, Message: resp.Message}
	}
	return nil
}

// SendRaw writes bytes without framing
func (a *Adapter) SendRaw(ctx context.Context, data []byte) (int, error) {
	if err := a.life.RequireInitialized("send_raw"); err != nil {
		return 0, err
	}
	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	return a.transport.Write(ctx, data)
}

// exchange sends a request frame, waits for it to be ACKed and reads the reply
func (a *Adapter) exchange(ctx context.Context, cmd, reply string, fields ...string) (_ *Response, err error) {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if a.stale {
		dropped, err := transport.Discard(ctx, a.transport)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			a.logger.Warn("Dropped stale terminal input", zap.Int("bytes", dropped))
		}
		a.stale = false
	}
	defer func() {
		if err != nil {
			a.stale = true
		}
	}()

	if err := a.sendFrame(ctx, encodeFrame(cmd, fields...)); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		body, err := readFrame(ctx, a.transport)
		if errors.Is(err, errBadChecksum) && attempt < maxResends {
			if _, err := a.transport.Write(ctx, []byte{wire.NAK}); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := a.transport.Write(ctx, []byte{wire.ACK}); err != nil {
			return nil, err
		}

		resp, err := parseResponse(body)
		if err != nil {
			return nil, err
		}
		if resp.Command != reply {
			return nil, &driver.ProtocolError{Reason: fmt.Sprintf("expected %s reply, got %s", reply, resp.Command)}
		}
		a.logger.Debug("PAX exchange", zap.String("command", cmd), zap.String("code", resp.Code))
		return resp, nil
	}
}

// sendFrame writes frame and resends it on NAK, up to maxResends times
func (a *Adapter) sendFrame(ctx context.Context, frame []byte) error {
	for attempt := 0; attempt <= maxResends; attempt++ {
		if _, err := a.transport.Write(ctx, frame); err != nil {
			return err
		}
		b, err := transport.ReadExact(ctx, a.transport, 1)
		if err != nil {
			return err
		}
		switch b[0] {
		case wire.ACK:
			return nil
		case wire.NAK:
			a.logger.Debug("Frame NAKed, resending", zap.Int("attempt", attempt+1))
		default:
			return &driver.ProtocolError{Reason: fmt.Sprintf("expected ACK, got 0x%02X", b[0])}
		}
	}
	return &driver.ProtocolError{Reason: fmt.Sprintf("frame rejected %d times", maxResends+1)}
}

var _ driver.Protocol = (*Adapter)(nil)
