// internal/driver/ecr/adapter.go
package ecr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos-device-service/internal/driver/wire"
	"pos-device-service/internal/fiscal"
	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
	"pos-device-service/pkg/driver"
)

// cancelTimeout bounds the best-effort CANCEL sent after a failed receipt
const cancelTimeout = 2 * time.Second

// Adapter drives a fiscal cash register speaking the framed ESC/POS fiscal dialect
type Adapter struct {
	transport transport.Transport
	config    *model.DeviceConfig
	options   driver.Options
	codePage  wire.CodePage
	logger    *utils.DeviceLogger

	life driver.Lifecycle
	ioMu sync.Mutex
	// stale is set when an exchange ended without reading its reply; the
	// next exchange resynchronises with ECHO first. Guarded by ioMu.
	stale bool

	infoMu   sync.RWMutex
	serial   string
	firmware string
	counters model.FiscalCounters
}

// New creates an uninitialized ECR adapter over t
func New(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) *Adapter {
	return &Adapter{
		transport: t,
		config:    cfg,
		options:   opts,
		codePage:  fiscal.LookupLocalization(cfg.Localization).CodePage,
		logger:    utils.NewDeviceLogger(logger, cfg.DeviceID, string(model.ProtocolFiscalESCPOS)),
	}
}

// ProtocolType returns FISCAL_ESCPOS
func (a *Adapter) ProtocolType() model.ProtocolType {
	return model.ProtocolFiscalESCPOS
}

// Initialize opens the transport and reads the register's identity and counters
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

	if err := a.refreshStatus(ctx); err != nil {
		_ = a.transport.Close()
		a.logger.LogConnection("handshake", a.transport.Address(), false, err)
		return fmt.Errorf("fiscal register handshake with %s failed: %w", a.transport.Address(), err)
	}

	a.life.MarkInitialized()
	a.logger.LogConnection("initialize", a.transport.Address(), true, nil)
	return nil
}

// ProcessTransaction issues a fiscal receipt, Z-close or X-report.
// Card transaction types are not handled by fiscal registers.
func (a *Adapter) ProcessTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	if err := a.life.RequireInitialized("process_transaction"); err != nil {
		return nil, err
	}
	if !req.Type.IsFiscal() {
		return nil, fmt.Errorf("%s: %w", req.Type, driver.ErrUnsupportedTransaction)
	}
	if req.Type == model.TransactionFiscalReceipt && (req.FiscalData == nil || len(req.FiscalData.Items) == 0) {
		return nil, fmt.Errorf("fiscal receipt without items: %w", driver.ErrInvalidRequest)
	}

	opCtx, err := a.life.Begin(ctx, "process_transaction")
	if err != nil {
		return nil, err
	}
	defer a.life.End()

	opCtx, cancel := a.options.WithTransactionTimeout(opCtx)
	defer cancel()

	resp := model.NewTransactionResponse(req)

	switch req.Type {
	case model.TransactionFiscalReceipt:
		receiptNo, fiscalRef, raw, err := a.printReceipt(opCtx, req.FiscalData)
		if err != nil {
			a.cancelReceipt(ctx)
			return driver.Resolve(opCtx, resp, err), nil
		}
		resp.TerminalRef = &receiptNo
		resp.FiscalRef = &fiscalRef
		resp.RawResponse = raw

	case model.TransactionFiscalZClose:
		fields, raw, err := a.exchange(opCtx, cmdZClose)
		if err != nil {
			return driver.Resolve(opCtx, resp, err), nil
		}
		zNumber := field(fields, 1)
		resp.FiscalRef = &zNumber
		resp.RawResponse = raw
		a.recordZ(zNumber)

	case model.TransactionFiscalXReport:
		_, raw, err := a.exchange(opCtx, cmdXReport)
		if err != nil {
			return driver.Resolve(opCtx, resp, err), nil
		}
		resp.RawResponse = raw
	}

	return resp.Complete(model.TransactionStatusApproved), nil
}

func (a *Adapter) printReceipt(ctx context.Context, data *model.FiscalReceiptData) (string, string, []byte, error) {
	operator := ""
	if data.OperatorID != nil {
		operator = *data.OperatorID
	}
	if _, _, err := a.exchange(ctx, cmdOpen, operator); err != nil {
		return "", "", nil, err
	}

	for _, item := range data.Items {
		discount := int64(0)
		if item.DiscountCents != nil {
			discount = *item.DiscountCents
		}
		_, _, err := a.exchange(ctx, cmdItem,
			item.Description,
			strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			strconv.FormatInt(item.UnitPriceCents, 10),
			item.TaxCode,
			strconv.FormatInt(discount, 10),
		)
		if err != nil {
			return "", "", nil, err
		}
	}

	for _, p := range data.Payments {
		if _, _, err := a.exchange(ctx, cmdPay, p.Method, strconv.FormatInt(p.AmountCents, 10)); err != nil {
			return "", "", nil, err
		}
	}

	comment := ""
	if data.Comment != nil {
		comment = *data.Comment
	}
	fields, raw, err := a.exchange(ctx, cmdClose, comment)
	if err != nil {
		return "", "", nil, err
	}

	receiptNo := field(fields, 1)
	if n, err := strconv.ParseInt(receiptNo, 10, 64); err == nil {
		a.infoMu.Lock()
		a.counters.ReceiptNumber = n
		a.infoMu.Unlock()
	}
	return receiptNo, field(fields, 2), raw, nil
}

// cancelReceipt voids an open receipt, best effort, even when ctx is already
// done. A late reply to the failed command is consumed by exchange's resync.
func (a *Adapter) cancelReceipt(ctx context.Context) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if _, _, err := a.exchange(cancelCtx, cmdCancel); err != nil {
		a.logger.Warn("Failed to cancel open receipt", zap.Error(err))
	}
}

// CancelTransaction interrupts an in-flight receipt; the receipt is voided
// on the register before ProcessTransaction returns.
func (a *Adapter) CancelTransaction(ctx context.Context) error {
	if err := a.life.RequireInitialized("cancel_transaction"); err != nil {
		return err
	}
	if a.life.CancelInFlight() {
		a.logger.Info("In-flight fiscal operation cancelled")
	}
	return nil
}

// GetStatus queries the register. A busy register is reported without I/O.
func (a *Adapter) GetStatus(ctx context.Context) (*model.DeviceStatus, error) {
	if err := a.life.RequireInitialized("get_status"); err != nil {
		return nil, err
	}

	status := &model.DeviceStatus{DeviceID: a.config.DeviceID, Connected: a.transport.IsOpen()}
	if a.life.State() == driver.StateBusy {
		status.Busy = true
		a.fillInfo(status)
		return status, nil
	}

	if err := a.refreshStatus(ctx); err != nil {
		msg := err.Error()
		status.Error = &msg
		a.fillInfo(status)
		return status, nil
	}

	status.Ready = true
	a.fillInfo(status)
	return status, nil
}

// Settlement performs the Z-close and reports the register's own totals
func (a *Adapter) Settlement(ctx context.Context) (*model.SettlementResult, error) {
	return a.report(ctx, "settlement", cmdZClose)
}

// XReport prints the intermediate report and reports its totals
func (a *Adapter) XReport(ctx context.Context) (*model.SettlementResult, error) {
	return a.report(ctx, "x_report", cmdXReport)
}

func (a *Adapter) report(ctx context.Context, op, cmd string) (*model.SettlementResult, error) {
	opCtx, err := a.life.Begin(ctx, op)
	if err != nil {
		return nil, err
	}
	defer a.life.End()

	opCtx, cancel := a.options.WithTransactionTimeout(opCtx)
	defer cancel()

	fields, raw, err := a.exchange(opCtx, cmd)
	if err != nil {
		msg := err.Error()
		return &model.SettlementResult{Success: false, Error: &msg, RawResponse: raw}, nil
	}

	result := &model.SettlementResult{RawResponse: raw}
	// ZCLOSE: status, z, count, total; XREPORT: status, count, total
	offset := 1
	if cmd == cmdZClose {
		zNumber := field(fields, 1)
		if z, err := strconv.ParseInt(zNumber, 10, 64); err == nil {
			result.ZNumber = &z
		}
		a.recordZ(zNumber)
		offset = 2
	}

	count, err := strconv.ParseInt(field(fields, offset), 10, 64)
	if err != nil {
		msg := fmt.Sprintf("report count: %v", err)
		result.Error = &msg
		return result, nil
	}
	total, err := strconv.ParseInt(field(fields, offset+1), 10, 64)
	if err != nil {
		msg := fmt.Sprintf("report total: %v", err)
		result.Error = &msg
		return result, nil
	}
	result.Success = true
	result.TransactionCount = count
	result.TotalAmount = total
	return result, nil
}

// Abort cancels anything in flight and closes the transport
func (a *Adapter) Abort(ctx context.Context) error {
	wasRunning := a.life.CancelInFlight()
	a.life.Reset()

	if err := a.transport.Close(); err != nil {
		a.logger.Warn("Failed to close transport on abort", zap.Error(err))
	}
	a.logger.LogConnection("abort", a.transport.Address(), true, nil)
	if wasRunning {
		a.logger.Warn("Aborted while an operation was in flight")
	}
	return nil
}

// TestConnection sends ECHO. An uninitialized adapter opens and closes the
// transport around the probe.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.life.State() == driver.StateUninitialized {
		if err := a.transport.Open(ctx); err != nil {
			return err
		}
		defer a.transport.Close()
	} else if a.life.State() == driver.StateBusy {
		return nil
	}

	_, _, err := a.exchange(ctx, cmdEcho)
	return err
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

// exchange sends one command frame and reads its reply
func (a *Adapter) exchange(ctx context.Context, cmd string, fields ...string) (_ []string, _ []byte, err error) {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if a.stale {
		if err := a.resync(ctx); err != nil {
			return nil, nil, fmt.Errorf("resync before %s: %w", cmd, err)
		}
		a.stale = false
	}
	defer func() {
		var devErr *driver.DeviceError
		if err != nil && !errors.As(err, &devErr) {
			a.stale = true
		}
	}()

	frame := encodeFrame(encodeCommand(a.codePage, cmd, fields...))
	if _, err := a.transport.Write(ctx, frame); err != nil {
		return nil, nil, err
	}

	data, err := readFrame(ctx, a.transport)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("ECR exchange", zap.String("command", cmd), zap.Int("reply_bytes", len(data)))

	reply, err := decodeReply(a.codePage, data)
	return reply, data, err
}

// resync sends ECHO with a fresh token and drops every frame up to the one
// echoing it back. Caller holds ioMu.
func (a *Adapter) resync(ctx context.Context) error {
	token := uuid.NewString()
	if _, err := a.transport.Write(ctx, encodeFrame(encodeCommand(a.codePage, cmdEcho, token))); err != nil {
		return err
	}

	for dropped := 0; ; dropped++ {
		data, err := readFrame(ctx, a.transport)
		if err != nil {
			return err
		}
		fields := splitReply(a.codePage, data)
		if field(fields, 0) == statusOK && field(fields, 1) == token {
			if dropped > 0 {
				a.logger.Warn("Dropped stale register replies", zap.Int("frames", dropped))
			}
			return nil
		}
	}
}

// refreshStatus reads STATUS: status, serial, firmware, receipt no, z no
func (a *Adapter) refreshStatus(ctx context.Context) error {
	fields, _, err := a.exchange(ctx, cmdStatus)
	if err != nil {
		return err
	}

	a.infoMu.Lock()
	defer a.infoMu.Unlock()
	a.serial = field(fields, 1)
	a.firmware = field(fields, 2)
	a.counters.ReceiptNumber, _ = strconv.ParseInt(field(fields, 3), 10, 64)
	a.counters.ZNumber, _ = strconv.ParseInt(field(fields, 4), 10, 64)
	return nil
}

func (a *Adapter) recordZ(zNumber string) {
	if z, err := strconv.ParseInt(zNumber, 10, 64); err == nil {
		a.infoMu.Lock()
		a.counters.ZNumber = z
		a.infoMu.Unlock()
	}
}

func (a *Adapter) fillInfo(status *model.DeviceStatus) {
	a.infoMu.RLock()
	defer a.infoMu.RUnlock()

	if a.serial != "" {
		serial := a.serial
		status.SerialNumber = &serial
	}
	if a.firmware != "" {
		firmware := a.firmware
		status.FirmwareVersion = &firmware
	}
	counters := a.counters
	status.FiscalCounters = &counters
}

var _ driver.Protocol = (*Adapter)(nil)
