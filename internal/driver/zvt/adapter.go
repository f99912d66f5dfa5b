// internal/driver/zvt/adapter.go
package zvt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/driver/wire"
	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
	"pos-device-service/pkg/driver"
)

const (
	defaultPassword = "000000"
	// registration config byte: ECR prints receipts, ECR controls admin and payment functions
	registrationConfig = 0x8E
	abortTimeout       = 2 * time.Second

	resultSuccess        = 0x00
	resultAbortedByUser  = 0x6C
	terminalErrorUnknown = 0xFF
)

var currencyCodes = map[string]int64{
	"EUR": 978,
	"USD": 840,
	"GBP": 826,
	"CHF": 756,
	"SEK": 752,
	"DKK": 208,
	"PLN": 985,
}

var resultTexts = map[byte]string{
	0x05: "declined",
	0x62: "card not readable",
	0x64: "card data invalid",
	0x65: "card unknown",
	0x68: "PIN entry failed",
	0x6A: "card expired",
	0x6C: "aborted by customer",
	0x9C: "repeat transaction",
	0xA0: "receiver not ready",
	0xFF: "system error",
}

func resultText(code byte) string {
	if text, ok := resultTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("result code %02X", code)
}

// outcome collects what the terminal reported during one command
type outcome struct {
	fields     map[byte][]byte
	resultCode byte
	aborted    bool
	receipt    []string
	raw        []byte
}

// Adapter drives a ZVT payment terminal
type Adapter struct {
	driver.NoXReport

	transport transport.Transport
	config    *model.DeviceConfig
	options   driver.Options
	logger    *utils.DeviceLogger

	life driver.Lifecycle
	ioMu sync.Mutex
	// stale is set when a command ended without its terminating reply; the
	// next command drops pending input first. Guarded by ioMu.
	stale     bool
	abortWait time.Duration

	infoMu     sync.RWMutex
	terminalID string
}

// New creates an uninitialized ZVT adapter over t
func New(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) *Adapter {
	return &Adapter{
		transport: t,
		config:    cfg,
		options:   opts,
		logger:    utils.NewDeviceLogger(logger, cfg.DeviceID, string(model.ProtocolZVT)),
		abortWait: abortTimeout,
	}
}

// ProtocolType returns ZVT
func (a *Adapter) ProtocolType() model.ProtocolType {
	return model.ProtocolZVT
}

// Initialize opens the transport and registers the ECR with the terminal
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

	registration, err := a.registrationAPDU()
	if err == nil {
		var out *outcome
		out, err = a.run(ctx, registration)
		if err == nil && (out.aborted || out.resultCode != resultSuccess) {
			err = &driver.DeviceError{Code: fmt.Sprintf("%02X", out.resultCode), Message: resultText(out.resultCode)}
		}
		if err == nil {
			a.recordTerminalID(out.fields)
		}
	}
	if err != nil {
		_ = a.transport.Close()
		a.logger.LogConnection("registration", a.transport.Address(), false, err)
		return fmt.Errorf("ZVT registration with %s failed: %w", a.transport.Address(), err)
	}

	a.life.MarkInitialized()
	a.logger.LogConnection("initialize", a.transport.Address(), true, nil)
	return nil
}

// ProcessTransaction runs a card payment, refund, reversal or pre-authorization
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
	cmd, err := a.transactionAPDU(req)
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

	out, err := a.run(opCtx, cmd)
	if err != nil {
		if !refused(err) {
			a.abortTerminal(ctx)
		}
		return driver.Resolve(opCtx, resp, err), nil
	}

	resp.RawResponse = out.raw
	resp.CustomerReceipt = out.receipt
	fillResponse(resp, out.fields)

	switch {
	case out.aborted && out.resultCode == resultAbortedByUser:
		return resp.Fail(model.TransactionStatusCancelled, fmt.Sprintf("%02X", out.resultCode), resultText(out.resultCode)), nil
	case out.aborted || out.resultCode != resultSuccess:
		return resp.Fail(model.TransactionStatusDeclined, fmt.Sprintf("%02X", out.resultCode), resultText(out.resultCode)), nil
	}
	return resp.Complete(model.TransactionStatusApproved), nil
}

func (a *Adapter) transactionAPDU(req *model.TransactionRequest) (APDU, error) {
	if req.Type.IsFiscal() {
		return APDU{}, fmt.Errorf("%s: %w", req.Type, driver.ErrUnsupportedTransaction)
	}

	amount := req.Amount
	if req.TipAmount != nil {
		amount += *req.TipAmount
	}

	var data []byte
	appendAmount := func() error {
		if amount <= 0 {
			return fmt.Errorf("amount must be positive, got %d: %w", amount, driver.ErrInvalidRequest)
		}
		bcd, err := wire.EncodeBCD(amount, 6)
		if err != nil {
			return fmt.Errorf("%v: %w", err, driver.ErrInvalidRequest)
		}
		data = append(data, bmpAmount)
		data = append(data, bcd...)
		return nil
	}
	appendReceipt := func() error {
		if req.OriginalTransaction == nil {
			return fmt.Errorf("%s requires the original receipt number: %w", req.Type, driver.ErrInvalidRequest)
		}
		n, err := strconv.ParseInt(*req.OriginalTransaction, 10, 64)
		if err != nil {
			return fmt.Errorf("original receipt number %q: %w", *req.OriginalTransaction, driver.ErrInvalidRequest)
		}
		bcd, err := wire.EncodeBCD(n, 2)
		if err != nil {
			return fmt.Errorf("%v: %w", err, driver.ErrInvalidRequest)
		}
		data = append(data, bmpReceiptNo)
		data = append(data, bcd...)
		return nil
	}
	appendPassword := func() error {
		pw, err := a.password()
		if err != nil {
			return err
		}
		data = append(data, pw...)
		return nil
	}

	var cmd Command
	var steps []func() error
	switch req.Type {
	case model.TransactionSale:
		cmd, steps = CmdAuthorization, []func() error{appendAmount}
	case model.TransactionPreAuth:
		cmd, steps = CmdPreAuth, []func() error{appendAmount}
	case model.TransactionPreAuthCompletion:
		cmd, steps = CmdBookTotal, []func() error{appendReceipt, appendAmount}
	case model.TransactionRefund:
		cmd, steps = CmdRefund, []func() error{appendPassword, appendAmount}
	case model.TransactionVoid:
		cmd, steps = CmdReversal, []func() error{appendPassword, appendReceipt}
	default:
		return APDU{}, fmt.Errorf("%s: %w", req.Type, driver.ErrUnsupportedTransaction)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return APDU{}, err
		}
	}
	if cmd == CmdAuthorization || cmd == CmdPreAuth {
		currency, err := a.currency(req.Currency)
		if err != nil {
			return APDU{}, err
		}
		data = append(data, bmpCurrency)
		data = append(data, currency...)
	}
	return APDU{Command: cmd, Data: data}, nil
}

// refused reports whether the terminal rejected the command outright, in
// which case there is nothing to abort.
func refused(err error) bool {
	var devErr *driver.DeviceError
	return errors.As(err, &devErr)
}

// run sends cmd and follows the terminal's replies until completion or abort
func (a *Adapter) run(ctx context.Context, cmd APDU) (_ *outcome, err error) {
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
		if err != nil && !refused(err) {
			a.stale = true
		}
	}()

	if _, err := a.transport.Write(ctx, cmd.Encode()); err != nil {
		return nil, err
	}

	first, err := readAPDU(ctx, a.transport)
	if err != nil {
		return nil, err
	}
	switch {
	case first.Command == CmdAck:
	case first.Command[0] == classNegative:
		code := first.Command[1]
		return nil, &driver.DeviceError{Code: fmt.Sprintf("%02X", code), Message: resultText(code)}
	default:
		return nil, &driver.ProtocolError{Reason: fmt.Sprintf("expected ACK for %s, got %s", cmd, first)}
	}

	out := &outcome{fields: make(map[byte][]byte), resultCode: resultSuccess}
	for {
		reply, err := readAPDU(ctx, a.transport)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("ZVT reply", zap.Stringer("apdu", reply))

		switch reply.Command {
		case ReplyIntermediate:
		case ReplyPrintLine:
			if len(reply.Data) > 1 {
				out.receipt = append(out.receipt, strings.TrimRight(string(reply.Data[1:]), " \x00"))
			}
		case ReplyStatusInfo:
			fields, err := ParseBMPs(reply.Data)
			if err != nil {
				a.logger.Warn("Malformed status information", zap.Error(err))
			}
			for k, v := range fields {
				out.fields[k] = v
			}
			if rc, ok := fields[bmpResultCode]; ok && len(rc) == 1 {
				out.resultCode = rc[0]
			}
			out.raw = append(out.raw, reply.Data...)
		case ReplyCompletion:
			if fields, err := ParseBMPs(reply.Data); err == nil {
				for k, v := range fields {
					out.fields[k] = v
				}
			}
			return out, a.ack(ctx)
		case ReplyAbort:
			out.aborted = true
			out.resultCode = terminalErrorUnknown
			if len(reply.Data) > 0 {
				out.resultCode = reply.Data[0]
			}
			return out, a.ack(ctx)
		}

		if err := a.ack(ctx); err != nil {
			return nil, err
		}
	}
}

func (a *Adapter) ack(ctx context.Context) error {
	_, err := a.transport.Write(ctx, ackAPDU)
	return err
}

// abortTerminal asks the terminal to abort, even when ctx is done, and reads
// off the replies of the interrupted command until the terminal ends it.
// If that does not happen in time the adapter stays stale.
func (a *Adapter) abortTerminal(ctx context.Context) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.abortWait)
	defer cancel()

	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	a.stale = true
	if _, err := a.transport.Write(abortCtx, APDU{Command: CmdAbort}.Encode()); err != nil {
		a.logger.Warn("Failed to send abort to terminal", zap.Error(err))
		return
	}
	if err := a.drainUntilTerminated(abortCtx); err != nil {
		a.logger.Warn("Terminal did not confirm abort", zap.Error(err))
		return
	}
	a.stale = false
}

// drainUntilTerminated acknowledges terminal replies until a completion or
// abort frame arrives. Caller holds ioMu.
func (a *Adapter) drainUntilTerminated(ctx context.Context) error {
	for {
		reply, err := readAPDU(ctx, a.transport)
		if err != nil {
			return err
		}
		switch {
		case reply.Command == CmdAck:
			continue
		case reply.Command[0] == classNegative:
			return fmt.Errorf("abort refused with %02X", reply.Command[1])
		}
		a.logger.Debug("Drained ZVT reply", zap.Stringer("apdu", reply))
		if err := a.ack(ctx); err != nil {
			return err
		}
		if reply.Command == ReplyCompletion || reply.Command == ReplyAbort {
			return nil
		}
	}
}

// CancelTransaction interrupts the running command; the terminal is sent
// an abort before ProcessTransaction returns.
func (a *Adapter) CancelTransaction(ctx context.Context) error {
	if err := a.life.RequireInitialized("cancel_transaction"); err != nil {
		return err
	}
	if a.life.CancelInFlight() {
		a.logger.Info("In-flight card transaction cancelled")
	}
	return nil
}

// GetStatus runs a status enquiry. A busy terminal is reported without I/O.
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

	out, err := a.statusEnquiry(ctx)
	switch {
	case err != nil:
		msg := err.Error()
		status.Error = &msg
	case out.resultCode != resultSuccess:
		msg := resultText(out.resultCode)
		status.Error = &msg
	default:
		status.Ready = true
		a.recordTerminalID(out.fields)
	}
	a.fillInfo(status)
	return status, nil
}

func (a *Adapter) statusEnquiry(ctx context.Context) (*outcome, error) {
	pw, err := a.password()
	if err != nil {
		return nil, err
	}
	return a.run(ctx, APDU{Command: CmdStatusEnquiry, Data: pw})
}

// Settlement runs end-of-day and reports the terminal's batch totals
func (a *Adapter) Settlement(ctx context.Context) (*model.SettlementResult, error) {
	pw, err := a.password()
	if err != nil {
		return nil, err
	}

	opCtx, err := a.life.Begin(ctx, "settlement")
	if err != nil {
		return nil, err
	}
	defer a.life.End()

	opCtx, cancel := a.options.WithTransactionTimeout(opCtx)
	defer cancel()

	out, err := a.run(opCtx, APDU{Command: CmdEndOfDay, Data: pw})
	if err != nil {
		if !refused(err) {
			a.abortTerminal(ctx)
		}
		msg := err.Error()
		return &model.SettlementResult{Success: false, Error: &msg}, nil
	}

	result := &model.SettlementResult{RawResponse: out.raw}
	if out.aborted || out.resultCode != resultSuccess {
		msg := resultText(out.resultCode)
		result.Error = &msg
		return result, nil
	}

	count, sum, err := parseTotals(out.fields[bmpTotals])
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		return result, nil
	}
	result.Success = true
	result.TransactionCount = count
	result.TotalAmount = sum
	if amount, ok := out.fields[bmpAmount]; ok {
		if total, err := wire.DecodeBCD(amount); err == nil {
			result.TotalAmount = total
		}
	}
	return result, nil
}

// parseTotals reads BMP 60: receipt-no start and end (2 BCD each), then
// groups of count (1 BCD) and amount (6 BCD) per card scheme.
func parseTotals(data []byte) (count, total int64, err error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	if len(data) < 4 || (len(data)-4)%7 != 0 {
		return 0, 0, &driver.ProtocolError{Reason: fmt.Sprintf("totals block of %d bytes", len(data))}
	}
	for i := 4; i < len(data); i += 7 {
		c, err := wire.DecodeBCD(data[i : i+1])
		if err != nil {
			return 0, 0, err
		}
		amt, err := wire.DecodeBCD(data[i+1 : i+7])
		if err != nil {
			return 0, 0, err
		}
		count += c
		total += amt
	}
	return count, total, nil
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

// TestConnection runs a status enquiry, opening the transport around it
// when the adapter is not initialized.
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

	_, err := a.statusEnquiry(ctx)
	return err
}

// SendRaw writes bytes without APDU framing
func (a *Adapter) SendRaw(ctx context.Context, data []byte) (int, error) {
	if err := a.life.RequireInitialized("send_raw"); err != nil {
		return 0, err
	}
	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	return a.transport.Write(ctx, data)
}

func (a *Adapter) registrationAPDU() (APDU, error) {
	pw, err := a.password()
	if err != nil {
		return APDU{}, err
	}
	currency, err := a.currency(a.config.Currency)
	if err != nil {
		return APDU{}, err
	}
	data := append(pw, registrationConfig)
	return APDU{Command: CmdRegistration, Data: append(data, currency...)}, nil
}

func (a *Adapter) password() ([]byte, error) {
	pw := a.config.Password
	if pw == "" {
		pw = defaultPassword
	}
	out, err := wire.EncodeDigits(pw, 3)
	if err != nil {
		return nil, fmt.Errorf("terminal password: %v: %w", err, driver.ErrInvalidRequest)
	}
	return out, nil
}

func (a *Adapter) currency(code string) ([]byte, error) {
	if code == "" {
		code = a.config.Currency
	}
	if code == "" {
		code = "EUR"
	}
	numeric, ok := currencyCodes[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("currency %q: %w", code, driver.ErrInvalidRequest)
	}
	return wire.EncodeBCD(numeric, 2)
}

func (a *Adapter) recordTerminalID(fields map[byte][]byte) {
	if tid, ok := fields[bmpTerminalID]; ok {
		a.infoMu.Lock()
		a.terminalID = wire.DecodeDigits(tid)
		a.infoMu.Unlock()
	}
}

func (a *Adapter) fillInfo(status *model.DeviceStatus) {
	a.infoMu.RLock()
	defer a.infoMu.RUnlock()
	if a.terminalID != "" {
		tid := a.terminalID
		status.SerialNumber = &tid
	}
}

// fillResponse copies authorization and card data out of status information
func fillResponse(resp *model.TransactionResponse, fields map[byte][]byte) {
	if v, ok := fields[bmpAuthCode]; ok {
		if code := strings.TrimRight(string(v), " \x00"); code != "" {
			resp.AuthCode = &code
		}
	}
	if v, ok := fields[bmpReceiptNo]; ok {
		if n, err := wire.DecodeBCD(v); err == nil {
			ref := strconv.FormatInt(n, 10)
			resp.TerminalRef = &ref
		}
	}

	card := &model.CardInfo{}
	if v, ok := fields[bmpPAN]; ok {
		card.MaskedPAN = wire.DecodeDigits(v)
	}
	if v, ok := fields[bmpCardName]; ok {
		card.CardName = string(bytes.TrimRight(v, "\x00"))
	}
	if v, ok := fields[bmpCardType]; ok && len(v) == 1 {
		card.CardType = strconv.Itoa(int(v[0]))
	}
	if v, ok := fields[bmpExpiry]; ok {
		card.Expiry = wire.DecodeDigits(v)
	}
	if *card != (model.CardInfo{}) {
		resp.Card = card
	}
}

var _ driver.Protocol = (*Adapter)(nil)
