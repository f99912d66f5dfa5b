package zvt

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/transport/transporttest"
	"pos-device-service/pkg/driver"
)

func frame(cmd Command, data ...byte) []byte {
	return APDU{Command: cmd, Data: data}.Encode()
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

var ack = frame(CmdAck)

// terminal scripts the replies a ZVT terminal pushes after each ECR command
type terminal struct {
	mu      sync.Mutex
	scripts map[Command][]byte
	seen    []Command
}

func newTerminal() *terminal {
	return &terminal{scripts: map[Command][]byte{
		CmdRegistration:  join(ack, frame(ReplyCompletion, 0x29, 0x12, 0x34, 0x56, 0x78)),
		CmdStatusEnquiry: join(ack, frame(ReplyStatusInfo, 0x27, 0x00), frame(ReplyCompletion)),
	}}
}

func (tm *terminal) respond(written []byte) []byte {
	if len(written) < 3 {
		return nil
	}
	cmd := Command{written[0], written[1]}
	if cmd == CmdAck {
		return nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.seen = append(tm.seen, cmd)
	return tm.scripts[cmd]
}

func (tm *terminal) script(cmd Command, replies ...[]byte) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.scripts[cmd] = join(replies...)
}

func (tm *terminal) commands() []Command {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]Command(nil), tm.seen...)
}

func newAdapter(t *testing.T, opts driver.Options) (*Adapter, *terminal, *transporttest.Fake) {
	t.Helper()
	tm := newTerminal()
	fake := transporttest.New(tm.respond)
	cfg := &model.DeviceConfig{DeviceID: "zvt-1", Protocol: model.ProtocolZVT, ConnectionType: model.ConnectionTypeTCP, Currency: "EUR"}
	return New(fake, cfg, opts, zap.NewNop()), tm, fake
}

func initialized(t *testing.T, opts driver.Options) (*Adapter, *terminal, *transporttest.Fake) {
	t.Helper()
	a, tm, fake := newAdapter(t, opts)
	require.NoError(t, a.Initialize(context.Background()))
	return a, tm, fake
}

func sale(amount int64) *model.TransactionRequest {
	return &model.TransactionRequest{TransactionID: "tx-9", Type: model.TransactionSale, Amount: amount, Currency: "EUR"}
}

func approvedSaleReplies() [][]byte {
	status := []byte{
		0x27, 0x00,
		0x04, 0x00, 0x00, 0x00, 0x00, 0x12, 0x50,
		0x0B, 0x00, 0x01, 0x23,
		0x22, 0xF0, 0xF7, 0x67, 0x99, 0xEE, 0xEE, 0xEE, 0x12, 0x34,
		0x87, 0x00, 0x42,
		0x3B, '1', '2', '3', '4', '5', '6', 0x00, 0x00,
		0x8A, 0x05,
		0x8B, 0xF0, 0xF8, 'G', 'i', 'r', 'o', 'c', 'a', 'r', 'd',
	}
	return [][]byte{
		ack,
		frame(ReplyIntermediate, 0x0A),
		frame(ReplyPrintLine, 0x00, 'P', 'A', 'Y', 'M', 'E', 'N', 'T'),
		frame(ReplyStatusInfo, status...),
		frame(ReplyPrintLine, 0xFF, 'T', 'H', 'A', 'N', 'K', 'S'),
		frame(ReplyCompletion),
	}
}

func TestInitializeRegisters(t *testing.T) {
	a, _, fake := initialized(t, driver.Options{})

	writes := fake.Writes()
	assert.Equal(t, []byte{0x06, 0x00, 0x06, 0x00, 0x00, 0x00, registrationConfig, 0x09, 0x78}, writes[0])
	assert.Equal(t, ack, writes[1], "completion is acknowledged")

	status, err := a.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, "12345678", *status.SerialNumber)
}

func TestInitializeRefused(t *testing.T) {
	a, tm, fake := newAdapter(t, driver.Options{})
	tm.script(CmdRegistration, frame(Command{classNegative, 0x83}))

	err := a.Initialize(context.Background())
	require.Error(t, err)
	assert.False(t, fake.IsOpen())
	assert.Equal(t, driver.StateUninitialized, a.life.State())
}

func TestSaleApproved(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, approvedSaleReplies()...)

	resp, err := a.ProcessTransaction(context.Background(), sale(1250))
	require.NoError(t, err)

	assert.Equal(t, model.TransactionStatusApproved, resp.Status)
	assert.Equal(t, "123456", *resp.AuthCode)
	assert.Equal(t, "42", *resp.TerminalRef)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "6799******1234", resp.Card.MaskedPAN)
	assert.Equal(t, "Girocard", resp.Card.CardName)
	assert.Equal(t, "5", resp.Card.CardType)
	assert.Equal(t, []string{"PAYMENT", "THANKS"}, resp.CustomerReceipt)
	assert.NotEmpty(t, resp.RawResponse)

	var authorization []byte
	for _, w := range fake.Writes() {
		if w[0] == 0x06 && w[1] == 0x01 {
			authorization = w
		}
	}
	assert.Equal(t, []byte{0x06, 0x01, 0x0A, 0x04, 0x00, 0x00, 0x00, 0x00, 0x12, 0x50, 0x49, 0x09, 0x78}, authorization)
}

func TestSaleIncludesTip(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, approvedSaleReplies()...)

	req := sale(1000)
	tip := int64(250)
	req.TipAmount = &tip
	_, err := a.ProcessTransaction(context.Background(), req)
	require.NoError(t, err)

	writes := fake.Writes()
	var found bool
	for _, w := range writes {
		if bytes.HasPrefix(w, []byte{0x06, 0x01, 0x0A, 0x04, 0x00, 0x00, 0x00, 0x00, 0x12, 0x50}) {
			found = true
		}
	}
	assert.True(t, found, "amount plus tip is authorized")
}

func TestSaleDeclined(t *testing.T) {
	a, tm, _ := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, ack, frame(ReplyStatusInfo, 0x27, 0x05), frame(ReplyCompletion))

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusDeclined, resp.Status)
	assert.Equal(t, "05", *resp.ErrorCode)
	assert.Equal(t, "declined", *resp.ErrorMessage)
}

func TestSaleAbortedByCustomer(t *testing.T) {
	a, tm, _ := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, ack, frame(ReplyIntermediate, 0x0A), frame(ReplyAbort, resultAbortedByUser))

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCancelled, resp.Status)
	assert.Equal(t, "6C", *resp.ErrorCode)
}

func TestSaleRefusedCommand(t *testing.T) {
	a, tm, _ := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, frame(Command{classNegative, 0xA0}))

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusError, resp.Status)
	assert.Equal(t, "A0", *resp.ErrorCode)
}

func TestSaleTimeoutSendsAbort(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{TransactionTimeout: 50 * time.Millisecond})
	a.abortWait = 50 * time.Millisecond
	tm.script(CmdAuthorization, ack)

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusTimeout, resp.Status)

	writes := fake.Writes()
	assert.Equal(t, []byte{0x06, 0xB0, 0x00}, writes[len(writes)-1])
	assert.Equal(t, driver.StateInitialized, a.life.State())
}

func TestTimedOutSaleDoesNotLeakIntoNextSale(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{TransactionTimeout: 50 * time.Millisecond})
	tm.script(CmdAuthorization, ack)
	tm.script(CmdAbort, frame(ReplyAbort, resultAbortedByUser))

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusTimeout, resp.Status)

	writes := fake.Writes()
	assert.Equal(t, []byte{0x06, 0xB0, 0x00}, writes[len(writes)-2])
	assert.Equal(t, ack, writes[len(writes)-1], "abort reply is acknowledged")

	tm.script(CmdAuthorization, approvedSaleReplies()...)
	resp, err = a.ProcessTransaction(context.Background(), sale(1250))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusApproved, resp.Status)
	assert.Equal(t, "42", *resp.TerminalRef)
}

func TestLateAbortReplyIsDroppedBeforeNextSale(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{TransactionTimeout: 50 * time.Millisecond})
	a.abortWait = 20 * time.Millisecond
	tm.script(CmdAuthorization, ack)

	resp, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusTimeout, resp.Status)

	fake.Feed(frame(ReplyAbort, resultAbortedByUser))
	tm.script(CmdAuthorization, approvedSaleReplies()...)
	resp, err = a.ProcessTransaction(context.Background(), sale(1250))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusApproved, resp.Status)
}

func TestRefusedCommandIsNotAborted(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, frame(Command{classNegative, 0xA0}))

	_, err := a.ProcessTransaction(context.Background(), sale(500))
	require.NoError(t, err)
	for _, w := range fake.Writes() {
		assert.False(t, w[0] == 0x06 && w[1] == 0xB0, "no abort after a refused command")
	}
}

func TestBusyStatusDoesNoIO(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{})
	tm.script(CmdAuthorization, ack)
	tm.script(CmdAbort, frame(ReplyAbort, resultAbortedByUser))

	done := make(chan *model.TransactionResponse, 1)
	go func() {
		resp, _ := a.ProcessTransaction(context.Background(), sale(500))
		done <- resp
	}()
	require.Eventually(t, func() bool {
		cmds := tm.commands()
		return cmds[len(cmds)-1] == CmdAuthorization && a.life.State() == driver.StateBusy
	}, time.Second, time.Millisecond)

	before := len(fake.Writes())
	status, err := a.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Busy)
	assert.False(t, status.Ready)
	assert.Len(t, fake.Writes(), before)

	require.NoError(t, a.CancelTransaction(context.Background()))
	select {
	case resp := <-done:
		assert.Equal(t, model.TransactionStatusCancelled, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("transaction did not return after cancel")
	}
}

func TestRequestValidation(t *testing.T) {
	a, tm, _ := initialized(t, driver.Options{})
	ctx := context.Background()
	before := len(tm.commands())

	_, err := a.ProcessTransaction(ctx, &model.TransactionRequest{Type: model.TransactionFiscalReceipt})
	assert.ErrorIs(t, err, driver.ErrUnsupportedTransaction)

	_, err = a.ProcessTransaction(ctx, sale(0))
	assert.ErrorIs(t, err, driver.ErrInvalidRequest)

	_, err = a.ProcessTransaction(ctx, &model.TransactionRequest{Type: model.TransactionVoid})
	assert.ErrorIs(t, err, driver.ErrInvalidRequest)

	_, err = a.ProcessTransaction(ctx, &model.TransactionRequest{Type: model.TransactionSale, Amount: 100, Currency: "XYZ"})
	assert.ErrorIs(t, err, driver.ErrInvalidRequest)

	assert.Len(t, tm.commands(), before, "validation happens before I/O")
}

func TestVoidUsesReceiptNumber(t *testing.T) {
	a, tm, fake := initialized(t, driver.Options{})
	tm.script(CmdReversal, ack, frame(ReplyStatusInfo, 0x27, 0x00), frame(ReplyCompletion))

	ref := "42"
	resp, err := a.ProcessTransaction(context.Background(), &model.TransactionRequest{Type: model.TransactionVoid, OriginalTransaction: &ref})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusApproved, resp.Status)

	var reversal []byte
	for _, w := range fake.Writes() {
		if w[0] == 0x06 && w[1] == 0x30 {
			reversal = w
		}
	}
	assert.Equal(t, []byte{0x06, 0x30, 0x06, 0x00, 0x00, 0x00, 0x87, 0x00, 0x42}, reversal)
}

func TestSettlementReportsTerminalTotals(t *testing.T) {
	a, tm, _ := initialized(t, driver.Options{})
	totals := []byte{
		0x00, 0x01, 0x00, 0x12,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x05, 0x50,
	}
	status := append([]byte{0x27, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x15, 0x50, 0x60}, EncodeVarLength(len(totals), 3)...)
	status = append(status, totals...)
	tm.script(CmdEndOfDay, ack, frame(ReplyStatusInfo, status...), frame(ReplyCompletion))

	result, err := a.Settlement(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(5), result.TransactionCount)
	assert.Equal(t, int64(1550), result.TotalAmount)
	assert.Nil(t, result.ZNumber)
}

func TestXReportUnsupported(t *testing.T) {
	a, _, _ := initialized(t, driver.Options{})
	_, err := a.XReport(context.Background())
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}

func TestAbortClosesTransport(t *testing.T) {
	a, _, fake := initialized(t, driver.Options{})

	require.NoError(t, a.Abort(context.Background()))
	assert.False(t, fake.IsOpen())
	assert.Equal(t, driver.StateUninitialized, a.life.State())

	_, err := a.Settlement(context.Background())
	assert.ErrorIs(t, err, driver.ErrNotInitialized)
}
