package service

import (
	"context"
	"sync"

	"pos-device-service/internal/model"
	"pos-device-service/pkg/driver"
)

// fakeProtocol records calls and answers with canned results
type fakeProtocol struct {
	mu sync.Mutex

	id          string
	initErr     error
	testErr     error
	statusErr   error
	response    *model.TransactionResponse
	settlement  *model.SettlementResult
	initialized bool
	aborted     int
	tested      int
	requests    []*model.TransactionRequest
	raw         [][]byte
}

func (f *fakeProtocol) ProtocolType() model.ProtocolType { return model.ProtocolZVT }

func (f *fakeProtocol) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func (f *fakeProtocol) ProcessTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.response != nil {
		return f.response, nil
	}
	return model.NewTransactionResponse(req).Complete(model.TransactionStatusApproved), nil
}

func (f *fakeProtocol) CancelTransaction(ctx context.Context) error { return nil }

func (f *fakeProtocol) GetStatus(ctx context.Context) (*model.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &model.DeviceStatus{Connected: true, Ready: true}, nil
}

func (f *fakeProtocol) Settlement(ctx context.Context) (*model.SettlementResult, error) {
	if f.settlement != nil {
		return f.settlement, nil
	}
	return &model.SettlementResult{Success: true, TransactionCount: 3, TotalAmount: 4500}, nil
}

func (f *fakeProtocol) XReport(ctx context.Context) (*model.SettlementResult, error) {
	return nil, driver.ErrNotSupported
}

func (f *fakeProtocol) Abort(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	f.initialized = false
	return nil
}

func (f *fakeProtocol) TestConnection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tested++
	return f.testErr
}

func (f *fakeProtocol) SendRaw(ctx context.Context, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, data)
	return len(data), nil
}

func (f *fakeProtocol) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

var _ driver.Protocol = (*fakeProtocol)(nil)

// fakeBuilder hands out a fresh fakeProtocol per Build, shaped by prepare
type fakeBuilder struct {
	mu       sync.Mutex
	built    []*fakeProtocol
	buildErr error
	prepare  func(p *fakeProtocol)
}

func (b *fakeBuilder) Build(cfg *model.DeviceConfig) (driver.Protocol, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	p := &fakeProtocol{id: cfg.DeviceID}
	if b.prepare != nil {
		b.prepare(p)
	}
	b.built = append(b.built, p)
	return p, nil
}

func (b *fakeBuilder) last() *fakeProtocol {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built[len(b.built)-1]
}

func (b *fakeBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.built)
}

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []model.DeviceEvent
}

func (r *recorder) Publish(ev model.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, 0, len(r.events))
	for _, ev := range r.events {
		types = append(types, ev.EventType)
	}
	return types
}
