package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spooky-finn/orderbook-sync/domain"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type fakeTransport struct {
	source domain.Source

	mu            sync.Mutex
	handlers      map[string]domain.UpdateHandler
	subscribed    int
	unsubscribed  int
	subscribeErr  error
	fetch         func(ctx context.Context, symbol string, resource domain.Resource) (*domain.MarketUpdate, error)
	stateHandlers []func(domain.ConnectionState)
}

func newFakeTransport(source domain.Source) *fakeTransport {
	return &fakeTransport{
		source:   source,
		handlers: make(map[string]domain.UpdateHandler),
	}
}

func (f *fakeTransport) Source() domain.Source {
	return f.source
}

func (f *fakeTransport) FetchSnapshot(ctx context.Context, symbol string, resource domain.Resource) (*domain.MarketUpdate, error) {
	f.mu.Lock()
	fetch := f.fetch
	f.mu.Unlock()

	if fetch == nil {
		return nil, domain.ErrSnapshotUnavailable
	}
	return fetch(ctx, symbol, resource)
}

func (f *fakeTransport) Subscribe(symbol string, onUpdate domain.UpdateHandler) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.subscribed++
	f.handlers[symbol] = onUpdate

	return domain.NewSubscription(symbol, f.source, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed++
		delete(f.handlers, symbol)
	}), nil
}

func (f *fakeTransport) OnConnectionState(handler func(domain.ConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, handler)
}

func (f *fakeTransport) setState(state domain.ConnectionState) {
	f.mu.Lock()
	handlers := append(([]func(domain.ConnectionState))(nil), f.stateHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(state)
	}
}

// handler returns the live callback for symbol, nil once unsubscribed.
func (f *fakeTransport) handler(symbol string) domain.UpdateHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[symbol]
}

func (f *fakeTransport) counts() (subscribed, unsubscribed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed, f.unsubscribed
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	args := m.Called(ctx, req)
	ack, _ := args.Get(0).(*domain.OrderAck)
	return ack, args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, symbol string, orderID string) error {
	args := m.Called(ctx, symbol, orderID)
	return args.Error(0)
}

type fakeConnManager struct {
	transports []domain.MarketDataTransport
	gateway    domain.OrderGateway
}

func (cm *fakeConnManager) Transports() []domain.MarketDataTransport {
	return cm.transports
}

func (cm *fakeConnManager) Gateway() domain.OrderGateway {
	return cm.gateway
}

func startController(t *testing.T, cm domain.ConnManager) *SyncController {
	t.Helper()

	controller := NewSyncController(cm, Options{TapeCapacity: 5, DisplayDepth: 10, UserID: "user-test"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = controller.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return controller
}

func bookUpdate(symbol string, ts time.Time, orders ...domain.Order) *domain.MarketUpdate {
	return &domain.MarketUpdate{
		Symbol:   symbol,
		Source:   domain.Source_Rest,
		Resource: domain.Resource_OrderBook,
		Book: &domain.OrderBookData{
			Symbol:    symbol,
			Orders:    orders,
			Timestamp: ts,
		},
		ReceivedAt: ts,
	}
}

func order(id string, side domain.Side, price domain.Price, qty int64) domain.Order {
	return domain.Order{
		ID:                id,
		Symbol:            "AAPL",
		Side:              side,
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            domain.OrderStatus_Pending,
	}
}
