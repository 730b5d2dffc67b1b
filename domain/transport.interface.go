package domain

import (
	"context"
	"sync"
	"time"
)

type Source string
type Resource string

const (
	Source_Rest   Source = "rest"
	Source_Stream Source = "stream"

	Resource_OrderBook Resource = "orderbook"
	Resource_Trades    Resource = "trades"
)

// OrderBookData is the raw order list the server publishes for a symbol.
type OrderBookData struct {
	Symbol    string
	Orders    []Order
	Timestamp time.Time
}

// MarketUpdate is what a transport hands to the controller. Exactly one of
// Book, Trades or Err is meaningful, selected by Resource and Err.
type MarketUpdate struct {
	Symbol     string
	Source     Source
	Resource   Resource
	Generation uint64

	Book *OrderBookData
	// newest first. Replace is set when the batch is a full poll result
	// rather than freshly executed trades.
	Trades  []Trade
	Replace bool

	Err        error
	ReceivedAt time.Time
}

type UpdateHandler func(update *MarketUpdate)

// Subscription is a live handle for one symbol on one transport.
type Subscription struct {
	Symbol string
	Source Source

	once        sync.Once
	unsubscribe func()
}

func NewSubscription(symbol string, source Source, unsubscribe func()) *Subscription {
	return &Subscription{
		Symbol:      symbol,
		Source:      source,
		unsubscribe: unsubscribe,
	}
}

// Unsubscribe is idempotent. Once it returns the handler is never invoked again.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// MarketDataTransport is implemented by both the polling and the push path.
type MarketDataTransport interface {
	Source() Source
	// FetchSnapshot returns ErrFetchInFlight without issuing a request while
	// another fetch of the same symbol is pending.
	FetchSnapshot(ctx context.Context, symbol string, resource Resource) (*MarketUpdate, error)
	Subscribe(symbol string, onUpdate UpdateHandler) (*Subscription, error)
}

type OrderGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, symbol string, orderID string) error
}

type ConnectionState string

const (
	ConnectionState_Unknown      ConnectionState = "unknown"
	ConnectionState_Connected    ConnectionState = "connected"
	ConnectionState_Disconnected ConnectionState = "disconnected"
)

// ConnectivityNotifier is implemented by transports that hold a connection.
type ConnectivityNotifier interface {
	OnConnectionState(func(state ConnectionState))
}
