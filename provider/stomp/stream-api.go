package stomp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/spooky-finn/orderbook-sync/domain"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"github.com/spooky-finn/orderbook-sync/provider/wire"
	"go.uber.org/zap"
)

const (
	orderBookTopic = "/topic/orderbook/%s"
	tradesTopic    = "/topic/trades/%s"
)

type symbolCache struct {
	book   *domain.OrderBookData
	trades []domain.Trade
}

// StreamAPI is the push transport. Updates arrive on broker topics; the
// latest payloads are cached per symbol so a snapshot can be served
// without a round trip.
type StreamAPI struct {
	client    *StreamClient
	logger    *zap.Logger
	tapeLimit int

	mu    sync.Mutex
	cache map[string]*symbolCache
}

func NewStreamAPI(client *StreamClient, tapeLimit int, logger *zap.Logger) *StreamAPI {
	if tapeLimit <= 0 {
		tapeLimit = domain.DefaultTapeCapacity
	}
	return &StreamAPI{
		client:    client,
		logger:    logger.With(zap.String("component", "stream")),
		tapeLimit: tapeLimit,
		cache:     make(map[string]*symbolCache),
	}
}

func (api *StreamAPI) Source() domain.Source {
	return domain.Source_Stream
}

func (api *StreamAPI) OnConnectionState(handler func(state domain.ConnectionState)) {
	api.client.OnConnectionState(handler)
}

// FetchSnapshot answers from what the broker already pushed. Nothing has
// been pushed for the symbol yet means domain.ErrSnapshotUnavailable.
func (api *StreamAPI) FetchSnapshot(ctx context.Context, symbol string, resource domain.Resource) (*domain.MarketUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	entry, ok := api.cache[symbol]
	update := &domain.MarketUpdate{
		Symbol:     symbol,
		Source:     domain.Source_Stream,
		Resource:   resource,
		ReceivedAt: time.Now(),
	}

	switch resource {
	case domain.Resource_OrderBook:
		if !ok || entry.book == nil {
			return nil, domain.ErrSnapshotUnavailable
		}
		book := *entry.book
		book.Orders = append([]domain.Order(nil), entry.book.Orders...)
		update.Book = &book
	case domain.Resource_Trades:
		if !ok || entry.trades == nil {
			return nil, domain.ErrSnapshotUnavailable
		}
		update.Trades = append([]domain.Trade(nil), entry.trades...)
	default:
		return nil, domain.NewValidationError("resource", fmt.Sprintf("unknown resource %q", resource))
	}
	return update, nil
}

// Subscribe listens on the order book and trade topics of the symbol.
func (api *StreamAPI) Subscribe(symbol string, onUpdate domain.UpdateHandler) (*domain.Subscription, error) {
	api.mu.Lock()
	if _, ok := api.cache[symbol]; !ok {
		api.cache[symbol] = &symbolCache{}
	}
	api.mu.Unlock()

	bookID, err := api.client.Subscribe(fmt.Sprintf(orderBookTopic, symbol), func(msg *frame.Frame) {
		onUpdate(api.onBook(symbol, msg.Body))
	})
	if err != nil {
		return nil, domain.NewConnectivityError(domain.Source_Stream, "subscribe order book", err)
	}

	tradesID, err := api.client.Subscribe(fmt.Sprintf(tradesTopic, symbol), func(msg *frame.Frame) {
		onUpdate(api.onTrades(symbol, msg.Body))
	})
	if err != nil {
		api.client.Unsubscribe(bookID)
		return nil, domain.NewConnectivityError(domain.Source_Stream, "subscribe trades", err)
	}

	return domain.NewSubscription(symbol, domain.Source_Stream, func() {
		api.client.Unsubscribe(bookID)
		api.client.Unsubscribe(tradesID)

		api.mu.Lock()
		delete(api.cache, symbol)
		api.mu.Unlock()
	}), nil
}

func (api *StreamAPI) onBook(symbol string, body []byte) *domain.MarketUpdate {
	update := &domain.MarketUpdate{
		Symbol:     symbol,
		Source:     domain.Source_Stream,
		Resource:   domain.Resource_OrderBook,
		ReceivedAt: time.Now(),
	}

	book, err := wire.DecodeOrderBook(body, symbol)
	if err != nil {
		api.logger.Warn("malformed order book push", zap.String("symbol", symbol), zap.Error(err))
		promclient.FetchErrorsCounter.WithLabelValues(string(domain.Source_Stream), string(domain.Resource_OrderBook)).Inc()
		update.Err = domain.NewConnectivityError(domain.Source_Stream, "decode order book", err)
		return update
	}
	update.Book = book

	api.mu.Lock()
	if entry, ok := api.cache[symbol]; ok {
		entry.book = book
	}
	api.mu.Unlock()
	return update
}

func (api *StreamAPI) onTrades(symbol string, body []byte) *domain.MarketUpdate {
	update := &domain.MarketUpdate{
		Symbol:     symbol,
		Source:     domain.Source_Stream,
		Resource:   domain.Resource_Trades,
		ReceivedAt: time.Now(),
	}

	trades, err := wire.DecodeTrades(body, symbol)
	if err != nil {
		api.logger.Warn("malformed trade push", zap.String("symbol", symbol), zap.Error(err))
		promclient.FetchErrorsCounter.WithLabelValues(string(domain.Source_Stream), string(domain.Resource_Trades)).Inc()
		update.Err = domain.NewConnectivityError(domain.Source_Stream, "decode trades", err)
		return update
	}
	update.Trades = trades

	api.mu.Lock()
	if entry, ok := api.cache[symbol]; ok {
		merged := append(append([]domain.Trade(nil), trades...), entry.trades...)
		if len(merged) > api.tapeLimit {
			merged = merged[:api.tapeLimit]
		}
		entry.trades = merged
	}
	api.mu.Unlock()
	return update
}
