package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spooky-finn/orderbook-sync/domain"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"github.com/spooky-finn/orderbook-sync/provider/wire"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	maxBodySize    = 8 << 20
)

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	TradesLimit  int
}

// SyncAPI polls the venue REST API and submits orders through it.
type SyncAPI struct {
	baseURL string
	opts    Options
	client  *http.Client
	logger  *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSyncAPI(opts Options, logger *zap.Logger) *SyncAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.TradesLimit <= 0 {
		opts.TradesLimit = domain.DefaultTapeCapacity
	}

	return &SyncAPI{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		opts:    opts,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		logger:   logger.With(zap.String("component", "rest")),
		inFlight: make(map[string]struct{}),
	}
}

func (api *SyncAPI) Source() domain.Source {
	return domain.Source_Rest
}

// FetchSnapshot issues one GET for the resource. While any fetch for the
// same symbol is pending it returns domain.ErrFetchInFlight immediately.
func (api *SyncAPI) FetchSnapshot(ctx context.Context, symbol string, resource domain.Resource) (*domain.MarketUpdate, error) {
	if !api.acquire(symbol) {
		return nil, domain.ErrFetchInFlight
	}
	defer api.release(symbol)

	ctx, cancel := context.WithTimeout(ctx, api.opts.Timeout)
	defer cancel()

	started := time.Now()
	update, err := api.fetch(ctx, symbol, resource)
	promclient.FetchDurationHistogram.WithLabelValues(string(resource)).Observe(time.Since(started).Seconds())

	if err != nil {
		promclient.FetchErrorsCounter.WithLabelValues(string(domain.Source_Rest), string(resource)).Inc()
		return nil, err
	}
	return update, nil
}

func (api *SyncAPI) fetch(ctx context.Context, symbol string, resource domain.Resource) (*domain.MarketUpdate, error) {
	update := &domain.MarketUpdate{
		Symbol:   symbol,
		Source:   domain.Source_Rest,
		Resource: resource,
	}

	switch resource {
	case domain.Resource_OrderBook:
		body, status, err := api.do(ctx, http.MethodGet, "/orderbook/"+url.PathEscape(symbol), nil)
		if err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "fetch order book", err)
		}
		// the server has no book until the first order for the symbol arrives
		if status == http.StatusNotFound {
			update.Book = &domain.OrderBookData{Symbol: symbol}
			break
		}
		if err := expectOK(status, body); err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "fetch order book", err)
		}
		book, err := wire.DecodeOrderBook(body, symbol)
		if err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "decode order book", err)
		}
		update.Book = book

	case domain.Resource_Trades:
		path := fmt.Sprintf("/trades/%s?limit=%d", url.PathEscape(symbol), api.opts.TradesLimit)
		body, status, err := api.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "fetch trades", err)
		}
		if err := expectOK(status, body); err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "fetch trades", err)
		}
		trades, err := wire.DecodeTrades(body, symbol)
		if err != nil {
			return nil, domain.NewConnectivityError(domain.Source_Rest, "decode trades", err)
		}
		update.Trades = trades
		update.Replace = true

	default:
		return nil, domain.NewValidationError("resource", fmt.Sprintf("unknown resource %q", resource))
	}

	update.ReceivedAt = time.Now()
	return update, nil
}

// Subscribe starts a poll loop for the symbol. The first poll runs
// immediately; ticks missed while a poll is slow are dropped.
func (api *SyncAPI) Subscribe(symbol string, onUpdate domain.UpdateHandler) (*domain.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		api.poll(ctx, symbol, onUpdate)
	}()

	api.logger.Debug("polling started", zap.String("symbol", symbol), zap.Duration("interval", api.opts.PollInterval))

	return domain.NewSubscription(symbol, domain.Source_Rest, func() {
		cancel()
		<-done
		api.logger.Debug("polling stopped", zap.String("symbol", symbol))
	}), nil
}

func (api *SyncAPI) poll(ctx context.Context, symbol string, onUpdate domain.UpdateHandler) {
	ticker := time.NewTicker(api.opts.PollInterval)
	defer ticker.Stop()

	for {
		api.pollOnce(ctx, symbol, onUpdate)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (api *SyncAPI) pollOnce(ctx context.Context, symbol string, onUpdate domain.UpdateHandler) {
	for _, resource := range []domain.Resource{domain.Resource_OrderBook, domain.Resource_Trades} {
		update, err := api.FetchSnapshot(ctx, symbol, resource)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrFetchInFlight) {
			continue
		}
		if err != nil {
			update = &domain.MarketUpdate{
				Symbol:     symbol,
				Source:     domain.Source_Rest,
				Resource:   resource,
				Err:        err,
				ReceivedAt: time.Now(),
			}
		}
		onUpdate(update)
	}
}

func (api *SyncAPI) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	payload, err := wire.EncodeOrderRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode order")
	}

	ctx, cancel := context.WithTimeout(ctx, api.opts.Timeout)
	defer cancel()

	body, status, err := api.do(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return nil, domain.NewConnectivityError(domain.Source_Rest, "submit order", err)
	}
	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		return nil, domain.NewValidationError("order", fmt.Sprintf("rejected by server: %s", truncate(body)))
	}
	if err := expectOK(status, body); err != nil {
		return nil, domain.NewConnectivityError(domain.Source_Rest, "submit order", err)
	}

	ack, err := wire.DecodeOrderAck(body, req.Symbol)
	if err != nil {
		return nil, domain.NewConnectivityError(domain.Source_Rest, "decode order response", err)
	}
	return ack, nil
}

// CancelOrder returns domain.ErrOrderNotFound when the server no longer
// has the order in its book.
func (api *SyncAPI) CancelOrder(ctx context.Context, symbol string, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, api.opts.Timeout)
	defer cancel()

	path := fmt.Sprintf("/orders/%s/%s", url.PathEscape(symbol), url.PathEscape(orderID))
	body, status, err := api.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return domain.NewConnectivityError(domain.Source_Rest, "cancel order", err)
	}
	if status == http.StatusNotFound {
		return domain.ErrOrderNotFound
	}
	if err := expectOK(status, body); err != nil {
		return domain.NewConnectivityError(domain.Source_Rest, "cancel order", err)
	}
	return nil
}

func (api *SyncAPI) do(ctx context.Context, method string, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, api.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read body")
	}
	return body, resp.StatusCode, nil
}

func (api *SyncAPI) acquire(symbol string) bool {
	api.mu.Lock()
	defer api.mu.Unlock()

	if _, ok := api.inFlight[symbol]; ok {
		return false
	}
	api.inFlight[symbol] = struct{}{}
	return true
}

func (api *SyncAPI) release(symbol string) {
	api.mu.Lock()
	delete(api.inFlight, symbol)
	api.mu.Unlock()
}

func expectOK(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return errors.Errorf("unexpected status %d: %s", status, truncate(body))
}

func truncate(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
