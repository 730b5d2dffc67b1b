package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spooky-finn/orderbook-sync/domain"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrControllerStopped = errors.New("sync controller is not running")

type Options struct {
	TapeCapacity int
	DisplayDepth int
	// owner stamped on submissions that carry none
	UserID string
}

// SymbolView is a copy of one symbol's state, safe to hand out of the loop.
type SymbolView struct {
	Symbol       string                    `json:"symbol"`
	Generation   uint64                    `json:"generation"`
	Book         *domain.OrderBookSnapshot `json:"book"`
	Trades       []domain.TaggedTrade      `json:"trades"`
	Stats        domain.TapeStats          `json:"stats"`
	LastSource   domain.Source             `json:"lastSource,omitempty"`
	LastUpdateAt time.Time                 `json:"lastUpdateAt"`
}

// SyncController serializes every state change through a single loop. The
// poll path and the push path both end in applyUpdate.
type SyncController struct {
	connManager   domain.ConnManager
	subscriptions *SubscriptionManager
	views         *domain.MarketViewStorage
	ledger        *domain.OrderLedger
	validator     domain.IUpdateValidator

	opts   Options
	inbox  *inbox
	logger *zap.Logger

	connectivity map[domain.Source]domain.ConnectionState

	// ctx of the running loop, used by fetches the loop starts itself
	loopCtx context.Context
	stopped chan struct{}
}

func NewSyncController(connManager domain.ConnManager, opts Options, logger *zap.Logger) *SyncController {
	if opts.TapeCapacity <= 0 {
		opts.TapeCapacity = domain.DefaultTapeCapacity
	}
	if opts.DisplayDepth <= 0 {
		opts.DisplayDepth = 10
	}

	c := &SyncController{
		connManager:   connManager,
		subscriptions: NewSubscriptionManager(connManager.Transports(), logger),
		views:         domain.NewMarketViewStorage(),
		ledger:        domain.NewOrderLedger(),
		validator:     &domain.BookTimeValidator{},
		opts:          opts,
		inbox:         newInbox(),
		logger:        logger.With(zap.String("component", "sync-controller")),
		connectivity:  make(map[domain.Source]domain.ConnectionState),
		loopCtx:       context.Background(),
		stopped:       make(chan struct{}),
	}

	for _, transport := range connManager.Transports() {
		c.connectivity[transport.Source()] = domain.ConnectionState_Unknown
		if notifier, ok := transport.(domain.ConnectivityNotifier); ok {
			source := transport.Source()
			notifier.OnConnectionState(func(state domain.ConnectionState) {
				c.inbox.push(func() { c.onConnectionState(source, state) })
			})
		}
	}
	return c
}

// Run owns the loop until ctx is done. Every tracked symbol is torn down
// before it returns.
func (c *SyncController) Run(ctx context.Context) error {
	c.loopCtx = ctx
	defer close(c.stopped)

	c.logger.Info("sync controller started")
	for {
		c.drain()

		select {
		case <-ctx.Done():
			c.drain()
			c.subscriptions.Close()
			c.views = domain.NewMarketViewStorage()
			promclient.TrackedSymbolsGauge.Set(0)
			c.logger.Info("sync controller stopped")
			return nil
		case <-c.inbox.wake:
		}
	}
}

func (c *SyncController) drain() {
	for task := c.inbox.pop(); task != nil; task = c.inbox.pop() {
		task()
	}
}

// do runs fn on the loop and waits for it.
func (c *SyncController) do(ctx context.Context, fn func() error) error {
	select {
	case <-c.stopped:
		return ErrControllerStopped
	default:
	}

	result := make(chan error, 1)
	c.inbox.push(func() { result <- fn() })

	select {
	case err := <-result:
		return err
	case <-c.stopped:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track starts following a symbol. Tracking it again only adds a reference.
func (c *SyncController) Track(ctx context.Context, symbol string) error {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}

	return c.do(ctx, func() error {
		generation, created, err := c.subscriptions.Track(symbol, c.enqueueUpdate)
		if err != nil {
			c.logger.Warn("failed to track symbol", zap.String("symbol", symbol), zap.Error(err))
			return err
		}
		if created {
			c.views.Add(domain.NewMarketView(symbol, generation, c.opts.TapeCapacity))
			promclient.TrackedSymbolsGauge.Set(float64(c.subscriptions.Count()))
		}
		return nil
	})
}

// Untrack drops a reference to the symbol. Once it returns no update for the
// released generation is applied, whatever is still in flight.
func (c *SyncController) Untrack(ctx context.Context, symbol string) error {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}

	return c.do(ctx, func() error {
		if c.subscriptions.Untrack(symbol) {
			c.views.Remove(symbol)
			promclient.TrackedSymbolsGauge.Set(float64(c.subscriptions.Count()))
		}
		return nil
	})
}

func (c *SyncController) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := c.do(ctx, func() error {
		symbols = c.subscriptions.Symbols()
		return nil
	})
	return symbols, err
}

// View returns the display state of a tracked symbol with the book cut to
// the configured depth.
func (c *SyncController) View(ctx context.Context, symbol string) (*SymbolView, error) {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var result *SymbolView
	err = c.do(ctx, func() error {
		view, err := c.views.Get(symbol)
		if err != nil {
			return err
		}
		result = &SymbolView{
			Symbol:       view.Symbol,
			Generation:   view.Generation,
			Book:         view.Book.TopLevels(c.opts.DisplayDepth),
			Trades:       view.Tape.Directions(),
			Stats:        view.Tape.Stats(),
			LastSource:   view.LastSource,
			LastUpdateAt: view.LastUpdateAt,
		}
		return nil
	})
	return result, err
}

func (c *SyncController) Connectivity(ctx context.Context) (map[domain.Source]domain.ConnectionState, error) {
	result := make(map[domain.Source]domain.ConnectionState)
	err := c.do(ctx, func() error {
		for source, state := range c.connectivity {
			result[source] = state
		}
		return nil
	})
	return result, err
}

type refreshTarget struct {
	symbol     string
	generation uint64
}

// Refresh fetches the given symbols, or every tracked one, out of cycle and
// waits until the results are queued for the loop. A symbol whose fetch is
// still pending is skipped.
func (c *SyncController) Refresh(ctx context.Context, symbols ...string) error {
	var targets []refreshTarget
	err := c.do(ctx, func() error {
		targets = c.refreshTargets(symbols)
		return nil
	})
	if err != nil {
		return err
	}
	return c.fetch(ctx, targets)
}

func (c *SyncController) refreshTargets(symbols []string) []refreshTarget {
	if len(symbols) == 0 {
		symbols = c.subscriptions.Symbols()
	}

	targets := make([]refreshTarget, 0, len(symbols))
	for _, symbol := range symbols {
		normalized, err := domain.NormalizeSymbol(symbol)
		if err != nil {
			continue
		}
		if generation, ok := c.subscriptions.Generation(normalized); ok {
			targets = append(targets, refreshTarget{symbol: normalized, generation: generation})
		}
	}
	return targets
}

func (c *SyncController) fetch(ctx context.Context, targets []refreshTarget) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, target := range targets {
		for _, transport := range c.connManager.Transports() {
			target, transport := target, transport
			g.Go(func() error {
				for _, resource := range []domain.Resource{domain.Resource_OrderBook, domain.Resource_Trades} {
					update, err := transport.FetchSnapshot(ctx, target.symbol, resource)
					switch {
					case errors.Is(err, domain.ErrFetchInFlight), errors.Is(err, domain.ErrSnapshotUnavailable):
						continue
					case ctx.Err() != nil:
						return nil
					case err != nil:
						update = &domain.MarketUpdate{
							Symbol:     target.symbol,
							Source:     transport.Source(),
							Resource:   resource,
							Err:        err,
							ReceivedAt: time.Now(),
						}
					}
					update.Generation = target.generation
					c.enqueueUpdate(update)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (c *SyncController) enqueueUpdate(update *domain.MarketUpdate) {
	c.inbox.push(func() {
		if err := c.applyUpdate(update); err != nil && !c.validator.IsErrStale(err) {
			c.logger.Debug("update not applied", zap.String("symbol", update.Symbol), zap.Error(err))
		}
	})
}

// applyUpdate is the only place market state changes. It runs on the loop.
func (c *SyncController) applyUpdate(update *domain.MarketUpdate) error {
	if !c.subscriptions.IsCurrent(update.Symbol, update.Generation) {
		promclient.DroppedUpdatesCounter.WithLabelValues("generation").Inc()
		return &domain.StaleUpdateError{
			Symbol:     update.Symbol,
			Generation: update.Generation,
			Reason:     "symbol generation was released",
		}
	}

	view, err := c.views.Get(update.Symbol)
	if err != nil {
		return err
	}

	if update.Err != nil {
		c.setConnectivity(update.Source, domain.ConnectionState_Disconnected)
		c.logger.Warn("market data unavailable, keeping last known state",
			zap.String("symbol", update.Symbol),
			zap.String("source", string(update.Source)),
			zap.String("resource", string(update.Resource)),
			zap.Error(update.Err))
		return update.Err
	}
	c.setConnectivity(update.Source, domain.ConnectionState_Connected)

	if err := c.validator.IsValidUpd(update, view.BookTime); err != nil {
		if c.validator.IsErrStale(err) {
			promclient.DroppedUpdatesCounter.WithLabelValues("stale_book").Inc()
		}
		return err
	}

	switch update.Resource {
	case domain.Resource_OrderBook:
		if update.Book == nil {
			return nil
		}
		view.Orders = update.Book.Orders
		view.Book = domain.Aggregate(update.Symbol, update.Book.Orders)
		if !update.Book.Timestamp.IsZero() {
			view.BookTime = update.Book.Timestamp
		}
		c.reconcile(update.Book.Orders)

	case domain.Resource_Trades:
		if update.Replace {
			view.Tape.Replace(update.Trades)
		} else {
			// oldest first so the newest ends on top
			for i := len(update.Trades) - 1; i >= 0; i-- {
				view.Tape.Append(update.Trades[i])
			}
		}
	}

	view.LastSource = update.Source
	view.LastUpdateAt = update.ReceivedAt
	promclient.AppliedUpdatesCounter.WithLabelValues(string(update.Source), string(update.Resource)).Inc()
	return nil
}

func (c *SyncController) reconcile(orders []domain.Order) {
	applied, errs := c.ledger.ReconcileBook(orders)
	for _, err := range errs {
		promclient.InconsistentTransitionsCounter.Inc()
		c.logger.Warn("ignoring inconsistent order update", zap.Error(err))
	}
	if applied > 0 {
		c.logger.Debug("own orders reconciled", zap.Int("applied", applied))
	}
}

func (c *SyncController) onConnectionState(source domain.Source, state domain.ConnectionState) {
	previous := c.connectivity[source]
	c.setConnectivity(source, state)

	// whatever was pushed while the session was down is lost
	if state == domain.ConnectionState_Connected && previous != domain.ConnectionState_Connected {
		targets := c.refreshTargets(nil)
		if len(targets) == 0 {
			return
		}
		c.logger.Info("push session up, resynchronizing", zap.Int("symbols", len(targets)))
		go func() {
			if err := c.fetch(c.loopCtx, targets); err != nil {
				c.logger.Debug("resync aborted", zap.Error(err))
			}
		}()
	}
}

func (c *SyncController) setConnectivity(source domain.Source, state domain.ConnectionState) {
	if c.connectivity[source] == state {
		return
	}
	c.connectivity[source] = state

	value := 0.0
	if state == domain.ConnectionState_Connected {
		value = 1
	}
	promclient.ConnectivityGauge.WithLabelValues(string(source)).Set(value)
	c.logger.Info("connectivity changed", zap.String("source", string(source)), zap.String("state", string(state)))
}
