package usecase

import (
	"sort"

	"github.com/spooky-finn/orderbook-sync/domain"
	"go.uber.org/zap"
)

type symbolSubscription struct {
	symbol     string
	refcount   int
	generation uint64
	handles    []*domain.Subscription
}

// SubscriptionManager keeps exactly one subscription per transport for each
// tracked symbol. It is owned by the controller loop and has no locking.
type SubscriptionManager struct {
	transports    []domain.MarketDataTransport
	subscriptions map[string]*symbolSubscription
	// survives teardown so a symbol tracked again never reuses a generation
	generations map[string]uint64
	logger      *zap.Logger
}

func NewSubscriptionManager(transports []domain.MarketDataTransport, logger *zap.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		transports:    transports,
		subscriptions: make(map[string]*symbolSubscription),
		generations:   make(map[string]uint64),
		logger:        logger.With(zap.String("component", "subscriptions")),
	}
}

// Track adds one reference to the symbol. The first reference subscribes on
// every transport; each delivered update is stamped with the generation the
// subscription was opened under. created reports whether that happened.
func (m *SubscriptionManager) Track(symbol string, onUpdate domain.UpdateHandler) (generation uint64, created bool, err error) {
	if sub, ok := m.subscriptions[symbol]; ok {
		sub.refcount++
		return sub.generation, false, nil
	}

	generation = m.generations[symbol]
	stamped := func(update *domain.MarketUpdate) {
		update.Generation = generation
		onUpdate(update)
	}

	handles := make([]*domain.Subscription, 0, len(m.transports))
	for _, transport := range m.transports {
		handle, err := transport.Subscribe(symbol, stamped)
		if err != nil {
			for _, h := range handles {
				h.Unsubscribe()
			}
			return 0, false, domain.NewConnectivityError(transport.Source(), "subscribe "+symbol, err)
		}
		handles = append(handles, handle)
	}

	m.subscriptions[symbol] = &symbolSubscription{
		symbol:     symbol,
		refcount:   1,
		generation: generation,
		handles:    handles,
	}

	m.logger.Info("symbol tracked", zap.String("symbol", symbol), zap.Uint64("generation", generation))
	return generation, true, nil
}

// Untrack drops one reference. The last one invalidates the generation before
// the transports are unsubscribed, so anything still in flight is stale.
// Untracking an unknown symbol is a no-op.
// The generation advances only when the last reference goes, not on every
// Untrack, so a symbol another holder still uses keeps its generation.
func (m *SubscriptionManager) Untrack(symbol string) (removed bool) {
	sub, ok := m.subscriptions[symbol]
	if !ok {
		return false
	}

	sub.refcount--
	if sub.refcount > 0 {
		return false
	}

	m.generations[symbol] = sub.generation + 1
	delete(m.subscriptions, symbol)
	for _, handle := range sub.handles {
		handle.Unsubscribe()
	}

	m.logger.Info("symbol untracked", zap.String("symbol", symbol), zap.Uint64("generation", sub.generation))
	return true
}

// IsCurrent tells whether an update stamped with generation may still be applied.
func (m *SubscriptionManager) IsCurrent(symbol string, generation uint64) bool {
	sub, ok := m.subscriptions[symbol]
	return ok && sub.generation == generation
}

func (m *SubscriptionManager) Generation(symbol string) (uint64, bool) {
	sub, ok := m.subscriptions[symbol]
	if !ok {
		return 0, false
	}
	return sub.generation, true
}

func (m *SubscriptionManager) Refcount(symbol string) int {
	if sub, ok := m.subscriptions[symbol]; ok {
		return sub.refcount
	}
	return 0
}

func (m *SubscriptionManager) Symbols() []string {
	result := make([]string, 0, len(m.subscriptions))
	for symbol := range m.subscriptions {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}

func (m *SubscriptionManager) Count() int {
	return len(m.subscriptions)
}

// Close tears every symbol down regardless of its refcount.
func (m *SubscriptionManager) Close() {
	for symbol, sub := range m.subscriptions {
		sub.refcount = 1
		m.Untrack(symbol)
	}
}
