package usecase

import (
	"errors"
	"testing"

	"github.com/spooky-finn/orderbook-sync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noopHandler(*domain.MarketUpdate) {}

func TestSubscriptionManager_Refcount(t *testing.T) {
	rest := newFakeTransport(domain.Source_Rest)
	stream := newFakeTransport(domain.Source_Stream)
	m := NewSubscriptionManager([]domain.MarketDataTransport{rest, stream}, zap.NewNop())

	gen, created, err := m.Track("AAPL", noopHandler)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.Track("AAPL", noopHandler)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, gen, again)
	assert.Equal(t, 2, m.Refcount("AAPL"))

	subscribed, _ := rest.counts()
	assert.Equal(t, 1, subscribed, "one subscription per transport")
	subscribed, _ = stream.counts()
	assert.Equal(t, 1, subscribed)

	assert.False(t, m.Untrack("AAPL"))
	assert.True(t, m.IsCurrent("AAPL", gen), "still referenced")
	_, unsubscribed := rest.counts()
	assert.Equal(t, 0, unsubscribed)

	assert.True(t, m.Untrack("AAPL"))
	assert.False(t, m.IsCurrent("AAPL", gen))
	assert.Empty(t, m.Symbols())
	_, unsubscribed = rest.counts()
	assert.Equal(t, 1, unsubscribed)
	_, unsubscribed = stream.counts()
	assert.Equal(t, 1, unsubscribed)

	assert.False(t, m.Untrack("AAPL"), "untracking an absent symbol is a no-op")
}

func TestSubscriptionManager_GenerationAdvancesOnTeardown(t *testing.T) {
	m := NewSubscriptionManager([]domain.MarketDataTransport{newFakeTransport(domain.Source_Rest)}, zap.NewNop())

	first, _, err := m.Track("AAPL", noopHandler)
	require.NoError(t, err)
	m.Untrack("AAPL")

	second, _, err := m.Track("AAPL", noopHandler)
	require.NoError(t, err)

	assert.Greater(t, second, first)
	assert.False(t, m.IsCurrent("AAPL", first))
	assert.True(t, m.IsCurrent("AAPL", second))
}

func TestSubscriptionManager_StampsGeneration(t *testing.T) {
	rest := newFakeTransport(domain.Source_Rest)
	m := NewSubscriptionManager([]domain.MarketDataTransport{rest}, zap.NewNop())

	var got *domain.MarketUpdate
	gen, _, err := m.Track("AAPL", func(u *domain.MarketUpdate) { got = u })
	require.NoError(t, err)

	rest.handler("AAPL")(&domain.MarketUpdate{Symbol: "AAPL", Generation: 999})

	require.NotNil(t, got)
	assert.Equal(t, gen, got.Generation)
}

func TestSubscriptionManager_RollbackOnFailure(t *testing.T) {
	rest := newFakeTransport(domain.Source_Rest)
	stream := newFakeTransport(domain.Source_Stream)
	stream.subscribeErr = errors.New("broker refused")
	m := NewSubscriptionManager([]domain.MarketDataTransport{rest, stream}, zap.NewNop())

	_, created, err := m.Track("AAPL", noopHandler)

	assert.True(t, domain.IsErrConnectivity(err))
	assert.False(t, created)
	assert.Equal(t, 0, m.Refcount("AAPL"))
	subscribed, unsubscribed := rest.counts()
	assert.Equal(t, 1, subscribed)
	assert.Equal(t, 1, unsubscribed, "partial subscription rolled back")
}

func TestSubscriptionManager_Close(t *testing.T) {
	rest := newFakeTransport(domain.Source_Rest)
	m := NewSubscriptionManager([]domain.MarketDataTransport{rest}, zap.NewNop())

	for _, symbol := range []string{"AAPL", "AAPL", "GOOG"} {
		_, _, err := m.Track(symbol, noopHandler)
		require.NoError(t, err)
	}

	m.Close()

	assert.Equal(t, 0, m.Count())
	_, unsubscribed := rest.counts()
	assert.Equal(t, 2, unsubscribed)
}
