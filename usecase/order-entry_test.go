package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/spooky-finn/orderbook-sync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newOrderEntry(t *testing.T) (*SyncController, *fakeTransport, *mockGateway) {
	t.Helper()
	transport := newFakeTransport(domain.Source_Rest)
	gateway := &mockGateway{}
	controller := startController(t, &fakeConnManager{
		transports: []domain.MarketDataTransport{transport},
		gateway:    gateway,
	})
	return controller, transport, gateway
}

func buy(qty int64) domain.OrderRequest {
	return domain.OrderRequest{Symbol: "AAPL", Side: domain.Side_Buy, Price: 15000, Quantity: qty}
}

func TestOrderEntry_Submit(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	gateway.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Owner == "user-test" && req.Symbol == "AAPL"
	})).Return(&domain.OrderAck{
		OrderID:           "srv-1",
		Status:            domain.OrderStatus_PartiallyFilled,
		RemainingQuantity: 40,
		ExecutedTrades:    1,
	}, nil)

	entry, err := controller.SubmitOrder(context.Background(), buy(100))

	require.NoError(t, err)
	assert.Equal(t, "srv-1", entry.ID)
	assert.True(t, entry.Confirmed)
	assert.Equal(t, domain.OrderStatus_PartiallyFilled, entry.Status)
	assert.Equal(t, int64(40), entry.RemainingQuantity)
	gateway.AssertExpectations(t)
}

func TestOrderEntry_ValidationNeverReachesNetwork(t *testing.T) {
	tests := []struct {
		name string
		req  domain.OrderRequest
	}{
		{"ZeroPrice", domain.OrderRequest{Symbol: "AAPL", Side: domain.Side_Buy, Price: 0, Quantity: 1}},
		{"NegativeQuantity", domain.OrderRequest{Symbol: "AAPL", Side: domain.Side_Sell, Price: 100, Quantity: -1}},
		{"UnknownSide", domain.OrderRequest{Symbol: "AAPL", Side: "HOLD", Price: 100, Quantity: 1}},
		{"BadSymbol", domain.OrderRequest{Symbol: "", Side: domain.Side_Buy, Price: 100, Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller, _, gateway := newOrderEntry(t)

			_, err := controller.SubmitOrder(context.Background(), tt.req)

			assert.True(t, domain.IsErrValidation(err), "got %v", err)
			gateway.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)

			summary, err := controller.Orders(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, summary.Orders)
		})
	}
}

func TestOrderEntry_SubmitFailure(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	failure := domain.NewConnectivityError(domain.Source_Rest, "submit order", errors.New("connection refused"))
	gateway.On("SubmitOrder", mock.Anything, mock.Anything).Return(nil, failure)

	entry, err := controller.SubmitOrder(context.Background(), buy(10))

	assert.True(t, domain.IsErrConnectivity(err))
	assert.Equal(t, domain.OrderStatus_Cancelled, entry.Status)
	assert.Contains(t, entry.Reason, "connection refused")
}

// an order sitting in the book, acknowledged and known to the ledger
func submitResting(t *testing.T, controller *SyncController, gateway *mockGateway, id string) domain.LedgerEntry {
	t.Helper()
	gateway.On("SubmitOrder", mock.Anything, mock.Anything).Return(&domain.OrderAck{
		OrderID: id, Status: domain.OrderStatus_Pending, RemainingQuantity: 100,
	}, nil).Once()

	entry, err := controller.SubmitOrder(context.Background(), buy(100))
	require.NoError(t, err)
	return entry
}

func TestOrderEntry_Cancel(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	submitResting(t, controller, gateway, "srv-1")
	gateway.On("CancelOrder", mock.Anything, "AAPL", "srv-1").Return(nil)

	entry, err := controller.CancelOrder(context.Background(), "srv-1")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatus_Cancelled, entry.Status)
	assert.Equal(t, int64(100), entry.RemainingQuantity)

	_, err = controller.CancelOrder(context.Background(), "srv-1")
	assert.True(t, domain.IsErrCancelRejected(err), "terminal order cannot be cancelled again")
	gateway.AssertNumberOfCalls(t, "CancelOrder", 1)
}

func TestOrderEntry_FillWinsOverCancel(t *testing.T) {
	controller, transport, gateway := newOrderEntry(t)
	ctx := context.Background()
	require.NoError(t, controller.Track(ctx, "AAPL"))
	submitResting(t, controller, gateway, "srv-1")

	partial := order("srv-1", domain.Side_Buy, 15000, 100)
	partial.Status = domain.OrderStatus_PartiallyFilled
	partial.RemainingQuantity = 40
	transport.handler("AAPL")(bookUpdate("AAPL", t0, partial))

	gateway.On("CancelOrder", mock.Anything, "AAPL", "srv-1").Run(func(mock.Arguments) {
		// the fill reaches the book before the server handles the cancel
		filled := partial
		filled.Status = domain.OrderStatus_Filled
		filled.RemainingQuantity = 0
		transport.handler("AAPL")(bookUpdate("AAPL", t0.Add(1), filled))
	}).Return(nil)

	entry, err := controller.CancelOrder(ctx, "srv-1")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatus_Filled, entry.Status)
	assert.Equal(t, domain.OrderStatus_Filled, entry.DisplayStatus())
	assert.Equal(t, int64(0), entry.RemainingQuantity)
}

func TestOrderEntry_OptimisticCancelIsVisible(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	submitResting(t, controller, gateway, "srv-1")

	seen := make(chan domain.OrderStatus, 1)
	gateway.On("CancelOrder", mock.Anything, "AAPL", "srv-1").Run(func(mock.Arguments) {
		summary, err := controller.Orders(context.Background(), "AAPL")
		if err == nil && len(summary.Orders) == 1 {
			seen <- summary.Orders[0].DisplayStatus()
		}
	}).Return(nil)

	_, err := controller.CancelOrder(context.Background(), "srv-1")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatus_Cancelled, <-seen)
}

func TestOrderEntry_CancelNotFound(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	submitResting(t, controller, gateway, "srv-1")
	gateway.On("CancelOrder", mock.Anything, "AAPL", "srv-1").Return(domain.ErrOrderNotFound)

	entry, err := controller.CancelOrder(context.Background(), "srv-1")

	assert.True(t, domain.IsErrCancelRejected(err))
	assert.False(t, entry.CancelRequested)
	assert.Equal(t, domain.OrderStatus_Pending, entry.DisplayStatus())
}

func TestOrderEntry_CancelUnknownOrder(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)

	_, err := controller.CancelOrder(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrUnknownOrder)
	gateway.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderEntry_OrdersAndEvict(t *testing.T) {
	controller, _, gateway := newOrderEntry(t)
	ctx := context.Background()
	submitResting(t, controller, gateway, "srv-1")
	submitResting(t, controller, gateway, "srv-2")
	gateway.On("CancelOrder", mock.Anything, "AAPL", "srv-2").Return(nil)
	_, err := controller.CancelOrder(ctx, "srv-2")
	require.NoError(t, err)

	summary, err := controller.Orders(ctx, "aapl")
	require.NoError(t, err)
	assert.Len(t, summary.Orders, 2)
	assert.Equal(t, 1, summary.Counts[domain.OrderStatus_Pending])
	assert.Equal(t, 1, summary.Counts[domain.OrderStatus_Cancelled])

	assert.True(t, domain.IsErrValidation(controller.EvictOrder(ctx, "srv-1")), "live order stays")
	require.NoError(t, controller.EvictOrder(ctx, "srv-2"))

	summary, err = controller.Orders(ctx, "")
	require.NoError(t, err)
	require.Len(t, summary.Orders, 1)
	assert.Equal(t, "srv-1", summary.Orders[0].ID)
}
