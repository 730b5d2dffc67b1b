package domain

type ConnManager interface {
	// Transports returns the market data paths in priority order, poll first.
	Transports() []MarketDataTransport
	Gateway() OrderGateway
}
