package provider

import (
	"github.com/spooky-finn/orderbook-sync/domain"
	"github.com/spooky-finn/orderbook-sync/provider/rest"
	"github.com/spooky-finn/orderbook-sync/provider/stomp"
	"go.uber.org/zap"
)

type Options struct {
	Rest          rest.Options
	Stream        stomp.Options
	StreamEnabled bool
	TapeCapacity  int
}

// ConnectionManager owns every connection to the venue: the polling client,
// which also carries order entry, and the optional push session.
type ConnectionManager struct {
	SyncAPI *rest.SyncAPI

	StreamClient *stomp.StreamClient
	StreamAPI    *stomp.StreamAPI

	logger *zap.Logger
}

func NewConnectionManager(opts Options, logger *zap.Logger) *ConnectionManager {
	cm := &ConnectionManager{
		SyncAPI: rest.NewSyncAPI(opts.Rest, logger),
		logger:  logger.With(zap.String("component", "conn-manager")),
	}

	if opts.StreamEnabled {
		cm.StreamClient = stomp.NewStreamClient(opts.Stream, logger)
		cm.StreamAPI = stomp.NewStreamAPI(cm.StreamClient, opts.TapeCapacity, logger)
	}
	return cm
}

// Init dials the push session. A broker that is unreachable is retried in
// the background, so only a bad endpoint is reported.
func (cm *ConnectionManager) Init() error {
	if cm.StreamClient == nil {
		cm.logger.Info("push transport disabled, polling only")
		return nil
	}
	if err := cm.StreamClient.Connect(); err != nil {
		return err
	}
	cm.logger.Info("push transport dialing")
	return nil
}

func (cm *ConnectionManager) Transports() []domain.MarketDataTransport {
	transports := []domain.MarketDataTransport{cm.SyncAPI}
	if cm.StreamAPI != nil {
		transports = append(transports, cm.StreamAPI)
	}
	return transports
}

func (cm *ConnectionManager) Gateway() domain.OrderGateway {
	return cm.SyncAPI
}

func (cm *ConnectionManager) Close() {
	if cm.StreamClient != nil {
		cm.StreamClient.Close()
	}
}
