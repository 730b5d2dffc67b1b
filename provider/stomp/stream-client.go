package stomp

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/recws-org/recws"
	"github.com/spooky-finn/orderbook-sync/domain"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"go.uber.org/zap"
)

const (
	// SockJS exposes a raw websocket under /websocket
	DefaultEndpoint = "ws://localhost:8080/ws/websocket"

	idleReadDelay = 100 * time.Millisecond
)

var ErrNotConnected = errors.New("stomp session is not established")

type Options struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	ReconnectFactor  float64
	Heartbeat        time.Duration
}

// streamConn is the part of recws.RecConn the client relies on.
type streamConn interface {
	ReadMessage() (messageType int, message []byte, err error)
	WriteMessage(messageType int, data []byte) error
	IsConnected() bool
	Close()
}

type MessageHandler func(msg *frame.Frame)

type subscriptionEntry struct {
	id          string
	destination string
	handler     MessageHandler
}

// StreamClient runs one STOMP session over a reconnecting websocket.
// Subscriptions survive reconnects: every live entry is subscribed again
// as soon as the broker confirms a new session.
type StreamClient struct {
	opts   Options
	conn   streamConn
	logger *zap.Logger

	writeMu sync.Mutex

	// guards subscriptions and sessionUp; dispatch holds the read lock while
	// a handler runs, so Unsubscribe returns only after in-flight handlers.
	mu            sync.RWMutex
	subscriptions map[string]*subscriptionEntry
	nextID        uint64
	sessionUp     bool

	stateMu       sync.Mutex
	state         domain.ConnectionState
	stateHandlers []func(domain.ConnectionState)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewStreamClient(opts Options, logger *zap.Logger) *StreamClient {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 5 * time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.ReconnectFactor < 1 {
		opts.ReconnectFactor = 2
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 4 * time.Second
	}

	return &StreamClient{
		opts:          opts,
		logger:        logger.With(zap.String("component", "stomp")),
		subscriptions: make(map[string]*subscriptionEntry),
		state:         domain.ConnectionState_Unknown,
		done:          make(chan struct{}),
	}
}

// Connect dials the endpoint. recws keeps retrying in the background with
// exponential backoff, so a broker that is down at start is not an error.
func (c *StreamClient) Connect() error {
	u, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return errors.Wrap(err, "stream endpoint")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("stream endpoint %q must use ws or wss", c.opts.Endpoint)
	}

	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
		RecIntvlMin:      c.opts.ReconnectMin,
		RecIntvlMax:      c.opts.ReconnectMax,
		RecIntvlFactor:   c.opts.ReconnectFactor,
		NonVerbose:       true,
	}
	conn.SubscribeHandler = func() error {
		// runs on the recws goroutine after every successful dial.
		// an error here would terminate the process, so failures are only logged.
		if err := c.sendConnect(); err != nil {
			c.logger.Warn("failed to open stomp session", zap.Error(err))
		}
		return nil
	}

	c.conn = conn
	conn.Dial(c.opts.Endpoint, nil)

	c.start()
	return nil
}

func (c *StreamClient) start() {
	c.wg.Add(2)
	go c.read()
	go c.heartbeat()
}

func (c *StreamClient) OnConnectionState(handler func(domain.ConnectionState)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

func (c *StreamClient) State() domain.ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Subscribe registers a handler for a destination and returns the STOMP
// subscription id. If no session is up yet the SUBSCRIBE frame is sent once
// the broker confirms the next session.
func (c *StreamClient) Subscribe(destination string, handler MessageHandler) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	entry := &subscriptionEntry{
		id:          fmt.Sprintf("sub-%d", c.nextID),
		destination: destination,
		handler:     handler,
	}
	c.subscriptions[entry.id] = entry

	c.logger.Debug("subscribing", zap.String("destination", destination), zap.String("id", entry.id))

	if c.sessionUp {
		if err := c.writeFrame(subscribeFrame(entry)); err != nil {
			c.logger.Warn("subscribe frame not sent, will retry on reconnect",
				zap.String("destination", destination), zap.Error(err))
		}
	}
	return entry.id, nil
}

func (c *StreamClient) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[id]
	if !ok {
		return
	}
	delete(c.subscriptions, id)
	c.logger.Debug("unsubscribing", zap.String("destination", entry.destination), zap.String("id", id))

	if c.sessionUp {
		if err := c.writeFrame(frame.New(frame.UNSUBSCRIBE, frame.Id, id)); err != nil {
			c.logger.Debug("unsubscribe frame not sent", zap.String("id", id), zap.Error(err))
		}
	}
}

func (c *StreamClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.RLock()
		up := c.sessionUp
		c.mu.RUnlock()
		if up {
			_ = c.writeFrame(frame.New(frame.DISCONNECT))
		}

		if c.conn != nil {
			c.conn.Close()
		}
		c.wg.Wait()
		c.setState(domain.ConnectionState_Disconnected)
	})
}

func (c *StreamClient) sendConnect() error {
	host := "localhost"
	if u, err := url.Parse(c.opts.Endpoint); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	beat := c.opts.Heartbeat.Milliseconds()

	return c.writeFrame(frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, host,
		frame.HeartBeat, fmt.Sprintf("%d,%d", beat, beat),
	))
}

func (c *StreamClient) read() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if !c.conn.IsConnected() {
			c.sessionLost()
			c.idle()
			continue
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Debug("read failed", zap.Error(err))
			c.sessionLost()
			c.idle()
			continue
		}

		frames, err := decodeFrames(msg)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
		}
		for _, f := range frames {
			c.handleFrame(f)
		}
	}
}

func (c *StreamClient) handleFrame(f *frame.Frame) {
	switch f.Command {
	case frame.CONNECTED:
		c.sessionEstablished()
	case frame.MESSAGE:
		c.dispatch(f)
	case frame.ERROR:
		c.logger.Warn("broker error",
			zap.String("message", f.Header.Get(frame.Message)),
			zap.ByteString("body", f.Body))
	case frame.RECEIPT:
	default:
		c.logger.Debug("unexpected frame", zap.String("command", f.Command))
	}
}

func (c *StreamClient) dispatch(f *frame.Frame) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.subscriptions[f.Header.Get(frame.Subscription)]
	if !ok {
		return
	}
	entry.handler(f)
}

func (c *StreamClient) sessionEstablished() {
	c.mu.Lock()
	c.sessionUp = true
	for _, entry := range c.subscriptions {
		if err := c.writeFrame(subscribeFrame(entry)); err != nil {
			c.logger.Warn("resubscribe failed", zap.String("destination", entry.destination), zap.Error(err))
		}
	}
	count := len(c.subscriptions)
	c.mu.Unlock()

	promclient.StreamReconnectsCounter.Inc()
	c.logger.Info("stomp session established", zap.Int("subscriptions", count))
	c.setState(domain.ConnectionState_Connected)
}

func (c *StreamClient) sessionLost() {
	c.mu.Lock()
	wasUp := c.sessionUp
	c.sessionUp = false
	c.mu.Unlock()

	if wasUp {
		c.logger.Warn("stomp session lost")
	}
	c.setState(domain.ConnectionState_Disconnected)
}

func (c *StreamClient) setState(state domain.ConnectionState) {
	c.stateMu.Lock()
	if c.state == state {
		c.stateMu.Unlock()
		return
	}
	c.state = state
	handlers := make([]func(domain.ConnectionState), len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	c.stateMu.Unlock()

	for _, handler := range handlers {
		handler(state)
	}
}

func (c *StreamClient) heartbeat() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			up := c.sessionUp
			c.mu.RUnlock()
			if up {
				if err := c.writeRaw([]byte("\n")); err != nil {
					c.logger.Debug("heart-beat failed", zap.Error(err))
				}
			}
		}
	}
}

func (c *StreamClient) idle() {
	select {
	case <-c.done:
	case <-time.After(idleReadDelay):
	}
}

func (c *StreamClient) writeFrame(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

func (c *StreamClient) writeRaw(data []byte) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
