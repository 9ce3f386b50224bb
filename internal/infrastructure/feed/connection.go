package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"polyticker/internal/application/port"
	"polyticker/internal/infrastructure/metrics"
)

// ConnConfig configures a feed Connection.
type ConnConfig struct {
	URL          string        // e.g. wss://ws-subscriptions-clob.polymarket.com/ws/market
	StartTimeout time.Duration // bound on the first connect+subscribe
	DialTimeout  time.Duration // bound on each individual dial
	PingInterval time.Duration // keepalive period
	PingPayload  string        // text frame sent as keepalive
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration // idle read deadline, 0 disables
	Dialer       *websocket.Dialer
}

// DefaultConnConfig returns the production defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		StartTimeout: 5 * time.Second,
		DialTimeout:  10 * time.Second,
		PingInterval: 10 * time.Second,
		PingPayload:  "PING",
		BackoffMin:   1 * time.Second,
		BackoffMax:   15 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

func (c ConnConfig) withDefaults() ConnConfig {
	d := DefaultConnConfig()
	c.URL = strings.TrimSpace(c.URL)
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingPayload == "" {
		c.PingPayload = d.PingPayload
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = d.BackoffMin
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// Connection owns one websocket session to the market endpoint for a fixed
// set of asset ids and keeps it alive until Stop.
type Connection struct {
	cfg ConnConfig
	id  string

	mu       sync.Mutex
	handler  port.Handler
	assetIDs []string
	conn     *websocket.Conn
	started  bool
	stopped  bool
	cancel   context.CancelFunc

	open      atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// NewConnection creates an idle connection; nothing is dialed until Start.
func NewConnection(cfg ConnConfig) *Connection {
	return &Connection{
		cfg:   cfg.withDefaults(),
		id:    uuid.NewString(),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// OnMessage registers the consumer. Only the last registration is kept.
func (c *Connection) OnMessage(h port.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// IsOpen reports whether a session is currently established.
func (c *Connection) IsOpen() bool { return c.open.Load() }

// Done is closed once the connection loop has exited after Stop or ctx cancellation.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Start launches the connection loop and waits for the first successful
// connect and subscribe. It fails with ErrConnectTimeout when that takes
// longer than StartTimeout; the loop keeps retrying in the background.
func (c *Connection) Start(ctx context.Context, assetIDs []string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.assetIDs = append([]string(nil), assetIDs...)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)

	timer := time.NewTimer(c.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrConnectTimeout, c.cfg.StartTimeout)
	}
}

// Stop terminates the connection for good. Safe to call more than once.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if !started {
		close(c.done)
	}
}

func (c *Connection) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Connection) emit(msg port.Message) {
	c.mu.Lock()
	h := c.handler
	stopped := c.stopped
	c.mu.Unlock()

	if stopped || h == nil {
		return
	}
	metrics.FeedMessages.WithLabelValues(string(msg.Type)).Inc()
	h(msg)
}

func (c *Connection) logger() zerolog.Logger {
	return log.With().
		Str("conn_id", c.id).
		Strs("assets", c.assetIDs).
		Logger()
}

// run is the reconnect loop: one session at a time, backoff between them,
// backoff reset after every successful subscribe.
func (c *Connection) run(ctx context.Context) {
	defer close(c.done)

	logger := c.logger()
	b := &backoff.Backoff{
		Min:    c.cfg.BackoffMin,
		Max:    c.cfg.BackoffMax,
		Factor: 2,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.session(ctx, b, logger)

		if ctx.Err() != nil || c.isStopped() {
			logger.Debug().Msg("ws stopped")
			return
		}

		wait := b.Duration()
		metrics.FeedReconnects.Inc()
		logger.Warn().Err(err).Dur("backoff", wait).Msg("ws disconnected, reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Connection) session(ctx context.Context, b *backoff.Backoff, logger zerolog.Logger) error {
	logger.Debug().Str("url", c.cfg.URL).Msg("ws connecting")

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := c.cfg.Dialer.DialContext(dctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		metrics.FeedDials.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			c.emit(errorMessage(err))
		}
		return fmt.Errorf("dial: %w", err)
	}

	if !c.attach(conn) {
		_ = conn.Close()
		return ErrStopped
	}
	defer c.detach(conn)

	if err := c.subscribe(conn); err != nil {
		metrics.FeedDials.WithLabelValues("error").Inc()
		c.emit(errorMessage(err))
		return fmt.Errorf("subscribe: %w", err)
	}

	metrics.FeedDials.WithLabelValues("ok").Inc()
	b.Reset()
	c.readyOnce.Do(func() { close(c.ready) })
	logger.Info().Msg("ws connected")

	return c.readLoop(ctx, conn, logger)
}

func (c *Connection) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.conn = conn
	c.open.Store(true)
	metrics.FeedOpenConnections.Inc()
	return true
}

func (c *Connection) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if c.open.CompareAndSwap(true, false) {
		metrics.FeedOpenConnections.Dec()
	}
	_ = conn.Close()
}

// subscribe must be replayed on every connect; the server keeps no state
// across sessions.
func (c *Connection) subscribe(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(subscribeRequest{Type: "market", AssetIDs: c.assetIDs})
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) error {
	extend := func() {
		if c.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			receivedAt := time.Now()
			extend()
			for _, msg := range decodeFrame(data, receivedAt) {
				c.emit(msg)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return ctx.Err()

		case err := <-errCh:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				ctx.Err() == nil && !c.isStopped() {
				c.emit(errorMessage(err))
			}
			return err

		case <-pingTicker.C:
			if !c.open.Load() {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(c.cfg.PingPayload)); err != nil {
				logger.Debug().Err(err).Msg("keepalive write failed")
			}
		}
	}
}
