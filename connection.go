package amqp

import (
	"errors"
	"sync"
	"time"

	driver "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/szarykott/goamqp/internal/errs"
	"github.com/szarykott/goamqp/xlog"
)

// Connection is the core connection state machine: it
// owns the single underlying transport (delegated entirely to
// driver.Connection, the out-of-scope frame handler) and the table of
// multiplexed Sessions layered over it. Connection never reconnects itself;
// that is the Recovery Orchestrator's job (orchestrator.go) operating one
// level up through RecoveringConnection.
type Connection struct {
	cfg *Config
	log xlog.Logger

	table *sessionTable
	conn  *driver.Connection
	eg    *errgroup.Group

	mu     sync.Mutex
	state  ConnectionState
	reason *ShutdownReason

	shutdownMu       sync.Mutex
	shutdownHandlers []func(*ShutdownReason)
	shutdownFired    bool

	blocked bool
}

// dial performs the handshake against the first reachable endpoint in
// cfg.Endpoints, in order; an unreachable host is skipped rather than
// retried. Retrying the whole list over time is the orchestrator's job.
func dial(cfg *Config) (*Connection, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, newError(KindNetworkError, "no endpoints configured")
	}

	amqpCfg := driver.Config{
		Heartbeat:       cfg.RequestedHeartbeat,
		ChannelMax:      cfg.RequestedChannelMax,
		FrameSize:       int(cfg.RequestedFrameMax),
		TLSClientConfig: cfg.TLSConfig,
		SASL:            cfg.SASL,
		Vhost:           cfg.Vhost,
		Properties: driver.Table{
			"connection_name": cfg.ClientProvidedName,
		},
	}

	var lastErr error
	for _, endpoint := range cfg.Endpoints {
		dc, err := driver.DialConfig(endpoint, amqpCfg)
		if err != nil {
			lastErr = classifyDialError(err)
			cfg.Logger.WithField("endpoint", endpoint).Warning("dial failed, trying next endpoint")
			continue
		}
		return newConnection(cfg, dc), nil
	}
	return nil, newErrorf(KindNetworkError, lastErr, "exhausted all %d configured endpoints", len(cfg.Endpoints))
}

func classifyDialError(err error) error {
	var amqpErr *driver.Error
	if errors.As(err, &amqpErr) {
		switch {
		case amqpErr.Code == driver.AccessRefused:
			// Covers both a rejected SASL exchange and a vhost the
			// credentials cannot see.
			return newErrorf(KindAuthenticationFailure, amqpErr, "broker refused credentials")
		case errors.Is(amqpErr, driver.ErrFrame) || errors.Is(amqpErr, driver.ErrSyntax):
			// A broker speaking a different protocol major/minor answers
			// the client header with its own version bytes and closes the
			// socket; that surfaces as an unparseable first frame.
			return newErrorf(KindProtocolVersionMismatch, amqpErr, "broker speaks an incompatible protocol version")
		default:
			return newErrorf(KindHardProtocolException, amqpErr, "broker rejected handshake")
		}
	}
	return newErrorf(KindNetworkError, err, "transport dial failed")
}

func newConnection(cfg *Config, dc *driver.Connection) *Connection {
	// The table is bounded by what the tune handshake actually settled on,
	// not what was requested: a broker offering fewer channels than asked
	// for must win, or allocation would hand out numbers the broker will
	// refuse.
	c := &Connection{
		cfg:   cfg,
		log:   cfg.Logger,
		table: newSessionTable(dc.Config.ChannelMax),
		conn:  dc,
		eg:    new(errgroup.Group),
		state: StateOpen,
	}
	notifyClose := make(chan *driver.Error, 1)
	dc.NotifyClose(notifyClose)
	blocked := make(chan driver.Blocking, 1)
	dc.NotifyBlocked(blocked)

	// Both background watchers are supervised as one group so Close can
	// wait for them to drain instead of leaking goroutines past the
	// transport's own teardown.
	c.eg.Go(func() error { c.watchClose(notifyClose); return nil })
	c.eg.Go(func() error { c.watchBlocked(blocked); return nil })
	return c
}

// State returns the connection's current ConnectionState.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the latched ShutdownReason, or nil while still Open.
func (c *Connection) Reason() *ShutdownReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Connection) isOpen() bool {
	return c.State() == StateOpen
}

// OnShutdown registers handler to fire exactly once with the connection's
// final ShutdownReason, invoking it immediately if the connection has
// already closed.
func (c *Connection) OnShutdown(handler func(*ShutdownReason)) {
	c.shutdownMu.Lock()
	if c.shutdownFired {
		reason := c.Reason()
		c.shutdownMu.Unlock()
		handler(reason)
		return
	}
	c.shutdownHandlers = append(c.shutdownHandlers, handler)
	c.shutdownMu.Unlock()
}

// watchClose is the connection's main loop: it owns
// reacting to the transport's closure and translating it into a single
// latched ShutdownReason, independent of any particular Session.
func (c *Connection) watchClose(notify chan *driver.Error) {
	err, ok := <-notify
	if !ok {
		return
	}
	var reason *ShutdownReason
	if err == nil {
		reason = endOfStreamReason(nil)
	} else {
		reason = &ShutdownReason{
			Initiator: InitiatorPeer,
			ReplyCode: uint16(err.Code),
			ReplyText: err.Reason,
			Cause:     err,
		}
	}
	c.latch(reason)
}

func (c *Connection) watchBlocked(notify chan driver.Blocking) {
	for b := range notify {
		c.mu.Lock()
		c.blocked = b.Active
		c.mu.Unlock()
		if b.Active {
			c.log.WithField("reason", b.Reason).Warning("connection blocked by broker")
		} else {
			c.log.Debug("connection unblocked")
		}
	}
}

// IsBlocked reports whether the broker has asked this connection to pause
// publishing (connection.blocked).
func (c *Connection) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// latch transitions the connection to Closed exactly once, fans the reason
// out to every registered session (so in-flight RPCs unblock instead of
// hanging) and fires shutdown handlers.
func (c *Connection) latch(reason *ShutdownReason) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.reason = reason
	c.mu.Unlock()

	for _, s := range c.table.all() {
		s.latch(reason)
	}

	c.shutdownMu.Lock()
	if c.shutdownFired {
		c.shutdownMu.Unlock()
		return
	}
	c.shutdownFired = true
	handlers := c.shutdownHandlers
	c.shutdownHandlers = nil
	c.shutdownMu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}

// quiesce moves the connection to Quiescing ahead of a local close
// handshake.
func (c *Connection) quiesce() {
	c.mu.Lock()
	if c.state == StateOpen {
		c.state = StateQuiescing
	}
	c.mu.Unlock()
}

// openSession allocates the next free channel number, opens a driver
// channel over it, and registers it in the session table.
func (c *Connection) openSession() (*Session, error) {
	if !c.isOpen() {
		return nil, newError(KindAlreadyClosed, "connection is not open")
	}
	if c.conn == nil {
		return nil, newError(KindObjectDisposed, "connection has no transport")
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, errs.WithStack(newErrorf(KindSoftProtocolException, err, "failed to open channel"))
	}
	s := newSession(c, ch, c.log)
	if err := c.table.allocate(s); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return s, nil
}

// Close performs a graceful, application-initiated shutdown: every open
// session is closed before the transport itself. It waits
// up to cfg.ContinuationTimeout for the watcher goroutines to finish
// draining (finish_close); a watcher that is still blocked past the
// deadline is abandoned rather than awaited forever, since the transport
// itself has already been asked to close.
func (c *Connection) Close(reason string) error {
	c.quiesce()
	for _, s := range c.table.all() {
		_ = s.close(&ShutdownReason{Initiator: InitiatorApplication, ReplyText: reason})
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		if errors.Is(err, driver.ErrClosed) {
			err = newErrorf(KindAlreadyClosed, err, "connection already closed")
		}
	}
	c.latch(&ShutdownReason{Initiator: InitiatorApplication, ReplyText: reason})
	c.finishClose()
	return err
}

// Abort is Close with every teardown error suppressed: aborting an already
// closed connection is a no-op rather than an error.
func (c *Connection) Abort(reason string) {
	_ = c.Close(reason)
}

// finishClose is the terminal, idempotent step of shutdown: it just waits
// for the connection's background watchers to
// observe the now-closed notification channels and exit, bounded so a
// stuck watcher can never hang the caller's Close indefinitely.
func (c *Connection) finishClose() {
	done := make(chan struct{})
	go func() {
		_ = c.eg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ContinuationTimeout):
		c.log.Warning("timed out waiting for connection watchers to drain")
	}
}
