package amqp

import (
	"context"
	"sync"

	driver "github.com/rabbitmq/amqp091-go"

	"github.com/szarykott/goamqp/xlog"
)

// Delivery is a single message handed to a consumer.
type Delivery = driver.Delivery

// Message is published to the broker.
type Message = driver.Publishing

// Return is a message the broker handed back because it could not be routed
// (mandatory) or delivered to a free consumer (immediate).
type Return = driver.Return

// Confirmation reports whether a published message was, eventually,
// accepted by the broker. Recovery treats these as opaque: it is the
// caller's job to decide what a lost confirmation means for their message.
type Confirmation = driver.Confirmation

// Session is the per-channel frame assembler and command dispatcher: it
// owns exactly one underlying AMQP
// channel and converts inbound frames into completed commands (that part is
// performed by the wrapped driver.Channel, which plays the role of the
// out-of-scope wire codec) while tracking this channel's own state
// independently of the connection's.
type Session struct {
	channelNumber uint16
	conn          *Connection // back-reference; never owns conn's lifetime
	ch            *driver.Channel
	log           xlog.Logger

	mu     sync.Mutex
	state  ChannelState
	reason *ShutdownReason

	shutdownMu       sync.Mutex
	shutdownHandlers []func(*ShutdownReason)
	shutdownFired    bool
}

// newSession wraps an already-opened driver.Channel. The Session starts in
// StateOpen: by the time amqp091-go returns a *driver.Channel from
// Connection.Channel(), the channel.open/open-ok handshake has already
// completed.
func newSession(conn *Connection, ch *driver.Channel, log xlog.Logger) *Session {
	s := &Session{conn: conn, ch: ch, log: log, state: StateOpen}
	notifyClose := make(chan *driver.Error, 1)
	ch.NotifyClose(notifyClose)
	go s.watchClose(notifyClose)
	return s
}

// ChannelNumber returns the AMQP channel number this session occupies.
func (s *Session) ChannelNumber() uint16 {
	return s.channelNumber
}

// State returns the session's current ChannelState.
func (s *Session) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns the ShutdownReason latched when the session left Open, or
// nil if it is still Open.
func (s *Session) Reason() *ShutdownReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OnShutdown registers handler to be invoked exactly once with the
// session's final ShutdownReason. If the session has already closed by the
// time this is called, handler fires synchronously with the existing
// reason.
func (s *Session) OnShutdown(handler func(*ShutdownReason)) {
	s.shutdownMu.Lock()
	if s.shutdownFired {
		reason := s.Reason()
		s.shutdownMu.Unlock()
		handler(reason)
		return
	}
	s.shutdownHandlers = append(s.shutdownHandlers, handler)
	s.shutdownMu.Unlock()
}

// watchClose is the session's slice of the main loop: it reacts to this
// channel's own close notification independently of the connection-wide
// loop, so a SoftProtocolException on one channel never blocks on another.
func (s *Session) watchClose(notify chan *driver.Error) {
	err, ok := <-notify
	if !ok {
		// Channel was closed gracefully from our own Close() call; the
		// reason was already latched there.
		return
	}
	// The close handshake for a channel error is completed inside the
	// wrapped driver before this notification fires, so the session passes
	// through Quiescing and straight on to Closed.
	s.quiesce()
	reason := &ShutdownReason{
		Initiator: InitiatorPeer,
		ReplyCode: uint16(err.Code),
		ReplyText: err.Reason,
		Cause:     err,
	}
	s.latch(reason)
}

// latch transitions the session to Closed exactly once and fires every
// registered shutdown handler. Safe to call from multiple goroutines
// (peer-initiated close racing a local Close()).
func (s *Session) latch(reason *ShutdownReason) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.reason = reason
	s.mu.Unlock()

	s.shutdownMu.Lock()
	if s.shutdownFired {
		s.shutdownMu.Unlock()
		return
	}
	s.shutdownFired = true
	handlers := s.shutdownHandlers
	s.shutdownHandlers = nil
	s.shutdownMu.Unlock()

	// A dead session gives its channel number back regardless of which side
	// initiated the close, so the number can be reallocated.
	if s.conn != nil {
		s.conn.table.free(s.channelNumber)
	}

	for _, h := range handlers {
		h(reason)
	}
}

// quiesce moves the session to Quiescing ahead of a close handshake it
// initiated, without yet firing shutdown handlers (those fire once the
// handshake completes and latch() runs).
func (s *Session) quiesce() {
	s.mu.Lock()
	if s.state == StateOpen {
		s.state = StateQuiescing
	}
	s.mu.Unlock()
}

func (s *Session) isOpen() bool {
	return s.State() == StateOpen
}

// Close gracefully closes the underlying channel; latching frees the table
// slot.
func (s *Session) close(reason *ShutdownReason) error {
	s.quiesce()
	err := s.ch.Close()
	s.latch(reason)
	return err
}

// --- Declarative operations (synchronous RPCs delegated to the driver) ---

func (s *Session) declareExchange(ctx context.Context, ex RecordedExchange) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	return s.ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, ex.AutoDelete, ex.Internal, false, toTable(ex.Arguments))
}

func (s *Session) deleteExchange(name string, ifUnused bool) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	return s.ch.ExchangeDelete(name, ifUnused, false)
}

// declareQueue returns the (possibly server-assigned) queue name.
func (s *Session) declareQueue(q RecordedQueue) (string, error) {
	if !s.isOpen() {
		return "", newError(KindAlreadyClosed, "channel is not open")
	}
	got, err := s.ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, toTable(q.Arguments))
	if err != nil {
		return "", err
	}
	return got.Name, nil
}

func (s *Session) declareQueuePassive(name string) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	_, err := s.ch.QueueDeclarePassive(name, false, false, false, false, nil)
	return err
}

func (s *Session) deleteQueue(name string, ifUnused, ifEmpty bool) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	_, err := s.ch.QueueDelete(name, ifUnused, ifEmpty, false)
	return err
}

func (s *Session) bind(b RecordedBinding) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	if b.ToExchange {
		return s.ch.ExchangeBind(b.Queue, b.RoutingKey, b.Exchange, false, toTable(b.Arguments))
	}
	return s.ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, toTable(b.Arguments))
}

func (s *Session) unbind(b RecordedBinding) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	if b.ToExchange {
		return s.ch.ExchangeUnbind(b.Queue, b.RoutingKey, b.Exchange, false, toTable(b.Arguments))
	}
	return s.ch.QueueUnbind(b.Queue, b.RoutingKey, b.Exchange, toTable(b.Arguments))
}

func (s *Session) consume(c RecordedConsumer) (<-chan Delivery, error) {
	if !s.isOpen() {
		return nil, newError(KindAlreadyClosed, "channel is not open")
	}
	return s.ch.Consume(c.Queue, c.Tag, c.AutoAck, c.Exclusive, false, false, toTable(c.Arguments))
}

func (s *Session) cancel(tag string) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	return s.ch.Cancel(tag, false)
}

func (s *Session) qos(prefetchCount, prefetchSize int) error {
	return s.ch.Qos(prefetchCount, prefetchSize, false)
}

func (s *Session) confirm() error {
	return s.ch.Confirm(false)
}

func (s *Session) notifyPublish(c chan Confirmation) chan Confirmation {
	return s.ch.NotifyPublish(c)
}

func (s *Session) notifyReturn(c chan Return) chan Return {
	return s.ch.NotifyReturn(c)
}

// --- Asynchronous operations: write and return, no RPC continuation ---

func (s *Session) publish(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg Message) error {
	if !s.isOpen() {
		return newError(KindAlreadyClosed, "channel is not open")
	}
	return s.ch.PublishWithContext(ctx, exchange, routingKey, mandatory, immediate, msg)
}

// ack/nack/reject silently no-op against a stale delivery tag left over
// from a prior incarnation of this channel instead of treating it as
// channel-fatal: the broker may still
// choose to close the channel, which simply surfaces as an ordinary
// SoftProtocolException shutdown.
func (s *Session) ack(tag uint64, multiple bool) error {
	if !s.isOpen() {
		return nil
	}
	if err := s.ch.Ack(tag, multiple); err != nil {
		s.log.WithField("tag", tag).Debug("ack of stale delivery tag ignored")
		return nil
	}
	return nil
}

func (s *Session) nack(tag uint64, multiple, requeue bool) error {
	if !s.isOpen() {
		return nil
	}
	if err := s.ch.Nack(tag, multiple, requeue); err != nil {
		return nil
	}
	return nil
}

func (s *Session) reject(tag uint64, requeue bool) error {
	if !s.isOpen() {
		return nil
	}
	if err := s.ch.Reject(tag, requeue); err != nil {
		return nil
	}
	return nil
}

func toTable(args map[string]interface{}) driver.Table {
	if args == nil {
		return nil
	}
	return driver.Table(args)
}
