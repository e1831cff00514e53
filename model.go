package amqp

import (
	"context"
)

// Model is the public, non-recovering view of one multiplexed channel:
// declare/bind/consume/publish
// operations bound to a single Session. It never reconnects on its own —
// RecoveringModel wraps one of these per connection incarnation and
// transparently swaps the underlying Model out from under the caller when
// the orchestrator recovers (recovering.go).
type Model struct {
	session *Session
}

// NewModel opens a fresh channel over conn and wraps it as a Model. For an
// auto-recovering handle, use RecoveringConnection.OpenChannel instead.
func NewModel(conn *Connection) (*Model, error) {
	s, err := conn.openSession()
	if err != nil {
		return nil, err
	}
	return &Model{session: s}, nil
}

// ChannelNumber returns the AMQP channel number this model occupies.
func (m *Model) ChannelNumber() uint16 {
	return m.session.ChannelNumber()
}

// State returns the underlying session's ChannelState.
func (m *Model) State() ChannelState {
	return m.session.State()
}

// OnShutdown registers handler against the underlying session; see
// Session.OnShutdown for "cold" invocation semantics.
func (m *Model) OnShutdown(handler func(*ShutdownReason)) {
	m.session.OnShutdown(handler)
}

// Close gracefully closes the channel with the given human-readable reason.
func (m *Model) Close(reason string) error {
	return m.session.close(&ShutdownReason{Initiator: InitiatorApplication, ReplyText: reason})
}

// Qos sets the prefetch window applied to every consumer opened on this
// channel afterwards.
func (m *Model) Qos(prefetchCount, prefetchSize int) error {
	return m.session.qos(prefetchCount, prefetchSize)
}

// Confirm puts the channel into publisher-confirm mode. Once enabled,
// NotifyPublish reports the eventual fate of every subsequent publish.
func (m *Model) Confirm() error {
	return m.session.confirm()
}

// NotifyPublish registers c to receive a Confirmation for every publish
// made after Confirm mode was enabled.
func (m *Model) NotifyPublish(c chan Confirmation) chan Confirmation {
	return m.session.notifyPublish(c)
}

// NotifyReturn registers c to receive messages the broker could not route
// (mandatory) or deliver immediately (immediate).
func (m *Model) NotifyReturn(c chan Return) chan Return {
	return m.session.notifyReturn(c)
}

// ExchangeDeclare declares ex, matching an existing declaration of the same
// name and differing parameters with a channel-fatal error from the broker.
func (m *Model) ExchangeDeclare(ctx context.Context, ex Exchange) error {
	return m.session.declareExchange(ctx, RecordedExchange{
		Name: ex.Name, Kind: ex.Kind, Durable: ex.Durable,
		AutoDelete: ex.AutoDelete, Internal: ex.Internal, Arguments: ex.Arguments,
	})
}

// ExchangeDelete removes an exchange declaration from the broker.
func (m *Model) ExchangeDelete(name string, ifUnused bool) error {
	return m.session.deleteExchange(name, ifUnused)
}

// QueueDeclare declares q and returns the broker-assigned name: identical
// to q.Name unless q.Name was empty (a server-named queue request).
func (m *Model) QueueDeclare(q Queue) (string, error) {
	return m.session.declareQueue(RecordedQueue{
		Name: q.Name, Durable: q.Durable, Exclusive: q.Exclusive,
		AutoDelete: q.AutoDelete, Arguments: q.Arguments, IsServerNamed: isServerNamedQueue(q.Name),
	})
}

// QueueDeclarePassive asserts that name already exists without declaring
// it, failing with a channel-fatal error if it does not.
func (m *Model) QueueDeclarePassive(name string) error {
	return m.session.declareQueuePassive(name)
}

// QueueDelete removes a queue declaration from the broker.
func (m *Model) QueueDelete(name string, ifUnused, ifEmpty bool) error {
	return m.session.deleteQueue(name, ifUnused, ifEmpty)
}

// Bind connects an exchange to a queue, or to another exchange when
// b.ToExchange is set.
func (m *Model) Bind(b Binding) error {
	return m.session.bind(RecordedBinding{
		Exchange: b.Exchange, Queue: b.Queue, RoutingKey: b.RoutingKey,
		ToExchange: b.ToExchange, Arguments: b.Arguments,
	})
}

// Unbind removes a previously declared binding.
func (m *Model) Unbind(b Binding) error {
	return m.session.unbind(RecordedBinding{
		Exchange: b.Exchange, Queue: b.Queue, RoutingKey: b.RoutingKey,
		ToExchange: b.ToExchange, Arguments: b.Arguments,
	})
}

// ConsumeOptions adjusts a single Consume call.
type ConsumeOptions struct {
	Tag       string
	AutoAck   bool
	Exclusive bool
	Arguments map[string]interface{}
}

// Consume opens a subscription against queue and returns the raw delivery
// channel together with the (possibly generated) consumer tag actually in
// effect.
func (m *Model) Consume(queue string, opts ConsumeOptions) (<-chan Delivery, string, error) {
	tag := opts.Tag
	if tag == "" {
		tag = genConsumerTag()
	}
	deliveries, err := m.session.consume(RecordedConsumer{
		Tag: tag, Queue: queue, AutoAck: opts.AutoAck,
		Exclusive: opts.Exclusive, Arguments: opts.Arguments,
	})
	if err != nil {
		return nil, "", err
	}
	return deliveries, tag, nil
}

// Cancel stops a consumer by tag.
func (m *Model) Cancel(tag string) error {
	return m.session.cancel(tag)
}

// PublishOptions adjusts a single Publish call.
type PublishOptions struct {
	Mandatory bool
	Immediate bool
}

// Publish sends msg to exchange with routingKey. This is a single
// fire-and-forget write: correlating it with a later Confirmation, or
// retrying it after a disconnect, is left entirely to the caller. Recovery
// never re-publishes on the caller's behalf.
func (m *Model) Publish(ctx context.Context, exchange, routingKey string, opts PublishOptions, msg Message) error {
	return m.session.publish(ctx, exchange, routingKey, opts.Mandatory, opts.Immediate, msg)
}

// Ack acknowledges one or more deliveries up to tag.
func (m *Model) Ack(tag uint64, multiple bool) error {
	return m.session.ack(tag, multiple)
}

// Nack negatively acknowledges one or more deliveries up to tag, optionally
// requeueing them.
func (m *Model) Nack(tag uint64, multiple, requeue bool) error {
	return m.session.nack(tag, multiple, requeue)
}

// Reject rejects a single delivery, optionally requeueing it.
func (m *Model) Reject(tag uint64, requeue bool) error {
	return m.session.reject(tag, requeue)
}
