package amqp

import (
	"context"
	"sync"
)

// RecoveringConnection is the auto-recovering handle applications use:
// every channel opened through it survives an unexpected disconnect by
// transparently redialing, replaying recorded topology, and re-subscribing
// consumers. An application-initiated Close is
// terminal; the orchestrator never redials after it.
type RecoveringConnection struct {
	orch *orchestrator
}

// Connect dials cfg.Endpoints and returns an auto-recovering connection
// handle. The Topology Recorder starts empty: nothing declared before this
// call is known to recovery.
func Connect(cfg *Config) (*RecoveringConnection, error) {
	orch := newOrchestrator(cfg)
	if err := orch.connect(); err != nil {
		return nil, err
	}
	return &RecoveringConnection{orch: orch}, nil
}

// State reports the orchestrator's current RecoveryState.
func (rc *RecoveringConnection) State() RecoveryState {
	return rc.orch.currentState()
}

// IsOpen reports whether a live connection currently backs this handle.
func (rc *RecoveringConnection) IsOpen() bool {
	return rc.State() == RecoveryRunning
}

// OpenChannel opens a new auto-recovering channel. If the orchestrator is
// mid-reconnect this fails with KindAlreadyClosed, or, when
// WithBlockOnRecovery(true) is set, blocks until it settles.
func (rc *RecoveringConnection) OpenChannel() (*RecoveringModel, error) {
	return newRecoveringModel(rc.orch)
}

// Close terminates the connection permanently; no further recovery
// attempts will be made afterwards. Closing an already closed connection
// surfaces a KindAlreadyClosed error.
func (rc *RecoveringConnection) Close(reason string) error {
	return rc.orch.close(reason)
}

// Abort is Close with every teardown error suppressed, safe to call any
// number of times and in any state.
func (rc *RecoveringConnection) Abort(reason string) {
	_ = rc.orch.close(reason)
}

// OnRecoverySucceeded registers fn to be invoked after every successful
// reconnect and topology replay.
func (rc *RecoveringConnection) OnRecoverySucceeded(fn func(RecoverySucceededEvent)) {
	rc.orch.recoverySucceeded.Subscribe(fn)
}

// OnRecoveryError registers fn to be invoked after every failed reconnect
// attempt (the last one flagged GivenUp when the orchestrator gives up) and
// for every recorded entity that fails to replay.
func (rc *RecoveringConnection) OnRecoveryError(fn func(ConnectionRecoveryErrorEvent)) {
	rc.orch.recoveryError.Subscribe(fn)
}

// OnQueueNameChange registers fn to be invoked whenever a server-named
// queue is re-declared under a different name during recovery.
func (rc *RecoveringConnection) OnQueueNameChange(fn func(QueueNameChangeEvent)) {
	rc.orch.queueNameChange.Subscribe(fn)
}

// OnConsumerTagChange registers fn to be invoked whenever a consumer is
// re-established under a different tag during recovery.
func (rc *RecoveringConnection) OnConsumerTagChange(fn func(ConsumerTagChangeEvent)) {
	rc.orch.consumerTagChange.Subscribe(fn)
}

// OnCallbackException registers fn to be invoked whenever a user-supplied
// callback (delivery handler, shutdown listener) panics.
func (rc *RecoveringConnection) OnCallbackException(fn func(CallbackExceptionEvent)) {
	rc.orch.callbackException.Subscribe(fn)
}

// Recorder exposes the Topology Recorder backing this connection, mainly so
// tests and diagnostics can assert on what has been remembered.
func (rc *RecoveringConnection) Recorder() *Recorder {
	return rc.orch.recorder
}

// RecoveringModel is an auto-recovering channel: it delegates every
// operation to a current *Model, swapped out transparently whenever the
// orchestrator completes a recovery cycle. Declarative operations
// (exchange/queue/bind/consume) are additionally recorded into the
// orchestrator's Topology Recorder so they can be replayed.
type RecoveringModel struct {
	orch *orchestrator

	mu    sync.Mutex
	model *Model

	dispatcher        *dispatcher
	weakSelf          *weakModelRef
	recoverySucceeded *eventBus[RecoverySucceededEvent]
}

func newRecoveringModel(orch *orchestrator) (*RecoveringModel, error) {
	conn, err := orch.currentConnection()
	if err != nil {
		return nil, err
	}
	m, err := NewModel(conn)
	if err != nil {
		return nil, err
	}
	rm := &RecoveringModel{
		orch:  orch,
		model: m,
	}
	rm.dispatcher = newDispatcher(orch.cfg.ConsumerDispatchConcurrency, orch.log, func(err error) {
		orch.callbackException.Fire(CallbackExceptionEvent{Err: err})
	})
	rm.weakSelf = newWeakModelRef(rm)
	rm.recoverySucceeded = newEventBus[RecoverySucceededEvent](false)
	orch.registerModel(rm)
	return rm, nil
}

func (rm *RecoveringModel) current() *Model {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.model
}

// ChannelNumber returns the current underlying channel number. It changes
// across a recovery cycle.
func (rm *RecoveringModel) ChannelNumber() uint16 {
	return rm.current().ChannelNumber()
}

// State returns the current underlying session's ChannelState.
func (rm *RecoveringModel) State() ChannelState {
	return rm.current().State()
}

// Close tears this channel down permanently: it stops being recreated on
// future recoveries.
func (rm *RecoveringModel) Close(reason string) error {
	rm.orch.unregisterModel(rm)
	rm.weakSelf.clear()
	return rm.current().Close(reason)
}

// OnRecoverySucceeded registers fn to be invoked after this specific model
// has finished being recreated on a fresh connection. A model's
// RecoverySucceeded event always follows the owning connection's for the
// same recovery cycle.
func (rm *RecoveringModel) OnRecoverySucceeded(fn func(RecoverySucceededEvent)) {
	rm.recoverySucceeded.Subscribe(fn)
}

// ExchangeDeclare declares ex and records it for replay.
func (rm *RecoveringModel) ExchangeDeclare(ctx context.Context, ex Exchange) error {
	if err := rm.current().ExchangeDeclare(ctx, ex); err != nil {
		return err
	}
	rm.orch.recorder.RecordExchange(RecordedExchange{
		Name: ex.Name, Kind: ex.Kind, Durable: ex.Durable,
		AutoDelete: ex.AutoDelete, Internal: ex.Internal, Arguments: ex.Arguments,
	})
	return nil
}

// ExchangeDelete deletes ex and forgets it (and anything it cascades to).
func (rm *RecoveringModel) ExchangeDelete(name string, ifUnused bool) error {
	if err := rm.current().ExchangeDelete(name, ifUnused); err != nil {
		return err
	}
	rm.orch.recorder.DeleteExchange(name)
	return nil
}

// QueueDeclare declares q and records it for replay. An empty q.Name
// requests a server-named queue; the broker-assigned name is what gets
// recorded and returned.
func (rm *RecoveringModel) QueueDeclare(q Queue) (string, error) {
	name, err := rm.current().QueueDeclare(q)
	if err != nil {
		return "", err
	}
	rm.orch.recorder.RecordQueue(RecordedQueue{
		Name: name, Durable: q.Durable, Exclusive: q.Exclusive,
		AutoDelete: q.AutoDelete, Arguments: q.Arguments, IsServerNamed: isServerNamedQueue(q.Name),
	})
	return name, nil
}

// QueueDeclarePassive asserts that name already exists on the broker
// without declaring or recording anything.
func (rm *RecoveringModel) QueueDeclarePassive(name string) error {
	return rm.current().QueueDeclarePassive(name)
}

// QueueDelete deletes a queue and forgets it (and anything it cascades to).
func (rm *RecoveringModel) QueueDelete(name string, ifUnused, ifEmpty bool) error {
	if err := rm.current().QueueDelete(name, ifUnused, ifEmpty); err != nil {
		return err
	}
	rm.orch.recorder.DeleteQueue(name)
	return nil
}

// Bind declares b and records it for replay.
func (rm *RecoveringModel) Bind(b Binding) error {
	if err := rm.current().Bind(b); err != nil {
		return err
	}
	rm.orch.recorder.RecordBinding(RecordedBinding{
		Exchange: b.Exchange, Queue: b.Queue, RoutingKey: b.RoutingKey,
		ToExchange: b.ToExchange, Arguments: b.Arguments,
	})
	return nil
}

// Unbind removes b and forgets it.
func (rm *RecoveringModel) Unbind(b Binding) error {
	if err := rm.current().Unbind(b); err != nil {
		return err
	}
	rm.orch.recorder.DeleteBinding(RecordedBinding{
		Exchange: b.Exchange, Queue: b.Queue, RoutingKey: b.RoutingKey,
		ToExchange: b.ToExchange, Arguments: b.Arguments,
	})
	return nil
}

// Consume opens a subscription, records it for replay, and starts
// dispatching its deliveries to handler with the channel's configured
// bounded concurrency.
func (rm *RecoveringModel) Consume(queue string, opts ConsumeOptions, handler DeliveryHandler) (string, error) {
	tag := opts.Tag
	if tag == "" {
		tag = genConsumerTag()
	}
	opts.Tag = tag
	deliveries, tag, err := rm.current().Consume(queue, opts)
	if err != nil {
		return "", err
	}
	rm.orch.recorder.RecordConsumer(RecordedConsumer{
		Tag: tag, Queue: queue, AutoAck: opts.AutoAck, Exclusive: opts.Exclusive,
		Arguments: opts.Arguments, Model: rm.weakSelf, Handler: handler,
	})
	go rm.dispatcher.run(context.Background(), deliveries, handler)
	return tag, nil
}

// Cancel stops a consumer and forgets it.
func (rm *RecoveringModel) Cancel(tag string) error {
	if err := rm.current().Cancel(tag); err != nil {
		return err
	}
	rm.orch.recorder.DeleteConsumer(tag)
	return nil
}

// Publish is a single fire-and-forget write through the current
// incarnation of this channel.
func (rm *RecoveringModel) Publish(ctx context.Context, exchange, routingKey string, opts PublishOptions, msg Message) error {
	return rm.current().Publish(ctx, exchange, routingKey, opts, msg)
}

// Ack acknowledges one or more deliveries. A stale delivery tag left over
// from a prior incarnation of the channel is silently ignored rather than
// surfaced as an error.
func (rm *RecoveringModel) Ack(tag uint64, multiple bool) error {
	return rm.current().Ack(tag, multiple)
}

// Nack negatively acknowledges one or more deliveries.
func (rm *RecoveringModel) Nack(tag uint64, multiple, requeue bool) error {
	return rm.current().Nack(tag, multiple, requeue)
}

// Reject rejects a single delivery.
func (rm *RecoveringModel) Reject(tag uint64, requeue bool) error {
	return rm.current().Reject(tag, requeue)
}

// recreate is invoked by the orchestrator after topology replay onto a
// fresh connection: it opens a new underlying channel and, when consumer
// replay is enabled, re-issues Consume for every consumer this model owns,
// renaming any tag the broker would not accept unchanged. A consumer that
// fails to come back is reported through the recovery-error bus and
// skipped; it does not cost the remaining consumers their replay.
func (rm *RecoveringModel) recreate(conn *Connection, replayConsumers bool, attempt int) error {
	newModel, err := NewModel(conn)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	rm.model = newModel
	rm.mu.Unlock()

	if !replayConsumers {
		return nil
	}

	// A rejected consume takes its channel down with it, so the underlying
	// model is reopened before any retry or follow-up consumer.
	reopen := func() error {
		m, err := NewModel(conn)
		if err != nil {
			return err
		}
		rm.mu.Lock()
		rm.model = m
		rm.mu.Unlock()
		return nil
	}

	_, _, _, consumers := rm.orch.recorder.Snapshot()
	for _, c := range consumers {
		if c.Model == nil || c.Model.get() != rm {
			continue
		}
		tag := c.Tag
		deliveries, got, err := rm.current().Consume(c.Queue, ConsumeOptions{
			Tag: tag, AutoAck: c.AutoAck, Exclusive: c.Exclusive, Arguments: c.Arguments,
		})
		if err != nil {
			if err := reopen(); err != nil {
				return err
			}
			newTag := genConsumerTag()
			deliveries, got, err = rm.current().Consume(c.Queue, ConsumeOptions{
				Tag: newTag, AutoAck: c.AutoAck, Exclusive: c.Exclusive, Arguments: c.Arguments,
			})
			if err != nil {
				rm.orch.reportReplayError(attempt, err)
				if err := reopen(); err != nil {
					return err
				}
				continue
			}
		}
		if got != tag {
			rm.orch.recorder.RenameConsumer(tag, got)
			rm.orch.consumerTagChange.Fire(ConsumerTagChangeEvent{OldTag: tag, NewTag: got})
		}
		go rm.dispatcher.run(context.Background(), deliveries, c.Handler)
	}
	return nil
}
