package amqp

import "sync"

// RecoveryState is the Recovery Orchestrator's own state machine, layered
// above a connection's ConnectionState: Running while a
// live connection backs the handle, Reconnecting while probing endpoints
// after an unexpected loss, GivenUp once every attempt has been exhausted,
// and UserClosed — terminal, like GivenUp — once the application calls
// Close.
type RecoveryState int

const (
	RecoveryRunning RecoveryState = iota
	RecoveryReconnecting
	RecoveryGivenUp
	RecoveryUserClosed
)

func (s RecoveryState) String() string {
	switch s {
	case RecoveryRunning:
		return "running"
	case RecoveryReconnecting:
		return "reconnecting"
	case RecoveryGivenUp:
		return "given_up"
	case RecoveryUserClosed:
		return "user_closed"
	default:
		return "unknown"
	}
}

// RecoverySucceededEvent is delivered once a reconnect attempt completes a
// handshake and finishes replaying recorded topology.
type RecoverySucceededEvent struct {
	Attempt int
}

// ConnectionRecoveryErrorEvent is delivered each time a reconnect attempt
// fails; the event for the attempt after which the orchestrator gives up
// has GivenUp set.
type ConnectionRecoveryErrorEvent struct {
	Attempt int
	Err     error
	GivenUp bool
}

// QueueNameChangeEvent is delivered when a server-named queue is
// re-declared during recovery and the broker assigns it a different name
// than the one recorded before the disconnect.
type QueueNameChangeEvent struct {
	OldName string
	NewName string
}

// ConsumerTagChangeEvent is delivered when a consumer is re-established
// during recovery under a different tag than the one recorded before the
// disconnect.
type ConsumerTagChangeEvent struct {
	OldTag string
	NewTag string
}

// CallbackExceptionEvent is delivered whenever a user-supplied callback
// (delivery handler, shutdown listener, recovery observer) panics. The
// panic is always contained; it never propagates into library code.
type CallbackExceptionEvent struct {
	Err error
}

// eventBus is a small generic observer list with "cold" semantics: once
// latched, any observer registered afterwards is invoked immediately with
// the latched value instead of being queued. A recurring bus (oneShot
// false) never latches: every Fire reaches the observers registered at
// that moment and late subscribers see nothing. The recovery-lifecycle
// events and CallbackException all use recurring buses, since each may
// fire many times over a connection's life.
type eventBus[T any] struct {
	mu        sync.Mutex
	observers []func(T)
	latched   bool
	value     T
	oneShot   bool
}

func newEventBus[T any](oneShot bool) *eventBus[T] {
	return &eventBus[T]{oneShot: oneShot}
}

// Subscribe registers fn. If this is a one-shot bus and has already fired,
// fn is invoked immediately with the latched value.
func (b *eventBus[T]) Subscribe(fn func(T)) {
	b.mu.Lock()
	if b.oneShot && b.latched {
		value := b.value
		b.mu.Unlock()
		fn(value)
		return
	}
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Fire invokes every registered observer with value. For a one-shot bus,
// only the first Fire has any effect; later ones are dropped.
func (b *eventBus[T]) Fire(value T) {
	b.mu.Lock()
	if b.oneShot && b.latched {
		b.mu.Unlock()
		return
	}
	observers := b.observers
	if b.oneShot {
		b.latched = true
		b.value = value
		b.observers = nil
	}
	b.mu.Unlock()

	for _, fn := range observers {
		fn(value)
	}
}
