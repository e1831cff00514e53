package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/szarykott/goamqp/xlog"
)

// orchestrator is the recovery engine behind RecoveringConnection: it owns
// the current connection incarnation, the Topology Recorder's contents,
// and every RecoveringModel layered on top, and drives the Running ->
// Reconnecting -> Running|GivenUp state machine whenever the underlying
// connection is lost for any reason other than an application-initiated
// close.
type orchestrator struct {
	cfg      *Config
	log      xlog.Logger
	recorder *Recorder

	// dialFn is how new connection incarnations are made; it is the seam
	// tests use to stand in for a real broker.
	dialFn func(*Config) (*Connection, error)

	mu      sync.Mutex
	cond    *sync.Cond
	state   RecoveryState
	attempt int
	conn    *Connection
	models  []*RecoveringModel

	recoverySucceeded *eventBus[RecoverySucceededEvent]
	recoveryError     *eventBus[ConnectionRecoveryErrorEvent]
	queueNameChange   *eventBus[QueueNameChangeEvent]
	consumerTagChange *eventBus[ConsumerTagChangeEvent]
	callbackException *eventBus[CallbackExceptionEvent]
}

func newOrchestrator(cfg *Config) *orchestrator {
	o := &orchestrator{
		cfg:               cfg,
		log:               cfg.Logger,
		recorder:          NewRecorder(),
		dialFn:            dial,
		recoverySucceeded: newEventBus[RecoverySucceededEvent](false),
		recoveryError:     newEventBus[ConnectionRecoveryErrorEvent](false),
		queueNameChange:   newEventBus[QueueNameChangeEvent](false),
		consumerTagChange: newEventBus[ConsumerTagChangeEvent](false),
		callbackException: newEventBus[CallbackExceptionEvent](false),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// connect performs the initial dial. It is not itself a "recovery" — no
// topology has been recorded yet the first time this runs.
func (o *orchestrator) connect() error {
	conn, err := o.dialFn(o.cfg)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.conn = conn
	o.state = RecoveryRunning
	o.mu.Unlock()
	conn.OnShutdown(o.onConnectionShutdown)
	return nil
}

// onConnectionShutdown is registered against every connection incarnation.
// An application-initiated close is terminal and never triggers recovery;
// anything else (peer close, network error, heartbeat starvation) does.
func (o *orchestrator) onConnectionShutdown(reason *ShutdownReason) {
	o.mu.Lock()
	if o.state == RecoveryUserClosed {
		o.mu.Unlock()
		return
	}
	if reason != nil && reason.Initiator == InitiatorApplication {
		o.state = RecoveryUserClosed
		o.cond.Broadcast()
		o.mu.Unlock()
		return
	}
	o.state = RecoveryReconnecting
	o.cond.Broadcast()
	o.mu.Unlock()

	go o.recoverLoop()
}

// recoverLoop probes cfg.Endpoints at cfg.NetworkRecoveryInterval until a
// handshake and full topology replay succeed, the configured attempt cap
// is reached (RecoveryGivenUp), or the application calls Close
// (RecoveryUserClosed) while an attempt is in flight.
func (o *orchestrator) recoverLoop() {
	for {
		if o.stoppedByUser() {
			return
		}

		o.mu.Lock()
		o.attempt++
		attempt := o.attempt
		o.mu.Unlock()

		time.Sleep(o.cfg.NetworkRecoveryInterval)

		if o.stoppedByUser() {
			return
		}

		conn, err := o.dialFn(o.cfg)
		if err != nil {
			if o.giveUpIfExhausted(attempt, err) {
				return
			}
			continue
		}

		if err := o.recoverOnto(conn, attempt); err != nil {
			_ = conn.Close("recovery replay failed")
			if o.giveUpIfExhausted(attempt, err) {
				return
			}
			continue
		}

		o.mu.Lock()
		if o.state == RecoveryUserClosed {
			// The application closed the handle while the replay was in
			// flight; the freshly recovered connection must not outlive it.
			o.mu.Unlock()
			_ = conn.Close("closed during recovery")
			return
		}
		o.conn = conn
		o.state = RecoveryRunning
		models := append([]*RecoveringModel(nil), o.models...)
		o.cond.Broadcast()
		o.mu.Unlock()
		conn.OnShutdown(o.onConnectionShutdown)

		// The connection's RecoverySucceeded always fires before any of its
		// models'.
		o.recoverySucceeded.Fire(RecoverySucceededEvent{Attempt: attempt})
		for _, m := range models {
			m.recoverySucceeded.Fire(RecoverySucceededEvent{Attempt: attempt})
		}
		return
	}
}

func (o *orchestrator) stoppedByUser() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == RecoveryUserClosed
}

func (o *orchestrator) giveUpIfExhausted(attempt int, err error) bool {
	// The application closing the handle wins over anything a still
	// in-flight attempt observed: no recovery event may fire after Close.
	if o.stoppedByUser() {
		return true
	}
	givenUp := o.cfg.MaxRecoveryAttempts > 0 && attempt >= o.cfg.MaxRecoveryAttempts
	o.recoveryError.Fire(ConnectionRecoveryErrorEvent{Attempt: attempt, Err: err, GivenUp: givenUp})
	if givenUp {
		o.mu.Lock()
		o.state = RecoveryGivenUp
		o.cond.Broadcast()
		o.mu.Unlock()
	}
	return givenUp
}

// recoverOnto replays recorded topology and every live model's consumers
// onto a freshly dialed connection, in fixed order: exchanges, then queues
// (renaming server-named ones), then bindings, then each model's consumers.
// With topology recovery disabled only the models' underlying channels are
// recreated; recorded entities are left unreplayed and the broker-side
// state the old connection implied simply stops existing.
func (o *orchestrator) recoverOnto(conn *Connection, attempt int) error {
	if o.cfg.TopologyRecovery {
		if err := o.replayTopology(conn, attempt); err != nil {
			return err
		}
	}
	o.mu.Lock()
	models := append([]*RecoveringModel(nil), o.models...)
	o.mu.Unlock()
	for _, m := range models {
		if err := m.recreate(conn, o.cfg.TopologyRecovery, attempt); err != nil {
			return err
		}
	}
	return nil
}

// replayTopology re-declares every recorded entity. A single entity failing
// to replay is reported through the recovery-error bus and skipped; the
// remaining entities still get their chance. Only failing to open the
// replay channel itself aborts the attempt.
func (o *orchestrator) replayTopology(conn *Connection, attempt int) error {
	model, err := NewModel(conn)
	if err != nil {
		return err
	}
	defer func() { _ = model.Close("topology replay complete") }()

	// A failed declaration takes the channel it was issued on down with it,
	// so every reported failure is followed by opening a fresh channel
	// before the next entity gets its turn.
	reopen := func() error {
		fresh, err := NewModel(conn)
		if err != nil {
			return err
		}
		model = fresh
		return nil
	}

	exchanges, queues, bindings, _ := o.recorder.Snapshot()
	for _, ex := range exchanges {
		if err := model.session.declareExchange(context.Background(), *ex); err != nil {
			o.reportReplayError(attempt, err)
			if err := reopen(); err != nil {
				return err
			}
		}
	}
	for _, q := range queues {
		name := q.Name
		if q.IsServerNamed {
			name = ""
		}
		got, err := model.session.declareQueue(RecordedQueue{
			Name: name, Durable: q.Durable, Exclusive: q.Exclusive,
			AutoDelete: q.AutoDelete, Arguments: q.Arguments, IsServerNamed: q.IsServerNamed,
		})
		if err != nil {
			o.reportReplayError(attempt, err)
			if err := reopen(); err != nil {
				return err
			}
			continue
		}
		if q.IsServerNamed && got != q.Name {
			old := q.Name
			o.recorder.RenameQueue(old, got)
			o.queueNameChange.Fire(QueueNameChangeEvent{OldName: old, NewName: got})
		}
	}
	for _, b := range bindings {
		if err := model.session.bind(*b); err != nil {
			o.reportReplayError(attempt, err)
			if err := reopen(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *orchestrator) reportReplayError(attempt int, err error) {
	o.log.WithField("error", err.Error()).Warning("topology entity failed to replay")
	o.recoveryError.Fire(ConnectionRecoveryErrorEvent{Attempt: attempt, Err: err})
}

func (o *orchestrator) registerModel(m *RecoveringModel) {
	o.mu.Lock()
	o.models = append(o.models, m)
	o.mu.Unlock()
}

func (o *orchestrator) unregisterModel(m *RecoveringModel) {
	o.mu.Lock()
	for i, candidate := range o.models {
		if candidate == m {
			o.models = append(o.models[:i], o.models[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
}

// currentConnection returns the live connection, blocking until recovery
// settles when the orchestrator is mid-reconnect and cfg.BlockOnRecovery is
// set; otherwise (the default) it fails fast with KindAlreadyClosed.
func (o *orchestrator) currentConnection() (*Connection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == RecoveryReconnecting && !o.cfg.BlockOnRecovery {
		return nil, newError(KindAlreadyClosed, "connection is recovering")
	}
	for o.state == RecoveryReconnecting {
		o.cond.Wait()
	}
	switch o.state {
	case RecoveryGivenUp:
		return nil, newError(KindAlreadyClosed, "connection recovery gave up")
	case RecoveryUserClosed:
		return nil, newError(KindAlreadyClosed, "connection was closed")
	default:
		return o.conn, nil
	}
}

func (o *orchestrator) close(reason string) error {
	o.mu.Lock()
	o.state = RecoveryUserClosed
	conn := o.conn
	o.cond.Broadcast()
	o.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(reason)
}

func (o *orchestrator) currentState() RecoveryState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
