package amqp

import "sync"

// RecordedExchange is an exchange declaration remembered by the Topology
// Recorder so it can be replayed against a fresh connection.
type RecordedExchange struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	Arguments  map[string]interface{}
}

// RecordedQueue is a queue declaration remembered by the Topology Recorder.
// Name may be reassigned by the orchestrator on recovery when the queue was
// originally declared server-named (IsServerNamed).
type RecordedQueue struct {
	Name          string
	Durable       bool
	Exclusive     bool
	AutoDelete    bool
	Arguments     map[string]interface{}
	IsServerNamed bool
}

// bindingKey is the full identity of a RecordedBinding: source exchange,
// destination (queue or exchange) name, routing key, and whether the
// destination is itself an exchange.
type bindingKey struct {
	Exchange   string
	Queue      string
	RoutingKey string
	ToExchange bool
}

// RecordedBinding connects an exchange to a queue (or another exchange).
type RecordedBinding struct {
	Exchange   string
	Queue      string
	RoutingKey string
	ToExchange bool
	Arguments  map[string]interface{}
}

func (b RecordedBinding) key() bindingKey {
	return bindingKey{Exchange: b.Exchange, Queue: b.Queue, RoutingKey: b.RoutingKey, ToExchange: b.ToExchange}
}

// DeliveryHandler processes one inbound delivery for a recorded consumer.
type DeliveryHandler func(Delivery)

// RecordedConsumer is a subscription remembered by the Topology Recorder.
// Tag may be reassigned by the orchestrator on recovery. Model holds a weak
// back-reference to the owning RecoveringModel: if the model has been torn
// down, replay silently drops the consumer instead of resurrecting it.
type RecordedConsumer struct {
	Tag       string
	Queue     string
	AutoAck   bool
	Exclusive bool
	Arguments map[string]interface{}
	Model     *weakModelRef
	Handler   DeliveryHandler
}

// weakModelRef lets recorded entities refer back to the RecoveringModel that
// created them without keeping it alive or forming a reference cycle that a
// naive strong pointer would. clear() is called once the owning model is
// torn down; get() returns nil afterwards so the orchestrator knows to prune
// rather than replay.
type weakModelRef struct {
	mu    sync.Mutex
	model *RecoveringModel
}

func newWeakModelRef(m *RecoveringModel) *weakModelRef {
	return &weakModelRef{model: m}
}

func (w *weakModelRef) get() *RecoveringModel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model
}

func (w *weakModelRef) clear() {
	w.mu.Lock()
	w.model = nil
	w.mu.Unlock()
}

// Recorder is the append-only (modulo explicit deletion) set of declared
// topology entities. A single mutex covers all four collections because
// auto-delete pruning cascades across them.
type Recorder struct {
	mu        sync.Mutex
	exchanges *orderedSet[string, *RecordedExchange]
	queues    *orderedSet[string, *RecordedQueue]
	bindings  *orderedSet[bindingKey, *RecordedBinding]
	consumers *orderedSet[string, *RecordedConsumer]
}

// NewRecorder returns an empty Topology Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		exchanges: newOrderedSet[string, *RecordedExchange](),
		queues:    newOrderedSet[string, *RecordedQueue](),
		bindings:  newOrderedSet[bindingKey, *RecordedBinding](),
		consumers: newOrderedSet[string, *RecordedConsumer](),
	}
}

// RecordExchange remembers ex, overwriting any prior declaration under the
// same name. Idempotent.
func (r *Recorder) RecordExchange(ex RecordedExchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges.put(ex.Name, &ex)
}

// DeleteExchange forgets the named exchange and cascades to every binding
// sourced at it or destined to it, recursively pruning anything that
// deletion leaves orphaned.
func (r *Recorder) DeleteExchange(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges.delete(name)
	r.removeBindingsReferencingExchange(name)
	r.prune()
}

// RecordQueue remembers q, overwriting any prior declaration under the same
// name. Idempotent.
func (r *Recorder) RecordQueue(q RecordedQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues.put(q.Name, &q)
}

// DeleteQueue forgets the named queue and cascades to its bindings and
// consumers.
func (r *Recorder) DeleteQueue(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues.delete(name)
	for _, b := range r.bindings.values() {
		if !b.ToExchange && b.Queue == name {
			r.bindings.delete(b.key())
		}
	}
	for _, c := range r.consumers.values() {
		if c.Queue == name {
			r.consumers.delete(c.Tag)
		}
	}
	r.prune()
}

// RecordBinding remembers b. Identity is the full (exchange, destination,
// routing key, kind) tuple, so re-recording the same tuple is a no-op beyond
// refreshing its arguments.
func (r *Recorder) RecordBinding(b RecordedBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings.put(b.key(), &b)
}

// DeleteBinding forgets b and prunes any auto-delete exchange or queue that
// binding was keeping alive.
func (r *Recorder) DeleteBinding(b RecordedBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings.delete(b.key())
	r.prune()
}

// RecordConsumer remembers c.
func (r *Recorder) RecordConsumer(c RecordedConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers.put(c.Tag, &c)
}

// DeleteConsumer forgets the consumer with the given tag and prunes its
// queue if that was the last thing keeping an auto-delete queue alive.
func (r *Recorder) DeleteConsumer(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers.delete(tag)
	r.prune()
}

// RenameQueue rewrites every recorded binding and consumer that referenced
// old to reference new instead, and re-keys the queue entry itself. Used
// when a server-named queue is re-declared during recovery and the broker
// assigns it a different name.
func (r *Recorder) RenameQueue(old, new string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues.get(old); ok {
		q.Name = new
		r.queues.rename(old, new)
	}
	for _, b := range r.bindings.values() {
		if !b.ToExchange && b.Queue == old {
			renamed := *b
			renamed.Queue = new
			r.bindings.delete(b.key())
			r.bindings.put(renamed.key(), &renamed)
		}
	}
	for _, c := range r.consumers.values() {
		if c.Queue == old {
			c.Queue = new
		}
	}
}

// RenameConsumer rewrites the consumer tag of old to new. Used when a
// consume operation is replayed with a client-generated tag that collides,
// or the broker otherwise assigns a different tag on recovery.
func (r *Recorder) RenameConsumer(old, new string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.consumers.get(old); ok {
		c.Tag = new
		r.consumers.rename(old, new)
	}
}

// Snapshot returns the four recorded collections in fixed replay order
// (Exchanges -> Queues -> Bindings -> Consumers), each preserving insertion
// order within its kind.
func (r *Recorder) Snapshot() (exchanges []*RecordedExchange, queues []*RecordedQueue, bindings []*RecordedBinding, consumers []*RecordedConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exchanges.values(), r.queues.values(), r.bindings.values(), r.consumers.values()
}

// Counts returns the current number of recorded entities of each kind,
// primarily for tests asserting P1/R1-style invariants.
func (r *Recorder) Counts() (exchanges, queues, bindings, consumers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exchanges.len(), r.queues.len(), r.bindings.len(), r.consumers.len()
}

// removeBindingsReferencingExchange deletes every binding sourced at or
// destined to name. Caller must hold r.mu.
func (r *Recorder) removeBindingsReferencingExchange(name string) {
	for _, b := range r.bindings.values() {
		if b.Exchange == name || (b.ToExchange && b.Queue == name) {
			r.bindings.delete(b.key())
		}
	}
}

// prune removes auto-delete queues and exchanges that no longer have any
// referring binding or consumer, recursively, until a fixpoint is reached.
// Caller must hold r.mu.
func (r *Recorder) prune() {
	for {
		changed := false
		for _, q := range r.queues.values() {
			if !q.AutoDelete {
				continue
			}
			if r.countConsumersForQueue(q.Name) == 0 && r.countBindingsToQueue(q.Name) == 0 {
				r.queues.delete(q.Name)
				changed = true
			}
		}
		for _, ex := range r.exchanges.values() {
			if !ex.AutoDelete {
				continue
			}
			// Pruned only with zero bindings sourced at it AND zero
			// bindings destined to it from another auto-delete exchange;
			// an inbound binding from a durable exchange does not keep it
			// alive, and is cascaded away with it.
			if r.countBindingsSourcedAt(ex.Name) == 0 && r.countBindingsFromAutoDeleteTo(ex.Name) == 0 {
				r.removeBindingsReferencingExchange(ex.Name)
				r.exchanges.delete(ex.Name)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (r *Recorder) countConsumersForQueue(name string) int {
	n := 0
	for _, c := range r.consumers.values() {
		if c.Queue == name {
			n++
		}
	}
	return n
}

func (r *Recorder) countBindingsToQueue(name string) int {
	n := 0
	for _, b := range r.bindings.values() {
		if !b.ToExchange && b.Queue == name {
			n++
		}
	}
	return n
}

// countBindingsFromAutoDeleteTo counts exchange-to-exchange bindings whose
// destination is name and whose source is itself a recorded auto-delete
// exchange; such a binding keeps the destination alive.
func (r *Recorder) countBindingsFromAutoDeleteTo(name string) int {
	n := 0
	for _, b := range r.bindings.values() {
		if !b.ToExchange || b.Queue != name {
			continue
		}
		if src, ok := r.exchanges.get(b.Exchange); ok && src.AutoDelete {
			n++
		}
	}
	return n
}

func (r *Recorder) countBindingsSourcedAt(exchange string) int {
	n := 0
	for _, b := range r.bindings.values() {
		if b.Exchange == exchange {
			n++
		}
	}
	return n
}

