package amqp

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forceRecovery simulates a broker-side connection loss: the transport is
// torn down first so broker-side exclusive resources die with it, then the
// orchestrator is handed a peer-initiated reason. A plain local Close would
// read as application-initiated and, correctly, never trigger recovery.
func forceRecovery(t *testing.T, rc *RecoveringConnection) {
	t.Helper()
	rc.orch.mu.Lock()
	old := rc.orch.conn
	rc.orch.mu.Unlock()
	require.NotNil(t, old)
	_ = old.conn.Close()
	old.latch(&ShutdownReason{Initiator: InitiatorPeer, ReplyCode: 320, ReplyText: "forced close"})
}

func awaitRecovery(t *testing.T, recovered <-chan RecoverySucceededEvent) {
	t.Helper()
	select {
	case <-recovered:
	case <-time.After(10 * time.Second):
		t.Fatal("recovery did not complete within 10s")
	}
}

func TestRecoveringConnectionQueueSurvivesForcedRecovery(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig())
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	name, err := ch.QueueDeclare(Queue{Name: "goamqp-test-recover-q1"})
	require.NoError(t, err)
	defer func() { _ = ch.QueueDelete(name, false, false) }()

	recovered := make(chan RecoverySucceededEvent, 1)
	rc.OnRecoverySucceeded(func(e RecoverySucceededEvent) { recovered <- e })

	forceRecovery(t, rc)
	awaitRecovery(t, recovered)

	require.True(t, rc.IsOpen())
	require.NoError(t, ch.QueueDeclarePassive(name), "the queue must exist again after replay")

	_, queues, _, _ := rc.Recorder().Counts()
	assert.Equal(t, 1, queues)
}

func TestServerNamedQueueRenamedOnRecovery(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig())
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	exchange := "goamqp-test-recovery-fanout"
	require.NoError(t, ch.ExchangeDeclare(context.Background(), Exchange{Name: exchange, Kind: "fanout"}))
	defer func() { _ = ch.ExchangeDelete(exchange, false) }()

	// Exclusive server-named queue: it dies with the old transport, so the
	// replayed declare is guaranteed to produce a fresh broker-picked name.
	qname, err := ch.QueueDeclare(Queue{Exclusive: true, AutoDelete: true})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(qname, "amq.gen-"))

	require.NoError(t, ch.Bind(Binding{Exchange: exchange, Queue: qname}))

	renames := make(chan QueueNameChangeEvent, 1)
	rc.OnQueueNameChange(func(e QueueNameChangeEvent) { renames <- e })
	recovered := make(chan RecoverySucceededEvent, 1)
	rc.OnRecoverySucceeded(func(e RecoverySucceededEvent) { recovered <- e })

	forceRecovery(t, rc)
	awaitRecovery(t, recovered)

	var rename QueueNameChangeEvent
	select {
	case rename = <-renames:
	case <-time.After(time.Second):
		t.Fatal("expected a queue rename event before recovery completed")
	}
	assert.Equal(t, qname, rename.OldName)
	assert.NotEqual(t, qname, rename.NewName)
	assert.True(t, strings.HasPrefix(rename.NewName, "amq.gen-"))

	_, queues, bindings, _ := rc.Recorder().Snapshot()
	require.Len(t, queues, 1)
	assert.Equal(t, rename.NewName, queues[0].Name)
	require.Len(t, bindings, 1)
	assert.Equal(t, rename.NewName, bindings[0].Queue, "the recorded binding must follow the renamed queue")

	// The rewritten binding must be live broker-side too: a publish through
	// the exchange lands on the renamed queue.
	got := make(chan Delivery, 1)
	_, err = ch.Consume(rename.NewName, ConsumeOptions{AutoAck: true}, func(d Delivery) { got <- d })
	require.NoError(t, err)
	require.NoError(t, ch.Publish(context.Background(), exchange, "", PublishOptions{}, Message{Body: []byte("ping")}))
	select {
	case d := <-got:
		assert.Equal(t, "ping", string(d.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a delivery on the renamed queue within 5s")
	}
}

func TestModelRecoveryEventFollowsConnectionEvent(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig())
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	rc.OnRecoverySucceeded(func(RecoverySucceededEvent) {
		mu.Lock()
		order = append(order, "connection")
		mu.Unlock()
	})
	ch.OnRecoverySucceeded(func(RecoverySucceededEvent) {
		mu.Lock()
		order = append(order, "model")
		mu.Unlock()
	})

	forceRecovery(t, rc)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	}, 10*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"connection", "model"}, order)
}

func TestConsumerCountPreservedAcrossRecovery(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig())
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	name, err := ch.QueueDeclare(Queue{Name: "goamqp-test-many-consumers"})
	require.NoError(t, err)
	defer func() { _ = ch.QueueDelete(name, false, false) }()

	const consumerCount = 8
	tags := make([]string, 0, consumerCount)
	for i := 0; i < consumerCount; i++ {
		tag, err := ch.Consume(name, ConsumeOptions{AutoAck: true}, func(Delivery) {})
		require.NoError(t, err)
		tags = append(tags, tag)
	}
	_, _, _, consumers := rc.Recorder().Counts()
	require.Equal(t, consumerCount, consumers)

	recovered := make(chan RecoverySucceededEvent, 1)
	rc.OnRecoverySucceeded(func(e RecoverySucceededEvent) { recovered <- e })

	forceRecovery(t, rc)
	awaitRecovery(t, recovered)

	_, _, _, consumers = rc.Recorder().Counts()
	assert.Equal(t, consumerCount, consumers)

	require.NoError(t, ch.Cancel(tags[0]))
	_, _, _, consumers = rc.Recorder().Counts()
	assert.Equal(t, consumerCount-1, consumers, "cancelling after recovery removes exactly the cancelled consumer")
}

func TestCloseDuringRecoveryIsTerminal(t *testing.T) {
	brokerAvailable(t)

	interval := 100 * time.Millisecond
	rc, err := Connect(localConfig(WithNetworkRecoveryInterval(interval)))
	require.NoError(t, err)

	forceRecovery(t, rc)
	_ = rc.Close("user close during recovery")

	assert.Equal(t, RecoveryUserClosed, rc.State())
	assert.False(t, rc.IsOpen())

	_, err = rc.OpenChannel()
	require.Error(t, err)
	assert.True(t, assertErrKind(err, KindAlreadyClosed))

	var lateErrors int32
	rc.OnRecoveryError(func(ConnectionRecoveryErrorEvent) { atomic.AddInt32(&lateErrors, 1) })
	var lateSuccesses int32
	rc.OnRecoverySucceeded(func(RecoverySucceededEvent) { atomic.AddInt32(&lateSuccesses, 1) })

	time.Sleep(10 * interval)
	assert.Zero(t, atomic.LoadInt32(&lateErrors), "no recovery attempt may run after Close")
	assert.Zero(t, atomic.LoadInt32(&lateSuccesses))
	assert.Equal(t, RecoveryUserClosed, rc.State())
}

func TestTopologyRecoveryDisabledLeavesGhosts(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig(WithTopologyRecovery(false)))
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	// Exclusive, so the broker drops it the moment the old transport dies.
	qname, err := ch.QueueDeclare(Queue{Exclusive: true})
	require.NoError(t, err)

	recovered := make(chan RecoverySucceededEvent, 1)
	rc.OnRecoverySucceeded(func(e RecoverySucceededEvent) { recovered <- e })

	forceRecovery(t, rc)
	awaitRecovery(t, recovered)

	// The channel comes back open, but what it had declared does not: that
	// is the documented contract when topology recovery is off.
	assert.Equal(t, StateOpen, ch.State())
	err = ch.QueueDeclarePassive(qname)
	require.Error(t, err, "the queue must be gone broker-side")

	_, queues, _, _ := rc.Recorder().Counts()
	assert.Equal(t, 1, queues, "the recorder still remembers what was declared")
}
