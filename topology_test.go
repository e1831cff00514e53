package amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
exchanges:
- name: sample.tasks
  kind: direct
  durable: true
- name: sample.notifications
  kind: fanout
queues:
- name: tasks
  durable: true
- name: notifications
bindings:
- exchange: sample.tasks
  queue: tasks
  routing_key: work
- exchange: sample.notifications
  queue: notifications
`

func TestParseTopology(t *testing.T) {
	tp, err := ParseTopology([]byte(sampleTopology))
	require.NoError(t, err)

	require.Len(t, tp.Exchanges, 2)
	assert.Equal(t, "sample.tasks", tp.Exchanges[0].Name)
	assert.Equal(t, "direct", tp.Exchanges[0].Kind)
	assert.True(t, tp.Exchanges[0].Durable)

	require.Len(t, tp.Queues, 2)
	assert.True(t, tp.Queues[0].Durable)

	require.Len(t, tp.Bindings, 2)
	assert.Equal(t, "work", tp.Bindings[0].RoutingKey)
}

func TestParseTopologyRejectsMalformedDocument(t *testing.T) {
	_, err := ParseTopology([]byte("exchanges: {not: [a, list"))
	require.Error(t, err)
}

func TestDeclareTopologyRecordsEverything(t *testing.T) {
	brokerAvailable(t)

	rc, err := Connect(localConfig())
	require.NoError(t, err)
	defer func() { _ = rc.Close("test done") }()

	ch, err := rc.OpenChannel()
	require.NoError(t, err)

	tp := Topology{
		Exchanges: []Exchange{{Name: "goamqp-test-topology-ex", Kind: "direct"}},
		Queues:    []Queue{{Name: "goamqp-test-topology-q"}, {Exclusive: true, AutoDelete: true}},
		Bindings:  []Binding{{Exchange: "goamqp-test-topology-ex", Queue: "goamqp-test-topology-q", RoutingKey: "rk"}},
	}
	require.NoError(t, ch.DeclareTopology(context.Background(), tp))
	defer func() {
		_ = ch.QueueDelete("goamqp-test-topology-q", false, false)
		_ = ch.ExchangeDelete("goamqp-test-topology-ex", false)
	}()

	exchanges, queues, bindings, _ := rc.Recorder().Counts()
	assert.Equal(t, 1, exchanges)
	assert.Equal(t, 2, queues)
	assert.Equal(t, 1, bindings)

	_, recordedQueues, _, _ := rc.Recorder().Snapshot()
	var serverNamed int
	for _, q := range recordedQueues {
		if q.IsServerNamed {
			serverNamed++
			assert.NotEmpty(t, q.Name, "the broker-assigned name is what gets recorded")
		}
	}
	assert.Equal(t, 1, serverNamed)
}
