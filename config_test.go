package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, uint16(2047), c.RequestedChannelMax)
	assert.Equal(t, 10*time.Second, c.RequestedHeartbeat)
	assert.True(t, c.TopologyRecovery)
	assert.False(t, c.BlockOnRecovery)
	assert.Equal(t, int64(1), c.ConsumerDispatchConcurrency)
	assert.NotNil(t, c.Logger)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := NewConfig(
		WithEndpoints("amqp://localhost:5672/", "amqp://backup:5672/"),
		WithClientProvidedName("svc"),
		WithRequestedChannelMax(10),
		WithNetworkRecoveryInterval(2*time.Second),
		WithTopologyRecovery(false),
		WithBlockOnRecovery(true),
		WithConsumerDispatchConcurrency(8),
		WithMaxRecoveryAttempts(5),
	)

	assert.Equal(t, []string{"amqp://localhost:5672/", "amqp://backup:5672/"}, c.Endpoints)
	assert.Equal(t, "svc", c.ClientProvidedName)
	assert.Equal(t, uint16(10), c.RequestedChannelMax)
	assert.Equal(t, 2*time.Second, c.NetworkRecoveryInterval)
	assert.False(t, c.TopologyRecovery)
	assert.True(t, c.BlockOnRecovery)
	assert.Equal(t, int64(8), c.ConsumerDispatchConcurrency)
	assert.Equal(t, 5, c.MaxRecoveryAttempts)
}
