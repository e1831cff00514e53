package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueOptionsAsArguments(t *testing.T) {
	priority := uint8(4)
	opts := QueueOptions{
		MessageTTLMillis: 15000,
		ExpiresMillis:    3600000,
		MaxLength:        500,
		MaxLengthBytes:   1024 * 100,
		DLExchange:       "sample.dead",
		DLRoutingKey:     "dead",
		MaxPriority:      &priority,
		LazyMode:         true,
		Overflow:         OverflowRejectDL,
	}

	args := opts.AsArguments()
	assert.Equal(t, int64(15000), args["x-message-ttl"])
	assert.Equal(t, int64(3600000), args["x-expires"])
	assert.Equal(t, uint(500), args["x-max-length"])
	assert.Equal(t, uint(1024*100), args["x-max-length-bytes"])
	assert.Equal(t, "sample.dead", args["x-dead-letter-exchange"])
	assert.Equal(t, "dead", args["x-dead-letter-routing-key"])
	assert.Equal(t, uint8(4), args["x-max-priority"])
	assert.Equal(t, "lazy", args["x-queue-mode"])
	assert.Equal(t, "reject-publish-dlx", args["x-overflow"])
}

func TestQueueOptionsAsArgumentsOmitsZeroValues(t *testing.T) {
	opts := QueueOptions{}
	assert.Empty(t, opts.AsArguments())
}

func TestConnectionStateString(t *testing.T) {
	for _, s := range []ConnectionState{StateOpening, StateOpen, StateQuiescing, StateClosed} {
		assert.NotEqual(t, "unknown", s.String())
	}
}
