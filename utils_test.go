package amqp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenConsumerTagIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tag := genConsumerTag()
		assert.True(t, strings.HasPrefix(tag, "ctag-"))
		_, dup := seen[tag]
		assert.False(t, dup, "generated consumer tags must not collide")
		seen[tag] = struct{}{}
	}
}

func TestIsServerNamedQueue(t *testing.T) {
	assert.True(t, isServerNamedQueue(""))
	assert.False(t, isServerNamedQueue("q1"))
	assert.False(t, isServerNamedQueue("amq.gen-abc"))
}
