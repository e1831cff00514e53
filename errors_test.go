package amqp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	err := newErrorf(KindSoftProtocolException, errors.New("precondition failed"), "queue %q", "q1")
	assert.True(t, errors.Is(err, ErrSoftProtocolException))
	assert.False(t, errors.Is(err, ErrHardProtocolException))
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := newErrorf(KindNetworkError, cause, "dial failed")
	assert.ErrorIs(t, err, cause)
}

func TestErrorIsThroughWrapStack(t *testing.T) {
	err := wrapStack(newError(KindChannelExhausted, "no free channel"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannelExhausted))
}

func TestShutdownReasonError(t *testing.T) {
	r := &ShutdownReason{Initiator: InitiatorPeer, ReplyCode: 404, ReplyText: "NOT_FOUND"}
	assert.Contains(t, r.Error(), "404")
	assert.Contains(t, r.Error(), "NOT_FOUND")

	var nilReason *ShutdownReason
	assert.Equal(t, "<no reason>", nilReason.Error())
}

func TestEndOfStreamReason(t *testing.T) {
	r := endOfStreamReason(nil)
	assert.Equal(t, InitiatorLibrary, r.Initiator)
	assert.Equal(t, uint16(0), r.ReplyCode)
	assert.Equal(t, "End of stream", r.ReplyText)
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []Kind{
		KindAuthenticationFailure, KindProtocolVersionMismatch, KindNetworkError,
		KindHardProtocolException, KindSoftProtocolException, KindAlreadyClosed,
		KindTimeout, KindChannelExhausted, KindObjectDisposed,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "unknown", k.String())
	}
}
