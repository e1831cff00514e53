package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapsRootCause(t *testing.T) {
	base := errors.New("boom")
	err := New(base)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.NotEmpty(t, e.StackTrace())
}

func TestNewIsIdempotentOnError(t *testing.T) {
	first := New(errors.New("boom")).(*Error)
	second := New(first)
	assert.Same(t, first, second)
}

func TestWithStackPreservesChain(t *testing.T) {
	base := errors.New("root")
	wrapped := WithStack(base)
	assert.True(t, errors.Is(wrapped, base))
}

func TestRecoverInvokesCallback(t *testing.T) {
	var caught error
	func() {
		defer Recover(func(err error) { caught = err })
		panic("kaboom")
	}()
	require.Error(t, caught)
	assert.Contains(t, caught.Error(), "kaboom")
}

func TestRecoverNoPanicIsNoop(t *testing.T) {
	called := false
	func() {
		defer Recover(func(err error) { called = true })
	}()
	assert.False(t, called)
}
