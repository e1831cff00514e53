package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTableAllocateLowestFree(t *testing.T) {
	table := newSessionTable(4)

	s1 := &Session{}
	s2 := &Session{}
	s3 := &Session{}

	require.NoError(t, table.allocate(s1))
	require.NoError(t, table.allocate(s2))
	assert.Equal(t, uint16(1), s1.channelNumber)
	assert.Equal(t, uint16(2), s2.channelNumber)

	table.free(s1.channelNumber)
	require.NoError(t, table.allocate(s3))
	assert.Equal(t, uint16(1), s3.channelNumber, "freed slot should be reused before growing")
}

func TestSessionTableExhausted(t *testing.T) {
	table := newSessionTable(2)
	require.NoError(t, table.allocate(&Session{}))
	require.NoError(t, table.allocate(&Session{}))

	err := table.allocate(&Session{})
	require.Error(t, err)
	var amqpErr *Error
	require.ErrorAs(t, err, &amqpErr)
	assert.Equal(t, KindChannelExhausted, amqpErr.Kind)
}

func TestSessionTableAllocateNumber(t *testing.T) {
	table := newSessionTable(8)
	s := &Session{}
	require.NoError(t, table.allocateNumber(5, s))
	assert.Equal(t, uint16(5), s.channelNumber)

	got, ok := table.lookup(5)
	require.True(t, ok)
	assert.Same(t, s, got)

	err := table.allocateNumber(5, &Session{})
	require.Error(t, err)

	err = table.allocateNumber(0, &Session{})
	require.Error(t, err)
}

func TestSessionTableFreeAndAll(t *testing.T) {
	table := newSessionTable(4)
	require.NoError(t, table.allocate(&Session{}))
	require.NoError(t, table.allocate(&Session{}))
	assert.Equal(t, 2, table.len())

	all := table.all()
	assert.Len(t, all, 2)

	table.free(1)
	assert.Equal(t, 1, table.len())
	_, ok := table.lookup(1)
	assert.False(t, ok)
}
