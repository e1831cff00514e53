package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedSetPreservesInsertionOrder(t *testing.T) {
	s := newOrderedSet[string, int]()
	s.put("c", 3)
	s.put("a", 1)
	s.put("b", 2)

	assert.Equal(t, []int{3, 1, 2}, s.values())
}

func TestOrderedSetOverwriteKeepsPosition(t *testing.T) {
	s := newOrderedSet[string, int]()
	s.put("a", 1)
	s.put("b", 2)
	s.put("a", 100)

	assert.Equal(t, []int{100, 2}, s.values())
}

func TestOrderedSetDelete(t *testing.T) {
	s := newOrderedSet[string, int]()
	s.put("a", 1)
	s.put("b", 2)
	s.put("c", 3)

	v, ok := s.delete("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{1, 3}, s.values())

	_, ok = s.delete("b")
	assert.False(t, ok)
}

func TestOrderedSetRenamePreservesPosition(t *testing.T) {
	s := newOrderedSet[string, int]()
	s.put("a", 1)
	s.put("b", 2)
	s.put("c", 3)

	v, ok := s.rename("b", "z")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{1, 2, 3}, s.values())

	_, present := s.get("b")
	assert.False(t, present)
	got, present := s.get("z")
	assert.True(t, present)
	assert.Equal(t, 2, got)
}

func TestOrderedSetRenameMissingIsNoop(t *testing.T) {
	s := newOrderedSet[string, int]()
	s.put("a", 1)

	_, ok := s.rename("missing", "z")
	assert.False(t, ok)
	assert.Equal(t, 1, s.len())
}
