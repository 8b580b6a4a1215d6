package quantum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWires(t *testing.T) {
	w := NewWires("wire_forget", 3)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []string{"wire_forget_0", "wire_forget_1", "wire_forget_2"}, w.Names())

	i, err := w.Index("wire_forget_2")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = w.Index("wire_update_0")
	assert.ErrorIs(t, err, ErrUnknownWire)
}

func TestWiresOfRejectsDuplicates(t *testing.T) {
	_, err := WiresOf("a", "b", "a")
	assert.Error(t, err)
}

func TestWiresDisjoint(t *testing.T) {
	forget := NewWires("wire_forget", 4)
	inputs := NewWires("wire_inputs", 4)
	assert.True(t, forget.Disjoint(inputs))
	assert.False(t, forget.Disjoint(NewWires("wire_forget", 1)))
}
