package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineBuffer_RingBehavior(t *testing.T) {
	buf := NewLineBuffer(3)
	require.Empty(t, buf.Lines())

	buf.Write("line 1")
	buf.Write("line 2")
	require.Equal(t, []string{"line 1", "line 2"}, buf.Lines())

	buf.Write("line 3")
	buf.Write("line 4") // overwrites "line 1"
	require.Equal(t, 3, buf.Len())
	require.Equal(t, []string{"line 2", "line 3", "line 4"}, buf.Lines())
	require.Equal(t, "line 2\nline 3\nline 4", buf.String())
}

func TestLineBuffer_MinimumCapacity(t *testing.T) {
	buf := NewLineBuffer(0)
	buf.Write("a")
	buf.Write("b")
	require.Equal(t, []string{"b"}, buf.Lines())
}
