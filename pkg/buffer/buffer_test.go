package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	b := New(DefaultSize)
	chunks := [][]byte{[]byte("hello"), []byte("world"), []byte("!")}
	for _, c := range chunks {
		require.True(t, b.In(c))
	}
	for _, c := range chunks {
		out := make([]byte, len(c))
		require.True(t, b.Out(out))
		require.Equal(t, c, out)
	}
	require.Zero(t, b.Size())
}

func TestGrowthDoublesAndStaysPowerOfTwo(t *testing.T) {
	b := New(MinSize)
	payload := make([]byte, MinSize+1)
	_, ok := b.AppendAt(uint32(len(payload)))
	require.True(t, ok)
	require.GreaterOrEqual(t, b.Capacity()-b.Size(), uint32(0))
	require.True(t, isPowerOfTwo(b.Capacity()))
}

func TestGrowthFailureAboveMax(t *testing.T) {
	b := New(MaxSize)
	// fill to capacity
	_, ok := b.AppendAt(MaxSize)
	require.True(t, ok)
	_, ok = b.AppendAt(1)
	require.False(t, ok)
}

func TestShrinkHysteresis(t *testing.T) {
	b := New(MinSize)
	big := make([]byte, 1024*1024)
	require.True(t, b.In(big))
	require.Greater(t, b.Capacity(), uint32(DefaultSize))

	// consume all but a sliver so size*4 < capacity
	out := make([]byte, len(big)-100)
	require.True(t, b.Out(out))
	require.Equal(t, uint32(100), b.Size())
	require.Equal(t, uint32(DefaultSize), b.Capacity())
}

func TestPeekDoesNotCompactOrShrink(t *testing.T) {
	b := New(DefaultSize)
	require.True(t, b.In([]byte("abcdXYZ")))
	dst := make([]byte, 4)
	require.True(t, b.Peek(dst))
	require.Equal(t, []byte("abcd"), dst)
	// size is untouched by Peek, unlike Out
	require.Equal(t, uint32(7), b.Size())
}

func TestPeekBeyondSizeFails(t *testing.T) {
	b := New(DefaultSize)
	require.True(t, b.In([]byte("ab")))
	require.False(t, b.Peek(make([]byte, 10)))
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}
