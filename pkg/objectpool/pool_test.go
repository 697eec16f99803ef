package objectpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	n int
}

func TestGetReturnsPreallocatedThenManufactures(t *testing.T) {
	built := 0
	p := New(2, func() *widget {
		built++
		return &widget{n: built}
	})
	require.Equal(t, 2, built)
	require.Equal(t, 2, p.Size())

	a := p.Get()
	b := p.Get()
	require.Equal(t, 0, p.Size())

	c := p.Get()
	require.Equal(t, 3, built)
	require.NotNil(t, c)

	p.Put(a)
	p.Put(b)
	require.Equal(t, 2, p.Size())
}

func TestPutThenGetReusesSameObject(t *testing.T) {
	p := New(0, func() *widget { return &widget{} })
	obj := p.Get()
	obj.n = 42
	p.Put(obj)
	require.Equal(t, 1, p.Size())

	got := p.Get()
	require.Same(t, obj, got)
	require.Equal(t, 42, got.n)
}
