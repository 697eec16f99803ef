package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pingReq struct{ Val int }
type pingRsp struct{ Val int }

func (p pingReq) URI() URI { return 1 }
func (p pingRsp) URI() URI { return 2 }

type sameURI struct{}

func (sameURI) URI() URI { return 7 }

func TestRegisterHandlerRoutesToHandler(t *testing.T) {
	d := NewDispatcher()
	var got pingReq
	RegisterHandler(d,
		func() pingReq { return pingReq{} },
		func() pingRsp { return pingRsp{} },
		func(req pingReq, rsp pingRsp) {
			got = req
		},
	)

	require.Equal(t, URI(2), d.GetRspURI(URI(1)))

	msg, ok := d.NewMessage(URI(1))
	require.True(t, ok)
	req := msg.(pingReq)
	req.Val = 42

	rspMsg, ok := d.NewMessage(URI(2))
	require.True(t, ok)
	rsp := rspMsg.(pingRsp)

	ok = d.OnServerRequest(URI(1), req, rsp)
	require.True(t, ok)
	require.Equal(t, 42, got.Val)
}

func TestRegisterAsyncInvokedOnMatchingURI(t *testing.T) {
	d := NewDispatcher()
	called := false
	RegisterAsync(d, func() pingRsp { return pingRsp{} }, func(rsp pingRsp) {
		called = true
	})

	require.Equal(t, URI(2), d.GetRspURI(URI(2)))
	ok := d.OnAsyncResponse(URI(2), pingRsp{Val: 1})
	require.True(t, ok)
	require.True(t, called)
}

func TestRegisterHandlerPanicsOnEqualURI(t *testing.T) {
	d := NewDispatcher()
	require.Panics(t, func() {
		RegisterHandler(d,
			func() sameURI { return sameURI{} },
			func() sameURI { return sameURI{} },
			func(req sameURI, rsp sameURI) {},
		)
	})
}

func TestOnServerRequestUnknownURIReturnsFalse(t *testing.T) {
	d := NewDispatcher()
	require.False(t, d.OnServerRequest(URI(99), pingReq{}, pingRsp{}))
}

func TestNewMessageUnknownURI(t *testing.T) {
	d := NewDispatcher()
	_, ok := d.NewMessage(URI(123))
	require.False(t, ok)
}
