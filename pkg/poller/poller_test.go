package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFiresAndRepeats(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)
	defer p.Close()
	p.SetTimeout(5)

	fired := make(chan struct{}, 10)
	p.AddTimer(10, true, func(fd int, events Event, arg any) {
		require.Equal(t, -1, fd)
		require.Equal(t, EventTimer, events)
		fired <- struct{}{}
	}, nil)

	go p.RunLoop()
	defer p.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire in time")
		}
	}
}

func TestSocketpairReadWriteReadiness(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)
	defer p.Close()

	fds, err := socketpair()
	require.NoError(t, err)

	readFired := make(chan Event, 1)
	p.SetFDReadCallback(fds[0], func(fd int, events Event, arg any) {
		readFired <- events
	}, nil)
	require.NoError(t, p.AddFD(fds[0], EventRead))

	go p.RunLoop()
	defer p.Stop()

	_, err = writeFD(fds[1], []byte("hi"))
	require.NoError(t, err)

	select {
	case ev := <-readFired:
		require.NotZero(t, ev&EventRead)
	case <-time.After(time.Second):
		t.Fatal("read readiness not observed")
	}
}
