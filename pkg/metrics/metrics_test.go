package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordAcceptAndTeardown(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAccept()
	r.RecordAccept()
	require.Equal(t, float64(2), testutil.ToFloat64(r.ConnectionsAccepted))
	require.Equal(t, float64(2), testutil.ToFloat64(r.ConnectionsActive))

	r.RecordTeardown()
	require.Equal(t, float64(1), testutil.ToFloat64(r.ConnectionsActive))
}

func TestRecordDispatchLabelsByURI(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordDispatch(200<<8|101, 0.01)
	require.Equal(t, float64(1), testutil.ToFloat64(r.FramesDispatched.WithLabelValues(uriLabel(200<<8|101))))
}

func TestRecordDispatchErrorLabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordDispatchError("decode")
	r.RecordDispatchError("decode")
	r.RecordDispatchError("timeout")

	require.Equal(t, float64(2), testutil.ToFloat64(r.DispatchErrors.WithLabelValues("decode")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.DispatchErrors.WithLabelValues("timeout")))
}

func TestRecordIdleEviction(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordIdleEviction()
	require.Equal(t, float64(1), testutil.ToFloat64(r.IdleEvictions))
}

func TestNilRecorderMethodsAreNoops(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.RecordAccept()
		r.RecordTeardown()
		r.RecordDispatch(1, 0.1)
		r.RecordDispatchError("x")
		r.RecordIdleEviction()
	})
}

func TestURILabelFormatsAsZeroPaddedHex(t *testing.T) {
	require.Equal(t, "0x0000c865", uriLabel(200<<8|101))
}
