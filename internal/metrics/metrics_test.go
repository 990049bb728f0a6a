package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetConnectionStateIsExclusive(t *testing.T) {
	SetConnectionState("connected")
	assert.Equal(t, 1.0, testutil.ToFloat64(connectionState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(connectionState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(connectionState.WithLabelValues("disconnected")))

	SetConnectionState("disconnected")
	assert.Equal(t, 0.0, testutil.ToFloat64(connectionState.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(connectionState.WithLabelValues("disconnected")))
}

func TestObserveDropDefaultsReason(t *testing.T) {
	before := testutil.ToFloat64(eventsDropped.WithLabelValues("unknown"))
	ObserveDrop("")
	assert.Equal(t, before+1, testutil.ToFloat64(eventsDropped.WithLabelValues("unknown")))
}

func TestObserveSend(t *testing.T) {
	before := testutil.ToFloat64(sendTotal.WithLabelValues("failed"))
	ObserveSend(false)
	assert.Equal(t, before+1, testutil.ToFloat64(sendTotal.WithLabelValues("failed")))
}
