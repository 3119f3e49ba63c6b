package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("answered", 2*time.Second)
	m.ObserveTurn("degraded", time.Second)
	m.ObserveTurn("answered", time.Second)
	m.IncUpstreamError("complete")
	m.AddSummaries(3)
	m.SetConnections(5)
	m.SetRooms(2)
	m.IncDroppedFrame()
	m.IncDomainEvent("SESSION_CREATED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamErrors.WithLabelValues("complete")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.summaries))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedFrames))
	assert.Equal(t, 1, testutil.CollectAndCount(m.turnDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("answered", time.Second)
		m.IncUpstreamError("complete")
		m.AddSummaries(1)
		m.SetConnections(1)
		m.SetRooms(1)
		m.IncDroppedFrame()
		m.IncDomainEvent("X")
	})
}
