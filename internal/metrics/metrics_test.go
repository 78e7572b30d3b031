package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetSessions(3)
	m.EventIn("circleMessage")
	m.EventIn("circleMessage")
	m.EventError("validation")
	m.PushDropped()
	m.ObserveHTTP("GET", "/api/v1/chats", 200, 15*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsIn.WithLabelValues("circleMessage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventErrors.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedPushes))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetSessions(1)
		m.EventIn("joinRoom")
		m.EventOut("joinedCircle")
		m.EventError("transient")
		m.PushDropped()
		m.MessageStored("private")
		m.SessionExpired()
		m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
	})
}
