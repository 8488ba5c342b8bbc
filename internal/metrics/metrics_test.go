package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Op("login", ResultOK)
	m.Op("login", ResultOK)
	m.Op("login", "unauthenticated")
	m.Purged(3)
	m.Purged(0)
	m.HTTP("POST", "/auth/login", 200, 10*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("login", ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("login", "unauthenticated")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.refreshPurged))
	require.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.Op("login", ResultOK)
		m.HTTP("GET", "/", 200, time.Second)
		m.Purged(1)
	})
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
