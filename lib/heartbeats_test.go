package lib

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/artie-labs/tenantsync/lib/telemetry/metrics"
)

type countingMetrics struct {
	metrics.NullMetricsProvider
	gauges atomic.Int32
	name   atomic.Value
}

func (c *countingMetrics) Gauge(name string, _ float64, _ map[string]string) {
	c.name.Store(name)
	c.gauges.Add(1)
}

func TestHeartbeats_BeatsAfterInitialDelay(t *testing.T) {
	metricsClient := &countingMetrics{}
	stop := NewHeartbeats(20*time.Millisecond, 20*time.Millisecond, "load", map[string]string{"table": "DIM_PERSONNEL"}, metricsClient).Start()

	assert.Eventually(t, func() bool { return metricsClient.gauges.Load() >= 2 }, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, "load.running_seconds", metricsClient.name.Load())
}

func TestHeartbeats_StopsWhenStopped(t *testing.T) {
	metricsClient := &countingMetrics{}
	stop := NewHeartbeats(5*time.Millisecond, 5*time.Millisecond, "load", nil, metricsClient).Start()
	assert.Eventually(t, func() bool { return metricsClient.gauges.Load() >= 1 }, time.Second, time.Millisecond)

	stop()
	before := metricsClient.gauges.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, metricsClient.gauges.Load())
}

func TestHeartbeats_NothingBeforeInitialDelay(t *testing.T) {
	metricsClient := &countingMetrics{}
	stop := NewHeartbeats(time.Hour, time.Millisecond, "load", nil, metricsClient).Start()
	time.Sleep(20 * time.Millisecond)
	stop()
	assert.Zero(t, metricsClient.gauges.Load())
}
