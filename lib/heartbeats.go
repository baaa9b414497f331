package lib

import (
	"log/slog"
	"time"

	"github.com/artie-labs/tenantsync/lib/telemetry/metrics/base"
)

// Heartbeats reports that a long running operation is still going.
type Heartbeats struct {
	startTime time.Time
	// [initialDelay] - The time to wait before the first heartbeat.
	initialDelay time.Duration
	// [interval] - The time between two heartbeats.
	interval time.Duration

	metric  string
	tags    map[string]string
	metrics base.Client
}

func NewHeartbeats(initialDelay, interval time.Duration, metric string, tags map[string]string, metricsClient base.Client) *Heartbeats {
	return &Heartbeats{
		initialDelay: initialDelay,
		interval:     interval,
		metric:       metric,
		tags:         tags,
		metrics:      metricsClient,
	}
}

// Start begins sending heartbeats in the background, the returned function stops them and waits for the goroutine to
// exit.
func (h *Heartbeats) Start() func() {
	h.startTime = time.Now()
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		h.run(done)
	}()

	return func() {
		close(done)
		<-exited
	}
}

func (h *Heartbeats) run(done <-chan struct{}) {
	timer := time.NewTimer(h.initialDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-done:
		return
	}

	h.beat()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeats) beat() {
	elapsed := time.Since(h.startTime)
	slog.Info("Still running", slog.String("metric", h.metric), slog.Any("tags", h.tags), slog.Duration("duration", elapsed))
	h.metrics.Gauge(h.metric+".running_seconds", elapsed.Seconds(), h.tags)
}
