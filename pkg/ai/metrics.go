package ai

import (
	"math"
	"sync"
)

// MetricsRecorder accumulates token usage and timing of a backend. It is
// embedded by the adapters and safe for concurrent use.
type MetricsRecorder struct {
	metricsLock sync.Mutex
	metrics     ModelMetrics
}

// GetMetrics returns the token usage and timing accumulated since the
// backend was created.
func (r *MetricsRecorder) GetMetrics() ModelMetrics {
	r.metricsLock.Lock()
	defer r.metricsLock.Unlock()
	return r.metrics
}

// Record adds the metrics of a single request.
func (r *MetricsRecorder) Record(m ModelMetrics) {
	r.metricsLock.Lock()
	defer r.metricsLock.Unlock()

	r.metrics.Requests++
	r.metrics.InputTokens += m.InputTokens
	r.metrics.OutputTokens += m.OutputTokens
	r.metrics.TotalTokens += m.TotalTokens
	r.metrics.DurationMs += m.DurationMs

	if r.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(r.metrics.TotalTokens) * 1000.0) / float64(r.metrics.DurationMs)
		r.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
