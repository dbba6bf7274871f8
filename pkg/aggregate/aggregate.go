package aggregate

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/query"

	"golang.org/x/sync/errgroup"
)

// Aggregator runs the same query against several backends at once.
type Aggregator struct {
	engine *query.Engine
}

// NewAggregator creates an Aggregator on top of engine.
func NewAggregator(engine *query.Engine) *Aggregator {
	return &Aggregator{engine: engine}
}

// Aggregate runs intent over text once per backend, concurrently, and
// collects one answer per backend. A backend that fails is kept with a
// placeholder answer so the key set always equals the requested backends.
//
// The returned degradation lists every failed unit across all backends and
// is nil when everything succeeded.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	text string,
	intent query.Intent,
	backends []ai.Backend,
) (common.CandidateAnswer, *common.PartialDegradation, error) {
	if len(backends) == 0 {
		return nil, nil, common.InvalidConfiguration("aggregate needs at least one backend")
	}
	seen := make(map[common.BackendID]struct{}, len(backends))
	for _, b := range backends {
		if b == nil {
			return nil, nil, common.InvalidConfiguration("aggregate got a nil backend")
		}
		if _, ok := seen[b.ID()]; ok {
			return nil, nil, common.InvalidConfiguration("backend %s requested twice", b.ID())
		}
		seen[b.ID()] = struct{}{}
	}

	start := time.Now()
	results := make([]query.Result, len(backends))

	g, gCtx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			res, err := a.engine.Query(gCtx, text, intent, b)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	answers := make(common.CandidateAnswer, len(backends))
	var degradation *common.PartialDegradation
	for i, b := range backends {
		answers[b.ID()] = results[i].Answer()
		degradation = common.Merge(degradation, results[i].Degradation)
	}

	logger.Info("[Aggregate] finished",
		"backends", len(backends),
		"intent", intent.String(),
		"degraded", degradation != nil,
		"duration", time.Since(start),
	)

	return answers, degradation, nil
}

// Reporters returns the backends that track token usage.
func Reporters(backends []ai.Backend) map[common.BackendID]ai.MetricsReporter {
	out := make(map[common.BackendID]ai.MetricsReporter)
	for _, b := range backends {
		if r, ok := b.(ai.MetricsReporter); ok {
			out[b.ID()] = r
		}
	}
	return out
}

// LogMetrics logs a snapshot of the usage metrics of every reporting
// backend. Backends are shared across requests, so the numbers are process
// wide totals, not the usage of the current request.
func LogMetrics(backends []ai.Backend) {
	for id, r := range Reporters(backends) {
		m := r.GetMetrics()
		if m.Requests == 0 {
			continue
		}
		logger.Info("[Aggregate] backend metrics (process total)",
			"backend", id,
			"requests", m.Requests,
			"input_tokens", m.InputTokens,
			"output_tokens", m.OutputTokens,
			"duration_ms", m.DurationMs,
			"tokens_per_second", m.TokenPerSecond,
		)
	}
}
