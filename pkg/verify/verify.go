package verify

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// PairKey returns the canonical key of an unordered backend pair.
func PairKey(a, b common.BackendID) string {
	lo, hi := a, b
	if cmp.Less(hi, lo) {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%s vs %s", lo, hi)
}

// Report holds pairwise agreement between candidate answers.
type Report struct {
	Similarity  map[string]float64         `json:"similarity"`
	Diffs       map[string]string          `json:"diffs"`
	Degradation *common.PartialDegradation `json:"-"`
}

// Verifier scores candidate answers against each other.
type Verifier struct {
	embedder    ai.Embedder
	maxParallel int
	timeout     time.Duration
}

// NewVerifierParams configures a Verifier.
type NewVerifierParams struct {
	Embedder    ai.Embedder
	MaxParallel int
	Timeout     time.Duration
}

// NewVerifier creates a Verifier.
func NewVerifier(params NewVerifierParams) (*Verifier, error) {
	if params.Embedder == nil {
		return nil, common.InvalidConfiguration("verifier needs an embedder")
	}
	if params.MaxParallel <= 0 {
		params.MaxParallel = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Minute
	}
	return &Verifier{
		embedder:    params.Embedder,
		maxParallel: params.MaxParallel,
		timeout:     params.Timeout,
	}, nil
}

// Verify computes semantic similarity and a word diff for every unordered
// pair of answers. Every distinct text is embedded once. Pairs involving a
// text that could not be embedded are left out of Similarity and the report
// is degraded; their diffs are still produced.
func (v *Verifier) Verify(ctx context.Context, answers map[common.BackendID]string) (Report, error) {
	ids := slices.Sorted(maps.Keys(answers))

	vectors, degradation, err := v.embedAll(ctx, answers)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Similarity:  make(map[string]float64),
		Diffs:       make(map[string]string),
		Degradation: degradation,
	}
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			key := PairKey(a, b)
			ta, tb := answers[a], answers[b]
			report.Diffs[key] = WordDiff(ta, tb)

			if isBlank(ta) || isBlank(tb) {
				report.Similarity[key] = 0
				continue
			}
			va, okA := vectors[ta]
			vb, okB := vectors[tb]
			if !okA || !okB {
				continue
			}
			sim, err := Cosine(va, vb)
			if err != nil {
				report.Degradation = common.Degrade(report.Degradation, fmt.Errorf("%s: %w", key, err))
				continue
			}
			report.Similarity[key] = sim
		}
	}

	logger.Debug("[Verify] finished", "answers", len(ids), "pairs", len(report.Diffs), "degraded", report.Degradation != nil)
	return report, nil
}

func (v *Verifier) embedAll(
	ctx context.Context,
	answers map[common.BackendID]string,
) (map[string][]float32, *common.PartialDegradation, error) {
	texts := make([]string, 0, len(answers))
	seen := make(map[string]struct{}, len(answers))
	for _, t := range answers {
		if isBlank(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		texts = append(texts, t)
	}
	slices.Sort(texts)

	vectors := make([][]float32, len(texts))
	failures := make([]error, len(texts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxParallel)
	for i, t := range texts {
		g.Go(func() error {
			eCtx, cancel := context.WithTimeout(gCtx, v.timeout)
			defer cancel()

			vec, err := v.embedder.Embed(eCtx, t)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[i] = err
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make(map[string][]float32, len(texts))
	var degradation *common.PartialDegradation
	for i, t := range texts {
		if failures[i] != nil {
			degradation = common.Degrade(degradation, failures[i])
			continue
		}
		out[t] = vectors[i]
	}
	return out, degradation, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
