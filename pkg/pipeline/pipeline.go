package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/aggregate"
	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/grounding"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/query"
	"github.com/OFFIS-RIT/crosscheck/pkg/verify"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Response is the answer of a single backend.
type Response struct {
	RequestID string           `json:"request_id"`
	Backend   common.BackendID `json:"backend"`
	Answer    common.Answer    `json:"answer"`
	Chunks    int              `json:"chunks"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// Consensus is the result of asking several backends the same question.
// Similarity and Diffs only cover backends that produced a real answer.
type Consensus struct {
	RequestID  string                               `json:"request_id"`
	Question   string                               `json:"question"`
	Candidates common.CandidateAnswer               `json:"candidates"`
	Similarity map[string]float64                   `json:"similarity"`
	Diffs      map[string]string                    `json:"diffs"`
	Evidence   map[common.BackendID][]common.Triple `json:"evidence,omitempty"`
	Degraded   bool                                 `json:"degraded"`
	Warnings   []string                             `json:"warnings,omitempty"`
}

// Grounding lists the entities of a text and the facts stored about them.
type Grounding struct {
	RequestID  string              `json:"request_id"`
	Entities   common.EntitySet    `json:"entities"`
	Duplicates []ai.DuplicateGroup `json:"duplicates,omitempty"`
	Facts      []common.Triple     `json:"facts"`
}

// AnswerAllOptions tunes AnswerAll.
//
// Backends selects a subset of the configured backends; empty means all.
// WithEvidence attaches the stored facts each answer mentions.
type AnswerAllOptions struct {
	Backends     []common.BackendID
	WithEvidence bool
}

// Pipeline wires the components together behind the caller-facing
// operations. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	extractor  loader.Extractor
	engine     *query.Engine
	aggregator *aggregate.Aggregator
	verifier   *verify.Verifier
	entities   *grounding.Extractor
	retriever  *grounding.Retriever

	backends map[common.BackendID]ai.Backend
	order    []common.BackendID
}

// NewPipelineParams configures a Pipeline.
//
// Extractor, Engine, Backends and Verifier are required. Entities and
// Retriever enable Ground, Facts and evidence in AnswerAll.
type NewPipelineParams struct {
	Extractor loader.Extractor
	Engine    *query.Engine
	Backends  []ai.Backend
	Verifier  *verify.Verifier
	Entities  *grounding.Extractor
	Retriever *grounding.Retriever
}

// NewPipeline creates a Pipeline.
func NewPipeline(params NewPipelineParams) (*Pipeline, error) {
	if params.Engine == nil {
		return nil, common.InvalidConfiguration("pipeline needs a query engine")
	}
	if params.Verifier == nil {
		return nil, common.InvalidConfiguration("pipeline needs a verifier")
	}
	if len(params.Backends) == 0 {
		return nil, common.InvalidConfiguration("pipeline needs at least one backend")
	}

	p := &Pipeline{
		extractor:  params.Extractor,
		engine:     params.Engine,
		aggregator: aggregate.NewAggregator(params.Engine),
		verifier:   params.Verifier,
		entities:   params.Entities,
		retriever:  params.Retriever,
		backends:   make(map[common.BackendID]ai.Backend, len(params.Backends)),
	}
	for _, b := range params.Backends {
		if b == nil {
			return nil, common.InvalidConfiguration("pipeline got a nil backend")
		}
		if _, ok := p.backends[b.ID()]; ok {
			return nil, common.InvalidConfiguration("backend %s configured twice", b.ID())
		}
		p.backends[b.ID()] = b
		p.order = append(p.order, b.ID())
	}
	return p, nil
}

// Backends returns the configured backend ids in configuration order.
func (p *Pipeline) Backends() []common.BackendID {
	return slices.Clone(p.order)
}

// Load extracts the text of source.
func (p *Pipeline) Load(ctx context.Context, source string) (common.Document, error) {
	if p.extractor == nil {
		return common.Document{}, common.InvalidConfiguration("no text extractor configured")
	}
	return p.extractor.Extract(ctx, source)
}

// Summarize summarizes doc with a single backend.
func (p *Pipeline) Summarize(ctx context.Context, doc common.Document, backend common.BackendID) (Response, error) {
	return p.single(ctx, doc, query.Summarize(), backend)
}

// Answer answers question about doc with a single backend.
func (p *Pipeline) Answer(ctx context.Context, doc common.Document, question string, backend common.BackendID) (Response, error) {
	if strings.TrimSpace(question) == "" {
		return Response{}, common.InvalidConfiguration("question must not be empty")
	}
	return p.single(ctx, doc, query.AnswerQuestion(question), backend)
}

func (p *Pipeline) single(ctx context.Context, doc common.Document, intent query.Intent, id common.BackendID) (Response, error) {
	b, err := p.backend(id)
	if err != nil {
		return Response{}, err
	}

	requestID := newRequestID()
	start := time.Now()

	res, err := p.engine.Query(ctx, doc.Text, intent, b)
	if err != nil {
		return Response{}, err
	}
	aggregate.LogMetrics([]ai.Backend{b})

	logger.Info("[Pipeline] request finished",
		"request_id", requestID,
		"intent", intent.String(),
		"backend", id,
		"chunks", res.Chunks,
		"placeholder", res.Placeholder,
		"duration", time.Since(start),
	)

	return Response{
		RequestID: requestID,
		Backend:   id,
		Answer:    res.Answer(),
		Chunks:    res.Chunks,
		Warnings:  warnings(res.Degradation),
	}, nil
}

// AnswerAll answers question with several backends at once and reports how
// far their answers agree.
func (p *Pipeline) AnswerAll(
	ctx context.Context,
	doc common.Document,
	question string,
	opts AnswerAllOptions,
) (Consensus, error) {
	if strings.TrimSpace(question) == "" {
		return Consensus{}, common.InvalidConfiguration("question must not be empty")
	}

	ids := opts.Backends
	if len(ids) == 0 {
		ids = p.order
	}
	backends := make([]ai.Backend, 0, len(ids))
	for _, id := range ids {
		b, err := p.backend(id)
		if err != nil {
			return Consensus{}, err
		}
		backends = append(backends, b)
	}

	requestID := newRequestID()
	start := time.Now()

	candidates, degradation, err := p.aggregator.Aggregate(ctx, doc.Text, query.AnswerQuestion(question), backends)
	if err != nil {
		return Consensus{}, err
	}
	aggregate.LogMetrics(backends)

	successful := candidates.Successful()
	report, err := p.verifier.Verify(ctx, successful)
	if err != nil {
		return Consensus{}, err
	}
	degradation = common.Merge(degradation, report.Degradation)

	out := Consensus{
		RequestID:  requestID,
		Question:   question,
		Candidates: candidates,
		Similarity: report.Similarity,
		Diffs:      report.Diffs,
	}

	if opts.WithEvidence {
		evidence, err := p.evidence(ctx, question, successful)
		if err != nil {
			if ctx.Err() != nil {
				return Consensus{}, ctx.Err()
			}
			degradation = common.Degrade(degradation, fmt.Errorf("evidence: %w", err))
		} else {
			out.Evidence = evidence
		}
	}

	out.Degraded = candidates.Degraded() || degradation != nil
	out.Warnings = warnings(degradation)

	logger.Info("[Pipeline] answer-all finished",
		"request_id", requestID,
		"backends", len(backends),
		"answered", len(successful),
		"degraded", out.Degraded,
		"duration", time.Since(start),
	)
	return out, nil
}

// evidence extracts the entities of the question and all answers, looks up
// the stored facts and keeps per answer those it mentions.
func (p *Pipeline) evidence(
	ctx context.Context,
	question string,
	answers map[common.BackendID]string,
) (map[common.BackendID][]common.Triple, error) {
	if p.entities == nil || p.retriever == nil {
		return nil, common.InvalidConfiguration("grounding is not configured")
	}

	parts := []string{question}
	for _, id := range slices.Sorted(maps.Keys(answers)) {
		parts = append(parts, answers[id])
	}
	entities, err := p.entities.ExtractEntities(ctx, strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}
	facts, err := p.retriever.RetrieveFacts(ctx, entities)
	if err != nil {
		return nil, err
	}

	out := make(map[common.BackendID][]common.Triple, len(answers))
	for id, text := range answers {
		out[id] = grounding.Corroborate(text, facts)
	}
	return out, nil
}

// Ground extracts the entities of text and returns the stored facts about
// them.
func (p *Pipeline) Ground(ctx context.Context, text string) (Grounding, error) {
	if p.entities == nil || p.retriever == nil {
		return Grounding{}, common.InvalidConfiguration("grounding is not configured")
	}

	requestID := newRequestID()
	extraction, err := p.entities.Extract(ctx, text)
	if err != nil {
		return Grounding{}, err
	}
	facts, err := p.retriever.RetrieveFacts(ctx, extraction.Entities)
	if err != nil {
		return Grounding{}, err
	}

	logger.Info("[Pipeline] grounding finished",
		"request_id", requestID,
		"entities", len(extraction.Entities),
		"facts", len(facts),
	)
	return Grounding{
		RequestID:  requestID,
		Entities:   extraction.Entities,
		Duplicates: extraction.Duplicates,
		Facts:      facts,
	}, nil
}

// Facts returns the stored facts about entities without an extraction step.
func (p *Pipeline) Facts(ctx context.Context, entities []string) ([]common.Triple, error) {
	if p.retriever == nil {
		return nil, common.InvalidConfiguration("grounding is not configured")
	}
	return p.retriever.RetrieveFacts(ctx, grounding.DedupeEntities(entities))
}

func (p *Pipeline) backend(id common.BackendID) (ai.Backend, error) {
	b, ok := p.backends[id]
	if !ok {
		return nil, common.InvalidConfiguration("unknown backend %q", id)
	}
	return b, nil
}

func warnings(d *common.PartialDegradation) []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Failures))
	for _, f := range d.Failures {
		out = append(out, f.Error())
	}
	return out
}

func newRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id
}
