package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/chunk"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type intentKind int

const (
	intentSummarize intentKind = iota
	intentAnswer
)

// Intent selects what the engine asks of every chunk.
type Intent struct {
	kind     intentKind
	question string
}

// Summarize asks for a summary of the whole document.
func Summarize() Intent {
	return Intent{kind: intentSummarize}
}

// AnswerQuestion asks the backend to answer q from the document.
func AnswerQuestion(q string) Intent {
	return Intent{kind: intentAnswer, question: q}
}

// Question returns the question of an answer intent.
func (i Intent) Question() string {
	return i.question
}

func (i Intent) String() string {
	if i.kind == intentSummarize {
		return "summarize"
	}
	return "answer"
}

// Result is the synthesized output of one backend over one document.
type Result struct {
	Text        string
	Placeholder bool
	Chunks      int
	Degradation *common.PartialDegradation
}

// Answer converts the result into a candidate answer.
func (r Result) Answer() common.Answer {
	return common.Answer{
		Text:        r.Text,
		Placeholder: r.Placeholder,
		Degraded:    r.Degradation != nil,
	}
}

// Engine runs map-reduce queries over documents that exceed a backend's
// context budget. An Engine holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	chunkSize   int
	maxParallel int
	callTimeout time.Duration
	maxRetries  int
}

// NewEngineParams configures an Engine. Zero values select the defaults.
//
// ChunkSize is used for backends that report no context budget.
// MaxParallel bounds concurrent chunk calls per query.
// CallTimeout bounds every single backend call.
// MaxRetries is the number of attempts per chunk call.
type NewEngineParams struct {
	ChunkSize   int
	MaxParallel int
	CallTimeout time.Duration
	MaxRetries  int
}

// NewEngine creates an Engine.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.ChunkSize < 0 {
		return nil, common.InvalidConfiguration("chunk size must not be negative, got %d", params.ChunkSize)
	}
	if params.ChunkSize == 0 {
		params.ChunkSize = chunk.DefaultMaxSize
	}
	if params.MaxParallel <= 0 {
		params.MaxParallel = 4
	}
	if params.CallTimeout <= 0 {
		params.CallTimeout = 2 * time.Minute
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 1
	}
	return &Engine{
		chunkSize:   params.ChunkSize,
		maxParallel: params.MaxParallel,
		callTimeout: params.CallTimeout,
		maxRetries:  params.MaxRetries,
	}, nil
}

// Query chunks text to the backend's budget, runs intent against every
// chunk in parallel and asks the backend to synthesize the partial results
// in document order.
//
// Failed chunk calls are replaced by a marker and reported through
// Result.Degradation. If the final call fails the result is a placeholder.
// Query only returns an error for invalid configuration or when ctx is done.
func (e *Engine) Query(ctx context.Context, text string, intent Intent, backend ai.Backend) (Result, error) {
	if backend == nil {
		return Result{}, common.InvalidConfiguration("query needs a backend")
	}
	if intent.kind == intentAnswer && strings.TrimSpace(intent.question) == "" {
		return Result{}, common.InvalidConfiguration("answer intent needs a question")
	}

	size := backend.ContextBudget()
	if size <= 0 {
		size = e.chunkSize
	}
	seq, err := chunk.Split(text, size)
	if err != nil {
		return Result{}, err
	}
	chunks := chunk.Collect(seq)
	if len(chunks) == 0 {
		return Result{}, nil
	}

	start := time.Now()
	partials := make([]string, len(chunks))
	failures := make([]error, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for _, c := range chunks {
		g.Go(func() error {
			res, err := util.RetryWithContext(gCtx, e.maxRetries, func(ctx context.Context) (string, error) {
				return e.mapChunk(ctx, backend, intent, c)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[c.Index] = err
				partials[c.Index] = fmt.Sprintf("[chunk %d unavailable: %v]", c.Index, err)
				return nil
			}
			partials[c.Index] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var degradation *common.PartialDegradation
	failed := 0
	for _, f := range failures {
		if f != nil {
			degradation = common.Degrade(degradation, f)
			failed++
		}
	}

	logger.Debug("[Query] map finished",
		"backend", backend.ID(),
		"intent", intent.String(),
		"chunks", len(chunks),
		"failed", failed,
		"duration", time.Since(start),
	)

	if failed == len(chunks) {
		return e.placeholder(backend, len(chunks), degradation, degradation.Failures[0]), nil
	}

	text, err = e.reduce(ctx, backend, intent, partials)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return e.placeholder(backend, len(chunks), common.Degrade(degradation, err), err), nil
	}

	return Result{
		Text:        strings.TrimSpace(text),
		Chunks:      len(chunks),
		Degradation: degradation,
	}, nil
}

func (e *Engine) mapChunk(ctx context.Context, backend ai.Backend, intent Intent, c common.Chunk) (string, error) {
	cCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	if intent.kind == intentAnswer {
		return backend.Answer(cCtx, c.Text, intent.question)
	}
	return backend.Generate(cCtx, fmt.Sprintf(ai.SummarizePrompt, c.Text), ai.DefaultMaxOutputTokens)
}

// reduce relies on the backend to cut the partials to its own budget.
func (e *Engine) reduce(ctx context.Context, backend ai.Backend, intent Intent, partials []string) (string, error) {
	joined := strings.Join(partials, "\n")

	var prompt string
	if intent.kind == intentAnswer {
		prompt = fmt.Sprintf(ai.AnswerReducePrompt, intent.question, joined)
	} else {
		prompt = fmt.Sprintf(ai.SummarizeReducePrompt, joined)
	}

	rCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	return util.RetryWithContext(rCtx, e.maxRetries, func(ctx context.Context) (string, error) {
		return backend.Generate(ctx, prompt, ai.DefaultMaxOutputTokens)
	})
}

func (e *Engine) placeholder(
	backend ai.Backend,
	chunks int,
	degradation *common.PartialDegradation,
	cause error,
) Result {
	logger.Warn("[Query] backend produced no result", "backend", backend.ID(), "err", cause)
	return Result{
		Text:        fmt.Sprintf("Error with %s: %v", backend.ID(), cause),
		Placeholder: true,
		Chunks:      chunks,
		Degradation: degradation,
	}
}
