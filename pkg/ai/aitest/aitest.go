// Package aitest provides in-memory backends for tests of code that depends
// on pkg/ai interfaces.
package aitest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// Call records a single invocation of a FakeBackend.
type Call struct {
	Op       string
	Prompt   string
	Context  string
	Question string
}

// FakeBackend is a scripted ai.Backend. GenerateFunc and AnswerFunc default
// to echoing their input when nil.
type FakeBackend struct {
	Name   common.BackendID
	Budget int

	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	AnswerFunc   func(ctx context.Context, context, question string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// ID returns the configured backend id.
func (f *FakeBackend) ID() common.BackendID {
	return f.Name
}

// ContextBudget returns the configured budget.
func (f *FakeBackend) ContextBudget() int {
	return f.Budget
}

// Generate records the call and delegates to GenerateFunc.
func (f *FakeBackend) Generate(ctx context.Context, prompt string, _ int, _ ...ai.GenerateOption) (string, error) {
	f.record(Call{Op: "generate", Prompt: prompt})
	if err := ctx.Err(); err != nil {
		return "", common.NewUpstreamError(f.Name, "generate", err)
	}
	if f.GenerateFunc == nil {
		return prompt, nil
	}
	res, err := f.GenerateFunc(ctx, prompt)
	if err != nil {
		return "", common.NewUpstreamError(f.Name, "generate", err)
	}
	return res, nil
}

// Answer records the call and delegates to AnswerFunc.
func (f *FakeBackend) Answer(ctx context.Context, context, question string, _ ...ai.GenerateOption) (string, error) {
	f.record(Call{Op: "answer", Context: context, Question: question})
	if err := ctx.Err(); err != nil {
		return "", common.NewUpstreamError(f.Name, "answer", err)
	}
	if f.AnswerFunc == nil {
		return context, nil
	}
	res, err := f.AnswerFunc(ctx, context, question)
	if err != nil {
		return "", common.NewUpstreamError(f.Name, "answer", err)
	}
	return res, nil
}

// Calls returns a copy of all recorded calls.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of recorded calls with the given op.
func (f *FakeBackend) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeBackend) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// Failing returns a backend whose every call fails with err.
func Failing(id common.BackendID, err error) *FakeBackend {
	return &FakeBackend{
		Name: id,
		GenerateFunc: func(context.Context, string) (string, error) {
			return "", err
		},
		AnswerFunc: func(context.Context, string, string) (string, error) {
			return "", err
		},
	}
}

// Constant returns a backend that answers every call with text.
func Constant(id common.BackendID, text string) *FakeBackend {
	return &FakeBackend{
		Name: id,
		GenerateFunc: func(context.Context, string) (string, error) {
			return text, nil
		},
		AnswerFunc: func(context.Context, string, string) (string, error) {
			return text, nil
		},
	}
}

// FakeEmbedder maps texts to fixed vectors. Unknown texts fail unless
// Fallback is set.
type FakeEmbedder struct {
	Vectors  map[string][]float32
	Fallback func(text string) ([]float32, error)

	mu    sync.Mutex
	calls map[string]int
}

// Embed returns the configured vector for text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[text]++
	f.mu.Unlock()

	if v, ok := f.Vectors[text]; ok {
		return v, nil
	}
	if f.Fallback != nil {
		return f.Fallback(text)
	}
	return nil, common.NewUpstreamError("embedder", "embed", fmt.Errorf("no vector for %q", text))
}

// Calls returns how often text was embedded.
func (f *FakeEmbedder) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// BagOfWords is a deterministic Fallback for FakeEmbedder that hashes each
// lowercased word into one of dim buckets.
func BagOfWords(dim int) func(string) ([]float32, error) {
	return func(text string) ([]float32, error) {
		v := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := 0
			for _, r := range strings.Trim(w, ".,;:!?") {
				h = (h*31 + int(r)) % dim
			}
			v[h]++
		}
		return v, nil
	}
}
