package query

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai/aitest"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(NewEngineParams{MaxParallel: 2})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func isReduce(prompt string) bool {
	return strings.Contains(prompt, "# Task Context")
}

func TestQuery_AnswerMapsEveryChunkInOrder(t *testing.T) {
	b := &aitest.FakeBackend{
		Name:   "a",
		Budget: 2,
		AnswerFunc: func(_ context.Context, c, _ string) (string, error) {
			return "partial-" + c, nil
		},
		GenerateFunc: func(_ context.Context, prompt string) (string, error) {
			return "  final  ", nil
		},
	}

	res, err := newTestEngine(t).Query(context.Background(), "AABBC", AnswerQuestion("what?"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Text != "final" {
		t.Fatalf("Query() text = %q, want trimmed final", res.Text)
	}
	if res.Chunks != 3 || res.Placeholder || res.Degradation != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := b.CallCount("answer"); n != 3 {
		t.Fatalf("expected 3 answer calls, got %d", n)
	}

	var reducePrompt string
	for _, c := range b.Calls() {
		if c.Op == "generate" {
			reducePrompt = c.Prompt
		}
	}
	if !strings.Contains(reducePrompt, "partial-AA\npartial-BB\npartial-C") {
		t.Fatalf("partials not joined in chunk order: %q", reducePrompt)
	}
	if !strings.Contains(reducePrompt, "The user asked: what?") {
		t.Fatalf("question missing from reduce prompt: %q", reducePrompt)
	}
}

func TestQuery_SingleChunkStillReduces(t *testing.T) {
	b := &aitest.FakeBackend{Name: "a", Budget: 100}
	if _, err := newTestEngine(t).Query(context.Background(), "short text", Summarize(), b); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if n := b.CallCount("generate"); n != 2 {
		t.Fatalf("expected map and reduce generate calls, got %d", n)
	}
}

func TestQuery_SummarizeUsesSummaryPrompts(t *testing.T) {
	b := &aitest.FakeBackend{Name: "a", Budget: 4}
	if _, err := newTestEngine(t).Query(context.Background(), "abcdefgh", Summarize(), b); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	maps, reduces := 0, 0
	for _, c := range b.Calls() {
		switch {
		case isReduce(c.Prompt):
			reduces++
		case strings.HasPrefix(c.Prompt, "Summarize the following research paper:"):
			maps++
		}
	}
	if maps != 2 || reduces != 1 {
		t.Fatalf("expected 2 map and 1 reduce call, got %d and %d", maps, reduces)
	}
}

func TestQuery_FailedChunkIsMarked(t *testing.T) {
	boom := errors.New("rate limited")
	b := &aitest.FakeBackend{
		Name:   "a",
		Budget: 2,
		AnswerFunc: func(_ context.Context, c, _ string) (string, error) {
			if c == "BB" {
				return "", boom
			}
			return "ok-" + c, nil
		},
	}

	res, err := newTestEngine(t).Query(context.Background(), "AABBCC", AnswerQuestion("q"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Placeholder {
		t.Fatalf("expected a synthesized answer, got placeholder")
	}
	if !errors.Is(res.Degradation, common.ErrPartialDegradation) || len(res.Degradation.Failures) != 1 {
		t.Fatalf("expected one degradation failure, got %v", res.Degradation)
	}
	if !errors.Is(res.Degradation, boom) {
		t.Fatalf("degradation does not wrap the chunk failure")
	}
	if !strings.Contains(res.Text, "ok-AA\n[chunk 1 unavailable:") || !strings.Contains(res.Text, "ok-CC") {
		t.Fatalf("marker not in reduce input: %q", res.Text)
	}
	if !res.Answer().Degraded {
		t.Fatalf("answer should be marked degraded")
	}
}

func TestQuery_FinalCallFailureYieldsPlaceholder(t *testing.T) {
	b := &aitest.FakeBackend{
		Name:   "gemini",
		Budget: 10,
		GenerateFunc: func(_ context.Context, prompt string) (string, error) {
			return "", errors.New("quota")
		},
	}

	res, err := newTestEngine(t).Query(context.Background(), "some text", AnswerQuestion("q"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !res.Placeholder || !strings.Contains(res.Text, "gemini") {
		t.Fatalf("expected placeholder for gemini, got %+v", res)
	}
	if res.Degradation == nil {
		t.Fatalf("placeholder result must be degraded")
	}
}

func TestQuery_AllChunksFail(t *testing.T) {
	b := aitest.Failing("a", errors.New("down"))
	b.Budget = 3

	res, err := newTestEngine(t).Query(context.Background(), "abcdefg", AnswerQuestion("q"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !res.Placeholder || len(res.Degradation.Failures) != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := b.CallCount("generate"); n != 0 {
		t.Fatalf("no reduce call expected, got %d", n)
	}
}

func TestQuery_EmptyDocument(t *testing.T) {
	b := &aitest.FakeBackend{Name: "a", Budget: 5}
	res, err := newTestEngine(t).Query(context.Background(), "", Summarize(), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Text != "" || res.Chunks != 0 || res.Placeholder {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(b.Calls()) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(b.Calls()))
	}
}

func TestQuery_FallsBackToEngineChunkSize(t *testing.T) {
	e, err := NewEngine(NewEngineParams{ChunkSize: 3})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	b := &aitest.FakeBackend{Name: "a"}
	res, err := e.Query(context.Background(), "abcdefg", AnswerQuestion("q"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", res.Chunks)
	}
}

func TestQuery_InvalidConfiguration(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name    string
		intent  Intent
		backend *aitest.FakeBackend
	}{
		{name: "empty question", intent: AnswerQuestion("  "), backend: &aitest.FakeBackend{Name: "a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Query(context.Background(), "text", tc.intent, tc.backend)
			if !errors.Is(err, common.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}

	if _, err := e.Query(context.Background(), "text", Summarize(), nil); !errors.Is(err, common.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for nil backend, got %v", err)
	}
	if _, err := NewEngine(NewEngineParams{ChunkSize: -1}); !errors.Is(err, common.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for negative chunk size, got %v", err)
	}
}

func TestQuery_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	b := &aitest.FakeBackend{
		Name:   "a",
		Budget: 1,
		AnswerFunc: func(ctx context.Context, c, _ string) (string, error) {
			if calls.Add(1) == 1 {
				cancel()
			}
			return "", ctx.Err()
		},
	}

	_, err := newTestEngine(t).Query(ctx, "abcdef", AnswerQuestion("q"), b)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQuery_RetriesChunkCalls(t *testing.T) {
	e, err := NewEngine(NewEngineParams{MaxRetries: 3})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	var calls atomic.Int32
	b := &aitest.FakeBackend{
		Name:   "a",
		Budget: 100,
		AnswerFunc: func(context.Context, string, string) (string, error) {
			if calls.Add(1) < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		},
	}

	res, err := e.Query(context.Background(), "text", AnswerQuestion("q"), b)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Degradation != nil {
		t.Fatalf("retried chunk should not degrade the result: %v", res.Degradation)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}
