package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"
)

func TestRepl(t *testing.T) {
	var asked []string
	ask := func(_ context.Context, q string) (pipeline.Consensus, error) {
		asked = append(asked, q)
		if q == "broken?" {
			return pipeline.Consensus{}, errors.New("all backends failed")
		}
		return pipeline.Consensus{
			RequestID: "req-1",
			Question:  q,
			Candidates: common.CandidateAnswer{
				"mistral": {Text: "The sky is blue."},
				"cohere":  {Text: "The sky is green."},
				"gemini":  {Text: "timeout", Placeholder: true},
			},
			Similarity: map[string]float64{"cohere vs mistral": 0.75},
			Diffs:      map[string]string{"cohere vs mistral": "The sky is [-green.-] {+blue.+}"},
			Evidence: map[common.BackendID][]common.Triple{
				"mistral": {{Subject: "Sky", Relationship: "HAS_COLOR", Object: "Blue"}},
			},
		}, nil
	}

	in := strings.NewReader("Which colour is the sky?\n\n  \nbroken?\nquit\nnever asked\n")
	var out bytes.Buffer
	if err := repl(context.Background(), in, &out, ask); err != nil {
		t.Fatalf("repl() error = %v", err)
	}

	if len(asked) != 2 || asked[0] != "Which colour is the sky?" || asked[1] != "broken?" {
		t.Fatalf("unexpected questions: %q", asked)
	}

	got := out.String()
	for _, want := range []string{
		"The sky is blue.",
		"gemini (failed)",
		"0.750",
		"[-green.-] {+blue.+}",
		"cohere vs mistral (2 words changed)",
		"(Sky HAS_COLOR Blue)",
		"error: all backends failed",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output misses %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "cohere") > strings.Index(got, "mistral") {
		t.Fatalf("backends not rendered in sorted order:\n%s", got)
	}
}

func TestRepl_EOF(t *testing.T) {
	calls := 0
	ask := func(context.Context, string) (pipeline.Consensus, error) {
		calls++
		return pipeline.Consensus{}, nil
	}
	if err := repl(context.Background(), strings.NewReader("one question"), &bytes.Buffer{}, ask); err != nil {
		t.Fatalf("repl() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestCloseOnce(t *testing.T) {
	t.Run("normal exit", func(t *testing.T) {
		var calls atomic.Int32
		release := closeOnce(context.Background(), func(context.Context) error {
			calls.Add(1)
			return nil
		})
		release()
		release()
		if got := calls.Load(); got != 1 {
			t.Fatalf("expected one close, got %d", got)
		}
	})

	t.Run("signal then exit", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		done := make(chan struct{})
		release := closeOnce(ctx, func(context.Context) error {
			calls.Add(1)
			close(done)
			return errors.New("already closed")
		})
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("close did not run after cancel")
		}
		release()
		if got := calls.Load(); got != 1 {
			t.Fatalf("expected one close, got %d", got)
		}
	})
}
