package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"
)

type fakePipeline struct {
	docs      map[string]string
	lastDoc   common.Document
	lastOpts  pipeline.AnswerAllOptions
	factsErr  error
	lastTerms []string
}

func (f *fakePipeline) Backends() []common.BackendID {
	return []common.BackendID{"cohere", "mistral"}
}

func (f *fakePipeline) Load(_ context.Context, source string) (common.Document, error) {
	text, ok := f.docs[source]
	if !ok {
		return common.Document{}, common.ErrSourceNotFound
	}
	return common.Document{Source: source, Text: text}, nil
}

func (f *fakePipeline) Summarize(_ context.Context, doc common.Document, backend common.BackendID) (pipeline.Response, error) {
	f.lastDoc = doc
	if backend != "cohere" {
		return pipeline.Response{}, common.InvalidConfiguration("unknown backend %q", backend)
	}
	return pipeline.Response{RequestID: "r1", Backend: backend, Answer: common.Answer{Text: "summary"}, Chunks: 1}, nil
}

func (f *fakePipeline) Answer(_ context.Context, doc common.Document, question string, backend common.BackendID) (pipeline.Response, error) {
	f.lastDoc = doc
	return pipeline.Response{RequestID: "r2", Backend: backend, Answer: common.Answer{Text: "answer to " + question}, Chunks: 1}, nil
}

func (f *fakePipeline) AnswerAll(_ context.Context, doc common.Document, question string, opts pipeline.AnswerAllOptions) (pipeline.Consensus, error) {
	f.lastDoc = doc
	f.lastOpts = opts
	return pipeline.Consensus{
		RequestID: "r3",
		Question:  question,
		Candidates: common.CandidateAnswer{
			"cohere":  {Text: "The sky is blue."},
			"mistral": {Text: "The sky is green."},
		},
		Similarity: map[string]float64{"cohere vs mistral": 0.75},
		Diffs:      map[string]string{"cohere vs mistral": "The sky is [-blue.-] {+green.+}"},
	}, nil
}

func (f *fakePipeline) Ground(_ context.Context, text string) (pipeline.Grounding, error) {
	return pipeline.Grounding{
		RequestID: "r4",
		Entities:  common.EntitySet{"sky"},
		Facts:     []common.Triple{{Subject: "sky", Relationship: "HAS_COLOR", Object: "blue"}},
	}, nil
}

func (f *fakePipeline) Facts(_ context.Context, entities []string) ([]common.Triple, error) {
	f.lastTerms = entities
	if f.factsErr != nil {
		return nil, f.factsErr
	}
	return []common.Triple{{Subject: "sky", Relationship: "HAS_COLOR", Object: "blue"}}, nil
}

func do(t *testing.T, p *fakePipeline, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := New(p)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, &fakePipeline{}, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoutes_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "summarize text", path: "/api/summarize", body: `{"text":"The sky is blue.","backend":"cohere"}`, status: http.StatusOK},
		{name: "summarize source", path: "/api/summarize", body: `{"source":"paper.txt","backend":"cohere"}`, status: http.StatusOK},
		{name: "summarize unknown backend", path: "/api/summarize", body: `{"text":"x","backend":"gpt"}`, status: http.StatusBadRequest},
		{name: "summarize missing backend", path: "/api/summarize", body: `{"text":"x"}`, status: http.StatusBadRequest},
		{name: "summarize missing document", path: "/api/summarize", body: `{"backend":"cohere"}`, status: http.StatusBadRequest},
		{name: "summarize missing source", path: "/api/summarize", body: `{"source":"nope.pdf","backend":"cohere"}`, status: http.StatusNotFound},
		{name: "answer", path: "/api/answer", body: `{"text":"x","question":"why?","backend":"mistral"}`, status: http.StatusOK},
		{name: "answer missing question", path: "/api/answer", body: `{"text":"x","backend":"mistral"}`, status: http.StatusBadRequest},
		{name: "answer malformed json", path: "/api/answer", body: `{"text":`, status: http.StatusBadRequest},
		{name: "ground", path: "/api/ground", body: `{"text":"The sky is blue."}`, status: http.StatusOK},
		{name: "ground empty", path: "/api/ground", body: `{}`, status: http.StatusBadRequest},
		{name: "facts", path: "/api/facts", body: `{"entities":["sky"]}`, status: http.StatusOK},
		{name: "facts empty list", path: "/api/facts", body: `{"entities":[]}`, status: http.StatusBadRequest},
		{name: "facts blank entity", path: "/api/facts", body: `{"entities":[""]}`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{docs: map[string]string{"paper.txt": "The sky is blue."}}
			rec := do(t, p, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func TestAnswerAllHandler(t *testing.T) {
	p := &fakePipeline{docs: map[string]string{"paper.txt": "The sky is blue."}}
	rec := do(t, p, http.MethodPost, "/api/answer-all",
		`{"source":"paper.txt","question":"What color is the sky?","backends":["mistral","cohere"],"evidence":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	if p.lastDoc.Text != "The sky is blue." {
		t.Fatalf("document not loaded from source: %+v", p.lastDoc)
	}
	if len(p.lastOpts.Backends) != 2 || p.lastOpts.Backends[0] != "mistral" || !p.lastOpts.WithEvidence {
		t.Fatalf("unexpected options: %+v", p.lastOpts)
	}

	var res pipeline.Consensus
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Similarity["cohere vs mistral"] != 0.75 {
		t.Fatalf("unexpected similarity: %v", res.Similarity)
	}
	if res.Diffs["cohere vs mistral"] != "The sky is [-blue.-] {+green.+}" {
		t.Fatalf("unexpected diffs: %v", res.Diffs)
	}
}

func TestFactsHandler_StoreUnavailable(t *testing.T) {
	p := &fakePipeline{factsErr: errors.Join(common.ErrStoreUnavailable, errors.New("dial tcp"))}
	rec := do(t, p, http.MethodPost, "/api/facts", `{"entities":["sky"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestBackendsHandler(t *testing.T) {
	rec := do(t, &fakePipeline{}, http.MethodGet, "/api/backends", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res struct {
		Backends []string `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Backends) != 2 || res.Backends[0] != "cohere" {
		t.Fatalf("unexpected backends: %v", res.Backends)
	}
}
