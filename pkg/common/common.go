package common

import "unicode/utf8"

// BackendID identifies the model backend that produced a result. It is used
// as a map key for candidate answers, similarity scores and diffs.
type BackendID string

// Document is the raw text of a source as produced by a text extractor.
// Pages are flattened into a single string separated by newlines.
type Document struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Len returns the number of characters (runes) in the document.
func (d Document) Len() int {
	return utf8.RuneCountInString(d.Text)
}

// Chunk is a contiguous, non-overlapping slice of a document.
//
// Start and End are byte offsets into the document text, so
// doc.Text[c.Start:c.End] == c.Text. Concatenating all chunks in index
// order reproduces the document exactly.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Answer is the end-to-end result of one backend for one question.
//
// Placeholder is set when the backend could not produce an answer at all and
// Text holds an error description instead. Degraded is set when the answer
// was produced but one or more of its chunk partials failed.
type Answer struct {
	Text        string `json:"text"`
	Placeholder bool   `json:"placeholder"`
	Degraded    bool   `json:"degraded"`
}

// CandidateAnswer maps every requested backend to its answer. A backend that
// failed is still present with a placeholder answer so downstream consumers
// always see a stable key set.
type CandidateAnswer map[BackendID]Answer

// Texts returns the answer text of every backend, placeholders included.
func (c CandidateAnswer) Texts() map[BackendID]string {
	out := make(map[BackendID]string, len(c))
	for id, a := range c {
		out[id] = a.Text
	}
	return out
}

// Successful returns the answer text of every backend that produced a real
// answer. Placeholders are left out.
func (c CandidateAnswer) Successful() map[BackendID]string {
	out := make(map[BackendID]string, len(c))
	for id, a := range c {
		if a.Placeholder {
			continue
		}
		out[id] = a.Text
	}
	return out
}

// Degraded reports whether any answer is a placeholder or was built from
// degraded partials.
func (c CandidateAnswer) Degraded() bool {
	for _, a := range c {
		if a.Placeholder || a.Degraded {
			return true
		}
	}
	return false
}

// EntitySet is a deduplicated list of entity names in first-seen order.
type EntitySet []string

// Triple is a single fact retrieved from the graph store.
type Triple struct {
	Subject      string `json:"subject"`
	Relationship string `json:"relationship"`
	Object       string `json:"object"`
}

// String renders the triple the way it is shown to users: (s REL o).
func (t Triple) String() string {
	return "(" + t.Subject + " " + t.Relationship + " " + t.Object + ")"
}

// StructuralRelationship links raw text nodes to the entities extracted from
// them. Those edges are bookkeeping, not facts.
const StructuralRelationship = "HAS_ENTITY"
