package grounding

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
)

// Extractor asks a backend for the entities mentioned in a text.
type Extractor struct {
	backend    ai.Backend
	structured bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithStructuredOutput makes the extractor request schema constrained JSON
// when the backend supports it.
func WithStructuredOutput() ExtractorOption {
	return func(e *Extractor) {
		e.structured = true
	}
}

// NewExtractor creates an Extractor on top of backend.
func NewExtractor(backend ai.Backend, opts ...ExtractorOption) (*Extractor, error) {
	if backend == nil {
		return nil, common.InvalidConfiguration("entity extractor needs a backend")
	}
	e := &Extractor{backend: backend}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExtractEntities returns the unique entities mentioned in text.
func (e *Extractor) ExtractEntities(ctx context.Context, text string) (common.EntitySet, error) {
	res, err := e.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	return res.Entities, nil
}

// Extract returns the unique entities of text together with the duplicate
// surface forms the model folded into them. Blank text needs no model call.
func (e *Extractor) Extract(ctx context.Context, text string) (Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return Extraction{Entities: common.EntitySet{}}, nil
	}

	if sg, ok := e.backend.(ai.StructuredGenerator); ok && e.structured {
		var res ai.EntityExtractionResponse
		err := sg.GenerateStructured(ctx,
			"entity_extraction",
			"Unique entities of a text and their duplicate surface forms.",
			fmt.Sprintf(ai.EntityExtractionStructuredPrompt, text),
			&res,
		)
		if err != nil {
			return Extraction{}, common.NewUpstreamError(e.backend.ID(), "extract_entities", err)
		}
		out := Extraction{
			Entities:   DedupeEntities(res.UniqueEntities),
			Duplicates: res.Duplicates,
		}
		logger.Debug("[Grounding] extracted entities", "backend", e.backend.ID(), "entities", len(out.Entities), "structured", true)
		return out, nil
	}

	response, err := e.backend.Generate(ctx, text, 0, ai.WithSystemPrompts(ai.EntityExtractionPrompt))
	if err != nil {
		return Extraction{}, common.NewUpstreamError(e.backend.ID(), "extract_entities", err)
	}

	out := ParseEntities(response)
	if len(out.Entities) == 0 {
		logger.Warn("[Grounding] entity response had no entity list", "backend", e.backend.ID())
	}
	logger.Debug("[Grounding] extracted entities", "backend", e.backend.ID(), "entities", len(out.Entities))
	return out, nil
}
