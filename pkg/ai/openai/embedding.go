package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"github.com/openai/openai-go/v3"
)

// Embed creates a vector embedding for text using the configured embedding
// model. Blank input is rejected since it has no meaningful direction.
//
// Example:
//
//	embedding, err := backend.Embed(ctx, "Graph RAG systems")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("Embedding length:", len(embedding))
func (c *OpenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, common.NewUpstreamError(c.id, "embed", fmt.Errorf("no embedding model configured"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.NewUpstreamError(c.id, "embed", fmt.Errorf("empty input"))
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, common.NewUpstreamError(c.id, "embed", err)
	}
	defer c.reqLock.Release(1)

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := c.Client.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, common.NewUpstreamError(c.id, "embed", err)
	}

	c.Record(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, common.NewUpstreamError(c.id, "embed",
			fmt.Errorf("embedding response size mismatch: got %d want 1", len(response.Data)))
	}

	vec := make([]float32, len(response.Data[0].Embedding))
	for i, v := range response.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
