package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"github.com/ollama/ollama/api"
)

// Embed creates a vector embedding for the given input text using the
// configured embedding model on Ollama.
func (c *OllamaBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, common.NewUpstreamError(c.id, "embed", fmt.Errorf("no embedding model configured"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.NewUpstreamError(c.id, "embed", fmt.Errorf("empty input"))
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, common.NewUpstreamError(c.id, "embed", err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, common.NewUpstreamError(c.id, "embed", err)
	}

	c.Record(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) != 1 {
		return nil, common.NewUpstreamError(c.id, "embed",
			fmt.Errorf("embedding response size mismatch: got %d want 1", len(res.Embeddings)))
	}
	return res.Embeddings[0], nil
}
