package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

// Ollama defaults to a 4096 token window; larger prompts need num_ctx.
const defaultNumCtx = 4096

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countTokens estimates the prompt size in tokens. When the encoding cannot
// be loaded it falls back to four characters per token.
var countTokens = func(s string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			logger.Warn("[Ollama] tiktoken encoding unavailable", "err", err)
			return
		}
		enc = e
	})
	if enc == nil {
		return len(s) / 4
	}
	return len(enc.Encode(s, nil, nil))
}

// Generate sends a single-turn prompt and returns assistant text.
func (c *OllamaBackend) Generate(
	ctx context.Context,
	prompt string,
	maxOutputTokens int,
	opts ...ai.GenerateOption,
) (string, error) {
	if maxOutputTokens <= 0 {
		maxOutputTokens = c.maxOutputTokens
	}
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: c.temperature,
		MaxTokens:   maxOutputTokens,
	}, opts...)

	prompt = ai.TruncateRunes(prompt, c.contextBudget+ai.PromptAllowance)
	req := c.newChatRequest(options, prompt)

	content, err := c.chat(ctx, req)
	if err != nil {
		return "", common.NewUpstreamError(c.id, "generate", err)
	}
	return strings.TrimSpace(content), nil
}

// Answer answers question using context as the only source. The context is
// truncated to the backend's context budget.
func (c *OllamaBackend) Answer(
	ctx context.Context,
	context string,
	question string,
	opts ...ai.GenerateOption,
) (string, error) {
	prompt := fmt.Sprintf(ai.AnswerPrompt, ai.TruncateRunes(context, c.contextBudget), question)
	res, err := c.Generate(ctx, prompt, c.maxOutputTokens, opts...)
	if err != nil {
		return "", common.NewUpstreamError(c.id, "answer", err)
	}
	return res, nil
}

// GenerateStructured enforces a JSON schema and unmarshals into out.
func (c *OllamaBackend) GenerateStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}, opts...)

	req := c.newChatRequest(options, ai.TruncateRunes(prompt, c.contextBudget+ai.PromptAllowance))
	req.Format = json.RawMessage(formatBytes)

	content, err := c.chat(ctx, req)
	if err != nil {
		return common.NewUpstreamError(c.id, "generate_structured", err)
	}
	if err := ai.UnmarshalFlexible(content, out); err != nil {
		return common.NewUpstreamError(c.id, "generate_structured", fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

func (c *OllamaBackend) newChatRequest(options ai.GenerateOptions, prompt string) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}

	tokens := 200 + options.MaxTokens
	for _, m := range msgs {
		tokens += countTokens(m.Content)
	}
	if tokens > defaultNumCtx {
		req.Options["num_ctx"] = tokens
	}
	return req
}

func (c *OllamaBackend) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	durationMs := final.Metrics.TotalDuration.Milliseconds()
	c.Record(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   durationMs,
	})

	if strings.TrimSpace(final.Message.Content) == "" {
		return "", fmt.Errorf("empty response from model %s", req.Model)
	}
	logger.Debug("[Ollama] completion", "backend", c.id, "model", req.Model, "duration_ms", durationMs)
	return final.Message.Content, nil
}
