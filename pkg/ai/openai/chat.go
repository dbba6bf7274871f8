package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"github.com/openai/openai-go/v3"
)

// Generate sends a single-turn prompt to the chat model and returns the
// generated completion as plain text.
//
// Prompts longer than the context budget plus ai.PromptAllowance are cut.
//
// Example:
//
//	resp, err := backend.Generate(ctx, "Summarize this text...", 300)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp)
func (c *OpenAIBackend) Generate(
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

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, prompt),
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxTokens = openai.Int(int64(options.MaxTokens))
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		return "", common.NewUpstreamError(c.id, "generate", err)
	}
	return strings.TrimSpace(content), nil
}

// Answer answers question using context as the only source. The context is
// truncated to the backend's context budget.
func (c *OpenAIBackend) Answer(
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

// GenerateStructured sends a prompt to the chat model and unmarshals the
// response into out, using a JSON schema derived from out to enforce the
// structure.
//
// Example:
//
//	var out ai.EntityExtractionResponse
//	err := backend.GenerateStructured(ctx, "entities", "Extract entities.", prompt, &out)
func (c *OpenAIBackend) GenerateStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}, opts...)

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    buildMessages(options.SystemPrompts, ai.TruncateRunes(prompt, c.contextBudget+ai.PromptAllowance)),
		Temperature: openai.Float(options.Temperature),
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		return common.NewUpstreamError(c.id, "generate_structured", err)
	}
	if err := ai.UnmarshalFlexible(content, out); err != nil {
		return common.NewUpstreamError(c.id, "generate_structured", err)
	}
	return nil
}

func (c *OpenAIBackend) complete(ctx context.Context, body openai.ChatCompletionNewParams) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.Client.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", err
	}
	duration := time.Since(start).Milliseconds()

	c.Record(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	logger.Debug("[OpenAI] completion", "backend", c.id, "model", body.Model, "duration_ms", duration)
	return message, nil
}

func buildMessages(systemPrompts []string, prompt string) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(systemPrompts)+1)
	for _, sp := range systemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	return append(msgs, openai.UserMessage(prompt))
}
