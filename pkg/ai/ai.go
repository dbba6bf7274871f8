package ai

import (
	"context"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// DefaultMaxOutputTokens caps generations when the caller does not set a limit.
const DefaultMaxOutputTokens = 300

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	MaxTokens     int      // Upper bound for generated tokens, 0 means backend default
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	Requests       int     `json:"requests"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens returns a GenerateOption that limits the generated tokens.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over defaults and returns the result.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&defaults)
		}
	}
	return defaults
}

// Backend is the uniform capability interface of a language model provider.
//
// Implementations enforce their own input limit: text longer than
// ContextBudget characters is truncated before it is sent. Callers that need
// the whole text to be read (the map-reduce engine) chunk it to the budget
// first. Failed calls return a *common.UpstreamError.
type Backend interface {
	ID() common.BackendID
	ContextBudget() int

	// Generate runs free-form generation on prompt.
	Generate(
		ctx context.Context,
		prompt string,
		maxOutputTokens int,
		opts ...GenerateOption,
	) (string, error)

	// Answer answers question using only the provided context.
	Answer(
		ctx context.Context,
		context string,
		question string,
		opts ...GenerateOption,
	) (string, error)
}

// Embedder produces fixed-dimension embeddings. Only the designated
// embedding backend implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StructuredGenerator is implemented by backends that can constrain their
// output to a JSON schema derived from out.
type StructuredGenerator interface {
	GenerateStructured(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}

// MetricsReporter is implemented by backends that track token usage.
// Counters are cumulative for the lifetime of the backend.
type MetricsReporter interface {
	GetMetrics() ModelMetrics
}

// PromptAllowance is the number of characters a backend accepts on top of its
// context budget for instructions wrapped around the document text.
const PromptAllowance = 2000
