package openai

import (
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const (
	defaultContextBudget = 15000
	defaultTimeout       = 2 * time.Minute
	defaultParallel      = 8
)

// OpenAIBackend is a model backend for any OpenAI compatible chat completion
// API. Besides OpenAI itself this covers the compatibility endpoints of
// Mistral, Gemini and Cohere, so one adapter serves the whole provider
// catalogue.
//
// An OpenAIBackend should be created using NewOpenAIBackend.
type OpenAIBackend struct {
	ai.MetricsRecorder

	id             common.BackendID
	chatModel      string
	embeddingModel string

	contextBudget   int
	maxOutputTokens int
	temperature     float64
	timeout         time.Duration

	reqLock *semaphore.Weighted

	Client *openai.Client
}

// NewOpenAIBackendParams defines the configuration parameters for creating
// a new OpenAIBackend.
//
// ID is the backend identity used as map key in results.
// ChatModel is used for Generate and Answer, EmbeddingModel for Embed.
// BaseURL and APIKey configure the endpoint; an empty BaseURL targets OpenAI.
// ContextBudget is the number of document characters accepted per call.
type NewOpenAIBackendParams struct {
	ID             string
	ChatModel      string
	EmbeddingModel string

	BaseURL string
	APIKey  string

	ContextBudget         int
	MaxOutputTokens       int
	Temperature           float64
	Timeout               time.Duration
	MaxRetries            int
	MaxConcurrentRequests int64
}

// NewOpenAIBackend creates and returns a new OpenAIBackend configured with
// the provided parameters.
//
// Example:
//
//	backend, err := openai.NewOpenAIBackend(openai.NewOpenAIBackendParams{
//		ID:            "mistral",
//		ChatModel:     "mistral-small-latest",
//		BaseURL:       "https://api.mistral.ai/v1",
//		APIKey:        os.Getenv("MISTRAL_API_KEY"),
//		ContextBudget: 15000,
//	})
func NewOpenAIBackend(params NewOpenAIBackendParams) (*OpenAIBackend, error) {
	if params.ID == "" {
		return nil, common.InvalidConfiguration("openai backend needs an id")
	}
	if params.APIKey == "" && params.BaseURL == "" {
		return nil, common.InvalidConfiguration("openai backend %s needs an api key", params.ID)
	}
	if params.ChatModel == "" && params.EmbeddingModel == "" {
		return nil, common.InvalidConfiguration("openai backend %s needs a chat or embedding model", params.ID)
	}

	budget := params.ContextBudget
	if budget <= 0 {
		budget = defaultContextBudget
	}
	maxTokens := params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = ai.DefaultMaxOutputTokens
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = defaultParallel
	}
	temperature := params.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}

	return &OpenAIBackend{
		id:             common.BackendID(params.ID),
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		contextBudget:   budget,
		maxOutputTokens: maxTokens,
		temperature:     temperature,
		timeout:         timeout,

		reqLock: semaphore.NewWeighted(parallel),

		Client: newOpenaiClient(params.BaseURL, params.APIKey, params.MaxRetries),
	}, nil
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	maxRetries int,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(max(maxRetries, 0)),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ID returns the backend identity.
func (c *OpenAIBackend) ID() common.BackendID {
	return c.id
}

// ContextBudget returns the number of document characters accepted per call.
func (c *OpenAIBackend) ContextBudget() int {
	return c.contextBudget
}
