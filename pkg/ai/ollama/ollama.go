package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

const (
	defaultContextBudget = 10000
	defaultTimeout       = 5 * time.Minute
	defaultParallel      = 2
)

// OllamaBackend implements ai.Backend and ai.Embedder using a locally hosted
// Ollama server.
type OllamaBackend struct {
	ai.MetricsRecorder

	id             common.BackendID
	chatModel      string
	embeddingModel string

	contextBudget   int
	maxOutputTokens int
	temperature     float64
	timeout         time.Duration

	reqLock *semaphore.Weighted

	Client *api.Client
}

// NewOllamaBackendParams contains configuration options for creating a new OllamaBackend.
type NewOllamaBackendParams struct {
	ID             string
	ChatModel      string
	EmbeddingModel string

	BaseURL string
	ApiKey  string

	ContextBudget         int
	MaxOutputTokens       int
	Temperature           float64
	Timeout               time.Duration
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaBackend creates a new Ollama backend with the specified configuration.
// It connects to the Ollama server at BaseURL, or to the server named by
// OLLAMA_HOST if BaseURL is empty.
func NewOllamaBackend(params NewOllamaBackendParams) (*OllamaBackend, error) {
	if params.ID == "" {
		return nil, common.InvalidConfiguration("ollama backend needs an id")
	}
	if params.ChatModel == "" && params.EmbeddingModel == "" {
		return nil, common.InvalidConfiguration("ollama backend %s needs a chat or embedding model", params.ID)
	}

	var cli *api.Client
	if params.BaseURL != "" {
		u, err := url.Parse(params.BaseURL)
		if err != nil {
			return nil, common.InvalidConfiguration("ollama backend %s: %v", params.ID, err)
		}

		httpClient := http.DefaultClient
		if params.ApiKey != "" {
			httpClient = &http.Client{
				Transport: &headerTransport{
					headers: map[string]string{
						"Authorization": "Bearer " + params.ApiKey,
					},
					rt: http.DefaultTransport,
				},
			}
		}
		cli = api.NewClient(u, httpClient)
	} else {
		var err error
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, common.InvalidConfiguration("ollama backend %s: %v", params.ID, err)
		}
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

	return &OllamaBackend{
		id:             common.BackendID(params.ID),
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		contextBudget:   budget,
		maxOutputTokens: maxTokens,
		temperature:     temperature,
		timeout:         timeout,

		reqLock: semaphore.NewWeighted(parallel),

		Client: cli,
	}, nil
}

// ID returns the backend identity.
func (c *OllamaBackend) ID() common.BackendID {
	return c.id
}

// ContextBudget returns the number of document characters accepted per call.
func (c *OllamaBackend) ContextBudget() int {
	return c.contextBudget
}
