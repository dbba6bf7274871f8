package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StorePostgres = "postgres"
	StoreNeo4j    = "neo4j"
)

// BackendConfig describes one model backend. API keys are never stored in
// the file, KeyEnv names the environment variable holding the key.
type BackendConfig struct {
	ID                    string  `yaml:"id"`
	Provider              string  `yaml:"provider"`
	BaseURL               string  `yaml:"base_url,omitempty"`
	KeyEnv                string  `yaml:"key_env,omitempty"`
	ChatModel             string  `yaml:"chat_model,omitempty"`
	EmbeddingModel        string  `yaml:"embedding_model,omitempty"`
	ContextBudget         int     `yaml:"context_budget,omitempty"`
	MaxOutputTokens       int     `yaml:"max_output_tokens,omitempty"`
	Temperature           float64 `yaml:"temperature,omitempty"`
	TimeoutSecs           int     `yaml:"timeout_secs,omitempty"`
	MaxRetries            int     `yaml:"max_retries,omitempty"`
	MaxConcurrentRequests int64   `yaml:"max_concurrent_requests,omitempty"`
}

// APIKey resolves the key from the environment.
func (b BackendConfig) APIKey() string {
	if b.KeyEnv == "" {
		return ""
	}
	return util.GetEnv(b.KeyEnv)
}

// Timeout returns the per call timeout, zero meaning the backend default.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// EngineConfig tunes the map-reduce engine and the verifier.
type EngineConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	MaxParallel     int `yaml:"max_parallel"`
	CallTimeoutSecs int `yaml:"call_timeout_secs"`
	MaxRetries      int `yaml:"max_retries"`
}

// Neo4jConfig contains connection details for a neo4j fact store.
type Neo4jConfig struct {
	URI         string `yaml:"uri"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database,omitempty"`
}

// StoreConfig selects the fact store. An empty Type disables grounding.
type StoreConfig struct {
	Type        string      `yaml:"type"`
	DatabaseURL string      `yaml:"database_url,omitempty"`
	Migrate     bool        `yaml:"migrate,omitempty"`
	Neo4j       Neo4jConfig `yaml:"neo4j,omitempty"`
	TimeoutSecs int         `yaml:"timeout_secs,omitempty"`
}

// GroundingConfig names the backend used for entity extraction.
type GroundingConfig struct {
	Backend    string `yaml:"backend"`
	Structured bool   `yaml:"structured,omitempty"`
}

// S3Config configures s3:// document sources.
type S3Config struct {
	Bucket       string `yaml:"bucket,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	Region       string `yaml:"region,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// SourcesConfig configures document loading. AllowedSchemes and LocalRoot
// bound what remote callers may name as a source; "file" covers plain paths.
// Local files are only readable when LocalRoot is set.
type SourcesConfig struct {
	WebTimeoutSecs    int       `yaml:"web_timeout_secs,omitempty"`
	S3                *S3Config `yaml:"s3,omitempty"`
	AllowedSchemes    []string  `yaml:"allowed_schemes,omitempty"`
	LocalRoot         string    `yaml:"local_root,omitempty"`
	AllowPrivateHosts bool      `yaml:"allow_private_hosts,omitempty"`
	// CacheSize bounds each loader's document cache; negative disables it.
	CacheSize    int `yaml:"cache_size,omitempty"`
	CacheTTLSecs int `yaml:"cache_ttl_secs,omitempty"`
}

// CacheTTL returns the document cache lifetime.
func (s SourcesConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSecs) * time.Second
}

// Config is the root configuration.
type Config struct {
	Backends  []BackendConfig `yaml:"backends"`
	Embedder  BackendConfig   `yaml:"embedder"`
	Engine    EngineConfig    `yaml:"engine"`
	Store     StoreConfig     `yaml:"store"`
	Grounding GroundingConfig `yaml:"grounding"`
	Sources   SourcesConfig   `yaml:"sources"`
}

// Load reads the config at path. A missing file yields the default
// catalogue. Empty fields are filled from the environment and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, common.InvalidConfiguration("config %s: %v", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by CONFIG_PATH, config.yaml by default.
func LoadFromEnv() (*Config, error) {
	return Load(util.GetEnvString("CONFIG_PATH", "config.yaml"))
}

// Default returns the hosted provider catalogue: Cohere, Mistral and Gemini
// through their OpenAI compatible endpoints and Mistral embeddings.
func Default() *Config {
	cfg := &Config{
		Backends: []BackendConfig{
			{
				ID:            "cohere",
				Provider:      ProviderOpenAI,
				BaseURL:       "https://api.cohere.ai/compatibility/v1",
				KeyEnv:        "COHERE_API_KEY",
				ChatModel:     "command-r-plus",
				ContextBudget: 4000,
			},
			{
				ID:            "mistral",
				Provider:      ProviderOpenAI,
				BaseURL:       "https://api.mistral.ai/v1",
				KeyEnv:        "MISTRAL_API_KEY",
				ChatModel:     "mistral-small-latest",
				ContextBudget: 15000,
			},
			{
				ID:            "gemini",
				Provider:      ProviderOpenAI,
				BaseURL:       "https://generativelanguage.googleapis.com/v1beta/openai/",
				KeyEnv:        "GEMINI_API_KEY",
				ChatModel:     "gemini-2.0-flash-lite",
				ContextBudget: 15000,
			},
		},
		Embedder: BackendConfig{
			ID:             "embedder",
			Provider:       ProviderOpenAI,
			BaseURL:        "https://api.mistral.ai/v1",
			KeyEnv:         "MISTRAL_API_KEY",
			EmbeddingModel: "mistral-embed",
		},
		Grounding: GroundingConfig{Backend: "gemini"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Backends {
		if cfg.Backends[i].Provider == "" {
			cfg.Backends[i].Provider = ProviderOpenAI
		}
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = ProviderOpenAI
	}
	if cfg.Embedder.ID == "" {
		cfg.Embedder.ID = "embedder"
	}

	if cfg.Engine.ChunkSize == 0 {
		cfg.Engine.ChunkSize = int(util.GetEnvNumeric("CHUNK_SIZE", 10000))
	}
	if cfg.Engine.MaxParallel == 0 {
		cfg.Engine.MaxParallel = int(util.GetEnvNumeric("MAX_PARALLEL", 4))
	}
	if cfg.Engine.CallTimeoutSecs == 0 {
		cfg.Engine.CallTimeoutSecs = int(util.GetEnvDuration("CALL_TIMEOUT", 2*time.Minute).Seconds())
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = int(util.GetEnvNumeric("MAX_RETRIES", 1))
	}

	if cfg.Store.Type == "" {
		switch {
		case util.GetEnv("NEO4J_URI") != "":
			cfg.Store.Type = StoreNeo4j
		case util.GetEnv("DATABASE_URL") != "":
			cfg.Store.Type = StorePostgres
		}
	}
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = util.GetEnv("DATABASE_URL")
	}
	if cfg.Store.Neo4j.URI == "" {
		cfg.Store.Neo4j.URI = util.GetEnv("NEO4J_URI")
	}
	if cfg.Store.Neo4j.User == "" {
		cfg.Store.Neo4j.User = util.GetEnvString("NEO4J_USER", "neo4j")
	}
	if cfg.Store.Neo4j.PasswordEnv == "" {
		cfg.Store.Neo4j.PasswordEnv = "NEO4J_PASSWORD"
	}
	if cfg.Store.TimeoutSecs == 0 {
		cfg.Store.TimeoutSecs = 30
	}

	if cfg.Sources.WebTimeoutSecs == 0 {
		cfg.Sources.WebTimeoutSecs = 60
	}
	if cfg.Sources.LocalRoot == "" {
		cfg.Sources.LocalRoot = util.GetEnv("SOURCES_LOCAL_ROOT")
	}
	if len(cfg.Sources.AllowedSchemes) == 0 {
		if v := util.GetEnv("SOURCES_ALLOWED_SCHEMES"); v != "" {
			for scheme := range strings.SplitSeq(v, ",") {
				if scheme = strings.TrimSpace(scheme); scheme != "" {
					cfg.Sources.AllowedSchemes = append(cfg.Sources.AllowedSchemes, scheme)
				}
			}
		} else {
			cfg.Sources.AllowedSchemes = []string{"http", "https", "s3"}
			if cfg.Sources.LocalRoot != "" {
				cfg.Sources.AllowedSchemes = append(cfg.Sources.AllowedSchemes, "file")
			}
		}
	}
	if !cfg.Sources.AllowPrivateHosts {
		cfg.Sources.AllowPrivateHosts = util.GetEnvBool("SOURCES_ALLOW_PRIVATE_HOSTS", false)
	}
	if cfg.Sources.CacheSize == 0 {
		cfg.Sources.CacheSize = int(util.GetEnvNumeric("SOURCES_CACHE_SIZE", 64))
	}
	if cfg.Sources.CacheTTLSecs == 0 {
		cfg.Sources.CacheTTLSecs = int(util.GetEnvDuration("SOURCES_CACHE_TTL", 5*time.Minute).Seconds())
	}
	if cfg.Sources.S3 == nil && util.GetEnv("S3_BUCKET") != "" {
		cfg.Sources.S3 = &S3Config{
			Bucket:       util.GetEnv("S3_BUCKET"),
			Endpoint:     util.GetEnv("S3_ENDPOINT"),
			Region:       util.GetEnvString("S3_REGION", "us-east-1"),
			AccessKeyEnv: "S3_ACCESS_KEY",
			SecretKeyEnv: "S3_SECRET_KEY",
			UsePathStyle: util.GetEnvBool("S3_USE_PATH_STYLE", true),
		}
	}
}

// Validate reports configuration errors before any client is created.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return common.InvalidConfiguration("no backends configured")
	}

	ids := make([]string, 0, len(c.Backends))
	for _, b := range c.Backends {
		if b.ID == "" {
			return common.InvalidConfiguration("backend without id")
		}
		if slices.Contains(ids, b.ID) {
			return common.InvalidConfiguration("backend %s configured twice", b.ID)
		}
		ids = append(ids, b.ID)
		if err := validateProvider(b); err != nil {
			return err
		}
		if b.ChatModel == "" {
			return common.InvalidConfiguration("backend %s needs a chat_model", b.ID)
		}
	}

	if err := validateProvider(c.Embedder); err != nil {
		return err
	}
	if c.Embedder.EmbeddingModel == "" {
		return common.InvalidConfiguration("embedder needs an embedding_model")
	}

	if c.Engine.ChunkSize < 0 {
		return common.InvalidConfiguration("chunk_size must not be negative")
	}

	switch c.Store.Type {
	case "":
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return common.InvalidConfiguration("postgres store needs database_url or DATABASE_URL")
		}
	case StoreNeo4j:
		if c.Store.Neo4j.URI == "" {
			return common.InvalidConfiguration("neo4j store needs uri or NEO4J_URI")
		}
	default:
		return common.InvalidConfiguration("unknown store type %q", c.Store.Type)
	}

	for _, scheme := range c.Sources.AllowedSchemes {
		switch scheme {
		case "file":
			if c.Sources.LocalRoot == "" {
				return common.InvalidConfiguration("file sources need local_root or SOURCES_LOCAL_ROOT")
			}
		case "http", "https", "s3":
		default:
			return common.InvalidConfiguration("unknown source scheme %q", scheme)
		}
	}

	if c.Grounding.Backend != "" && !slices.Contains(ids, c.Grounding.Backend) {
		return common.InvalidConfiguration("grounding backend %q is not configured", c.Grounding.Backend)
	}
	return nil
}

func validateProvider(b BackendConfig) error {
	switch b.Provider {
	case ProviderOpenAI, ProviderOllama:
		return nil
	default:
		return common.InvalidConfiguration("backend %s: unknown provider %q", b.ID, b.Provider)
	}
}

// String renders the config without secrets for startup logs.
func (c *Config) String() string {
	ids := make([]string, 0, len(c.Backends))
	for _, b := range c.Backends {
		ids = append(ids, b.ID)
	}
	return fmt.Sprintf("backends=%v embedder=%s store=%q grounding=%q", ids, c.Embedder.EmbeddingModel, c.Store.Type, c.Grounding.Backend)
}
