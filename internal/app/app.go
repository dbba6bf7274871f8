package app

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/config"
	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	oai "github.com/OFFIS-RIT/crosscheck/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/crosscheck/pkg/ai/openai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/grounding"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader/csv"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader/doc"
	fio "github.com/OFFIS-RIT/crosscheck/pkg/loader/io"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader/pdf"
	ls3 "github.com/OFFIS-RIT/crosscheck/pkg/loader/s3"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader/web"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"
	"github.com/OFFIS-RIT/crosscheck/pkg/query"
	"github.com/OFFIS-RIT/crosscheck/pkg/store"
	"github.com/OFFIS-RIT/crosscheck/pkg/store/neo4j"
	pgdb "github.com/OFFIS-RIT/crosscheck/pkg/store/pgx"
	"github.com/OFFIS-RIT/crosscheck/pkg/verify"
)

// App holds the long lived clients of a process.
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

// New builds every client described by cfg. Stores are connected eagerly
// so misconfiguration fails at startup.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, common.InvalidConfiguration("missing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backends := make([]ai.Backend, 0, len(cfg.Backends))
	byID := make(map[string]ai.Backend, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		b, err := NewBackend(bc)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
		byID[bc.ID] = b
	}

	embedder, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	engine, err := query.NewEngine(query.NewEngineParams{
		ChunkSize:   cfg.Engine.ChunkSize,
		MaxParallel: cfg.Engine.MaxParallel,
		CallTimeout: time.Duration(cfg.Engine.CallTimeoutSecs) * time.Second,
		MaxRetries:  cfg.Engine.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := verify.NewVerifier(verify.NewVerifierParams{
		Embedder:    embedder,
		MaxParallel: cfg.Engine.MaxParallel,
		Timeout:     time.Duration(cfg.Engine.CallTimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	extractor, err := NewExtractor(ctx, cfg.Sources, opts...)
	if err != nil {
		return nil, err
	}

	params := pipeline.NewPipelineParams{
		Extractor: extractor,
		Engine:    engine,
		Backends:  backends,
		Verifier:  verifier,
	}

	a := &App{Config: cfg}

	if cfg.Store.Type != "" {
		s, err := NewStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		a.Store = s

		params.Retriever, err = grounding.NewRetriever(s)
		if err != nil {
			return nil, err
		}
		if gb, ok := byID[cfg.Grounding.Backend]; ok {
			var opts []grounding.ExtractorOption
			if cfg.Grounding.Structured {
				opts = append(opts, grounding.WithStructuredOutput())
			}
			params.Entities, err = grounding.NewExtractor(gb, opts...)
			if err != nil {
				return nil, err
			}
		}
	}
	if params.Entities == nil {
		logger.Warn("[App] grounding disabled", "store", cfg.Store.Type, "backend", cfg.Grounding.Backend)
	}

	a.Pipeline, err = pipeline.NewPipeline(params)
	if err != nil {
		return nil, err
	}

	logger.Info("[App] initialized", "config", cfg.String())
	return a, nil
}

// Close releases the store connection.
func (a *App) Close(ctx context.Context) error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close(ctx)
}

type chatBackend interface {
	ai.Backend
	ai.Embedder
}

func newClient(bc config.BackendConfig) (chatBackend, error) {
	switch bc.Provider {
	case config.ProviderOllama:
		b, err := oai.NewOllamaBackend(oai.NewOllamaBackendParams{
			ID:                    bc.ID,
			ChatModel:             bc.ChatModel,
			EmbeddingModel:        bc.EmbeddingModel,
			BaseURL:               bc.BaseURL,
			ApiKey:                bc.APIKey(),
			ContextBudget:         bc.ContextBudget,
			MaxOutputTokens:       bc.MaxOutputTokens,
			Temperature:           bc.Temperature,
			Timeout:               bc.Timeout(),
			MaxConcurrentRequests: bc.MaxConcurrentRequests,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.ProviderOpenAI:
		b, err := gai.NewOpenAIBackend(gai.NewOpenAIBackendParams{
			ID:                    bc.ID,
			ChatModel:             bc.ChatModel,
			EmbeddingModel:        bc.EmbeddingModel,
			BaseURL:               bc.BaseURL,
			APIKey:                bc.APIKey(),
			ContextBudget:         bc.ContextBudget,
			MaxOutputTokens:       bc.MaxOutputTokens,
			Temperature:           bc.Temperature,
			Timeout:               bc.Timeout(),
			MaxRetries:            bc.MaxRetries,
			MaxConcurrentRequests: bc.MaxConcurrentRequests,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, common.InvalidConfiguration("backend %s: unknown provider %q", bc.ID, bc.Provider)
	}
}

// NewBackend creates the chat backend described by bc.
func NewBackend(bc config.BackendConfig) (ai.Backend, error) {
	b, err := newClient(bc)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewEmbedder creates the embedding backend described by bc.
func NewEmbedder(bc config.BackendConfig) (ai.Embedder, error) {
	if bc.EmbeddingModel == "" {
		return nil, common.InvalidConfiguration("embedder needs an embedding model")
	}
	b, err := newClient(bc)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewStore connects to the configured fact store, retrying while the
// database is still starting.
func NewStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	timeout := time.Duration(sc.TimeoutSecs) * time.Second

	var s store.Store
	err := util.RetryErrWithContext(ctx, 5, time.Second, func(ctx context.Context) error {
		var err error
		switch sc.Type {
		case config.StorePostgres:
			if sc.Migrate {
				if err := pgdb.Migrate(sc.DatabaseURL); err != nil {
					return err
				}
			}
			s, err = pgdb.NewGraphDBStorage(ctx, sc.DatabaseURL, timeout)
		case config.StoreNeo4j:
			s, err = neo4j.NewGraphStorage(ctx, neo4j.NewGraphStorageParams{
				URI:      sc.Neo4j.URI,
				User:     sc.Neo4j.User,
				Password: util.GetEnv(sc.Neo4j.PasswordEnv),
				Database: sc.Neo4j.Database,
				Timeout:  timeout,
			})
		default:
			return common.InvalidConfiguration("unknown store type %q", sc.Type)
		}
		if err != nil {
			logger.Warn("[App] store connection failed", "type", sc.Type, "err", err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidConfiguration) {
			return nil, err
		}
		return nil, errors.Join(common.ErrStoreUnavailable, err)
	}
	return s, nil
}

// Option adjusts how New builds an App.
type Option func(*options)

type options struct {
	trustedSources bool
}

// WithTrustedSources lifts the source policy for callers that own the
// machine, such as the CLI. Any path, host or scheme may then be loaded.
func WithTrustedSources() Option {
	return func(o *options) {
		o.trustedSources = true
	}
}

// NewExtractor builds the document extractor: local files, web pages and,
// when configured, S3 objects as sources; PDF, DOCX and CSV as formats.
// Unless WithTrustedSources is given, sources are limited to the
// configured schemes, local files to LocalRoot and web hosts to public
// addresses.
func NewExtractor(ctx context.Context, sc config.SourcesConfig, opts ...Option) (loader.Extractor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cache := func() loader.Option {
		return loader.WithCache(loader.NewCache(sc.CacheSize, sc.CacheTTL()))
	}
	timeout := time.Duration(sc.WebTimeoutSecs) * time.Second

	router := &loader.SchemeRouter{}
	if o.trustedSources {
		router.Local = fio.NewIOFileLoader(cache())
		router.Web = web.NewWebFileLoader(&http.Client{Timeout: timeout}, cache())
	} else {
		router.Allowed = sc.AllowedSchemes
		if router.Allowed == nil {
			router.Allowed = []string{}
		}
		if sc.LocalRoot != "" {
			l, err := fio.NewRootedIOFileLoader(sc.LocalRoot, cache())
			if err != nil {
				return nil, err
			}
			router.Local = l
		} else if slices.Contains(sc.AllowedSchemes, "file") {
			return nil, common.InvalidConfiguration("file sources need a local root")
		}
		client := web.NewPublicClient(timeout)
		if sc.AllowPrivateHosts {
			client = &http.Client{Timeout: timeout}
		}
		router.Web = web.NewWebFileLoader(client, cache())
	}

	if sc.S3 != nil {
		l, err := ls3.NewS3FileLoader(ctx, ls3.NewS3FileLoaderParams{
			Bucket:       sc.S3.Bucket,
			Endpoint:     sc.S3.Endpoint,
			Region:       sc.S3.Region,
			AccessKey:    util.GetEnv(sc.S3.AccessKeyEnv),
			SecretKey:    util.GetEnv(sc.S3.SecretKeyEnv),
			UsePathStyle: sc.S3.UsePathStyle,
		}, cache())
		if err != nil {
			return nil, err
		}
		router.S3 = l
	}

	return loader.NewDocumentExtractor(router, map[string]loader.FileLoader{
		".pdf":  pdf.NewPDFFileLoader(router, cache()),
		".docx": doc.NewDocxFileLoader(router, cache()),
		".csv":  csv.NewCSVFileLoader(router, cache()),
	}), nil
}
