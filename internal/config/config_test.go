package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEO4J_URI", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Backends) != 3 {
		t.Fatalf("expected default catalogue of 3 backends, got %d", len(cfg.Backends))
	}
	if cfg.Backends[1].ID != "mistral" || cfg.Backends[1].ContextBudget != 15000 {
		t.Fatalf("unexpected mistral defaults: %+v", cfg.Backends[1])
	}
	if cfg.Engine.ChunkSize != 10000 || cfg.Engine.CallTimeoutSecs != 120 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Store.Type != "" {
		t.Fatalf("expected no store without env, got %q", cfg.Store.Type)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("LOCAL_KEY", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/facts")
	t.Setenv("NEO4J_URI", "")

	path := writeConfig(t, `
backends:
  - id: local
    provider: ollama
    base_url: http://localhost:11434
    key_env: LOCAL_KEY
    chat_model: llama3.2
    context_budget: 8000
  - id: mistral
    chat_model: mistral-small-latest
    timeout_secs: 30
embedder:
  provider: ollama
  embedding_model: nomic-embed-text
engine:
  chunk_size: 5000
grounding:
  backend: local
  structured: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Backends[0].APIKey(); got != "secret" {
		t.Fatalf("APIKey() = %q", got)
	}
	if cfg.Backends[1].Provider != ProviderOpenAI {
		t.Fatalf("expected default provider, got %q", cfg.Backends[1].Provider)
	}
	if cfg.Backends[1].Timeout().Seconds() != 30 {
		t.Fatalf("unexpected timeout: %v", cfg.Backends[1].Timeout())
	}
	if cfg.Engine.ChunkSize != 5000 {
		t.Fatalf("unexpected chunk size: %d", cfg.Engine.ChunkSize)
	}
	if cfg.Store.Type != StorePostgres || cfg.Store.DatabaseURL != "postgres://localhost/facts" {
		t.Fatalf("expected postgres store from env, got %+v", cfg.Store)
	}
	if !cfg.Grounding.Structured || cfg.Embedder.ID != "embedder" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEO4J_URI", "")
	t.Setenv("SOURCES_LOCAL_ROOT", "")

	tests := []struct {
		name    string
		content string
	}{
		{name: "no backends", content: "backends: []\nembedder: {embedding_model: e}\n"},
		{name: "duplicate id", content: "backends:\n  - {id: a, chat_model: m}\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\n"},
		{name: "unknown provider", content: "backends:\n  - {id: a, provider: bard, chat_model: m}\nembedder: {embedding_model: e}\n"},
		{name: "missing chat model", content: "backends:\n  - {id: a}\nembedder: {embedding_model: e}\n"},
		{name: "missing embedding model", content: "backends:\n  - {id: a, chat_model: m}\n"},
		{name: "unknown grounding backend", content: "backends:\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\ngrounding: {backend: b}\n"},
		{name: "unknown store", content: "backends:\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\nstore: {type: redis}\n"},
		{name: "neo4j without uri", content: "backends:\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\nstore: {type: neo4j}\n"},
		{name: "file scheme without root", content: "backends:\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\nsources: {allowed_schemes: [file]}\n"},
		{name: "unknown scheme", content: "backends:\n  - {id: a, chat_model: m}\nembedder: {embedding_model: e}\nsources: {allowed_schemes: [ftp]}\n"},
		{name: "malformed yaml", content: "backends: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if !errors.Is(err, common.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestLoad_SourcesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEO4J_URI", "")
	t.Setenv("SOURCES_LOCAL_ROOT", "")
	t.Setenv("SOURCES_ALLOWED_SCHEMES", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(cfg.Sources.AllowedSchemes, []string{"http", "https", "s3"}) {
		t.Fatalf("local files must be off by default, got %v", cfg.Sources.AllowedSchemes)
	}
	if cfg.Sources.AllowPrivateHosts {
		t.Fatal("private hosts must be off by default")
	}
	if cfg.Sources.CacheSize != 64 || cfg.Sources.CacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Sources)
	}

	root := t.TempDir()
	t.Setenv("SOURCES_LOCAL_ROOT", root)
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sources.LocalRoot != root || !slices.Contains(cfg.Sources.AllowedSchemes, "file") {
		t.Fatalf("expected file sources under %s, got %+v", root, cfg.Sources)
	}

	t.Setenv("SOURCES_ALLOWED_SCHEMES", "https, s3")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(cfg.Sources.AllowedSchemes, []string{"https", "s3"}) {
		t.Fatalf("unexpected schemes: %v", cfg.Sources.AllowedSchemes)
	}
}
