package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/emqu/pkg/emqu"
)

func TestLoad(t *testing.T) {
	t.Run("Should return defaults when no variables are set", func(t *testing.T) {
		t.Setenv(OpenAIKeyEnv, "")
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 1000, cfg.Chunk.MaxTokens)
		assert.Equal(t, "tiktoken", cfg.Chunk.Tokenizer)
		assert.Equal(t, "cl100k_base", cfg.Chunk.Encoding)
		assert.Equal(t, "openai", cfg.Embedder.Provider)
		assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
		assert.Equal(t, 256, cfg.Embedder.BatchSize)
		assert.Equal(t, 1024, cfg.Embedder.CacheSize)
		assert.Equal(t, 8, cfg.Loader.Workers)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Empty(t, cfg.Store.Format)
		assert.Equal(t, CacheDirName, filepath.Base(cfg.Cache.Dir))
	})

	t.Run("Should apply prefixed environment variables", func(t *testing.T) {
		t.Setenv("EMQU_CHUNK_MAX_TOKENS", "42")
		t.Setenv("EMQU_EMBEDDER_PROVIDER", "hash")
		t.Setenv("EMQU_EMBEDDER_BASE_URL", "http://localhost:9999/v1")
		t.Setenv("EMQU_STORE_FORMAT", "json")
		t.Setenv("EMQU_LOG_JSON", "true")
		t.Setenv("EMQU_CACHE_DIR", "/tmp/emqu-test-cache")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Chunk.MaxTokens)
		assert.Equal(t, "hash", cfg.Embedder.Provider)
		assert.Equal(t, "http://localhost:9999/v1", cfg.Embedder.BaseURL)
		assert.Equal(t, "json", cfg.Store.Format)
		assert.True(t, cfg.Log.JSON)
		assert.Equal(t, "/tmp/emqu-test-cache", cfg.Cache.Dir)
	})

	t.Run("Should fall back to OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv(OpenAIKeyEnv, "sk-fallback")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sk-fallback", cfg.Embedder.APIKey)
	})

	t.Run("Should prefer EMQU_EMBEDDER_API_KEY over OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv(OpenAIKeyEnv, "sk-fallback")
		t.Setenv("EMQU_EMBEDDER_API_KEY", "sk-explicit")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sk-explicit", cfg.Embedder.APIKey)
	})

	t.Run("Should read the YAML file and let the environment override it", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFile)
		yamlData := "chunk:\n  max_tokens: 64\n  tokenizer: words\nembedder:\n  provider: ollama\n  model: nomic-embed-text\nstore:\n  format:\n"
		require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))
		t.Setenv("EMQU_CHUNK_MAX_TOKENS", "128")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.Chunk.MaxTokens)
		assert.Equal(t, "words", cfg.Chunk.Tokenizer)
		assert.Equal(t, "ollama", cfg.Embedder.Provider)
		assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
		assert.Empty(t, cfg.Store.Format)
		assert.Equal(t, 256, cfg.Embedder.BatchSize)
	})

	t.Run("Should skip a missing YAML file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Chunk.MaxTokens)
	})

	t.Run("Should reject a malformed YAML file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFile)
		require.NoError(t, os.WriteFile(path, []byte("chunk: [unclosed\n"), 0o644))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})

	t.Run("Should reject invalid values from the environment", func(t *testing.T) {
		t.Setenv("EMQU_LOADER_WORKERS", "0")
		_, err := Load("")
		require.Error(t, err)
		assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Should accept the defaults", func(t *testing.T) {
		assert.NoError(t, Validate(Default()))
	})

	t.Run("Should reject a nil configuration", func(t *testing.T) {
		assert.ErrorIs(t, Validate(nil), emqu.ErrInvalidArgument)
	})

	cases := map[string]func(*Config){
		"non-positive max tokens": func(c *Config) { c.Chunk.MaxTokens = 0 },
		"unknown tokenizer":       func(c *Config) { c.Chunk.Tokenizer = "sentencepiece" },
		"unknown provider":        func(c *Config) { c.Embedder.Provider = "bert" },
		"negative dimension":      func(c *Config) { c.Embedder.Dimension = -1 },
		"zero batch size":         func(c *Config) { c.Embedder.BatchSize = 0 },
		"negative cache size":     func(c *Config) { c.Embedder.CacheSize = -1 },
		"unknown store format":    func(c *Config) { c.Store.Format = "parquet" },
		"zero workers":            func(c *Config) { c.Loader.Workers = 0 },
		"unknown log level":       func(c *Config) { c.Log.Level = "trace" },
		"malformed base url":      func(c *Config) { c.Embedder.BaseURL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run("Should reject "+name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, emqu.ErrInvalidArgument)
		})
	}
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should split the section from the field name", func(t *testing.T) {
		assert.Equal(t, "embedder.base_url", transformEnvKey("EMBEDDER_BASE_URL"))
		assert.Equal(t, "chunk.max_tokens", transformEnvKey("CHUNK_MAX_TOKENS"))
		assert.Equal(t, "log.level", transformEnvKey("LOG_LEVEL"))
		assert.Equal(t, "cache", transformEnvKey("CACHE"))
		assert.Equal(t, "", transformEnvKey("__"))
	})
}
