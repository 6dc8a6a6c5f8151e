// Package config loads emqu settings from defaults, an optional YAML file and EMQU_ environment variables.
package config

import (
	"os"
	"path/filepath"
)

const (
	EnvPrefix      = "EMQU_"
	CacheDirName   = "emqu-models"
	OpenAIKeyEnv   = "OPENAI_API_KEY"
	DefaultFile    = "emqu.yaml"
	defaultWorkers = 8
)

// Config is the complete emqu configuration.
type Config struct {
	Cache    CacheConfig    `koanf:"cache"`
	Log      LogConfig      `koanf:"log"`
	Chunk    ChunkConfig    `koanf:"chunk"`
	Embedder EmbedderConfig `koanf:"embedder"`
	Store    StoreConfig    `koanf:"store"`
	Loader   LoaderConfig   `koanf:"loader"`
}

// CacheConfig points at the local directory holding tokenizer and model assets.
type CacheConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

type ChunkConfig struct {
	MaxTokens int    `koanf:"max_tokens" validate:"min=1"`
	Tokenizer string `koanf:"tokenizer"  validate:"oneof=tiktoken words"`
	Encoding  string `koanf:"encoding"`
}

type EmbedderConfig struct {
	Provider  string `koanf:"provider"   validate:"oneof=openai ollama hash"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"   validate:"omitempty,url"`
	APIKey    string `koanf:"api_key"`
	Dimension int    `koanf:"dimension"  validate:"min=0"`
	BatchSize int    `koanf:"batch_size" validate:"min=1"`
	CacheSize int    `koanf:"cache_size" validate:"min=0"`
}

type StoreConfig struct {
	// Format is empty when the backend is inferred from the file extension
	Format string `koanf:"format" validate:"omitempty,oneof=gob json sqlite bolt"`
}

type LoaderConfig struct {
	Workers int `koanf:"workers" validate:"min=1"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{Dir: DefaultCacheDir()},
		Log:   LogConfig{Level: "info"},
		Chunk: ChunkConfig{
			MaxTokens: 1000,
			Tokenizer: "tiktoken",
			Encoding:  "cl100k_base",
		},
		Embedder: EmbedderConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 256,
			CacheSize: 1024,
		},
		Loader: LoaderConfig{Workers: defaultWorkers},
	}
}

// DefaultCacheDir is emqu-models under the user cache directory, or under the
// system temp directory when the user has none.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, CacheDirName)
}
