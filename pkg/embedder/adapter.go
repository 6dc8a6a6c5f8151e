package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/logger"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderHash   Provider = "hash"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 256
	defaultHashDim   = 384
)

// Config selects and tunes the embedding model
type Config struct {
	Provider  Provider
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int // 0 means take it from the model
	BatchSize int
	CacheSize int // 0 disables the cache
}

// ProgressFunc is called with (completed, total) after every model request
type ProgressFunc func(done, total int)

// Adapter wraps one loaded model. Calls are serialized, batches are split into
// BatchSize requests and every response is checked for count and dimension.
type Adapter struct {
	impl      Embedder
	batchSize int
	progress  ProgressFunc

	mu        sync.Mutex
	dimension int
	cache     *lru.Cache[string, []float32]
}

// New loads the model named by cfg. This is the only place where model initialization can fail.
func New(ctx context.Context, cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, emqu.Errorf(emqu.ErrEmbedding, "load model", "embedder config is required")
	}
	impl, err := buildProviderEmbedder(cfg)
	if err != nil {
		return nil, emqu.NewError(emqu.ErrEmbedding, "load model", string(cfg.Provider), err)
	}
	adapter, err := Wrap(cfg, impl)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("embedding model loaded",
		"model", impl.ModelInfo(), "dimension", adapter.Dimension(), "batch_size", adapter.batchSize)
	return adapter, nil
}

// Wrap builds an adapter around an already constructed model
func Wrap(cfg *Config, impl Embedder) (*Adapter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if impl == nil {
		return nil, emqu.Errorf(emqu.ErrEmbedding, "load model", "embedder implementation is required")
	}
	if cfg.Dimension < 0 {
		return nil, emqu.Errorf(emqu.ErrEmbedding, "load model", "dimension must not be negative, got %d", cfg.Dimension)
	}
	dim := cfg.Dimension
	if declared := impl.Dimension(); declared > 0 {
		if dim > 0 && dim != declared {
			return nil, emqu.Errorf(emqu.ErrDimensionMismatch, "load model",
				"configured dimension %d differs from model dimension %d", dim, declared)
		}
		dim = declared
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	a := &Adapter{impl: impl, batchSize: batchSize, dimension: dim}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, emqu.NewError(emqu.ErrEmbedding, "init cache", "", err)
		}
		a.cache = cache
	}
	return a, nil
}

// OnProgress registers a progress callback
func (a *Adapter) OnProgress(fn ProgressFunc) {
	a.mu.Lock()
	a.progress = fn
	a.mu.Unlock()
}

// Dimension returns the vector size, 0 until it is known
func (a *Adapter) Dimension() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dimension
}

func (a *Adapter) ModelInfo() string {
	return a.impl.ModelInfo()
}

// Embed maps texts to vectors, one per text in the same order.
// An empty batch returns an empty result without touching the model.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	// Identical texts are embedded once.
	pending := make(map[string][]int)
	var unique []string
	for i, text := range texts {
		if vec, ok := a.lookup(text); ok {
			results[i] = vec
			continue
		}
		if _, seen := pending[text]; !seen {
			unique = append(unique, text)
		}
		pending[text] = append(pending[text], i)
	}

	done := len(texts) - countIndexes(pending)
	for start := 0; start < len(unique); start += a.batchSize {
		end := min(start+a.batchSize, len(unique))
		batch := unique[start:end]

		vectors, err := a.impl.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, emqu.NewError(emqu.ErrEmbedding, "embed", a.impl.ModelInfo(), err)
		}
		if err := a.check(batch, vectors); err != nil {
			return nil, err
		}
		for i, text := range batch {
			for _, idx := range pending[text] {
				results[idx] = cloneVector(vectors[i])
				done++
			}
			a.store(text, vectors[i])
		}
		if a.progress != nil {
			a.progress(done, len(texts))
		}
	}
	return results, nil
}

// EmbedQuery embeds a single text
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// check verifies one non-empty vector per input, all of the adapter's dimension.
// The first response fixes the dimension when neither config nor model declared it.
func (a *Adapter) check(batch []string, vectors [][]float32) error {
	if len(vectors) != len(batch) {
		return emqu.Errorf(emqu.ErrEmbedding, "embed", "model returned %d vectors for %d texts", len(vectors), len(batch))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return emqu.Errorf(emqu.ErrEmbedding, "embed", "model returned an empty vector for text %d", i)
		}
		if a.dimension == 0 {
			a.dimension = len(vec)
		}
		if len(vec) != a.dimension {
			return emqu.Errorf(emqu.ErrDimensionMismatch, "embed",
				"model returned %d dimensions for text %d, expected %d", len(vec), i, a.dimension)
		}
	}
	return nil
}

func (a *Adapter) lookup(text string) ([]float32, bool) {
	if a.cache == nil {
		return nil, false
	}
	vec, ok := a.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(vec), true
}

func (a *Adapter) store(text string, vec []float32) {
	if a.cache == nil {
		return
	}
	a.cache.Add(cacheKey(text), cloneVector(vec))
}

func buildProviderEmbedder(cfg *Config) (Embedder, error) {
	model := strings.TrimSpace(cfg.Model)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if model == "" {
			model = DefaultModel
		}
		return NewOpenAIEmbedder(model, cfg.APIKey, cfg.BaseURL)
	case ProviderOllama:
		if model == "" {
			return nil, fmt.Errorf("provider %q needs a model name", cfg.Provider)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return NewOpenAIEmbedder(model, cfg.APIKey, baseURL)
	case ProviderHash:
		dim := cfg.Dimension
		if dim == 0 {
			dim = defaultHashDim
		}
		return NewHashEmbedder(dim)
	default:
		return nil, fmt.Errorf("provider %q is not supported", cfg.Provider)
	}
}

func countIndexes(m map[string][]int) int {
	n := 0
	for _, idx := range m {
		n += len(idx)
	}
	return n
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
