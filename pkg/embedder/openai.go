package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama server
const DefaultOllamaURL = "http://localhost:11434/v1"

// knownDimensions lists the output size of the hosted embedding models
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder talks to the OpenAI embeddings API or any server exposing the same endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	host   string
	dim    int
}

// NewOpenAIEmbedder creates an embedder for model. An empty baseURL targets api.openai.com,
// in which case apiKey is required.
func NewOpenAIEmbedder(model, apiKey, baseURL string) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, errors.New("embedding model name is required")
	}
	if baseURL == "" && apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	host := "openai"
	if baseURL != "" {
		cfg.BaseURL = baseURL
		host = baseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		host:   host,
		dim:    knownDimensions[model],
	}, nil
}

// EmbedBatch embeds all texts with a single API request
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if len(text) == 0 {
			return nil, fmt.Errorf("cannot embed empty text at position %d", i)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i := range data {
		v := make([]float32, len(data[i].Embedding))
		copy(v, data[i].Embedding)
		// L2 normalize (important for cosine similarity)
		l2normalize(v)
		embeddings[i] = v
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension, 0 for models not in the table
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *OpenAIEmbedder) ModelInfo() string {
	return e.host + "/" + e.model
}
