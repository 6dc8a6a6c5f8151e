package tokenizer

import (
	"os"

	"github.com/pkoukk/tiktoken-go"

	"github.com/perbu/emqu/pkg/emqu"
)

const DefaultEncoding = "cl100k_base"

// cacheEnv is read by tiktoken-go when it downloads BPE ranks.
const cacheEnv = "TIKTOKEN_CACHE_DIR"

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktoken resolves encodingOrModel first as an encoding name, then as a model name.
// The BPE ranks are downloaded on first use into cacheDir unless TIKTOKEN_CACHE_DIR is already set.
func NewTiktoken(encodingOrModel, cacheDir string) (*Tiktoken, error) {
	if encodingOrModel == "" {
		encodingOrModel = DefaultEncoding
	}
	if cacheDir != "" && os.Getenv(cacheEnv) == "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, emqu.NewError(emqu.ErrTokenizer, "create tokenizer cache", cacheDir, err)
		}
		if err := os.Setenv(cacheEnv, cacheDir); err != nil {
			return nil, emqu.NewError(emqu.ErrTokenizer, "set tokenizer cache", cacheDir, err)
		}
	}

	tke, err := tiktoken.GetEncoding(encodingOrModel)
	if err != nil {
		var modelErr error
		tke, modelErr = tiktoken.EncodingForModel(encodingOrModel)
		if modelErr != nil {
			return nil, emqu.NewError(emqu.ErrTokenizer, "load encoding", encodingOrModel, err)
		}
	}
	return &Tiktoken{encoding: encodingOrModel, tke: tke}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.tke.Encode(text, nil, nil))
}

func (t *Tiktoken) Encoding() string {
	return t.encoding
}
