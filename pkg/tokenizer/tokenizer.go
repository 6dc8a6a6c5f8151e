// Package tokenizer provides the token-counting functions used to size chunks.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/perbu/emqu/pkg/emqu"
)

const (
	KindTiktoken = "tiktoken"
	KindWords    = "words"
)

// Counter measures text in tokens. Implementations must be deterministic.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int {
	return f(text)
}

// Words counts whitespace-delimited words. It needs no model files.
var Words Counter = CounterFunc(func(text string) int {
	return len(strings.Fields(text))
})

// New builds the counter named by kind
func New(kind, encoding, cacheDir string) (Counter, error) {
	switch kind {
	case KindTiktoken, "":
		return NewTiktoken(encoding, cacheDir)
	case KindWords:
		return Words, nil
	default:
		return nil, emqu.NewError(emqu.ErrTokenizer, "new tokenizer", "", fmt.Errorf("unknown tokenizer %q", kind))
	}
}
