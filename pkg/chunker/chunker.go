// Package chunker splits documents into token-bounded pieces that follow the text's own structure.
package chunker

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/tokenizer"
)

// DefaultMaxTokens is the chunk budget used when none is configured.
const DefaultMaxTokens = 1000

// level orders the semantic units from coarsest to finest.
type level int

const (
	levelParagraph level = iota
	levelLine
	levelSentence
	levelWord
	levelRune
)

var (
	paragraphBreak = regexp.MustCompile(`\r?\n(?:[ \t]*\r?\n)+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+["'’”)\]]*\s+`)
	wordBreak      = regexp.MustCompile(`\s+`)
)

// Chunker greedily packs semantic units into chunks of at most maxTokens tokens.
type Chunker struct {
	counter   tokenizer.Counter
	maxTokens int
}

func New(counter tokenizer.Counter, maxTokens int) (*Chunker, error) {
	if counter == nil {
		return nil, emqu.NewError(emqu.ErrTokenizer, "new chunker", "", errors.New("token counter is required"))
	}
	if maxTokens <= 0 {
		return nil, emqu.Errorf(emqu.ErrInvalidArgument, "new chunker", "max tokens must be positive, got %d", maxTokens)
	}
	return &Chunker{counter: counter, maxTokens: maxTokens}, nil
}

// MaxTokens is the per-chunk token budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk splits text and attaches line provenance. Line numbers run on from the
// previous chunk, so the ranges are gap-free and never overlap.
//
// A chunk that ends mid-line counts that partial line, and the next chunk
// starts on the following number. Once a split has fallen mid-line, the last
// EndLine is larger than LineCount(text).
func (c *Chunker) Chunk(text string) []emqu.Chunk {
	pieces := c.Split(text)
	chunks := make([]emqu.Chunk, 0, len(pieces))
	end := 0
	for i, piece := range pieces {
		start := end + 1
		end = start + LineCount(piece) - 1
		chunks = append(chunks, emqu.Chunk{
			Index:     i + 1,
			Text:      piece,
			StartLine: start,
			EndLine:   end,
		})
	}
	return chunks
}

// Split returns the chunk texts. Concatenated in order they reproduce text exactly.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	return c.split(text, levelParagraph)
}

func (c *Chunker) split(text string, lvl level) []string {
	if c.fits(text) || lvl > levelRune {
		return []string{text}
	}
	units := segment(text, lvl)
	if len(units) == 1 {
		return c.split(text, lvl+1)
	}

	// units are contiguous, so any run of them is a substring of text
	offsets := make([]int, len(units)+1)
	for i, unit := range units {
		offsets[i+1] = offsets[i] + len(unit)
	}
	span := func(from, to int) string {
		return text[offsets[from]:offsets[to]]
	}

	var chunks []string
	for i := 0; i < len(units); {
		if !c.fits(units[i]) {
			chunks = append(chunks, c.split(units[i], lvl+1)...)
			i++
			continue
		}
		end := c.extend(span, i, len(units))
		chunks = append(chunks, span(i, end))
		i = end
	}
	return chunks
}

// extend returns the largest end in (from, n] for which span(from, end) fits,
// given that span(from, from+1) does. It doubles the candidate run until it
// overflows and then bisects, so a chunk of m units costs O(log m) counts.
func (c *Chunker) extend(span func(from, to int) string, from, n int) int {
	lo := from + 1
	hi := n + 1
	for step := 1; lo < n; step *= 2 {
		next := min(lo+step, n)
		if !c.fits(span(from, next)) {
			hi = next
			break
		}
		lo = next
	}
	for hi <= n && hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if c.fits(span(from, mid)) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func (c *Chunker) fits(text string) bool {
	return c.counter.Count(text) <= c.maxTokens
}

// segment cuts text into units of the given level. Separators stay at the end of the unit they follow.
func segment(text string, lvl level) []string {
	switch lvl {
	case levelParagraph:
		return splitAfter(text, paragraphBreak)
	case levelLine:
		lines := strings.SplitAfter(text, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		return lines
	case levelSentence:
		return splitAfter(text, sentenceEnd)
	case levelWord:
		return splitAfter(text, wordBreak)
	default:
		runes := make([]string, 0, utf8.RuneCountInString(text))
		for len(text) > 0 {
			_, size := utf8.DecodeRuneInString(text)
			runes = append(runes, text[:size])
			text = text[size:]
		}
		return runes
	}
}

func splitAfter(text string, re *regexp.Regexp) []string {
	var units []string
	cut := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[1] <= cut {
			continue
		}
		units = append(units, text[cut:loc[1]])
		cut = loc[1]
	}
	if cut < len(text) {
		units = append(units, text[cut:])
	}
	return units
}

// LineCount counts newline-delimited lines. A trailing newline does not start a new line.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
