package emqu

import (
	"path/filepath"
	"strings"
)

// Document is a source file read during a single command invocation
type Document struct {
	Path    string // Path as produced by the glob expansion
	Name    string // File name including extension
	Stem    string // File name without extension
	Ext     string // Extension without the leading dot
	Content string // Raw file content
}

// NewDocument derives the naming parts of a document from its path
func NewDocument(path, content string) Document {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	// Dotfiles like ".env" have a stem and no extension.
	if stem == "" && ext != "" {
		stem, ext = name, ""
	}
	return Document{
		Path:    path,
		Name:    name,
		Stem:    stem,
		Ext:     ext,
		Content: content,
	}
}

// Label returns the provenance-prefixed text that gets embedded for the document
func (d Document) Label() string {
	return "From: " + d.Name + "\n" + d.Content
}

// Chunk is a contiguous slice of a document with its line provenance
type Chunk struct {
	Index     int    // 1-based ordinal among the chunks of one document
	Text      string // Chunk text, separators included
	StartLine int    // 1-based, inclusive
	EndLine   int    // 1-based, inclusive
}

// Record is one persisted entry of the vector store
type Record struct {
	Label  string
	Vector []float32
}

// Result is a scored store record returned by a query
type Result struct {
	Score float32
	Label string
	Index int // Position of the record in the store
}

// Index holds the records of a store together with their precomputed norms
type Index struct {
	Records   []Record
	Dimension int
	norms     []float64
}
