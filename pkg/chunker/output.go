package chunker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/perbu/emqu/pkg/emqu"
)

// FileName returns <stem>-<ordinal>.<ext> for a chunk of doc
func FileName(doc emqu.Document, ordinal int) string {
	stem, ext := doc.Stem, doc.Ext
	if stem == "" {
		stem = "unknown"
	}
	if ext == "" {
		ext = "txt"
	}
	return fmt.Sprintf("%s-%d.%s", stem, ordinal, ext)
}

// Header is the provenance line written above each chunk, followed by a blank line
func Header(doc emqu.Document, chunk emqu.Chunk) string {
	stem := doc.Stem
	if stem == "" {
		stem = "unknown"
	}
	return fmt.Sprintf("From %s, lines %d - %d\n\n", stem, chunk.StartLine, chunk.EndLine)
}

// WriteChunks writes every chunk of doc into its own file under dir and returns the paths written
func WriteChunks(dir string, doc emqu.Document, chunks []emqu.Chunk) ([]string, error) {
	paths := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		path := filepath.Join(dir, FileName(doc, chunk.Index))
		if err := os.WriteFile(path, []byte(Header(doc, chunk)+chunk.Text), 0o644); err != nil {
			return paths, emqu.NewError(emqu.ErrIO, "write chunk", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
