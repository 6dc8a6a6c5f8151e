package loader

import (
	"context"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/emqu/pkg/emqu"
)

// DefaultWorkers bounds concurrent file reads
const DefaultWorkers = 8

// Glob expands pattern into the matching regular files, in walk order.
// Patterns may use ** to cross directories.
func Glob(pattern string) ([]string, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, emqu.NewError(emqu.ErrGlob, "glob", pattern, doublestar.ErrBadPattern)
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, emqu.NewError(emqu.ErrGlob, "glob", pattern, err)
	}
	return matches, nil
}

// Load reads every path into a Document. The result keeps the order of paths.
// The first failing read cancels the remaining ones.
func Load(ctx context.Context, paths []string, workers int) ([]emqu.Document, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	docs := make([]emqu.Document, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return emqu.NewError(emqu.ErrIO, "read", path, err)
			}
			docs[i] = emqu.NewDocument(path, string(content))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadPattern combines Glob and Load
func LoadPattern(ctx context.Context, pattern string, workers int) ([]emqu.Document, error) {
	paths, err := Glob(pattern)
	if err != nil {
		return nil, err
	}
	return Load(ctx, paths, workers)
}
