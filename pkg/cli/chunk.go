package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perbu/emqu/pkg/chunker"
	"github.com/perbu/emqu/pkg/config"
	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/loader"
	"github.com/perbu/emqu/pkg/logger"
	"github.com/perbu/emqu/pkg/tokenizer"
)

func ChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk <pattern> <output-dir>",
		Short: "Split the files matching a glob pattern into token-bounded chunk files",
		Long: `Split every file matching the glob pattern into chunks of at most --max-tokens tokens.
Each chunk is written to <output-dir>/<name>-<n>.<ext> with a "From <name>, lines <start> - <end>" header.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunk(cmd, args[0], args[1])
		},
	}

	cmd.Flags().Int("max-tokens", chunker.DefaultMaxTokens, "maximum tokens per chunk")
	cmd.Flags().String("tokenizer", tokenizer.KindTiktoken, "token counter (tiktoken, words)")
	cmd.Flags().String("encoding", tokenizer.DefaultEncoding, "tiktoken encoding or model name")

	return cmd
}

func runChunk(cmd *cobra.Command, pattern, outDir string) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	cfg := configFrom(ctx)

	flags := cmd.Flags()
	if flags.Changed("max-tokens") {
		cfg.Chunk.MaxTokens, _ = flags.GetInt("max-tokens")
	}
	if flags.Changed("tokenizer") {
		cfg.Chunk.Tokenizer, _ = flags.GetString("tokenizer")
	}
	if flags.Changed("encoding") {
		cfg.Chunk.Encoding, _ = flags.GetString("encoding")
	}
	if err := config.Validate(&cfg); err != nil {
		return err
	}

	counter, err := tokenizer.New(cfg.Chunk.Tokenizer, cfg.Chunk.Encoding, cfg.Cache.Dir)
	if err != nil {
		return err
	}
	c, err := chunker.New(counter, cfg.Chunk.MaxTokens)
	if err != nil {
		return err
	}
	log = log.With("tokenizer", cfg.Chunk.Tokenizer, "max_tokens", c.MaxTokens())
	if tk, ok := counter.(*tokenizer.Tiktoken); ok {
		log = log.With("encoding", tk.Encoding())
	}
	log.Debug("Chunker ready")

	docs, err := loader.LoadPattern(ctx, pattern, cfg.Loader.Workers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Chunking %d document(s).\n", len(docs))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return emqu.NewError(emqu.ErrIO, "create directory", outDir, err)
	}
	for i, doc := range docs {
		chunks := c.Chunk(doc.Content)
		if _, err := chunker.WriteChunks(outDir, doc, chunks); err != nil {
			return err
		}
		log.Info("Chunked document", "file", doc.Path, "chunks", len(chunks), "done", i+1, "total", len(docs))
	}

	fmt.Fprintf(out, "Successfully chunked documents into %s\n", outDir)
	return nil
}
