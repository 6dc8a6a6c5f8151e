package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/perbu/emqu/pkg/config"
	"github.com/perbu/emqu/pkg/embedder"
	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/loader"
	"github.com/perbu/emqu/pkg/logger"
	"github.com/perbu/emqu/pkg/store"
)

func EmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed <pattern> <output>",
		Short: "Generate embeddings for the files matching a glob pattern",
		Long: `Embed every file matching the glob pattern and write the store to <output>.
Each document is embedded as "From: <file name>" followed by its content.
An existing store at <output> is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbed(cmd, args[0], args[1])
		},
	}

	addEmbedderFlags(cmd)
	cmd.Flags().String("format", "", "store format (gob, json, sqlite, bolt); inferred from the file extension when empty")

	return cmd
}

func runEmbed(cmd *cobra.Command, pattern, output string) error {
	ctx := cmd.Context()
	cfg := configFrom(ctx)
	if err := applyEmbedderFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}

	docs, err := loader.LoadPattern(ctx, pattern, cfg.Loader.Workers)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Embedding %d document(s).\n", len(docs))

	records := []emqu.Record{}
	if len(docs) > 0 {
		if records, err = embedDocuments(cmd, &cfg, docs); err != nil {
			return err
		}
	}
	if err := store.Write(ctx, output, cfg.Store.Format, records); err != nil {
		return err
	}

	fmt.Fprintf(out, "Successfully generated embeddings for %d documents\n", len(records))
	return nil
}

// embedDocuments loads the model and embeds each document label in order
func embedDocuments(cmd *cobra.Command, cfg *config.Config, docs []emqu.Document) ([]emqu.Record, error) {
	ctx := cmd.Context()
	log := logger.FromContext(ctx).With("provider", cfg.Embedder.Provider, "model", cfg.Embedder.Model)

	model, err := embedder.New(ctx, adapterConfig(cfg))
	if err != nil {
		return nil, err
	}
	log.Debug("Loaded embedding model", "dimension", model.Dimension())
	model.OnProgress(func(done, total int) {
		log.Info("Embedding documents", "done", done, "total", total)
	})

	labels := make([]string, len(docs))
	for i, doc := range docs {
		labels[i] = doc.Label()
	}
	vectors, err := model.Embed(ctx, labels)
	if err != nil {
		return nil, err
	}

	records := make([]emqu.Record, len(docs))
	for i := range docs {
		records[i] = emqu.Record{Label: labels[i], Vector: vectors[i]}
	}
	return records, nil
}

func addEmbedderFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", string(embedder.ProviderOpenAI), "embedding provider (openai, ollama, hash)")
	cmd.Flags().String("model", embedder.DefaultModel, "embedding model name")
	cmd.Flags().String("base-url", "", "OpenAI-compatible endpoint")
}

// applyEmbedderFlags copies explicitly set embedder and store flags over cfg
func applyEmbedderFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("provider") {
		cfg.Embedder.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Embedder.Model, _ = flags.GetString("model")
	}
	if flags.Changed("base-url") {
		cfg.Embedder.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("format") {
		cfg.Store.Format, _ = flags.GetString("format")
	}
	return config.Validate(cfg)
}

func adapterConfig(cfg *config.Config) *embedder.Config {
	return &embedder.Config{
		Provider:  embedder.Provider(cfg.Embedder.Provider),
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		Dimension: cfg.Embedder.Dimension,
		BatchSize: cfg.Embedder.BatchSize,
		CacheSize: cfg.Embedder.CacheSize,
	}
}
