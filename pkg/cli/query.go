package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/emqu/pkg/embedder"
	"github.com/perbu/emqu/pkg/emqu"
	"github.com/perbu/emqu/pkg/logger"
	"github.com/perbu/emqu/pkg/store"
)

func QueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <store> <query>",
		Short: "Print the stored documents most similar to a query",
		Long: `Embed the query, rank every document in the store by cosine similarity and
print the best --top-k matches, highest score first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], args[1])
		},
	}

	addEmbedderFlags(cmd)
	cmd.Flags().String("format", "", "store format (gob, json, sqlite, bolt); inferred from the file extension when empty")
	cmd.Flags().IntP("top-k", "k", 1, "number of documents to return")
	cmd.Flags().Float32("threshold", 0, "minimum similarity score (only applied when set)")
	cmd.Flags().Bool("scores", false, "print the score above each document")

	return cmd
}

func runQuery(cmd *cobra.Command, input, query string) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	cfg := configFrom(ctx)
	flags := cmd.Flags()
	if err := applyEmbedderFlags(flags, &cfg); err != nil {
		return err
	}

	topK, _ := flags.GetInt("top-k")
	if topK < 0 {
		return emqu.Errorf(emqu.ErrInvalidArgument, "query", "top-k must not be negative, got %d", topK)
	}
	showScores, _ := flags.GetBool("scores")

	records, err := store.Read(ctx, input, cfg.Store.Format)
	if err != nil {
		return err
	}
	log.Debug("Loaded store", "path", input, "records", len(records))
	if len(records) == 0 || topK == 0 {
		return nil
	}

	idx, err := emqu.NewIndex(records)
	if err != nil {
		return err
	}

	model, err := embedder.New(ctx, adapterConfig(&cfg))
	if err != nil {
		return err
	}
	vec, err := model.EmbedQuery(ctx, query)
	if err != nil {
		return err
	}

	results, err := idx.Search(vec, topK)
	if err != nil {
		return err
	}
	if flags.Changed("threshold") {
		threshold, _ := flags.GetFloat32("threshold")
		results = emqu.FilterMinScore(results, threshold)
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		if showScores {
			fmt.Fprintf(out, "Score: %.4f\n", r.Score)
		}
		fmt.Fprintf(out, "%s\n\n", strings.TrimSpace(r.Label))
	}
	return nil
}
