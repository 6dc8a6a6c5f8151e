// Package cli wires the emqu commands: chunk, embed and query.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/perbu/emqu/pkg/config"
	"github.com/perbu/emqu/pkg/logger"
)

// Version is set at build time with -ldflags "-X github.com/perbu/emqu/pkg/cli.Version=..."
var Version = "dev"

type configKey struct{}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "emqu",
		Short:         "Embed text files and query them by semantic similarity",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
	}

	root.PersistentFlags().String("config", config.DefaultFile, "YAML configuration file, skipped when missing")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before configuration is read")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "write logs as JSON")
	root.PersistentFlags().String("cache-dir", "", "directory for tokenizer and model files")

	root.AddCommand(
		ChunkCmd(),
		EmbedCmd(),
		QueryCmd(),
	)

	return root
}

// setup loads the dotenv file and the configuration, and puts both the
// configuration and the logger into the command context.
func setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfgFile, err := flags.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir, _ = flags.GetString("cache-dir")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     cmd.ErrOrStderr(),
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, configKey{}, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	return nil
}

// configFrom returns a copy of the configuration stored by setup, so commands can
// apply their own flags without touching it.
func configFrom(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
		return *cfg
	}
	return *config.Default()
}

