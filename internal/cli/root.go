// Package cli implements the emotion-memory CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/classifier"
	"github.com/rcliao/emotion-memory/internal/config"
	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/observe"
	"github.com/rcliao/emotion-memory/internal/store"
)

var (
	dbPath      string
	formatFlag  string
	configPath  string
	backendFlag string
	logFormat   string
	verbose     bool

	cfg *config.Config
	obs *observe.Observer
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "emotion-memory",
	Short: "Emotional memory for conversational agents",
	Long: "Stores memories tagged with emotional context, recalls them by relevance, " +
		"learns from interaction feedback and suggests how to adapt. SQLite or PostgreSQL backed.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $EMOTION_MEMORY_DB or ~/.emotion-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.json or .yaml)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: sqlite or postgres")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show info logs")
}

// setup loads the config and applies flag overrides on top of it.
func setup(cmd *cobra.Command) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DBPath = dbPath
	}
	if flags.Changed("backend") {
		c.Backend = backendFlag
	}
	if flags.Changed("log-format") {
		c.LogFormat = logFormat
	}
	if flags.Changed("verbose") {
		c.Verbose = verbose
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if formatFlag != "json" && formatFlag != "text" {
		return fmt.Errorf("unknown output format %q (use json or text)", formatFlag)
	}

	cfg = c
	obs = observe.ForFormat(os.Stderr, c.LogFormat, c.Verbose)
	return nil
}

func openBackend(ctx context.Context) (store.Backend, error) {
	opts := store.Options{Passphrase: cfg.Passphrase}
	if cfg.Backend == config.BackendPostgres {
		b, err := store.NewPostgresBackend(ctx, cfg.PostgresURL, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := store.NewSQLiteBackend(cfg.DBPath, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openStore(ctx context.Context) (*memory.MemoryStore, error) {
	b, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}
	s, err := memory.Open(ctx, b, memory.Options{Observer: obs})
	if err != nil {
		b.Close()
		return nil, err
	}
	return s, nil
}

// closeStore flushes pending access counters before closing.
func closeStore(ctx context.Context, s *memory.MemoryStore) {
	if err := s.Close(ctx); err != nil {
		exitErr("close store", err)
	}
}

func openClassifier() classifier.Classifier {
	c, err := classifier.NewFromConfig(cfg.Classifier)
	if err != nil {
		exitErr("classifier", err)
	}
	return c
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
