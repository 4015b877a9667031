package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abhisek/mathquiz/internal/config"
	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "mathquiz",
	Short:         "Feedback on math answers and reasoning",
	Long:          "mathquiz grades a learner's answer and written reasoning, and turns them into a feedback card.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides MATHQUIZ_DB env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(latexCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(submissionsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration honoring --config and --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.Path = p
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db or store.path, then
// MATHQUIZ_DB, then the default XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.Store.Path != "" {
		return cfg.Store.Path, store.EnsureDir(cfg.Store.Path)
	}
	return store.DefaultDBPath()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// submissionRepo picks the configured submissions backend. The returned
// closer releases a Postgres connection; it is a no-op for SQLite.
func submissionRepo(cfg *config.Config, st *store.Store) (store.SubmissionRepo, func() error, error) {
	if cfg.Store.Driver != config.DriverPostgres {
		return st.SubmissionRepo(), func() error { return nil }, nil
	}
	pg, err := store.OpenPostgres(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// newProvider builds the LLM collaborator, or nil when none is configured.
// recorder may be nil.
func newProvider(ctx context.Context, cfg *config.Config, recorder llm.EventRecorder, log logrus.FieldLogger) llm.Provider {
	if !cfg.LLM.Enabled() {
		return nil
	}
	provider, err := llm.NewProvider(ctx, cfg.LLM, recorder, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "LLM provider not configured:", err)
		fmt.Fprintln(os.Stderr, "Feedback will be built from local assessment only.")
		return nil
	}
	return provider
}

func newSynthesizer(provider llm.Provider, cfg *config.Config, log logrus.FieldLogger) *feedback.Synthesizer {
	return feedback.New(provider, cfg.Feedback, log)
}
