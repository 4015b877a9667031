package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/mathquiz/internal/config"
	"github.com/abhisek/mathquiz/internal/quiz"
	"github.com/abhisek/mathquiz/internal/server"
	"github.com/abhisek/mathquiz/internal/submission"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	log := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	repo, closeRepo, err := submissionRepo(cfg, st)
	if err != nil {
		return err
	}
	defer closeRepo()

	questions, err := quiz.NewGenerator(nil)
	if err != nil {
		return err
	}

	provider := newProvider(ctx, cfg, st.EventRepo(), log)
	srv := server.New(cfg.Server, server.Deps{
		Synthesizer: newSynthesizer(provider, cfg, log),
		Provider:    provider,
		Questions:   questions,
		Submissions: submission.NewService(repo, log),
	}, log)

	log.WithFields(logrus.Fields{
		"llm":   cfg.LLM.Provider,
		"mode":  cfg.Feedback.Mode,
		"store": cfg.Store.Driver,
	}).Info("Starting mathquiz")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
