package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rag-assistant/internal/assistant/ask"
	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/prompt"
	"rag-assistant/internal/assistant/retrieval"
	"rag-assistant/internal/assistant/scrape"
	"rag-assistant/internal/clients/completion"
	"rag-assistant/internal/clients/embedding"
	"rag-assistant/internal/clients/scraper"
	"rag-assistant/internal/common/config"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/common/observability"
	"rag-assistant/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})
	log.Info("starting", map[string]interface{}{"environment": cfg.App.Environment})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("observability disabled", map[string]interface{}{"error": err.Error()})
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		zapLog.Error("storage unavailable", zap.Error(err))
		return err
	}
	defer b.Close()

	requests, scrapes, cache := b.state(cfg)

	orchestrator := scrape.NewOrchestrator(
		scraper.NewClient(scraper.LoadConfig(cfg.Services.Scraper), log),
		scrapes,
		b.turns,
		config.GetDuration(cfg.Services.Scraper.Timeout),
		log,
	)

	handler := ask.NewHandler(ask.LoadConfig(cfg.Retrieval), ask.Deps{
		Embedder:  embedding.NewClient(embedding.LoadConfig(cfg.Services.Embedding), log),
		Completer: completion.NewClient(completion.LoadConfig(cfg.Services.Completion), log),
		Chunks:    b.chunks,
		Turns:     b.turns,
		Cache:     cache,
		Scrapes:   orchestrator,
		Requests:  requests,
		Engine: retrieval.NewEngine(&retrieval.Config{
			TopK:             cfg.Retrieval.TopK,
			Threshold:        cfg.Retrieval.Threshold,
			RelaxedThreshold: cfg.Retrieval.RelaxedThreshold,
		}),
		Prompts: prompt.NewBuilder(&prompt.Config{
			ChunkCharBudget: cfg.Retrieval.ChunkCharBudget,
			HistoryTurns:    cfg.Retrieval.PromptHistoryTurns,
			PreviousAnswer:  prompt.DefaultConfig().PreviousAnswer,
		}),
		Classifier:    intent.NewClassifier(),
		Observability: obs,
	}, log)

	srv := server.New(cfg.Server, server.Deps{
		Assistant: handler,
		Chunks:    b.chunks,
		Checkers:  b.checkers,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", map[string]interface{}{"error": err.Error()})
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	// scrapes write their outcome turn before the stores close
	if err := orchestrator.Wait(shutdownCtx); err != nil {
		log.Warn("abandoned running scrapes", map[string]interface{}{"error": err.Error()})
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("observability shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("stopped", nil)
	return nil
}
