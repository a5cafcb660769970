package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rag-assistant/internal/clients/embedding"
	"rag-assistant/internal/common/config"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/ingest"

	"github.com/spf13/cobra"
)

func ingestCmd(load func() (*config.Config, error)) *cobra.Command {
	var file, checkpoint string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store scraped pages newer than the checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if checkpoint != "" {
				cfg.Ingest.CheckpointFile = checkpoint
			}
			return runIngest(cmd, cfg, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "scraped_data/k.json", "JSON array of scraped entries")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "checkpoint file (overrides ingest.checkpoint_file)")
	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, file string) error {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := ingest.LoadEntries(file)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ing := ingest.NewIngester(
		ingest.LoadConfig(cfg.Ingest),
		embedding.NewClient(embedding.LoadConfig(cfg.Services.Embedding), log),
		b.chunks,
		ingest.NewCheckpoint(cfg.Ingest.CheckpointFile),
		log,
	)

	report, err := ing.Run(ctx, entries)
	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "entries=%d skipped=%d chunks=%d failed=%d\n",
			report.Entries, report.Skipped, report.Chunks, report.FailedChunks)
	}
	return err
}
