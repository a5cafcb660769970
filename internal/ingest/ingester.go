// Package ingest turns scraped pages into embedded chunks.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/common/metrics"
	"rag-assistant/internal/models"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Entry is one scraped page as written by the scraper.
type Entry struct {
	ID          int64  `json:"id"`
	WebsiteLink string `json:"website_link"`
	PlainText   string `json:"plain_text"`
}

// Report summarizes one run.
type Report struct {
	Entries      int `json:"entries"`
	Skipped      int `json:"skipped"`
	Chunks       int `json:"chunks"`
	FailedChunks int `json:"failed_chunks"`
}

type Ingester struct {
	config     *Config
	embedder   Embedder
	chunks     models.ChunkRepository
	checkpoint *Checkpoint
	logger     logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewIngester(cfg *Config, embedder Embedder, chunks models.ChunkRepository, checkpoint *Checkpoint, log logger.Logger) *Ingester {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Ingester{
		config:     cfg,
		embedder:   embedder,
		chunks:     chunks,
		checkpoint: checkpoint,
		logger:     log.With(map[string]interface{}{"component": "ingest"}),
		sleep:      sleepCtx,
	}
}

// LoadEntries reads a JSON array of scraped entries.
func LoadEntries(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}

// Run ingests every entry newer than the checkpoint. It stops early only when
// ctx ends; per-chunk failures are counted and logged.
func (i *Ingester) Run(ctx context.Context, entries []Entry) (*Report, error) {
	last := i.checkpoint.Last()
	report := &Report{}
	i.logger.Info("ingest started", map[string]interface{}{
		"entries":    len(entries),
		"checkpoint": last,
	})

	for _, e := range entries {
		if e.ID <= last {
			continue
		}
		report.Entries++

		if ShouldSkip(e.PlainText, i.config.MinWords) {
			report.Skipped++
			i.logger.Debug("entry skipped", map[string]interface{}{"id": e.ID})
			continue
		}

		inserted, failed, err := i.IngestEntry(ctx, e)
		report.Chunks += inserted
		report.FailedChunks += failed
		if err != nil {
			return report, err
		}

		if err := i.checkpoint.Advance(e.ID); err != nil {
			i.logger.Error("checkpoint not advanced", map[string]interface{}{
				"id":    e.ID,
				"error": err.Error(),
			})
		}
	}

	i.logger.Info("ingest finished", map[string]interface{}{
		"entries":      report.Entries,
		"skipped":      report.Skipped,
		"chunks":       report.Chunks,
		"failedChunks": report.FailedChunks,
	})
	return report, nil
}

// IngestEntry chunks, embeds and stores one entry. It returns the inserted and
// failed chunk counts; err is non-nil only when ctx ended.
func (i *Ingester) IngestEntry(ctx context.Context, e Entry) (int, int, error) {
	inserted, failed := 0, 0
	for _, text := range SplitWords(e.PlainText, i.config.ChunkSize, i.config.Overlap) {
		if err := ctx.Err(); err != nil {
			return inserted, failed, err
		}

		vec, err := i.embedder.Embed(ctx, text)
		if err != nil {
			failed++
			i.logger.Warn("chunk embedding failed", map[string]interface{}{
				"id":    e.ID,
				"error": err.Error(),
			})
			continue
		}

		chunk := &models.Chunk{
			WebsiteID:   e.ID,
			WebsiteLink: e.WebsiteLink,
			PlainText:   text,
			Embedding:   vec,
		}
		if err := i.insert(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return inserted, failed, ctx.Err()
			}
			failed++
			i.logger.Error("chunk permanently failed", map[string]interface{}{
				"id":       e.ID,
				"attempts": i.config.MaxRetries + 1,
				"error":    err.Error(),
			})
			continue
		}
		inserted++
		metrics.ChunksIngested.Inc()
	}
	return inserted, failed, nil
}

func (i *Ingester) insert(ctx context.Context, chunk *models.Chunk) error {
	var err error
	for attempt := 0; attempt <= i.config.MaxRetries; attempt++ {
		if attempt > 0 {
			i.logger.Warn("retrying chunk insert", map[string]interface{}{
				"id":      chunk.WebsiteID,
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			if serr := i.sleep(ctx, i.config.RetryBackoff); serr != nil {
				return serr
			}
		}
		if err = i.chunks.InsertChunk(ctx, chunk); err == nil {
			return nil
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
