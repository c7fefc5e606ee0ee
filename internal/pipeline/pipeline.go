package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"menugen/internal/batch"
	"menugen/internal/cache"
	"menugen/internal/domain"
	"menugen/internal/infra"
	"menugen/internal/storage"
)

// Pipeline drives one session end to end: store the uploaded menu, seed the
// cache entry, submit the generation batch, and publish the aggregate once
// every item reached a terminal state.
type Pipeline struct {
	scheduler *batch.Scheduler
	cache     *cache.ResultsCache
	store     *storage.FileStore
	logger    infra.Logger
}

// New wires the pipeline. Register HandleProgress on the scheduler before
// starting it.
func New(scheduler *batch.Scheduler, results *cache.ResultsCache, store *storage.FileStore, logger infra.Logger) *Pipeline {
	return &Pipeline{
		scheduler: scheduler,
		cache:     results,
		store:     store,
		logger:    logger,
	}
}

// Start begins processing one uploaded menu and returns the session id.
func (p *Pipeline) Start(ctx context.Context, menuImage []byte, filename string, items []domain.LineItem, priority int) (string, error) {
	if len(items) == 0 {
		return "", domain.ErrInvalidArgument
	}
	sessionID := uuid.NewString()

	imageKey := ""
	if len(menuImage) > 0 {
		key := fmt.Sprintf("uploads/%s/%s", sessionID, uploadName(filename))
		saved, err := p.store.Write(ctx, key, menuImage)
		if err != nil {
			return "", fmt.Errorf("store menu upload: %w", err)
		}
		imageKey = saved
	}

	initial := domain.ProcessingResult{
		OriginalImage:    imageKey,
		ExtractedItems:   items,
		ProcessingStatus: domain.ProcessingInProgress,
	}
	if err := p.cache.Save(ctx, sessionID, initial); err != nil {
		return "", err
	}
	if err := p.scheduler.AddBatch(sessionID, items, priority); err != nil {
		return "", err
	}

	p.logger.Info().
		Str("session_id", sessionID).
		Int("items", len(items)).
		Msg("pipeline: session started")
	return sessionID, nil
}

// HandleProgress observes scheduler progress and publishes the finished
// aggregate on the last terminal item. Per-item failures never fail the
// batch; the session completes even when every item failed.
func (p *Pipeline) HandleProgress(sessionID string, progress batch.Progress) {
	p.logger.Debug().
		Str("session_id", sessionID).
		Int("completed", progress.Completed).
		Int("failed", progress.Failed).
		Int("total", progress.Total).
		Msg("pipeline: progress")

	if progress.Completed+progress.Failed < progress.Total {
		return
	}
	job, ok := p.scheduler.Results(sessionID)
	if !ok || job.Status != batch.BatchCompleted {
		return
	}

	ctx := context.Background()
	result, err := p.cache.Get(ctx, sessionID)
	if err != nil {
		// Session was deleted or expired mid-flight; nothing to publish.
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("pipeline: session gone before publish")
		return
	}
	result.GeneratedImages = job.Results
	result.ProcessingStatus = domain.ProcessingCompleted
	if err := p.cache.Save(ctx, sessionID, result); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("pipeline: publish failed")
		return
	}

	p.logger.Info().
		Str("session_id", sessionID).
		Int("succeeded", job.Completed).
		Int("failed", job.Failed).
		Msg("pipeline: session completed")
}

func uploadName(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "menu.png"
	}
	return base
}
