package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"menugen/internal/domain"
	"menugen/internal/infra"
	"menugen/internal/providers/genai"
	"menugen/internal/storage"
)

// GeminiGenerator produces dish photos through the Gemini client and persists
// them into the local file store so outcomes carry servable URLs.
type GeminiGenerator struct {
	client  *genai.Client
	store   *storage.FileStore
	baseURL string
	logger  infra.Logger
}

// NewGeminiGenerator wires the Gemini client to the asset store. baseURL is
// the public prefix under which stored keys are served.
func NewGeminiGenerator(client *genai.Client, store *storage.FileStore, baseURL string, logger infra.Logger) *GeminiGenerator {
	return &GeminiGenerator{
		client:  client,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, item domain.LineItem) (domain.GenerationOutcome, error) {
	photo, err := g.client.GenerateDishPhoto(ctx, genai.PhotoRequest{
		Prompt:    BuildDishPrompt(item),
		RequestID: item.ID,
	})
	if errors.Is(err, genai.ErrRejected) {
		g.logger.Warn().
			Err(err).
			Str("line_item_id", item.ID).
			Msg("image: provider rejected dish prompt")
		return domain.GenerationOutcome{
			LineItemID:   item.ID,
			Status:       domain.OutcomeFailed,
			ErrorMessage: err.Error(),
		}, nil
	}
	if err != nil {
		return domain.GenerationOutcome{}, fmt.Errorf("generate dish photo: %w", err)
	}
	if len(photo.Data) == 0 {
		return domain.GenerationOutcome{}, fmt.Errorf("generate dish photo: empty image payload")
	}

	key, err := g.store.Write(ctx, photo.StorageKey, photo.Data)
	if err != nil {
		return domain.GenerationOutcome{}, fmt.Errorf("persist dish photo: %w", err)
	}

	return domain.GenerationOutcome{
		URL:        g.baseURL + "/" + key,
		LineItemID: item.ID,
		Status:     domain.OutcomeSuccess,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
