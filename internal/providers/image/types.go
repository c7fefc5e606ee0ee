package image

import (
	"context"

	"menugen/internal/domain"
)

// Generator is the narrow contract the batch scheduler consumes. A returned
// error marks the attempt retryable; a returned outcome with status failed is
// a terminal provider rejection and must not be retried.
type Generator interface {
	Generate(ctx context.Context, item domain.LineItem) (domain.GenerationOutcome, error)
}
