// Package interfaces defines service contracts for dsefeed
package interfaces

import (
	"context"

	"github.com/bobmcallan/dsefeed/internal/models"
)

// PageFetcher retrieves raw upstream pages. Implementations do not interpret content.
type PageFetcher interface {
	// Fetch returns the page body for req, or a *common.FetchError
	Fetch(ctx context.Context, req models.PageRequest) ([]byte, error)
}
