// Package scrape fetches news and tender pages and reduces them to a title
// and main text for extraction.
package scrape

import (
	"context"

	"github.com/sells-group/project-registry/internal/model"
)

// Scraper fetches a single URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.Page, error)
	Name() string
	Supports(url string) bool
}
