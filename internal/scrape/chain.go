package scrape

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/project-registry/internal/model"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	PathMatcher *PathMatcher
	scrapers    []Scraper
}

var _ Scraper = (*Chain)(nil)

// NewChain creates a Chain with the given path matcher and scrapers.
// Scrapers are tried in order; the first successful result is returned.
func NewChain(matcher *PathMatcher, scrapers ...Scraper) *Chain {
	return &Chain{
		PathMatcher: matcher,
		scrapers:    scrapers,
	}
}

func (c *Chain) Name() string { return "chain" }

// Supports reports whether any scraper in the chain takes url.
func (c *Chain) Supports(url string) bool {
	if c.PathMatcher != nil && c.PathMatcher.IsExcluded(url) {
		return false
	}
	for _, s := range c.scrapers {
		if s.Supports(url) {
			return true
		}
	}
	return false
}

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	if c.PathMatcher != nil && c.PathMatcher.IsExcluded(targetURL) {
		return nil, eris.Errorf("scrape: url excluded by path matcher: %s", targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// ScrapeAll fetches multiple URLs in parallel using the chain.
// maxConcurrent controls the concurrency limit. Failed URLs are skipped;
// pages come back in input order.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []model.Page {
	results := c.ScrapeEach(ctx, urls, maxConcurrent)
	pages := make([]model.Page, 0, len(urls))
	for _, p := range results {
		if p != nil {
			pages = append(pages, *p)
		}
	}
	return pages
}

// ScrapeEach is ScrapeAll with results aligned to urls: entry i is the page
// fetched for urls[i], or nil when it failed. The page's own URL may differ
// from the requested one after redirects or reader canonicalization.
func (c *Chain) ScrapeEach(ctx context.Context, urls []string, maxConcurrent int) []*model.Page {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	var mu sync.Mutex
	results := make([]*model.Page, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, u := range urls {
		g.Go(func() error {
			page, err := c.Scrape(gCtx, u)
			if err != nil {
				zap.L().Debug("scrape: chain failed for url",
					zap.String("url", u),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[i] = page
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
