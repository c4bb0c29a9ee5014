// Package crawl searches industry news sites for underground wastewater
// plant reports and turns each headline into an observation.
package crawl

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/project-registry/internal/extract"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/scrape"
)

const maxListBytes = 1 << 20

// Item is one headline found on a list page.
type Item struct {
	Source      string            `json:"source"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Summary     string            `json:"summary,omitempty"`
	PublishTime string            `json:"publish_time,omitempty"`
	Observation model.Observation `json:"observation"`
	// Detailed is set once the article page itself was extracted.
	Detailed bool `json:"detailed,omitempty"`
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the list page HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) { c.client = hc }
}

// WithRateLimit caps list page requests per second across all sources.
func WithRateLimit(rps float64) Option {
	return func(c *Crawler) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithConcurrency bounds how many sources are crawled at once.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithExtractor replaces the headline extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(c *Crawler) { c.extractor = e }
}

// WithMatcher filters article links by path.
func WithMatcher(m *scrape.PathMatcher) Option {
	return func(c *Crawler) { c.matcher = m }
}

// Crawler fetches search result pages and extracts headline observations.
type Crawler struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	extractor   extract.Extractor
	matcher     *scrape.PathMatcher
	userAgent   string
}

// New creates a Crawler: one request per second, three sources at a time,
// heuristic extraction.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter:     rate.NewLimiter(1, 1),
		concurrency: 3,
		extractor:   extract.NewHeuristic(),
		matcher:     scrape.NewPathMatcher(nil),
		userAgent:   scrape.DefaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchList fetches one search result page of src.
func (c *Crawler) FetchList(ctx context.Context, src Source, page int) ([]Item, error) {
	pageURL := src.PageURL(page)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "crawl: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBytes))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: read body")
	}
	if blocked, kind := scrape.DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("crawl: %s blocked (%s)", src.Name, kind)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("crawl: %s: status %d", pageURL, resp.StatusCode)
	}

	decoded, err := scrape.DecodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	doc, err := scrape.ParseHTML(decoded)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, it := range ParseList(doc, src.Name, src.base(pageURL)) {
		if c.matcher != nil && c.matcher.IsExcluded(it.URL) {
			continue
		}
		it.Observation = c.observe(ctx, model.Page{URL: it.URL, Title: it.Title, Content: it.Summary})
		items = append(items, it)
	}
	return items, nil
}

func (c *Crawler) observe(ctx context.Context, page model.Page) model.Observation {
	obs := c.extractor.Extract(ctx, page).Observation
	obs.SourceURL = page.URL
	if obs.Title == "" {
		obs.Title = page.Title
	}
	return obs
}

// CrawlSource walks pages 1..pages of src, stopping at the first empty or
// failed page.
func (c *Crawler) CrawlSource(ctx context.Context, src Source, pages int) []Item {
	var all []Item
	for p := 1; p <= pages; p++ {
		items, err := c.FetchList(ctx, src, p)
		if err != nil {
			zap.L().Warn("crawl: list page failed",
				zap.String("source", src.Name),
				zap.Int("page", p),
				zap.Error(err),
			)
			break
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	zap.L().Info("crawl: source done", zap.String("source", src.Name), zap.Int("items", len(all)))
	return all
}

// Crawl runs every source concurrently and returns the items deduplicated
// by URL, in source order.
func (c *Crawler) Crawl(ctx context.Context, sources []Source, pages int) ([]Item, error) {
	if pages <= 0 {
		pages = 1
	}
	results := make([][]Item, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = c.CrawlSource(gCtx, src, pages)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "crawl: cancelled")
	}

	var merged []Item
	for _, r := range results {
		merged = append(merged, r...)
	}
	return Dedupe(merged), nil
}

// Dedupe keeps the first item per URL.
func Dedupe(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it.URL] {
			continue
		}
		seen[it.URL] = true
		out = append(out, it)
	}
	return out
}

// Enrich fetches each item's article and re-extracts from the full text.
// Values found on the article replace the headline's; headline values fill
// what the article lacks. Items whose article cannot be fetched keep their
// headline observation.
func (c *Crawler) Enrich(ctx context.Context, fetcher *scrape.Chain, items []Item, concurrency int) []Item {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	pages := fetcher.ScrapeEach(ctx, urls, concurrency)

	out := make([]Item, len(items))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, it := range items {
		g.Go(func() error {
			if page := pages[i]; page != nil {
				res := c.extractor.Extract(gCtx, *page)
				if res.OK {
					it.Observation = overlay(it.Observation, res.Observation)
					it.Detailed = true
				} else {
					zap.L().Debug("crawl: article extraction degraded",
						zap.String("url", it.URL),
						zap.String("error", res.Err),
					)
				}
			}
			mu.Lock()
			out[i] = it
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// overlay lays detail values over the headline observation.
func overlay(headline, detail model.Observation) model.Observation {
	out := headline
	out.Attributes = headline.Clone()
	for _, f := range model.Fields {
		if !detail.Has(f.Key) {
			continue
		}
		if f.Key == model.FieldName && detail.Name == extract.UnidentifiedName {
			continue
		}
		out.Set(f.Key, detail.Get(f.Key))
	}
	if detail.Summary != "" {
		out.Summary = detail.Summary
	}
	if detail.CompletenessHint != "" {
		out.CompletenessHint = detail.CompletenessHint
	}
	return out
}
