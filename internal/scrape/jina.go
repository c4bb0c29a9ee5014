package scrape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/pkg/jina"
)

// BreakerSettings configures when the Jina reader is taken out of the
// fetch chain. A zero field takes its value from DefaultBreaker.
type BreakerSettings struct {
	Failures int           // failures within Window that open the breaker
	Window   time.Duration // a gap longer than this resets the count
	Cooldown time.Duration // how long the reader is skipped once open
}

// DefaultBreaker opens after 3 failures within 30s and skips the reader
// for a minute.
var DefaultBreaker = BreakerSettings{Failures: 3, Window: 30 * time.Second, Cooldown: time.Minute}

func (b BreakerSettings) withDefaults() BreakerSettings {
	if b.Failures <= 0 {
		b.Failures = DefaultBreaker.Failures
	}
	if b.Window <= 0 {
		b.Window = DefaultBreaker.Window
	}
	if b.Cooldown <= 0 {
		b.Cooldown = DefaultBreaker.Cooldown
	}
	return b
}

// readerBreaker counts reader failures. Once open it stays open for the
// cooldown, then lets a single trial fetch through; a failed trial reopens
// it straight away.
type readerBreaker struct {
	cfg BreakerSettings
	now func() time.Time

	mu       sync.Mutex
	streak   int
	lastFail time.Time
	until    time.Time
	trial    bool
}

func (b *readerBreaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.until)
}

func (b *readerBreaker) fail(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if !b.until.IsZero() && !now.Before(b.until) {
		b.trial = true
	}
	if now.Sub(b.lastFail) > b.cfg.Window {
		b.streak = 0
	}
	b.streak++
	b.lastFail = now
	if b.trial || b.streak >= b.cfg.Failures {
		b.until = now.Add(b.cfg.Cooldown)
		b.trial = false
		zap.L().Warn("scrape: jina reader skipped after failures",
			zap.String("url", url),
			zap.Int("failures", b.streak),
			zap.Duration("cooldown", b.cfg.Cooldown),
		)
	}
}

func (b *readerBreaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
	b.until = time.Time{}
	b.trial = false
}

// JinaOption configures a JinaAdapter.
type JinaOption func(*JinaAdapter)

// WithBreaker overrides DefaultBreaker.
func WithBreaker(s BreakerSettings) JinaOption {
	return func(j *JinaAdapter) { j.breaker.cfg = s.withDefaults() }
}

// JinaAdapter renders pages through the Jina reader for sites the local
// scraper is blocked from. Repeated failures take it out of the chain for
// a cooldown so the chain falls through without waiting on it.
type JinaAdapter struct {
	client  jina.Client
	breaker *readerBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client.
func NewJinaAdapter(client jina.Client, opts ...JinaOption) *JinaAdapter {
	j := &JinaAdapter{
		client:  client,
		breaker: &readerBreaker{cfg: DefaultBreaker, now: time.Now},
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports reports false while the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return !j.breaker.open()
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	if j.breaker.open() {
		return nil, eris.New("jina: circuit breaker open")
	}

	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		// A cancelled crawl says nothing about the reader.
		if ctx.Err() == nil {
			j.breaker.fail(targetURL)
		}
		return nil, err
	}

	if needsFallback(resp) {
		j.breaker.fail(targetURL)
		return nil, eris.New("jina: response needs fallback")
	}

	j.breaker.succeed()
	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &model.Page{
		URL:        pageURL,
		Title:      resp.Data.Title,
		Content:    resp.Data.Content,
		StatusCode: resp.Code,
		FetchedAt:  time.Now().UTC(),
		Fetcher:    j.Name(),
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
	"安全验证",
	"访问过于频繁",
}

// needsFallback checks whether a Jina response contains usable content
// or indicates the page is blocked/empty. Returns true if the response
// should be retried with a different scraper.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}

	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)

	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)

	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}

	return false
}
