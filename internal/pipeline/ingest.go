package pipeline

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/notify"
	"github.com/sells-group/project-registry/internal/store"
)

var urlPattern = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// FirstURL returns the first http(s) URL in text, or "".
func FirstURL(text string) string {
	return urlPattern.FindString(text)
}

// IngestResult describes one processed URL.
type IngestResult struct {
	*Outcome
	URL         string `json:"url"`
	ArchiveLink string `json:"archive_link,omitempty"`
	Extracted   bool   `json:"extracted"`
	ExtractErr  string `json:"extract_error,omitempty"`
}

// Ingest fetches url, extracts an observation, resolves it into the
// registry, archives the page and logs the detail record. Progress is
// reported to the notifier.
func (p *Pipeline) Ingest(ctx context.Context, url, source string) (*IngestResult, error) {
	if p.fetcher == nil || p.extractor == nil {
		return nil, eris.New("pipeline: ingest needs a fetcher and an extractor")
	}
	log := zap.L().With(zap.String("url", url), zap.String("source", source))
	log.Info("pipeline: ingesting url")

	p.say(ctx, fmt.Sprintf("🤖 Link received, processing...\n%s", shorten(url, 60)))
	p.say(ctx, "📄 Fetching page...")
	page, err := p.fetcher.Scrape(ctx, url)
	if err != nil {
		p.say(ctx, fmt.Sprintf("⚠️ Fetch failed: %v", err))
		return nil, eris.Wrapf(err, "pipeline: fetch %s", url)
	}

	p.say(ctx, "🧠 Extracting project information...")
	res := p.extractor.Extract(ctx, *page)
	if !res.OK {
		log.Warn("pipeline: extraction degraded", zap.String("error", res.Err))
		p.say(ctx, fmt.Sprintf("⚠️ Extraction degraded, keeping a placeholder record: %s", res.Err))
	}
	obs := res.Observation
	if obs.SourceURL == "" {
		obs.SourceURL = url
	}
	if obs.Title == "" {
		obs.Title = page.Title
	}

	p.say(ctx, "🔍 Matching against the registry...")
	out, err := p.Resolve(ctx, &obs, source)
	if err != nil {
		p.say(ctx, fmt.Sprintf("⚠️ Registry write failed: %v", err))
		return nil, err
	}
	if out.Action == ActionMerged {
		p.say(ctx, fmt.Sprintf("📌 Found a similar project (similarity %.0f%%), information merged", out.Score*100))
	} else {
		p.say(ctx, "🆕 No matching project, new project created")
	}

	result := &IngestResult{Outcome: out, URL: url, Extracted: res.OK, ExtractErr: res.Err}
	if p.archiver != nil {
		p.say(ctx, "💾 Archiving page...")
		rec, err := p.archiver.Archive(ctx, *page, out.Project.ProjectID)
		if err != nil {
			log.Warn("pipeline: archive failed", zap.Error(err))
		} else if rec != nil {
			result.ArchiveLink = rec.Link
		}
	}

	d := newDetail(out.Project.ProjectID, source, &obs, res.Confidence)
	d.URL = url
	d.Title = page.Title
	d.ArchiveLink = result.ArchiveLink
	if !page.FetchedAt.IsZero() {
		d.FetchedAt = page.FetchedAt
	}
	if err := p.registry.AppendDetail(ctx, d); err != nil {
		log.Warn("pipeline: append detail failed", zap.Error(err))
	}

	p.card(ctx, out)
	return result, nil
}

// ProcessMessage ingests the first URL found in a chat message. A message
// without a URL gets a hint back and yields nil, nil.
func (p *Pipeline) ProcessMessage(ctx context.Context, text, source string) (*IngestResult, error) {
	url := FirstURL(text)
	if url == "" {
		p.say(ctx, "⚠️ No link found, please send a message containing a link")
		return nil, nil
	}
	return p.Ingest(ctx, url, source)
}

// BatchSummary counts the results of a batch.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessSubmissions ingests every pending intake submission and marks it
// processed. Failed submissions stay pending for the next run.
func (p *Pipeline) ProcessSubmissions(ctx context.Context, intake store.Intake, source string) (BatchSummary, error) {
	var sum BatchSummary
	subs, err := intake.PendingSubmissions(ctx)
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: list pending submissions")
	}
	sum.Total = len(subs)
	if len(subs) == 0 {
		zap.L().Info("pipeline: no pending submissions")
		return sum, nil
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "pipeline: cancelled")
		}
		label := source
		if sub.Source != "" {
			label = sub.Source
		}
		if _, err := p.Ingest(ctx, sub.URL, label); err != nil {
			sum.Failed++
			zap.L().Warn("pipeline: submission failed",
				zap.String("submission_id", sub.ID),
				zap.String("url", sub.URL),
				zap.Error(err),
			)
			continue
		}
		if err := intake.MarkProcessed(ctx, sub.ID); err != nil {
			zap.L().Warn("pipeline: mark processed failed", zap.String("submission_id", sub.ID), zap.Error(err))
		}
		sum.Succeeded++
	}

	zap.L().Info("pipeline: submissions processed",
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (p *Pipeline) say(ctx context.Context, text string) {
	_ = p.notifier.Text(ctx, text)
}

func (p *Pipeline) card(ctx context.Context, out *Outcome) {
	var c notify.Card
	if out.Action == ActionMerged {
		c = notify.MergedCard(out.Project, len(out.Conflicts), p.registryURL)
	} else {
		c = notify.CreatedCard(out.Project, p.registryURL)
	}
	_ = p.notifier.Card(ctx, c)
}

func shorten(s string, limit int) string {
	if len([]rune(s)) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

