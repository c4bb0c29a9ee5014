// Package extract turns fetched pages into observations. Extraction never
// fails outright: a degraded run still yields a minimal observation, and the
// Result says what went wrong.
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
)

// Confidence labels recorded in the detail log.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// UnidentifiedName names a project when neither the extractor nor the page
// title yields one.
const UnidentifiedName = "unidentified project"

// FallbackCompleteness is the completeness hint of a degraded extraction.
const FallbackCompleteness = "5%"

// Extractor produces an observation from a page.
type Extractor interface {
	Extract(ctx context.Context, page model.Page) Result
}

// Result is the outcome of one extraction. When OK is false the
// observation is the fallback record and Err carries the reason.
type Result struct {
	Observation model.Observation
	OK          bool
	Err         string
	// Raw is the extractor's unparsed output, kept for the detail log.
	Raw        string
	Confidence string
}

// Fallback builds the degraded result for page.
func Fallback(page model.Page, err error) Result {
	name := strings.TrimSpace(page.Title)
	if name == "" {
		name = UnidentifiedName
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	obs := model.Observation{
		SourceURL:        page.URL,
		Title:            page.Title,
		Summary:          fmt.Sprintf("extraction failed: %s", msg),
		CompletenessHint: FallbackCompleteness,
		Fallback:         true,
	}
	obs.Name = name
	return Result{Observation: obs, Err: msg, Confidence: ConfidenceLow}
}

// CompletenessHint scores how much of the schema an observation fills:
// 60% from core field coverage plus 40% from coverage of every field.
func CompletenessHint(a *model.Attributes) string {
	var core, coreHit, all, allHit int
	for _, f := range model.Fields {
		has := a.Has(f.Key)
		all++
		if has {
			allHit++
		}
		if f.Core {
			core++
			if has {
				coreHit++
			}
		}
	}
	if all == 0 {
		return "0%"
	}
	score := float64(coreHit)/float64(core)*60 + float64(allHit)/float64(all)*40
	return fmt.Sprintf("%.0f%%", score)
}

type fallbackExtractor struct {
	primary   Extractor
	secondary Extractor
}

// WithFallback runs secondary over the same page whenever primary degrades.
// The primary's error text is kept on the secondary's result.
func WithFallback(primary, secondary Extractor) Extractor {
	return &fallbackExtractor{primary: primary, secondary: secondary}
}

func (f *fallbackExtractor) Extract(ctx context.Context, page model.Page) Result {
	res := f.primary.Extract(ctx, page)
	if res.OK || f.secondary == nil || ctx.Err() != nil {
		return res
	}

	zap.L().Warn("extract: primary extractor degraded, trying secondary",
		zap.String("url", page.URL),
		zap.String("error", res.Err),
	)
	sec := f.secondary.Extract(ctx, page)
	if sec.Err == "" {
		sec.Err = res.Err
	} else {
		sec.Err = res.Err + "; " + sec.Err
	}
	return sec
}
