package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/project-registry/internal/model"
)

const unrecognized = "unrecognized"

// MergedCard reports an observation merged into an existing project.
func MergedCard(p *model.Project, conflicts int, registryURL string) Card {
	var b strings.Builder
	writeSummary(&b, p)
	fmt.Fprintf(&b, "📎 Sources: %d", p.SourceCount)
	if conflicts > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d conflicting value(s) need manual review", conflicts)
	}
	return Card{
		Title:      "✅ Information merged",
		Template:   TemplateGreen,
		Body:       b.String(),
		ButtonText: "View project",
		ButtonURL:  registryURL,
	}
}

// CreatedCard reports a newly registered project.
func CreatedCard(p *model.Project, registryURL string) Card {
	var b strings.Builder
	writeSummary(&b, p)
	id := p.ProjectID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	fmt.Fprintf(&b, "🆔 Project ID: %s", id)
	return Card{
		Title:      "✅ New project created",
		Template:   TemplateBlue,
		Body:       b.String(),
		ButtonText: "View registry",
		ButtonURL:  registryURL,
	}
}

// FailureCard reports a URL that could not be processed.
func FailureCard(url string, err error) Card {
	return Card{
		Title:    "⚠️ Processing failed",
		Template: TemplateRed,
		Body:     fmt.Sprintf("%s\n\n%v", url, err),
	}
}

func writeSummary(b *strings.Builder, p *model.Project) {
	fmt.Fprintf(b, "**%s**\n\n", orUnrecognized(p.Name))
	fmt.Fprintf(b, "📍 %s\n", orUnrecognized(p.Location))
	fmt.Fprintf(b, "💧 Scale: %s 10k t/d\n", number(p.NearTermScale))
	fmt.Fprintf(b, "💰 Investment: %s 100M CNY\n", number(p.TotalInvestment))
	fmt.Fprintf(b, "📊 Completeness: %s\n", orDefault(p.Completeness, "0%"))
}

func number(v *float64) string {
	if v == nil {
		return unrecognized
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func orUnrecognized(s string) string { return orDefault(s, unrecognized) }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
