package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/resolve"
)

type scalePattern struct {
	re *regexp.Regexp
	// factor converts the match to 10k tons/day.
	factor float64
}

var scalePatterns = []scalePattern{
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*万\s*(?:吨|t)\s*[/／每]\s*[日天dD]`), 1},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*万\s*(?:m³|m3|立方米|方)\s*[/／每]\s*[日天dD]`), 1},
	{regexp.MustCompile(`处理规模\D{0,12}?(\d+(?:\.\d+)?)\s*万`), 1},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*thousand\s+(?:tons?|tonnes?|m3|cubic\s+met(?:er|re)s?)\s*(?:/|per)\s*day`), 0.1},
}

var investmentPatterns = []scalePattern{
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*亿\s*元`), 1},
	{regexp.MustCompile(`投资\D{0,12}?(\d+(?:\.\d+)?)\s*亿`), 1},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*billion\s*(?:yuan|cny|rmb)`), 10},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*亿`), 1},
}

var bidderPattern = regexp.MustCompile(`中标(?:单位|人|供应商|方|结果)\s*[：:]\s*([^\n,，。；;]+)`)

var processPattern = regexp.MustCompile(`(?i)\b(?:A2/O|A2O|AAO|A/O|MBR|MBBR|SBR|CASS|MSBR|BAF|AOA)\b|A²/O|A²O|氧化沟|深床滤池|高效沉淀池|反硝化滤池|磁混凝`)

// Plausible total investment in 100M CNY.
const (
	minInvestment = 0.1
	maxInvestment = 500
)

// Heuristic extracts observations with regular expressions. It needs no
// network and serves as the fallback for the LLM extractor and as the
// extractor for crawled list items.
type Heuristic struct{}

// NewHeuristic creates a heuristic extractor.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Extract implements Extractor.
func (h *Heuristic) Extract(_ context.Context, page model.Page) Result {
	text := page.Title + "\n" + page.Content

	obs := model.Observation{SourceURL: page.URL, Title: page.Title}
	obs.Name = TitleName(page.Title)
	obs.Location = resolve.ExtractLocation(text)
	if v, ok := firstMatch(scalePatterns, text, func(float64) bool { return true }); ok {
		obs.NearTermScale = model.Float(v)
	}
	if v, ok := firstMatch(investmentPatterns, text, plausibleInvestment); ok {
		obs.TotalInvestment = model.Float(v)
	}
	if m := bidderPattern.FindStringSubmatch(text); m != nil {
		obs.Contractor = strings.TrimSpace(m[1])
	}
	obs.ProcessDescription = processTokens(text)
	obs.Summary = truncate(CollapseContent(page.Content, 0), 200)

	if obs.Name == "" && !hasFacts(&obs.Attributes) {
		return Fallback(page, eris.New("extract: no project facts found"))
	}
	if obs.Name == "" {
		obs.Name = UnidentifiedName
	}
	obs.CompletenessHint = CompletenessHint(&obs.Attributes)
	return Result{Observation: obs, OK: true, Confidence: ConfidenceLow}
}

// TitleName strips a trailing site name ("… _中国水网", "… - 北极星环保网")
// from a page title.
func TitleName(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{"_", "|", " - ", "——"} {
		if i := strings.Index(title, sep); i > 0 {
			title = strings.TrimSpace(title[:i])
		}
	}
	return title
}

func firstMatch(patterns []scalePattern, text string, ok func(float64) bool) (float64, bool) {
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			v *= p.factor
			if ok(v) {
				return v, true
			}
		}
	}
	return 0, false
}

func plausibleInvestment(v float64) bool {
	return v > minInvestment && v < maxInvestment
}

func processTokens(text string) string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range processPattern.FindAllString(text, -1) {
		key := strings.ToUpper(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return strings.Join(out, "+")
}

func hasFacts(a *model.Attributes) bool {
	for _, f := range model.Fields {
		if f.Key != model.FieldName && a.Has(f.Key) {
			return true
		}
	}
	return false
}
