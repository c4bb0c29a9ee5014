package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/pkg/anthropic"
)

// Defaults for the LLM extractor.
const (
	DefaultModel           = "claude-haiku-4-5-20251001"
	DefaultMaxTokens       = 1024
	DefaultMaxContentChars = 6000
)

const systemPrompt = `You are a data extraction assistant for environmental engineering projects.
You read Chinese and English news articles, tender notices and bid announcements about
underground and semi-underground wastewater treatment plants and extract the project facts.
Return one strict JSON object and nothing else. Use null for any fact the text does not state.
Never guess numbers.`

var (
	newlineRun = regexp.MustCompile(`\n+`)
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// LLMOption configures an LLM extractor.
type LLMOption func(*LLM)

// WithModel sets the model name.
func WithModel(model string) LLMOption {
	return func(l *LLM) {
		if model != "" {
			l.model = model
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) LLMOption {
	return func(l *LLM) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// WithMaxContentChars truncates page content before prompting.
func WithMaxContentChars(n int) LLMOption {
	return func(l *LLM) {
		if n > 0 {
			l.maxContent = n
		}
	}
}

// LLM extracts observations with a language model.
type LLM struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	maxContent int
}

// NewLLM creates an LLM extractor.
func NewLLM(client anthropic.Client, opts ...LLMOption) *LLM {
	l := &LLM{
		client:     client,
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
		maxContent: DefaultMaxContentChars,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Extract implements Extractor.
func (l *LLM) Extract(ctx context.Context, page model.Page) Result {
	temp := 0.1
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: l.prompt(page)}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("extract: llm call failed", zap.String("url", page.URL), zap.Error(err))
		return Fallback(page, eris.Wrap(err, "extract: llm call"))
	}
	resp.Usage.LogCost(l.model, "extract")

	raw := resp.Text()
	fields, err := parseReply(raw)
	if err != nil {
		zap.L().Warn("extract: unparsable llm reply",
			zap.String("url", page.URL),
			zap.String("reply", truncate(raw, 200)),
			zap.Error(err),
		)
		res := Fallback(page, err)
		res.Raw = raw
		return res
	}

	obs := model.ObservationFromMap(fields)
	obs.SourceURL = page.URL
	obs.Title = page.Title
	if obs.Name == "" {
		obs.Name = strings.TrimSpace(page.Title)
	}
	obs.CompletenessHint = CompletenessHint(&obs.Attributes)

	return Result{
		Observation: obs,
		OK:          true,
		Raw:         raw,
		Confidence:  ConfidenceMedium,
	}
}

func (l *LLM) prompt(page model.Page) string {
	var b strings.Builder
	b.WriteString("Extract the wastewater treatment project described below.\n\n")
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n\nContent:\n%s\n\n", page.Title, page.URL, CollapseContent(page.Content, l.maxContent))
	b.WriteString("Reply with a JSON object with exactly these keys:\n")
	for _, f := range model.Fields {
		fmt.Fprintf(&b, "- %q: %s\n", f.Key, fieldHint(f))
	}
	b.WriteString(`- "summary": two or three sentences summarizing the project` + "\n")
	return b.String()
}

func fieldHint(f model.FieldSpec) string {
	switch f.Key {
	case model.FieldNearTermScale:
		return "current or first-phase capacity in 10k tons/day, number"
	case model.FieldLongTermScale:
		return "planned total capacity in 10k tons/day, number"
	case model.FieldTotalInvestment:
		return "total investment in 100M CNY (亿元), number"
	case model.FieldLocation:
		return "province and city, e.g. 浙江·嘉兴"
	case model.FieldProcess:
		return "treatment process, e.g. AAO+MBR"
	case model.FieldOperationDate:
		return "date the plant began operating"
	}
	return strings.ToLower(f.Label)
}

// CollapseContent squeezes whitespace runs and truncates to limit runes.
func CollapseContent(s string, limit int) string {
	s = newlineRun.ReplaceAllString(s, "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// parseReply decodes the first JSON object in an LLM reply.
func parseReply(text string) (map[string]any, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("extract: empty llm reply")
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, eris.Wrap(err, "extract: parse llm reply")
	}
	return fields, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
