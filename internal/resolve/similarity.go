package resolve

import (
	"math"
	"regexp"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/project-registry/internal/model"
)

// Component weights. Missing evidence contributes nothing; the total is not
// rescaled by the weight actually available.
const (
	WeightName           = 0.35
	WeightLocationExact  = 0.25
	WeightLocationRegion = 0.15
	WeightScale          = 0.20
	WeightInvestment     = 0.10
	WeightProcess        = 0.10
)

// ScoreFunc rates how likely two records describe the same project, in [0,1].
type ScoreFunc func(a, b *model.Attributes) float64

// Similarity is the default ScoreFunc: a weighted sum of name, location,
// scale, investment and process evidence, capped at 1.
func Similarity(a, b *model.Attributes) float64 {
	score := WeightName*nameRatio(a.Name, b.Name) +
		locationScore(a, b) +
		WeightScale*closeness(a.NearTermScale, b.NearTermScale) +
		WeightInvestment*closeness(a.TotalInvestment, b.TotalInvestment) +
		processScore(a.ProcessDescription, b.ProcessDescription)
	return math.Min(score, 1)
}

// nameRatio is 1 minus the edit distance over the longer normalized name.
func nameRatio(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

func locationScore(a, b *model.Attributes) float64 {
	ka := LocationKey(effectiveLocation(a))
	kb := LocationKey(effectiveLocation(b))
	switch {
	case ka == "" || kb == "":
		return 0
	case ka == kb:
		return WeightLocationExact
	case regionOfKey(ka) == regionOfKey(kb):
		return WeightLocationRegion
	}
	return 0
}

// closeness is 1 - |x-y|/max(x,y), clamped at 0. Absent or non-positive
// figures give 0.
func closeness(x, y *float64) float64 {
	if x == nil || y == nil {
		return 0
	}
	hi := math.Max(*x, *y)
	if hi <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(*x-*y)/hi)
}

var acronymRe = regexp.MustCompile(`[A-Z]{2,}`)

// processTokens extracts technology acronyms such as AAO or MBR.
func processTokens(s string) map[string]bool {
	matches := acronymRe.FindAllString(normNFKC(s), -1)
	if len(matches) == 0 {
		return nil
	}
	set := make(map[string]bool, len(matches))
	for _, m := range matches {
		set[m] = true
	}
	return set
}

func processScore(a, b string) float64 {
	ta := processTokens(a)
	for tok := range processTokens(b) {
		if ta[tok] {
			return WeightProcess
		}
	}
	return 0
}
