// Package resolve decides whether an observation describes a known project
// and folds it in without losing disagreements. Everything here is pure and
// synchronous; callers own I/O and serialization of writes.
package resolve

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// cjkModifiers are descriptive words that do not identify a project.
// Order here is irrelevant: the replacer is built longest first.
var cjkModifiers = []string{
	"首座", "首台", "首个", "第一", "最大", "最新",
	"花园式", "智慧", "生态", "绿色", "环保", "智能",
	"全地下式", "半地下式", "全地下", "半地下", "地埋式", "地下式", "地下",
	"污水处理厂", "污水处理", "处理厂", "污水", "净水", "水处理", "再生水",
	"厂", "项目", "工程", "改扩建", "提标改造",
}

// latinModifiers are dropped as whole words only.
var latinModifiers = map[string]bool{
	"the": true, "of": true, "and": true,
	"underground": true, "subterranean": true, "buried": true, "semi": true, "fully": true,
	"garden": true, "style": true, "smart": true, "intelligent": true,
	"ecological": true, "eco": true, "green": true, "environmental": true,
	"largest": true, "first": true, "newest": true, "biggest": true,
	"water": true, "wastewater": true, "sewage": true, "reclaimed": true, "purification": true,
	"treatment": true, "plant": true, "facility": true, "station": true,
	"wwtp": true, "stp": true, "project": true, "works": true, "phase": true,
	"expansion": true, "upgrade": true, "renovation": true,
}

var (
	modifierReplacer = newModifierReplacer(cjkModifiers)
	latinPhaseRe     = regexp.MustCompile(`\bphase\s*(?:\d+|[ivx]+)\b`)
	cjkPhaseRe       = regexp.MustCompile(`第?[一二三四五六七八九十\d]+期`)
)

func newModifierReplacer(words []string) *strings.Replacer {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	pairs := make([]string, 0, len(sorted)*2)
	for _, w := range sorted {
		pairs = append(pairs, w, "")
	}
	return strings.NewReplacer(pairs...)
}

// NormalizeName reduces a project name to its identifying core: lowercased,
// width-folded, stripped of descriptive modifiers, phase markers and every
// rune that is not a letter or digit. Empty input yields "".
func NormalizeName(name string) string {
	s := fold(name)
	if s == "" {
		return ""
	}
	s = latinPhaseRe.ReplaceAllString(s, " ")
	s = cjkPhaseRe.ReplaceAllString(s, " ")
	s = modifierReplacer.Replace(s)

	var b strings.Builder
	for _, tok := range strings.FieldsFunc(s, notAlnum) {
		if latinModifiers[tok] {
			continue
		}
		b.WriteString(tok)
	}
	return b.String()
}

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

func normNFKC(s string) string {
	return norm.NFKC.String(s)
}

func notAlnum(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
