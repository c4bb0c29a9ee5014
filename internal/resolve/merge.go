package resolve

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/project-registry/internal/model"
)

// MergeResult is a merged copy of a project plus what changed.
type MergeResult struct {
	Project   *model.Project
	Conflicts []model.ConflictEntry
	Updates   []model.FieldUpdate
}

// Merge folds obs into a copy of existing. Empty fields are filled and
// stamped with source. A differing value never replaces a stored one: it is
// logged as a conflict and the project is flagged for review. existing is
// left untouched.
func (e *Engine) Merge(existing *model.Project, obs *model.Observation, source string) MergeResult {
	merged := existing.Clone()
	now := e.now()

	var (
		conflicts []model.ConflictEntry
		updates   []model.FieldUpdate
	)
	for _, f := range model.Fields {
		incoming := obs.Get(f.Key)
		if incoming == nil {
			continue
		}
		current := merged.Get(f.Key)
		switch {
		case current == nil:
			merged.Set(f.Key, incoming)
			merged.StampSource(f.Key, source)
			updates = append(updates, model.FieldUpdate{Field: f.Key, Value: incoming})
		case equivalent(f.Kind, current, incoming):
		default:
			currentSource := merged.SourceOf(f.Key)
			if currentSource == "" {
				currentSource = model.UnknownSource
			}
			conflicts = append(conflicts, model.ConflictEntry{
				Field:         f.Key,
				CurrentValue:  current,
				NewValue:      incoming,
				CurrentSource: currentSource,
				NewSource:     source,
				Timestamp:     now,
			})
			merged.FlagConflict(f.Key)
			merged.NeedsManualReview = true
		}
	}

	merged.SourceCount++
	merged.UpdatedAt = now
	merged.Completeness = Completeness(&merged.Attributes)
	if len(updates) > 0 {
		merged.UpdateLog = append(merged.UpdateLog, model.UpdateEvent{
			Timestamp: now,
			Source:    source,
			Updates:   updates,
		})
	}
	merged.ConflictLog = append(merged.ConflictLog, conflicts...)

	return MergeResult{Project: merged, Conflicts: conflicts, Updates: updates}
}

// equivalent compares two present values in the same canonical form the
// scorer uses, so cosmetic differences are not conflicts.
func equivalent(kind model.FieldKind, a, b any) bool {
	switch kind {
	case model.KindNumber:
		x, okx := a.(float64)
		y, oky := b.(float64)
		if !okx || !oky {
			return false
		}
		return math.Abs(x-y) <= scoreEpsilon*math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
	case model.KindName:
		sa, sb := asText(a), asText(b)
		na, nb := NormalizeName(sa), NormalizeName(sb)
		if na == "" && nb == "" {
			return foldText(sa) == foldText(sb)
		}
		return na == nb
	case model.KindLocation:
		return LocationKey(asText(a)) == LocationKey(asText(b))
	case model.KindProcess:
		sa, sb := asText(a), asText(b)
		ta, tb := processTokens(sa), processTokens(sb)
		if len(ta) == 0 && len(tb) == 0 {
			return foldText(sa) == foldText(sb)
		}
		if len(ta) != len(tb) {
			return false
		}
		for tok := range ta {
			if !tb[tok] {
				return false
			}
		}
		return true
	default:
		return foldText(asText(a)) == foldText(asText(b))
	}
}

func asText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func foldText(s string) string {
	return strings.Join(strings.Fields(fold(s)), " ")
}

// Completeness is the share of checklist fields that hold a value,
// formatted as a whole percentage.
func Completeness(a *model.Attributes) string {
	var filled, total int
	for _, f := range model.Fields {
		if !f.Checklist {
			continue
		}
		total++
		if a.Has(f.Key) {
			filled++
		}
	}
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(filled)/float64(total)*100)
}
