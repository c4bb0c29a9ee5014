package resolve

import (
	"strings"

	"github.com/sells-group/project-registry/internal/model"
)

// DefaultCompleteness is used when an observation carries no hint.
const DefaultCompleteness = "10%"

// NewProject mints a project from an unmatched observation. The project ID
// is the observation's fingerprint and never changes afterwards.
func (e *Engine) NewProject(obs *model.Observation, source string) *model.Project {
	now := e.now()
	p := &model.Project{
		Attributes:   obs.Attributes.Clone(),
		ProjectID:    Fingerprint(&obs.Attributes),
		SourceCount:  1,
		Completeness: DefaultCompleteness,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if hint := strings.TrimSpace(obs.CompletenessHint); hint != "" {
		p.Completeness = hint
	}
	for _, f := range model.Fields {
		if f.Tracked && p.Has(f.Key) {
			p.StampSource(f.Key, source)
		}
	}
	return p
}
