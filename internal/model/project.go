package model

import (
	"maps"
	"slices"
	"time"
)

// UnknownSource labels a value whose origin was never recorded.
const UnknownSource = "unknown"

// FieldMeta is the provenance side-record of one field.
type FieldMeta struct {
	Source   string `json:"source,omitempty"`
	Conflict bool   `json:"conflict,omitempty"`
}

// ConflictEntry records a disagreement between a stored value and a later
// observation. Entries are append-only.
type ConflictEntry struct {
	Field         FieldKey  `json:"field"`
	CurrentValue  any       `json:"current_value"`
	NewValue      any       `json:"new_value"`
	CurrentSource string    `json:"current_source"`
	NewSource     string    `json:"new_source"`
	Timestamp     time.Time `json:"timestamp"`
}

// FieldUpdate is one gap filled during a merge.
type FieldUpdate struct {
	Field FieldKey `json:"field"`
	Value any      `json:"value"`
}

// UpdateEvent groups the gaps filled by one merge.
type UpdateEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Updates   []FieldUpdate `json:"updates"`
}

// Project is the persisted, merged view of one real-world project.
type Project struct {
	// RecordID is the registry's opaque handle. It is never part of the
	// business record.
	RecordID string `json:"-"`

	Attributes

	ProjectID         string                 `json:"project_id"`
	SourceCount       int                    `json:"source_count"`
	Completeness      string                 `json:"completeness"`
	NeedsManualReview bool                   `json:"needs_manual_review"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"last_updated"`
	Meta              map[FieldKey]FieldMeta `json:"field_meta,omitempty"`
	UpdateLog         []UpdateEvent          `json:"update_log,omitempty"`
	ConflictLog       []ConflictEntry        `json:"conflict_log,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	out := *p
	out.Attributes = p.Attributes.Clone()
	out.Meta = maps.Clone(p.Meta)
	out.UpdateLog = slices.Clone(p.UpdateLog)
	for i := range out.UpdateLog {
		out.UpdateLog[i].Updates = slices.Clone(out.UpdateLog[i].Updates)
	}
	out.ConflictLog = slices.Clone(p.ConflictLog)
	return &out
}

// SourceOf returns the provenance label of key, or "" when none was stamped.
func (p *Project) SourceOf(key FieldKey) string {
	return p.Meta[key].Source
}

// Conflicted reports whether a later source disagreed with key.
func (p *Project) Conflicted(key FieldKey) bool {
	return p.Meta[key].Conflict
}

// StampSource records source as the origin of key's current value.
func (p *Project) StampSource(key FieldKey, source string) {
	if p.Meta == nil {
		p.Meta = make(map[FieldKey]FieldMeta)
	}
	m := p.Meta[key]
	m.Source = source
	p.Meta[key] = m
}

// FlagConflict marks key as disputed.
func (p *Project) FlagConflict(key FieldKey) {
	if p.Meta == nil {
		p.Meta = make(map[FieldKey]FieldMeta)
	}
	m := p.Meta[key]
	m.Conflict = true
	p.Meta[key] = m
}
