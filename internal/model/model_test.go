package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 12.5, 12.5, true},
		{"int", 15, 15, true},
		{"json number", json.Number("3.25"), 3.25, true},
		{"plain string", "12.8", 12.8, true},
		{"string with unit", "约12.5亿元", 12.5, true},
		{"thousands separator", "1,200 tons", 1200, true},
		{"negative", "-3", -3, true},
		{"no digits", "undisclosed", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"nan", math.NaN(), 0, false},
		{"nil pointer", (*float64)(nil), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestAttributes_GetSet(t *testing.T) {
	var a Attributes
	assert.Nil(t, a.Get(FieldName))
	assert.Nil(t, a.Get(FieldTotalInvestment))

	a.Set(FieldName, "  Jiaxing WWTP ")
	a.Set(FieldTotalInvestment, "12.5亿")
	a.Set(FieldNearTermScale, "unknown")
	a.Set(FieldDesignFirm, 42)

	assert.Equal(t, "Jiaxing WWTP", a.Get(FieldName))
	assert.Equal(t, 12.5, a.Get(FieldTotalInvestment))
	assert.Nil(t, a.Get(FieldNearTermScale), "unparseable numbers are absent")
	assert.Equal(t, "42", a.Get(FieldDesignFirm))
	assert.True(t, a.Has(FieldName))
	assert.False(t, a.Has(FieldContractor))

	a.Set(FieldName, "   ")
	assert.Nil(t, a.Get(FieldName), "blank strings are absent")

	assert.Nil(t, a.Get(FieldKey("unknown_field")))
	a.Set(FieldKey("unknown_field"), "x")
}

func TestFieldsTable(t *testing.T) {
	var checklist, tracked, core int
	seen := map[FieldKey]bool{}
	for _, f := range Fields {
		require.False(t, seen[f.Key], "duplicate field %s", f.Key)
		seen[f.Key] = true

		var a Attributes
		if f.Kind == KindNumber {
			a.Set(f.Key, 1.0)
		} else {
			a.Set(f.Key, "x")
		}
		assert.True(t, a.Has(f.Key), "field %s has no storage", f.Key)

		if f.Checklist {
			checklist++
		}
		if f.Tracked {
			tracked++
		}
		if f.Core {
			core++
		}
	}
	assert.Equal(t, 8, checklist)
	assert.Equal(t, 9, tracked)
	assert.Equal(t, 6, core)
}

func TestProject_CloneIsDeep(t *testing.T) {
	p := &Project{
		Attributes: Attributes{Name: "A", TotalInvestment: Float(12.5)},
		ProjectID:  "abc",
		UpdateLog:  []UpdateEvent{{Source: "s", Updates: []FieldUpdate{{Field: FieldName, Value: "A"}}}},
	}
	p.StampSource(FieldName, "news")

	c := p.Clone()
	*c.TotalInvestment = 99
	c.StampSource(FieldName, "form")
	c.FlagConflict(FieldName)
	c.UpdateLog[0].Updates[0].Value = "B"
	c.ConflictLog = append(c.ConflictLog, ConflictEntry{Field: FieldName})

	assert.Equal(t, 12.5, *p.TotalInvestment)
	assert.Equal(t, "news", p.SourceOf(FieldName))
	assert.False(t, p.Conflicted(FieldName))
	assert.Equal(t, "A", p.UpdateLog[0].Updates[0].Value)
	assert.Empty(t, p.ConflictLog)
	assert.True(t, c.Conflicted(FieldName))
}

func TestProject_JSONShape(t *testing.T) {
	p := Project{
		RecordID:    "rec-1",
		Attributes:  Attributes{Name: "A", NearTermScale: Float(15)},
		ProjectID:   "abc123def456",
		SourceCount: 1,
	}
	p.StampSource(FieldName, "news")

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "A", m["name"])
	assert.Equal(t, 15.0, m["near_term_scale"])
	assert.Equal(t, "abc123def456", m["project_id"])
	assert.NotContains(t, m, "RecordID")
	assert.NotContains(t, m, "total_investment")
	assert.Equal(t, map[string]any{"name": map[string]any{"source": "news"}}, m["field_meta"])
}

func TestObservationFromMap(t *testing.T) {
	obs := ObservationFromMap(map[string]any{
		"name":             "Jiaxing Plant",
		"total_investment": "12.8亿元",
		"near_term_scale":  "n/a",
		"design_firm":      "Firm X",
		"url":              "https://example.com/a",
		"completeness":     "40%",
		"_error":           "ignored",
		"unrelated":        "ignored",
		"investor":         nil,
	})

	assert.Equal(t, "Jiaxing Plant", obs.Name)
	require.NotNil(t, obs.TotalInvestment)
	assert.Equal(t, 12.8, *obs.TotalInvestment)
	assert.Nil(t, obs.NearTermScale)
	assert.Equal(t, "Firm X", obs.DesignFirm)
	assert.Equal(t, "https://example.com/a", obs.SourceURL)
	assert.Equal(t, "40%", obs.CompletenessHint)
	assert.Empty(t, obs.Investor)
}
