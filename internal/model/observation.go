package model

import (
	"strings"
	"time"
)

// Observation is one partial, single-source account of a project. It is
// resolved once against the registry and then discarded.
type Observation struct {
	Attributes

	SourceURL string `json:"source_url,omitempty"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	// CompletenessHint is the extractor's own estimate, e.g. "35%".
	CompletenessHint string `json:"completeness,omitempty"`
	// Fallback marks output of a degraded extraction.
	Fallback bool `json:"fallback,omitempty"`
}

// ObservationFromMap builds an observation from a loosely typed field map.
// Keys with a leading underscore are metadata and skipped; numeric fields
// that do not parse are left absent.
func ObservationFromMap(m map[string]any) Observation {
	var obs Observation
	for k, v := range m {
		if strings.HasPrefix(k, "_") || v == nil {
			continue
		}
		if _, ok := LookupField(FieldKey(k)); ok {
			obs.Set(FieldKey(k), v)
			continue
		}
		s, _ := v.(string)
		switch k {
		case "source_url", "url":
			obs.SourceURL = s
		case "title":
			obs.Title = s
		case "summary":
			obs.Summary = s
		case "completeness":
			obs.CompletenessHint = s
		}
	}
	return obs
}

// Page is a fetched web page.
type Page struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	HTML       string    `json:"-"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
	Fetcher    string    `json:"fetcher,omitempty"`
}

// Detail is one row of the observation log kept beside the registry.
type Detail struct {
	ProjectID    string    `json:"project_id"`
	Source       string    `json:"source"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Completeness string    `json:"completeness"`
	ArchiveLink  string    `json:"archive_link,omitempty"`
	Confidence   string    `json:"confidence"`
	Raw          string    `json:"raw,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Submission is a URL queued through the intake form.
type Submission struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	Note        string    `json:"note,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
