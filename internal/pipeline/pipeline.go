// Package pipeline turns submitted URLs and observations into registry
// writes: fetch, extract, resolve, archive, log and notify.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/archive"
	"github.com/sells-group/project-registry/internal/extract"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/notify"
	"github.com/sells-group/project-registry/internal/resolve"
	"github.com/sells-group/project-registry/internal/store"
)

// Source labels for the entry points.
const (
	SourceChat = "chat bot submission"
	SourceForm = "intake form"
	SourceCLI  = "command line"
)

const (
	maxDetailSummary = 500
	maxDetailRaw     = 2000
)

// Fetcher retrieves a web page.
type Fetcher interface {
	Scrape(ctx context.Context, url string) (*model.Page, error)
}

// Archiver stores a copy of a fetched page.
type Archiver interface {
	Archive(ctx context.Context, page model.Page, projectID string) (*archive.Record, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchiver enables page archival.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithNotifier sets where progress and result messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithEngine replaces the default resolution engine.
func WithEngine(e *resolve.Engine) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithRegistryURL sets the link shown on result cards.
func WithRegistryURL(u string) Option {
	return func(p *Pipeline) { p.registryURL = u }
}

// Pipeline orchestrates ingestion. All registry read-modify-write cycles go
// through one mutex, so concurrent callers never create duplicate projects.
type Pipeline struct {
	registry    store.Registry
	engine      *resolve.Engine
	fetcher     Fetcher
	extractor   extract.Extractor
	archiver    Archiver
	notifier    notify.Notifier
	registryURL string

	mu sync.Mutex
}

// New creates a Pipeline. fetcher and extractor may be nil when only
// Resolve and Observe are used.
func New(registry store.Registry, fetcher Fetcher, extractor extract.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		engine:    resolve.New(),
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  notify.Discard{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Action says what Resolve did with an observation.
type Action string

const (
	ActionCreated Action = "created"
	ActionMerged  Action = "merged"
)

// Outcome is the result of resolving one observation.
type Outcome struct {
	Action    Action                `json:"action"`
	Project   *model.Project        `json:"project"`
	Score     float64               `json:"score"`
	Conflicts []model.ConflictEntry `json:"conflicts,omitempty"`
	Updates   []model.FieldUpdate   `json:"updates,omitempty"`
}

// Resolve matches obs against the registry, then merges it into the best
// match or registers a new project.
func (p *Pipeline) Resolve(ctx context.Context, obs *model.Observation, source string) (*Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	projects, err := p.registry.ListProjects(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list projects")
	}

	match := p.engine.FindMatch(obs, projects)
	if match.Matched() {
		res := p.engine.Merge(match.Project, obs, source)
		if err := p.registry.UpdateProject(ctx, match.Project.RecordID, res.Project); err != nil {
			return nil, eris.Wrapf(err, "pipeline: update project %s", res.Project.ProjectID)
		}
		zap.L().Info("pipeline: merged observation",
			zap.String("project_id", res.Project.ProjectID),
			zap.Float64("score", match.Score),
			zap.Int("updates", len(res.Updates)),
			zap.Int("conflicts", len(res.Conflicts)),
		)
		return &Outcome{
			Action:    ActionMerged,
			Project:   res.Project,
			Score:     match.Score,
			Conflicts: res.Conflicts,
			Updates:   res.Updates,
		}, nil
	}

	project := p.engine.NewProject(obs, source)
	recordID, err := p.registry.InsertProject(ctx, project)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: insert project %s", project.ProjectID)
	}
	project.RecordID = recordID
	zap.L().Info("pipeline: created project",
		zap.String("project_id", project.ProjectID),
		zap.String("name", project.Name),
		zap.Float64("best_score", match.Score),
	)
	return &Outcome{Action: ActionCreated, Project: project, Score: match.Score}, nil
}

// Observe resolves an observation that arrived without a page (crawler
// headlines, posted JSON) and logs it to the detail table.
func (p *Pipeline) Observe(ctx context.Context, obs *model.Observation, source, confidence string) (*Outcome, error) {
	out, err := p.Resolve(ctx, obs, source)
	if err != nil {
		return nil, err
	}
	d := newDetail(out.Project.ProjectID, source, obs, confidence)
	if err := p.registry.AppendDetail(ctx, d); err != nil {
		zap.L().Warn("pipeline: append detail failed", zap.String("project_id", d.ProjectID), zap.Error(err))
	}
	return out, nil
}

// ResolveAll observes each observation in order and stops at the first
// registry failure.
func (p *Pipeline) ResolveAll(ctx context.Context, observations []model.Observation, source string) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(observations))
	for i := range observations {
		if err := ctx.Err(); err != nil {
			return outcomes, eris.Wrap(err, "pipeline: cancelled")
		}
		out, err := p.Observe(ctx, &observations[i], source, extract.ConfidenceMedium)
		if err != nil {
			return outcomes, eris.Wrapf(err, "pipeline: observation %d", i)
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes, nil
}

func newDetail(projectID, source string, obs *model.Observation, confidence string) model.Detail {
	completeness := obs.CompletenessHint
	if completeness == "" {
		completeness = "0%"
	}
	raw, _ := json.Marshal(obs)
	return model.Detail{
		ProjectID:    projectID,
		Source:       source,
		URL:          obs.SourceURL,
		Title:        obs.Title,
		Summary:      truncateRunes(obs.Summary, maxDetailSummary),
		Completeness: completeness,
		Confidence:   confidence,
		Raw:          truncateRunes(string(raw), maxDetailRaw),
		FetchedAt:    time.Now().UTC(),
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
