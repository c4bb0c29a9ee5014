package resolve

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
)

// DefaultThreshold is the minimum similarity for two records to be the
// same project.
const DefaultThreshold = 0.80

// scoreEpsilon absorbs float summation error at the threshold.
const scoreEpsilon = 1e-9

// Engine matches observations against a population of projects and folds
// them in. It holds no mutable state and is safe for concurrent use, but
// callers must serialize the read-modify-write cycle against the registry.
type Engine struct {
	threshold float64
	score     ScoreFunc
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides DefaultThreshold. Non-positive values are ignored.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithScorer replaces the similarity function.
func WithScorer(fn ScoreFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.score = fn
		}
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		threshold: DefaultThreshold,
		score:     Similarity,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the match threshold in effect.
func (e *Engine) Threshold() float64 { return e.threshold }

// MatchResult is the outcome of FindMatch. Project is nil when nothing
// reached the threshold; Score is the best score seen either way.
type MatchResult struct {
	Project *model.Project
	Score   float64
}

// Matched reports whether a project was found.
func (m MatchResult) Matched() bool { return m.Project != nil }

// FindMatch scores obs against every candidate and returns the highest
// scorer if it meets the threshold. Ties go to the earlier candidate. The
// returned project points into candidates and must not be modified.
func (e *Engine) FindMatch(obs *model.Observation, candidates []model.Project) MatchResult {
	best := -1
	bestScore := 0.0
	for i := range candidates {
		s := e.score(&obs.Attributes, &candidates[i].Attributes)
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return MatchResult{}
	}

	zap.L().Debug("resolve: best candidate",
		zap.String("project_id", candidates[best].ProjectID),
		zap.Float64("score", bestScore),
		zap.Int("candidates", len(candidates)),
	)

	if bestScore < e.threshold-scoreEpsilon {
		return MatchResult{Score: bestScore}
	}
	return MatchResult{Project: &candidates[best], Score: bestScore}
}
