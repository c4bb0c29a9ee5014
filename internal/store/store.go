// Package store persists the project registry, the observation detail log
// and the intake queue of submitted URLs.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/project-registry/internal/model"
)

// Registry is the system of record for projects. Record IDs are opaque
// handles owned by the backend and distinct from project IDs.
type Registry interface {
	// ListProjects returns every project with RecordID set.
	ListProjects(ctx context.Context) ([]model.Project, error)
	// GetProject returns nil, nil when no project has the given ID.
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	InsertProject(ctx context.Context, p *model.Project) (string, error)
	// UpdateProject replaces the stored record. It fails when recordID is
	// unknown.
	UpdateProject(ctx context.Context, recordID string, p *model.Project) error
	AppendDetail(ctx context.Context, d model.Detail) error

	Migrate(ctx context.Context) error
	Close() error
}

// Intake is the queue of URLs submitted through the intake form.
type Intake interface {
	Submit(ctx context.Context, sub model.Submission) (string, error)
	// PendingSubmissions returns submissions not yet processed, oldest first.
	PendingSubmissions(ctx context.Context) ([]model.Submission, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Submission statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

func encodeProject(p *model.Project) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal project %s", p.ProjectID)
	}
	return b, nil
}

func decodeProject(recordID string, data []byte) (*model.Project, error) {
	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal project record %s", recordID)
	}
	p.RecordID = recordID
	return &p, nil
}
