package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/pkg/notion"
)

// Property names outside the business schema. Business fields use their
// model.FieldSpec label.
const (
	propProjectID    = "Project ID"
	propSourceCount  = "Source Count"
	propCompleteness = "Completeness"
	propNeedsReview  = "Needs Review"
	propLastUpdated  = "Last Updated"
	propMetadata     = "Metadata"

	propDetailTitle   = "Title"
	propDetailProject = "Project ID"
	propDetailSource  = "Source"
	propDetailURL     = "URL"
	propDetailSummary = "Summary"
	propDetailScore   = "Completeness"
	propDetailArchive = "Archive"
	propDetailConf    = "Confidence"
	propDetailRaw     = "Raw"
	propDetailFetched = "Fetched At"

	propIntakeURL    = "URL"
	propIntakeSource = "Source"
	propIntakeNote   = "Note"
	propIntakeStatus = "Status"
)

// NotionStore keeps the registry, detail log and intake queue in three
// Notion databases. Page IDs are the record IDs.
type NotionStore struct {
	client    notion.Client
	projectDB string
	detailDB  string
	intakeDB  string
}

var (
	_ Registry = (*NotionStore)(nil)
	_ Intake   = (*NotionStore)(nil)
)

// NewNotion creates a Notion-backed store. detailDB and intakeDB may be
// empty when those features are unused.
func NewNotion(client notion.Client, projectDB, detailDB, intakeDB string) *NotionStore {
	return &NotionStore{client: client, projectDB: projectDB, detailDB: detailDB, intakeDB: intakeDB}
}

// notionMeta is the part of a project with no native Notion column.
type notionMeta struct {
	CreatedAt   time.Time                          `json:"created_at"`
	Meta        map[model.FieldKey]model.FieldMeta `json:"field_meta,omitempty"`
	UpdateLog   []model.UpdateEvent                `json:"update_log,omitempty"`
	ConflictLog []model.ConflictEntry              `json:"conflict_log,omitempty"`
}

// Migrate is a no-op: the databases are provisioned in Notion.
func (s *NotionStore) Migrate(context.Context) error { return nil }

func (s *NotionStore) Close() error { return nil }

func (s *NotionStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	pages, err := notion.QueryAll(ctx, s.client, s.projectDB, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion store: list projects")
	}
	out := make([]model.Project, 0, len(pages))
	for _, page := range pages {
		out = append(out, *projectFromPage(page))
	}
	return out, nil
}

func (s *NotionStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	pages, err := notion.QueryAll(ctx, s.client, s.projectDB, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propProjectID,
			RichText: &notionapi.TextFilterCondition{Equals: projectID},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion store: get project %s", projectID)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return projectFromPage(pages[0]), nil
}

func (s *NotionStore) InsertProject(ctx context.Context, p *model.Project) (string, error) {
	props, err := projectProperties(p)
	if err != nil {
		return "", err
	}
	page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.projectDB),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion store: insert project %s", p.ProjectID)
	}
	return string(page.ID), nil
}

func (s *NotionStore) UpdateProject(ctx context.Context, recordID string, p *model.Project) error {
	props, err := projectProperties(p)
	if err != nil {
		return err
	}
	if _, err := s.client.UpdatePage(ctx, recordID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrapf(err, "notion store: update project %s", recordID)
	}
	return nil
}

func (s *NotionStore) AppendDetail(ctx context.Context, d model.Detail) error {
	if s.detailDB == "" {
		return nil
	}
	props := notionapi.Properties{
		propDetailTitle:   notion.Title(d.Title),
		propDetailProject: notion.Text(d.ProjectID),
		propDetailSource:  notion.Select(d.Source),
		propDetailSummary: notion.Text(d.Summary),
		propDetailScore:   notion.Text(d.Completeness),
		propDetailConf:    notion.Select(d.Confidence),
		propDetailRaw:     notion.Text(d.Raw),
		propDetailFetched: notion.Date(d.FetchedAt),
	}
	if d.URL != "" {
		props[propDetailURL] = notion.URL(d.URL)
	}
	if d.ArchiveLink != "" {
		props[propDetailArchive] = notion.URL(d.ArchiveLink)
	}
	_, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.detailDB),
		},
		Properties: props,
	})
	return eris.Wrapf(err, "notion store: append detail for %s", d.ProjectID)
}

func (s *NotionStore) Submit(ctx context.Context, sub model.Submission) (string, error) {
	if s.intakeDB == "" {
		return "", eris.New("notion store: no intake database configured")
	}
	page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.intakeDB),
		},
		Properties: notionapi.Properties{
			propIntakeNote:   notion.Title(sub.Note),
			propIntakeURL:    notion.URL(sub.URL),
			propIntakeSource: notion.Select(sub.Source),
			propIntakeStatus: notion.Select(StatusPending),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "notion store: submit")
	}
	return string(page.ID), nil
}

func (s *NotionStore) PendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	if s.intakeDB == "" {
		return nil, nil
	}
	pages, err := notion.QueryByStatus(ctx, s.client, s.intakeDB, propIntakeStatus, "", StatusPending)
	if err != nil {
		return nil, eris.Wrap(err, "notion store: pending submissions")
	}
	var out []model.Submission
	for _, page := range pages {
		sub := model.Submission{
			ID:          string(page.ID),
			URL:         submissionURL(page.Properties),
			Source:      notion.SelectName(page.Properties, propIntakeSource),
			Note:        notion.TextValue(page.Properties, propIntakeNote),
			SubmittedAt: page.CreatedTime,
		}
		if sub.URL == "" {
			zap.L().Warn("notion store: skipping submission without url", zap.String("page_id", sub.ID))
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *NotionStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.client.UpdatePage(ctx, id, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{propIntakeStatus: notion.Select(StatusProcessed)},
	})
	return eris.Wrapf(err, "notion store: mark submission %s processed", id)
}

// submissionURL accepts a URL column or a text column holding the link.
func submissionURL(props notionapi.Properties) string {
	if u := notion.URLValue(props, propIntakeURL); u != "" {
		return u
	}
	return notion.TextValue(props, propIntakeURL)
}

func projectProperties(p *model.Project) (notionapi.Properties, error) {
	meta, err := json.Marshal(notionMeta{
		CreatedAt:   p.CreatedAt,
		Meta:        p.Meta,
		UpdateLog:   p.UpdateLog,
		ConflictLog: p.ConflictLog,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion store: marshal metadata for %s", p.ProjectID)
	}
	if !notion.TextFits(string(meta)) {
		return nil, eris.Errorf("notion store: metadata for %s is %d bytes, over the %d rune property limit",
			p.ProjectID, len(meta), notion.MaxTextLen)
	}

	props := notionapi.Properties{
		propProjectID:    notion.Text(p.ProjectID),
		propSourceCount:  notion.Number(float64(p.SourceCount)),
		propCompleteness: notion.Text(p.Completeness),
		propNeedsReview:  notion.Checkbox(p.NeedsManualReview),
		propLastUpdated:  notion.Date(p.UpdatedAt),
		propMetadata:     notion.Text(string(meta)),
	}
	for _, f := range model.Fields {
		v := p.Get(f.Key)
		switch {
		case f.Key == model.FieldName:
			props[f.Label] = notion.Title(p.Name)
		case f.Kind == model.KindNumber:
			if n, ok := v.(float64); ok {
				props[f.Label] = notion.Number(n)
			}
		default:
			s, _ := v.(string)
			props[f.Label] = notion.Text(s)
		}
	}
	return props, nil
}

func projectFromPage(page notionapi.Page) *model.Project {
	props := page.Properties
	p := &model.Project{
		RecordID:          string(page.ID),
		ProjectID:         notion.TextValue(props, propProjectID),
		Completeness:      notion.TextValue(props, propCompleteness),
		NeedsManualReview: notion.CheckboxValue(props, propNeedsReview),
		CreatedAt:         page.CreatedTime,
		UpdatedAt:         page.LastEditedTime,
	}
	if n, ok := notion.NumberValue(props, propSourceCount); ok {
		p.SourceCount = int(n)
	}
	for _, f := range model.Fields {
		if f.Kind == model.KindNumber {
			if n, ok := notion.NumberValue(props, f.Label); ok {
				p.Set(f.Key, n)
			}
			continue
		}
		p.Set(f.Key, notion.TextValue(props, f.Label))
	}

	if raw := notion.TextValue(props, propMetadata); raw != "" {
		var meta notionMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			zap.L().Warn("notion store: unreadable project metadata",
				zap.String("page_id", string(page.ID)),
				zap.String("project_id", p.ProjectID),
				zap.Error(err),
			)
		} else {
			if !meta.CreatedAt.IsZero() {
				p.CreatedAt = meta.CreatedAt
			}
			p.Meta = meta.Meta
			p.UpdateLog = meta.UpdateLog
			p.ConflictLog = meta.ConflictLog
		}
	}
	if p.ProjectID == "" {
		p.ProjectID = fmt.Sprintf("notion-%s", page.ID)
	}
	return p
}
