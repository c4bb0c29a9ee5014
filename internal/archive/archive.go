// Package archive keeps a copy of every source page so registry values can
// be traced back to the text they came from.
package archive

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
)

// Backend stores archive objects.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Link returns a stable reference to the stored object.
	Link(key string) string
}

// Meta is the JSON sidecar stored next to each archived page.
type Meta struct {
	URL           string    `json:"url"`
	ProjectID     string    `json:"project_id"`
	Title         string    `json:"title,omitempty"`
	ArchivedAt    time.Time `json:"archive_time"`
	FetchedAt     time.Time `json:"fetched_at"`
	Fetcher       string    `json:"fetcher,omitempty"`
	StatusCode    int       `json:"status_code"`
	ContentType   string    `json:"content_type"`
	ContentLength int       `json:"content_length"`
	File          string    `json:"html_file"`
}

// Record describes a stored page.
type Record struct {
	Base       string
	Link       string
	MetaLink   string
	ArchivedAt time.Time
	Bytes      int
}

// Archiver writes pages and their metadata to a Backend.
type Archiver struct {
	backend Backend
	now     func() time.Time
}

// New creates an Archiver over backend.
func New(backend Backend) *Archiver {
	return &Archiver{backend: backend, now: time.Now}
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_]`)

const maxIDLen = 20

// Key builds the object name "{safe_project_id}_{yyyymmdd_hhmmss}_{urlhash8}".
func Key(projectID, url string, at time.Time) string {
	safe := unsafeID.ReplaceAllString(projectID, "_")
	if len(safe) > maxIDLen {
		safe = safe[:maxIDLen]
	}
	sum := md5.Sum([]byte(url)) //nolint:gosec
	return safe + "_" + at.Format("20060102_150405") + "_" + hex.EncodeToString(sum[:])[:8]
}

// Archive stores page for projectID. Pages without an http(s) URL are not
// archived and yield a nil record.
func (a *Archiver) Archive(ctx context.Context, page model.Page, projectID string) (*Record, error) {
	if !strings.HasPrefix(page.URL, "http://") && !strings.HasPrefix(page.URL, "https://") {
		return nil, nil
	}

	at := a.now()
	base := Key(projectID, page.URL, at)

	body, ext, contentType := page.HTML, ".html", "text/html; charset=utf-8"
	if body == "" {
		body, ext, contentType = page.Content, ".md", "text/markdown; charset=utf-8"
	}
	file := base + ext

	if err := a.backend.Put(ctx, file, []byte(body), contentType); err != nil {
		return nil, eris.Wrapf(err, "archive: store page %s", page.URL)
	}

	meta, err := json.MarshalIndent(Meta{
		URL:           page.URL,
		ProjectID:     projectID,
		Title:         page.Title,
		ArchivedAt:    at,
		FetchedAt:     page.FetchedAt,
		Fetcher:       page.Fetcher,
		StatusCode:    page.StatusCode,
		ContentType:   contentType,
		ContentLength: len(body),
		File:          file,
	}, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "archive: marshal metadata")
	}
	metaFile := base + ".json"
	if err := a.backend.Put(ctx, metaFile, meta, "application/json"); err != nil {
		return nil, eris.Wrapf(err, "archive: store metadata %s", page.URL)
	}

	rec := &Record{
		Base:       base,
		Link:       a.backend.Link(file),
		MetaLink:   a.backend.Link(metaFile),
		ArchivedAt: at,
		Bytes:      len(body),
	}
	zap.L().Debug("archive: page stored",
		zap.String("url", page.URL),
		zap.String("project_id", projectID),
		zap.String("link", rec.Link),
		zap.Int("bytes", rec.Bytes),
	)
	return rec, nil
}
