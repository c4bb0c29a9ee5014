package export

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/model"
)

// SheetName is the worksheet the registry is written to.
const SheetName = "Projects"

// Bookkeeping column headers. Business fields use their schema labels.
const (
	ColProjectID    = "Project ID"
	ColSourceCount  = "Source Count"
	ColCompleteness = "Completeness"
	ColReview       = "Needs Manual Review"
	ColCreated      = "Created At"
	ColUpdated      = "Last Updated"
	ColMetadata     = "Metadata"
)

// rowMeta is the JSON carried in the Metadata column.
type rowMeta struct {
	Meta        map[model.FieldKey]model.FieldMeta `json:"field_meta,omitempty"`
	UpdateLog   []model.UpdateEvent                `json:"update_log,omitempty"`
	ConflictLog []model.ConflictEntry              `json:"conflict_log,omitempty"`
}

// Header returns the column headers in sheet order.
func Header() []string {
	h := []string{ColProjectID}
	for _, f := range model.Fields {
		h = append(h, f.Label)
	}
	return append(h, ColSourceCount, ColCompleteness, ColReview, ColCreated, ColUpdated, ColMetadata)
}

// WriteXLSX saves projects as a single-sheet workbook, one row each.
func WriteXLSX(path string, projects []model.Project) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header() {
		header.AddCell().SetString(h)
	}

	for i := range projects {
		p := &projects[i]
		row := sheet.AddRow()
		row.AddCell().SetString(p.ProjectID)
		for _, fs := range model.Fields {
			cell := row.AddCell()
			switch v := p.Get(fs.Key).(type) {
			case float64:
				cell.SetFloat(v)
			case string:
				cell.SetString(v)
			}
		}
		row.AddCell().SetInt(p.SourceCount)
		row.AddCell().SetString(p.Completeness)
		row.AddCell().SetBool(p.NeedsManualReview)
		row.AddCell().SetString(formatTime(p.CreatedAt))
		row.AddCell().SetString(formatTime(p.UpdatedAt))

		meta := ""
		if len(p.Meta) > 0 || len(p.UpdateLog) > 0 || len(p.ConflictLog) > 0 {
			b, err := json.Marshal(rowMeta{Meta: p.Meta, UpdateLog: p.UpdateLog, ConflictLog: p.ConflictLog})
			if err != nil {
				return eris.Wrapf(err, "xlsx: marshal metadata for %s", p.ProjectID)
			}
			meta = string(b)
		}
		row.AddCell().SetString(meta)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadXLSX loads projects from a workbook laid out by WriteXLSX. Columns
// are matched by header, so reordered or missing columns are tolerated.
// Rows without a project ID are skipped.
func ReadXLSX(path string) ([]model.Project, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("xlsx: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, c := range sheet.Rows[0].Cells {
		cols[strings.TrimSpace(c.String())] = i
	}
	if _, ok := cols[ColProjectID]; !ok {
		return nil, eris.Errorf("xlsx: %s has no %q column", path, ColProjectID)
	}

	var projects []model.Project
	for _, row := range sheet.Rows[1:] {
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[i].String())
		}

		p := model.Project{ProjectID: get(ColProjectID)}
		if p.ProjectID == "" {
			continue
		}
		for _, fs := range model.Fields {
			if v := get(fs.Label); v != "" {
				p.Set(fs.Key, v)
			}
		}
		p.SourceCount, _ = strconv.Atoi(get(ColSourceCount))
		p.Completeness = get(ColCompleteness)
		p.NeedsManualReview = parseBool(get(ColReview))
		p.CreatedAt = parseTime(get(ColCreated))
		p.UpdatedAt = parseTime(get(ColUpdated))
		if raw := get(ColMetadata); raw != "" {
			var meta rowMeta
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				zap.L().Warn("xlsx: unreadable project metadata",
					zap.String("project_id", p.ProjectID),
					zap.Error(err),
				)
			} else {
				p.Meta = meta.Meta
				p.UpdateLog = meta.UpdateLog
				p.ConflictLog = meta.ConflictLog
			}
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseBool accepts the spellings spreadsheet tools produce for booleans.
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
