// Package export writes the registry to spreadsheet or JSON snapshots and
// reads such snapshots back for import.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/project-registry/internal/model"
)

// Write saves projects to path. The extension picks the format: .xlsx for
// a workbook, anything else for indented JSON.
func Write(path string, projects []model.Project) error {
	if isWorkbook(path) {
		return WriteXLSX(path, projects)
	}
	return WriteJSON(path, projects)
}

// Read loads a snapshot written by Write.
func Read(path string) ([]model.Project, error) {
	if isWorkbook(path) {
		return ReadXLSX(path)
	}
	return ReadJSON(path)
}

func isWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// WriteJSON saves projects as an indented JSON array.
func WriteJSON(path string, projects []model.Project) error {
	if projects == nil {
		projects = []model.Project{}
	}
	b, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal projects")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// ReadJSON loads a JSON array of projects.
func ReadJSON(path string) ([]model.Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var projects []model.Project
	if err := json.Unmarshal(b, &projects); err != nil {
		return nil, eris.Wrapf(err, "export: parse %s", path)
	}
	return projects, nil
}
