package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/export"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/resolve"
	"github.com/sells-group/project-registry/internal/store"
)

var importFile string

// bulkImporter is implemented by backends with a native bulk path.
type bulkImporter interface {
	ImportProjects(ctx context.Context, projects []model.Project) (int64, error)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load projects from an export snapshot (.xlsx or .json)",
	Long: "Loads projects written by export, or a hand-maintained sheet with the same headers. " +
		"Projects whose ID is already registered are skipped; no matching is performed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		projects, err := export.Read(importFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := importProjects(ctx, env.Store, projects, time.Now().UTC())
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("read", len(projects)),
			zap.Int64("inserted", n),
		)
		return writeJSON(cmd, map[string]int64{"read": int64(len(projects)), "inserted": n})
	},
}

// importProjects fills bookkeeping gaps and inserts projects not yet in reg.
func importProjects(ctx context.Context, reg store.Registry, projects []model.Project, now time.Time) (int64, error) {
	for i := range projects {
		prepareImport(&projects[i], now)
	}

	if bulk, ok := reg.(bulkImporter); ok {
		return bulk.ImportProjects(ctx, projects)
	}

	var inserted int64
	for i := range projects {
		p := &projects[i]
		existing, err := reg.GetProject(ctx, p.ProjectID)
		if err != nil {
			return inserted, err
		}
		if existing != nil {
			zap.L().Debug("import: project exists, skipping", zap.String("project_id", p.ProjectID))
			continue
		}
		if _, err := reg.InsertProject(ctx, p); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func prepareImport(p *model.Project, now time.Time) {
	if p.ProjectID == "" {
		p.ProjectID = resolve.Fingerprint(&p.Attributes)
	}
	if p.SourceCount < 1 {
		p.SourceCount = 1
	}
	if p.Completeness == "" {
		p.Completeness = resolve.Completeness(&p.Attributes)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "snapshot to load (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
