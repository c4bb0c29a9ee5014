package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the registry to an .xlsx workbook or a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		projects, err := env.Store.ListProjects(ctx)
		if err != nil {
			return err
		}
		if err := export.Write(exportOut, projects); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("projects", len(projects)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "registry.xlsx", "output path (.xlsx or .json)")
	rootCmd.AddCommand(exportCmd)
}
