package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/pipeline"
)

var (
	ingestURL    string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch one URL, extract the project and merge it into the registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, config.ModeIngest)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Ingest(ctx, ingestURL, ingestSource)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.String("url", ingestURL),
			zap.String("action", string(res.Action)),
			zap.String("project_id", res.Project.ProjectID),
		)
		return writeJSON(cmd, res)
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "page URL to ingest (required)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", pipeline.SourceCLI, "source label recorded as provenance")
	_ = ingestCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(ingestCmd)
}
