package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/pipeline"
)

var formsSubmitURL string

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Process pending intake form submissions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, config.ModeIngest)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Pipeline.ProcessSubmissions(ctx, env.Store, pipeline.SourceForm)
		if err != nil {
			return err
		}
		return writeJSON(cmd, sum)
	},
}

var formsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a URL on the intake form",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := env.Store.Submit(ctx, newSubmission(formsSubmitURL, pipeline.SourceForm))
		if err != nil {
			return err
		}
		return writeJSON(cmd, map[string]string{"id": id, "url": formsSubmitURL})
	},
}

func init() {
	formsSubmitCmd.Flags().StringVar(&formsSubmitURL, "url", "", "URL to queue (required)")
	_ = formsSubmitCmd.MarkFlagRequired("url")
	formsCmd.AddCommand(formsSubmitCmd)
	rootCmd.AddCommand(formsCmd)
}
