package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/pipeline"
)

var (
	resolveFile   string
	resolveSource string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve observations from a JSON file into the registry",
	Long: "Reads a JSON array of observations (objects keyed by field name, e.g. name, location, " +
		"near_term_scale) and matches or creates a project for each, in order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		observations, err := readObservations(resolveFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes, err := env.Pipeline.ResolveAll(ctx, observations, resolveSource)
		if err != nil {
			return err
		}

		var created, merged int
		for _, o := range outcomes {
			if o.Action == pipeline.ActionCreated {
				created++
			} else {
				merged++
			}
		}
		zap.L().Info("resolve complete",
			zap.Int("observations", len(observations)),
			zap.Int("created", created),
			zap.Int("merged", merged),
		)
		return writeJSON(cmd, outcomes)
	},
}

// readObservations parses a JSON array of loosely typed field maps.
func readObservations(path string) ([]model.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: read %s", path)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "resolve: parse %s", path)
	}
	out := make([]model.Observation, 0, len(raw))
	for _, m := range raw {
		out = append(out, model.ObservationFromMap(m))
	}
	return out, nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFile, "file", "", "JSON file with an array of observations (required)")
	resolveCmd.Flags().StringVar(&resolveSource, "source", pipeline.SourceCLI, "source label recorded as provenance")
	_ = resolveCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(resolveCmd)
}
