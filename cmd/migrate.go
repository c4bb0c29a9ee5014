package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the registry schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// initEnv migrates as part of opening the store.
		env, err := initEnv(cmd.Context(), cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("migrate complete", zap.String("store", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
