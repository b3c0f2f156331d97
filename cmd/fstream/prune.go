package main

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"

	"github.com/nuln/fstream/internal/config"
	"github.com/nuln/fstream/store"
)

// pruner is implemented by engines holding unreferenced data after deletes.
type pruner interface {
	Prune(ctx context.Context) (int, error)
}

func newPruneCmd(logger log.Logger) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove storage no longer referenced by any file (sharded storage)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			engine, err := store.Open(&cfg.Storage)
			if err != nil {
				return err
			}
			p, ok := engine.(pruner)
			if !ok {
				return fmt.Errorf("prune: storage type %q has nothing to prune", cfg.Storage.Type)
			}
			n, err := p.Prune(cmd.Context())
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			logger.Donef("Removed %d unreferenced shards", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	return cmd
}
