package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

var (
	initOpts = struct {
		force bool
	}{}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default dtoc.json into --srcdir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(rootOpts.srcDir, "dtoc.json")
			if _, err := os.Stat(path); err == nil && !initOpts.force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			logger.Infof("wrote %s", path)
			return nil
		},
	}

	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove the scan, snapshot and lint caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := indexer.ClearCache(rootOpts.srcDir, cfg)
			if err != nil {
				return err
			}
			logger.Infof("removed %s", dir)
			return nil
		},
	}
)

func init() {
	initCmd.Flags().BoolVarP(&initOpts.force, "force", "f", false, "overwrite an existing dtoc.json")
}
