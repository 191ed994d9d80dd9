package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/config"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/crosswalk"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
)

var envFiles = []string{".env", ".env.local"}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "harmonizer",
		Short:         "Harmonize survey releases onto one canonical schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.LoadEnv(envFiles)
			return err
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCrossrefCmd())
	cmd.AddCommand(newSetupCmd())
	return cmd
}

// loadConfig reads the environment and lets a non-empty crosswalk flag win.
func loadConfig(crosswalkPath string) (*config.Config, *crosswalk.File, *harmonize.Schema, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if crosswalkPath != "" {
		cfg.CrosswalkPath = crosswalkPath
	}

	file, err := crosswalk.Load(cfg.CrosswalkPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load crosswalk: %w", err)
	}
	schema, err := file.Schema()
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, file, schema, nil
}
