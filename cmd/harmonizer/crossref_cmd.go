package main

import (
	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/ingestion"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/logging"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

func newCrossrefCmd() *cobra.Command {
	var inputDir, outputDir, crosswalkPath string

	cmd := &cobra.Command{
		Use:   "crossref",
		Short: "Check which crosswalk variants each release header carries, without reading data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, schema, err := loadConfig(crosswalkPath)
			if err != nil {
				return err
			}
			if inputDir != "" {
				cfg.InputDir = inputDir
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, nil); err != nil {
				return err
			}

			writer, err := report.NewWriter(cfg.OutputDir)
			if err != nil {
				return err
			}

			_, err = ingestion.RunCrossref(ingestion.NewFileProcessor(nil, cfg.ReleaseExtensions), schema, writer, cfg.InputDir)
			return err
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Directory with release files (default: INPUT_DIR)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: OUTPUT_DIR)")
	cmd.Flags().StringVar(&crosswalkPath, "crosswalk", "", "Crosswalk YAML (default: CROSSWALK_PATH or the embedded one)")
	return cmd
}
