package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/ingestion"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/logging"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

type runOptions struct {
	inputDir      string
	outputDir     string
	file          string
	crosswalkPath string
	batchSize     int
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harmonize every release in a directory, or a single file with -f",
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()

			filesPath, handler, cleanupFunc, err := setup(opts)
			if err != nil {
				return err
			}
			defer cleanup(cleanupFunc)

			if err := execute(filesPath, opts.file != "", handler); err != nil {
				return fmt.Errorf("error during harmonization: %w", err)
			}

			log.Printf("Execution time: %s", time.Since(startTime))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.inputDir, "input", "i", "", "Directory with release files (default: INPUT_DIR)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default: OUTPUT_DIR)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Harmonize a single release file")
	cmd.Flags().IntVarP(&opts.batchSize, "batch-size", "b", 0, "Releases per batch when combining (default: BATCH_SIZE)")
	cmd.Flags().StringVar(&opts.crosswalkPath, "crosswalk", "", "Crosswalk YAML (default: CROSSWALK_PATH or the embedded one)")
	return cmd
}

// setup wires a run and returns what execute should harmonize: the single
// file when one was given, the input directory otherwise.
func setup(opts runOptions) (string, *ingestion.IngestionService, func(), error) {
	cfg, file, schema, err := loadConfig(opts.crosswalkPath)
	if err != nil {
		return "", nil, nil, err
	}
	if opts.inputDir != "" {
		cfg.InputDir = opts.inputDir
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.batchSize < 0 {
		return "", nil, nil, fmt.Errorf("invalid value for batch-size: expected a positive integer, got '%d'", opts.batchSize)
	}
	if opts.batchSize > 0 {
		cfg.BatchSize = opts.batchSize
	}

	filesPath := cfg.InputDir
	if opts.file != "" {
		if _, err := os.Stat(opts.file); err != nil {
			return "", nil, nil, fmt.Errorf("release file %s: %w", opts.file, err)
		}
		filesPath = opts.file
	}

	writer, err := report.NewWriter(cfg.OutputDir)
	if err != nil {
		return "", nil, nil, err
	}

	logFile, err := logging.OpenLogFile(cfg.OutputDir, report.LogFile)
	if err != nil {
		return "", nil, nil, err
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, logFile); err != nil {
		logFile.Close()
		return "", nil, nil, err
	}

	closers := []func(){func() {
		_ = logging.Configure(cfg.LogLevel, cfg.LogFormat, nil)
		logFile.Close()
	}}
	cleanupFunc := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var dbManager database.DBManager
	if cfg.HasDatabase() && opts.file == "" {
		ctx := context.Background()
		dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanupFunc()
			return "", nil, nil, err
		}
		closers = append(closers, dbpool.Close)
		dbManager = database.NewPostgresDBManager(ctx, dbpool)
		log.Println("Database configured: releases will also be loaded into Postgres")
	}

	processor := harmonize.NewProcessor(schema, cfg.LowCoverageThreshold)
	worker := ingestion.NewReleaseWorker(processor, writer, dbManager, ingestion.WorkerConfig{
		DBBatchSize:          cfg.DBBatchSize,
		LowCoverageThreshold: cfg.LowCoverageThreshold,
	})
	fileProcessor := ingestion.NewFileProcessor(dbManager, cfg.ReleaseExtensions)

	handler := ingestion.NewIngestionService(
		dbManager,
		ingestion.Setup{},
		worker,
		fileProcessor,
		writer,
		ingestion.ServiceConfig{
			Fields:               schema.FieldNames(),
			Version:              file.Version,
			BatchSize:            cfg.BatchSize,
			LowCoverageThreshold: cfg.LowCoverageThreshold,
		},
	)

	log.Printf("Crosswalk version %s: %d canonical fields, %d translated", file.Version, schema.Len(), len(schema.TranslatedFields()))
	log.Printf("Input: %s  Output: %s", cfg.InputDir, cfg.OutputDir)

	return filesPath, handler, cleanupFunc, nil
}

func execute(filesPath string, single bool, handler *ingestion.IngestionService) error {
	if single {
		log.Printf("Harmonizing single release %s", filesPath)
		_, err := handler.RunSingle(filesPath)
		return err
	}

	log.Println("Starting harmonization...")
	_, err := handler.Execute(filesPath)
	return err
}

func cleanup(cleanupFunc func()) {
	log.Println("Cleaning up resources...")
	cleanupFunc()
}
