package ingestion

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

var (
	ErrNoReleaseFiles      = errors.New("no release files found")
	ErrNoReleasesProcessed = errors.New("no release was processed successfully")
)

type ServiceConfig struct {
	Fields               []string
	Version              string
	BatchSize            int
	LowCoverageThreshold float64
}

type IngestionService struct {
	dbManager     database.DBManager
	setupService  ISetup
	worker        Worker
	fileProcessor Processor
	writer        *report.Writer
	config        ServiceConfig
}

// NewIngestionService wires a run. dbManager may be nil, in which case the
// run only writes files.
func NewIngestionService(dbManager database.DBManager, setupService ISetup, worker Worker, processor Processor, writer *report.Writer, cfg ServiceConfig) *IngestionService {
	return &IngestionService{
		dbManager:     dbManager,
		setupService:  setupService,
		worker:        worker,
		fileProcessor: processor,
		writer:        writer,
		config:        cfg,
	}
}

// Execute harmonizes every release under inputDir, in file-name order, then
// writes the diagnostics and the combined artifact. A failing release is
// recorded and skipped; only a run where every release failed is an error,
// and even then the diagnostics are written.
func (h *IngestionService) Execute(inputDir string) (*RunState, error) {
	// Step 0: Setup the run accumulators.
	state, err := h.setupService.build()
	if err != nil {
		return nil, err
	}
	runLog := log.WithField("run_id", state.RunID)

	// Step 1: Discover the release files.
	fileInfos, err := h.fileProcessor.ScanForFiles(inputDir)
	if err != nil {
		runLog.Errorf("Failed to scan files: %v", err)
		return state, err
	}
	if len(fileInfos) == 0 {
		return state, fmt.Errorf("%w in %s", ErrNoReleaseFiles, inputDir)
	}

	// Step 2: Make sure the database is ready for the years we already know.
	if h.dbManager != nil {
		if err := h.setupDatabase(fileInfos, state); err != nil {
			runLog.Errorf("Failed to setup database: %v", err)
			return state, err
		}
	}

	// Step 3: Checksum, deduplicate and record every release.
	jobs, prepareErrors := h.fileProcessor.PrepareJobs(fileInfos, state.RunID)
	state.Errors = append(state.Errors, prepareErrors...)
	if len(jobs) == 0 && len(prepareErrors) == 0 {
		runLog.Println("Every release was already processed. Nothing to do.")
		return state, nil
	}

	// Step 4: Harmonize releases one at a time.
	for i, job := range jobs {
		runLog.Printf("[%d/%d] Processing: %s", i+1, len(jobs), job.Name)

		result, err := h.worker.ProcessRelease(job, state.Partitions)
		if err != nil {
			releaseErr := asReleaseError(job.Name, err)
			runLog.Errorf("Error processing %s: %s", job.Name, releaseErr.Error())
			state.Errors = append(state.Errors, releaseErr)
			h.fileProcessor.UpdateReleaseStatus(job, nil, []models.ReleaseError{releaseErr})
			continue
		}

		state.Reports = append(state.Reports, result.Report)
		state.Artifacts = append(state.Artifacts, result.Artifact)
		state.TotalRows += result.Artifact.Rows
		h.fileProcessor.UpdateReleaseStatus(job, result.Release, nil)
	}

	// Step 5: Diagnostics are written whatever happened above.
	summary := coverage.Aggregate(h.config.Fields, state.Reports, h.config.LowCoverageThreshold)
	if err := h.writeDiagnostics(state, summary); err != nil {
		return state, err
	}

	if state.Processed() == 0 {
		return state, ErrNoReleasesProcessed
	}
	report.LogCoverageSummary(summary)

	// Step 6: Concatenate the per-release tables.
	combined, err := h.writer.Combine(state.Artifacts, h.config.Fields, h.config.BatchSize)
	if err != nil {
		return state, fmt.Errorf("failed to combine releases: %w", err)
	}
	state.Combined = combined
	report.LogCombined(combined, h.config.LowCoverageThreshold)

	runLog.Printf("Harmonization finished in %s: %d releases, %d rows, %d errors",
		time.Since(state.StartedAt).Round(time.Millisecond), state.Processed(), state.TotalRows, len(state.Errors))
	return state, nil
}

// RunSingle harmonizes one file and writes its table and column report next
// to each other. It never touches the database.
func (h *IngestionService) RunSingle(filePath string) (*Harmonized, error) {
	result, err := h.worker.Harmonize(filePath)
	if err != nil {
		return nil, err
	}

	tablePath, reportPath, err := h.writer.WriteSingleRelease(result.Release, result.Table, result.Report)
	if err != nil {
		return nil, err
	}

	report.LogReleaseReport(result.Report, h.config.Fields, h.config.LowCoverageThreshold)
	log.Printf("Saved %s", tablePath)
	log.Printf("Saved %s", reportPath)
	return result, nil
}

func (h *IngestionService) writeDiagnostics(state *RunState, summary *coverage.Summary) error {
	paths := make([]string, 0, 4)

	path, err := h.writer.WriteReleaseReports(state.Reports)
	if err != nil {
		return fmt.Errorf("failed to write release reports: %w", err)
	}
	paths = append(paths, path)

	path, err = h.writer.WriteCoverageMatrix(summary.Matrix)
	if err != nil {
		return fmt.Errorf("failed to write coverage matrix: %w", err)
	}
	paths = append(paths, path)

	path, err = h.writer.WriteColumnSummary(summary)
	if err != nil {
		return fmt.Errorf("failed to write column summary: %w", err)
	}
	paths = append(paths, path)

	path, err = h.writer.WriteMetadata(report.Metadata{
		Created:         time.Now(),
		Version:         h.config.Version,
		RunID:           state.RunID,
		FilesProcessed:  state.Processed(),
		FilesWithErrors: len(state.Errors),
		TotalRows:       state.TotalRows,
		Columns:         h.config.Fields,
		Errors:          state.Errors,
		ColumnSummary:   summary.Fields,
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	paths = append(paths, path)

	for _, p := range paths {
		log.Printf("Saved %s", p)
	}
	return nil
}

// setupDatabase creates the partitions of every year readable from a file
// name up front. Years only found inside a release get theirs on demand.
func (h *IngestionService) setupDatabase(fileInfos []models.FileInfo, state *RunState) error {
	unique := make(map[int]bool)
	years := make([]int, 0)
	for _, fileInfo := range fileInfos {
		year, _ := harmonize.YearMonthFromIdentifier(fileInfo.Name)
		if year == nil || unique[*year] {
			continue
		}
		unique[*year] = true
		years = append(years, *year)
	}
	log.Printf("Found %d survey years in file names. Ensuring partitions exist...", len(years))

	created, err := h.dbManager.CreatePartitionsForYears(years)
	if err != nil {
		return err
	}
	if created != nil {
		for year, first := range *created {
			(*state.Partitions)[year] = first
		}
	}
	return nil
}
