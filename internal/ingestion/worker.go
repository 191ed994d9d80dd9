package ingestion

import (
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/parser"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

type WorkerConfig struct {
	DBBatchSize          int
	LowCoverageThreshold float64
}

// Harmonized is one release read and mapped onto the canonical schema.
type Harmonized struct {
	Release *models.Release
	Table   *models.HarmonizedTable
	Report  *models.ReleaseReport
}

// ReleaseResult is what a successfully processed job leaves behind.
type ReleaseResult struct {
	Release  *models.Release
	Report   *models.ReleaseReport
	Artifact models.ReleaseArtifact
}

// Worker harmonizes releases one at a time. Failures are returned as
// *models.ReleaseError.
type Worker interface {
	Harmonize(filePath string) (*Harmonized, error)
	ProcessRelease(job models.ReleaseJob, partitions *models.FirstWritePartition) (*ReleaseResult, error)
}

type ReleaseWorker struct {
	config    WorkerConfig
	processor *harmonize.Processor
	writer    *report.Writer
	dbManager database.DBManager
}

// NewReleaseWorker builds a worker. dbManager may be nil.
func NewReleaseWorker(processor *harmonize.Processor, writer *report.Writer, dbManager database.DBManager, cfg WorkerConfig) *ReleaseWorker {
	return &ReleaseWorker{
		config:    cfg,
		processor: processor,
		writer:    writer,
		dbManager: dbManager,
	}
}

func (w *ReleaseWorker) Harmonize(filePath string) (*Harmonized, error) {
	table, err := parser.ReadRelease(filePath)
	if err != nil {
		return nil, newReleaseError(filePath, "Failed to read release", err)
	}

	release := harmonize.NewRelease(filePath, table, w.processor.Schema().Rules())

	out, rep, err := w.processor.Process(release, table)
	if err != nil {
		return nil, newReleaseError(filePath, "Failed to harmonize release", err)
	}

	return &Harmonized{Release: release, Table: out, Report: rep}, nil
}

// ProcessRelease harmonizes the job's file, loads it into the database when
// one is configured, then writes its canonical table. Nothing is written to
// disk for a release whose database load failed.
func (w *ReleaseWorker) ProcessRelease(job models.ReleaseJob, partitions *models.FirstWritePartition) (*ReleaseResult, error) {
	logger := log.WithField("release", job.Name)
	logger.Printf("Processing release %s", job.Name)

	h, err := w.Harmonize(job.FilePath)
	if err != nil {
		return nil, err
	}

	if w.dbManager != nil && job.ReleaseID != 0 {
		if err := w.load(job, h, partitions); err != nil {
			return nil, err
		}
	}

	artifact, err := w.writer.WriteReleaseTable(h.Release, h.Table)
	if err != nil {
		return nil, newReleaseError(job.FilePath, "Failed to write harmonized table", err)
	}

	report.LogReleaseReport(h.Report, w.processor.Schema().FieldNames(), w.config.LowCoverageThreshold)
	logger.Printf("Saved %s", artifact.Path)

	return &ReleaseResult{Release: h.Release, Report: h.Report, Artifact: *artifact}, nil
}

func (w *ReleaseWorker) load(job models.ReleaseJob, h *Harmonized, partitions *models.FirstWritePartition) error {
	if partitions == nil {
		partitions = &models.FirstWritePartition{}
	}

	year := h.Release.Year
	if _, ok := (*partitions)[year]; !ok {
		created, err := w.dbManager.CreatePartitionsForYears([]int{year})
		if err != nil {
			return newReleaseError(job.FilePath, "Failed to create partition", err)
		}
		if created != nil {
			for y, first := range *created {
				(*partitions)[y] = first
			}
		}
	}

	copied, err := w.dbManager.CopyHarmonizedRows(job.ReleaseID, h.Release, h.Table, w.config.DBBatchSize, (*partitions)[year])
	if err != nil {
		return newReleaseError(job.FilePath, "Failed to load rows into database", err)
	}
	log.WithField("release", job.Name).Printf("Copied %d rows into the database", copied)

	if err := w.dbManager.InsertFieldDiagnostics(job.ReleaseID, h.Report); err != nil {
		return newReleaseError(job.FilePath, "Failed to store field diagnostics", err)
	}
	return nil
}

func newReleaseError(filePath, message string, err error) *models.ReleaseError {
	return &models.ReleaseError{File: filepath.Base(filePath), Message: message, Err: err}
}

// asReleaseError turns any worker failure into a ReleaseError value.
func asReleaseError(name string, err error) models.ReleaseError {
	var releaseErr *models.ReleaseError
	if errors.As(err, &releaseErr) {
		return *releaseErr
	}
	return models.ReleaseError{File: name, Message: fmt.Sprintf("Failed to process release: %v", err), Err: err}
}
