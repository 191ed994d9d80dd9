package database

import (
	"time"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const (
	RELEASE_STATUS_PROCESSING = "PROCESSING"
	RELEASE_STATUS_DONE       = "DONE"
	RELEASE_STATUS_FAILED     = "FAILED"
)

type DBManager interface {
	CreateReleaseRecordsTable() error
	CreateFieldDiagnosticsTable() error
	CreateHarmonizedRecordsTable(fields []string) error
	CreatePartitionsForYears(years []int) (*models.FirstWritePartition, error)
	InsertReleaseRecord(fileName string, processedAt time.Time, status string, checksum string, runID string) (int, error)
	UpdateReleaseStatus(releaseID int, status string, year *int, month *int, errors any) error
	IsReleaseAlreadyProcessed(checksum string) (bool, error)
	InsertFieldDiagnostics(releaseID int, report *models.ReleaseReport) error
	CopyHarmonizedRows(releaseID int, release *models.Release, table *models.HarmonizedTable, batchSize int, firstWrite bool) (int64, error)
	GetFieldObservations(field string) ([]coverage.FieldObservation, error)
	ListReleases() ([]models.ReleaseRecord, error)
}
