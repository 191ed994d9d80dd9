package ingestion

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

// MockDBManager is a mock implementation of the DBManager interface.
type MockDBManager struct {
	mock.Mock
}

func (m *MockDBManager) CreateReleaseRecordsTable() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDBManager) CreateFieldDiagnosticsTable() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDBManager) CreateHarmonizedRecordsTable(fields []string) error {
	args := m.Called(fields)
	return args.Error(0)
}

func (m *MockDBManager) CreatePartitionsForYears(years []int) (*models.FirstWritePartition, error) {
	args := m.Called(years)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FirstWritePartition), args.Error(1)
}

func (m *MockDBManager) InsertReleaseRecord(fileName string, processedAt time.Time, status string, checksum string, runID string) (int, error) {
	args := m.Called(fileName, processedAt, status, checksum, runID)
	return args.Int(0), args.Error(1)
}

func (m *MockDBManager) UpdateReleaseStatus(releaseID int, status string, year *int, month *int, errors any) error {
	args := m.Called(releaseID, status, year, month, errors)
	return args.Error(0)
}

func (m *MockDBManager) IsReleaseAlreadyProcessed(checksum string) (bool, error) {
	args := m.Called(checksum)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBManager) InsertFieldDiagnostics(releaseID int, report *models.ReleaseReport) error {
	args := m.Called(releaseID, report)
	return args.Error(0)
}

func (m *MockDBManager) CopyHarmonizedRows(releaseID int, release *models.Release, table *models.HarmonizedTable, batchSize int, firstWrite bool) (int64, error) {
	args := m.Called(releaseID, release, table, batchSize, firstWrite)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBManager) GetFieldObservations(field string) ([]coverage.FieldObservation, error) {
	args := m.Called(field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coverage.FieldObservation), args.Error(1)
}

func (m *MockDBManager) ListReleases() ([]models.ReleaseRecord, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReleaseRecord), args.Error(1)
}

// MockWorker is a mock implementation of the Worker interface.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) Harmonize(filePath string) (*Harmonized, error) {
	args := m.Called(filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Harmonized), args.Error(1)
}

func (m *MockWorker) ProcessRelease(job models.ReleaseJob, partitions *models.FirstWritePartition) (*ReleaseResult, error) {
	args := m.Called(job, partitions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReleaseResult), args.Error(1)
}

// MockProcessor is a mock implementation of the Processor interface.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ScanForFiles(path string) ([]models.FileInfo, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FileInfo), args.Error(1)
}

func (m *MockProcessor) PrepareJobs(fileInfos []models.FileInfo, runID string) ([]models.ReleaseJob, []models.ReleaseError) {
	args := m.Called(fileInfos, runID)
	var releaseErrors []models.ReleaseError
	if args.Get(1) != nil {
		releaseErrors = args.Get(1).([]models.ReleaseError)
	}
	return args.Get(0).([]models.ReleaseJob), releaseErrors
}

func (m *MockProcessor) UpdateReleaseStatus(job models.ReleaseJob, release *models.Release, releaseErrors []models.ReleaseError) {
	m.Called(job, release, releaseErrors)
}

// MockSetup is a mock implementation of the ISetup interface.
type MockSetup struct {
	mock.Mock
}

func (m *MockSetup) build() (*RunState, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunState), args.Error(1)
}

func newRunState() *RunState {
	partitions := make(models.FirstWritePartition)
	return &RunState{
		RunID:      "run-1",
		StartedAt:  time.Now(),
		Reports:    []*models.ReleaseReport{},
		Artifacts:  []models.ReleaseArtifact{},
		Errors:     []models.ReleaseError{},
		Partitions: &partitions,
	}
}

func newTestSchema(t *testing.T) *harmonize.Schema {
	t.Helper()
	mstat, err := harmonize.NewTranslator("mstat", []harmonize.Era{
		{Map: map[int]int{1: 1, 2: 2}},
		{From: intPtr(2012), Map: map[int]int{1: 1, 2: 2, 3: 3}},
	})
	require.NoError(t, err)

	schema, err := harmonize.NewSchema([]harmonize.CanonicalField{
		{Name: "PUFSVYYR", SourcePriority: []string{"PUFSVYYR", "SVYYR"}},
		{Name: "PUFSVYMO", SourcePriority: []string{"PUFSVYMO", "SVYMO"}},
		{Name: "PUFC05_AGE", SourcePriority: []string{"PUFC05_AGE", "C07_AGE"}},
		{Name: "PUFC06_MSTAT", SourcePriority: []string{"PUFC06_MSTAT", "C08_MSTAT"}, Translator: mstat},
	}, harmonize.ReleaseRules{
		YearField:    "PUFSVYYR",
		MonthField:   "PUFSVYMO",
		YearColumns:  []string{"SVYYR", "PUFSVYYR"},
		FallbackYear: 2020,
	})
	require.NoError(t, err)
	return schema
}

func intPtr(i int) *int {
	return &i
}

func writeRelease(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
