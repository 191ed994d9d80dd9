package ingestion

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

var testFields = []string{"PUFSVYYR", "PUFSVYMO", "PUFC05_AGE", "PUFC06_MSTAT"}

func BuildTestSetup(t *testing.T) (string, *MockDBManager, *MockWorker, *MockProcessor, *MockSetup, *report.Writer, ServiceConfig) {
	t.Helper()
	writer, err := report.NewWriter(t.TempDir())
	require.NoError(t, err)
	cfg := ServiceConfig{
		Fields:               testFields,
		Version:              "test",
		BatchSize:            2,
		LowCoverageThreshold: 50,
	}
	return "some/path", new(MockDBManager), new(MockWorker), new(MockProcessor), new(MockSetup), writer, cfg
}

// fakeResult writes a small canonical table so Combine has something to read.
func fakeResult(t *testing.T, writer *report.Writer, name string, year int, rows int) *ReleaseResult {
	t.Helper()
	release := &models.Release{Identifier: name, Year: year}
	table := models.NewHarmonizedTable(testFields, rows)
	for r := 0; r < rows; r++ {
		table.Columns[0][r] = models.Number(float64(year))
		table.Columns[2][r] = models.Number(float64(20 + r))
	}
	artifact, err := writer.WriteReleaseTable(release, table)
	require.NoError(t, err)

	rep := &models.ReleaseReport{
		File: name,
		Year: year,
		Rows: rows,
		Columns: map[string]*models.FieldDiagnostic{
			"PUFSVYYR":     {Status: models.StatusMapped, RetentionPct: 100},
			"PUFSVYMO":     {Status: models.StatusUnmapped},
			"PUFC05_AGE":   {Status: models.StatusMapped, SourceColumn: "C07_AGE", RetentionPct: 100},
			"PUFC06_MSTAT": {Status: models.StatusUnmapped},
		},
	}
	return &ReleaseResult{Release: release, Report: rep, Artifact: *artifact}
}

func TestIngestionService_Execute(t *testing.T) {
	t.Run("Expect: Execute to record a failed release and finish the run", func(t *testing.T) {
		path, _, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		state := newRunState()
		files := []models.FileInfo{{Path: "a", Name: "LFS_JAN2018.csv"}, {Path: "b", Name: "LFS_APR2018.csv"}, {Path: "c", Name: "LFS_JUL2018.csv"}}
		jobs := []models.ReleaseJob{{FilePath: "a", Name: "LFS_JAN2018.csv"}, {FilePath: "b", Name: "LFS_APR2018.csv"}, {FilePath: "c", Name: "LFS_JUL2018.csv"}}
		failure := &models.ReleaseError{File: "LFS_APR2018.csv", Message: "Failed to read release", Err: errors.New("bad bytes")}

		setup.On("build").Return(state, nil).Once()
		processor.On("ScanForFiles", path).Return(files, nil).Once()
		processor.On("PrepareJobs", files, "run-1").Return(jobs, nil).Once()
		worker.On("ProcessRelease", jobs[0], state.Partitions).Return(fakeResult(t, writer, "LFS_JAN2018.csv", 2018, 3), nil).Once()
		worker.On("ProcessRelease", jobs[1], state.Partitions).Return(nil, failure).Once()
		worker.On("ProcessRelease", jobs[2], state.Partitions).Return(fakeResult(t, writer, "LFS_JUL2018.csv", 2018, 2), nil).Once()
		processor.On("UpdateReleaseStatus", jobs[0], mock.AnythingOfType("*models.Release"), []models.ReleaseError(nil)).Once()
		processor.On("UpdateReleaseStatus", jobs[1], (*models.Release)(nil), []models.ReleaseError{*failure}).Once()
		processor.On("UpdateReleaseStatus", jobs[2], mock.AnythingOfType("*models.Release"), []models.ReleaseError(nil)).Once()

		service := NewIngestionService(nil, setup, worker, processor, writer, cfg)
		result, err := service.Execute(path)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Processed())
		assert.Equal(t, 5, result.TotalRows)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "LFS_APR2018.csv", result.Errors[0].File)

		for _, name := range []string{report.PerReleaseReportFile, report.CoverageMatrixFile, report.ColumnSummaryFile, report.MetadataFile, report.CombinedFile} {
			assert.FileExists(t, writer.Path(name))
		}

		var meta map[string]any
		data, err := os.ReadFile(writer.Path(report.MetadataFile))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &meta))
		assert.Equal(t, float64(2), meta["files_processed"])
		assert.Equal(t, float64(1), meta["files_with_errors"])
		assert.Equal(t, "run-1", meta["run_id"])

		setup.AssertExpectations(t)
		processor.AssertExpectations(t)
		worker.AssertExpectations(t)
	})

	t.Run("Expect: ErrNoReleasesProcessed when every release fails, with diagnostics written", func(t *testing.T) {
		path, _, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		state := newRunState()
		files := []models.FileInfo{{Path: "a", Name: "LFS_JAN2018.csv"}}
		jobs := []models.ReleaseJob{{FilePath: "a", Name: "LFS_JAN2018.csv"}}

		setup.On("build").Return(state, nil).Once()
		processor.On("ScanForFiles", path).Return(files, nil).Once()
		processor.On("PrepareJobs", files, "run-1").Return(jobs, nil).Once()
		worker.On("ProcessRelease", jobs[0], state.Partitions).Return(nil, errors.New("disk full")).Once()
		processor.On("UpdateReleaseStatus", jobs[0], (*models.Release)(nil), mock.Anything).Once()

		service := NewIngestionService(nil, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)

		assert.ErrorIs(t, err, ErrNoReleasesProcessed)
		assert.FileExists(t, writer.Path(report.MetadataFile))
		assert.FileExists(t, writer.Path(report.ColumnSummaryFile))
		assert.NoFileExists(t, writer.Path(report.CombinedFile))
	})

	t.Run("Expect: Error to be returned when setupService.build() fails", func(t *testing.T) {
		path, _, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		setup.On("build").Return(nil, errors.New("build error")).Once()

		service := NewIngestionService(nil, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)

		assert.Error(t, err)
		processor.AssertNotCalled(t, "ScanForFiles", mock.Anything)
	})

	t.Run("Expect: Error to be returned when ScanForFiles() fails", func(t *testing.T) {
		path, dbManager, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		setup.On("build").Return(newRunState(), nil).Once()
		processor.On("ScanForFiles", path).Return(nil, errors.New("scan error")).Once()

		service := NewIngestionService(dbManager, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)

		assert.Error(t, err)
		dbManager.AssertNotCalled(t, "CreatePartitionsForYears", mock.Anything)
	})

	t.Run("Expect: ErrNoReleaseFiles when the directory has no releases", func(t *testing.T) {
		path, _, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		setup.On("build").Return(newRunState(), nil).Once()
		processor.On("ScanForFiles", path).Return([]models.FileInfo{}, nil).Once()

		service := NewIngestionService(nil, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)

		assert.ErrorIs(t, err, ErrNoReleaseFiles)
	})

	t.Run("Expect: partitions created from file names and nothing rewritten when all releases are done", func(t *testing.T) {
		path, dbManager, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		state := newRunState()
		files := []models.FileInfo{{Path: "a", Name: "LFS_JAN2018.csv"}, {Path: "b", Name: "LFS_APR2018.csv"}, {Path: "c", Name: "LFS_OCT2005.csv"}, {Path: "d", Name: "extract.csv"}}

		setup.On("build").Return(state, nil).Once()
		processor.On("ScanForFiles", path).Return(files, nil).Once()
		dbManager.On("CreatePartitionsForYears", []int{2018, 2005}).Return(&models.FirstWritePartition{2018: false, 2005: true}, nil).Once()
		processor.On("PrepareJobs", files, "run-1").Return([]models.ReleaseJob{}, nil).Once()

		service := NewIngestionService(dbManager, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)
		require.NoError(t, err)

		assert.Equal(t, models.FirstWritePartition{2018: false, 2005: true}, *state.Partitions)
		assert.NoFileExists(t, writer.Path(report.MetadataFile))
		worker.AssertNotCalled(t, "ProcessRelease", mock.Anything, mock.Anything)
		dbManager.AssertExpectations(t)
	})

	t.Run("Expect: Error to be returned when partitions cannot be created", func(t *testing.T) {
		path, dbManager, worker, processor, setup, writer, cfg := BuildTestSetup(t)
		files := []models.FileInfo{{Path: "a", Name: "LFS_JAN2018.csv"}}

		setup.On("build").Return(newRunState(), nil).Once()
		processor.On("ScanForFiles", path).Return(files, nil).Once()
		dbManager.On("CreatePartitionsForYears", []int{2018}).Return(nil, errors.New("permission denied")).Once()

		service := NewIngestionService(dbManager, setup, worker, processor, writer, cfg)
		_, err := service.Execute(path)

		assert.Error(t, err)
		processor.AssertNotCalled(t, "PrepareJobs", mock.Anything, mock.Anything)
	})
}

func TestIngestionService_EndToEnd(t *testing.T) {
	input := t.TempDir()
	writeRelease(t, input, "LFS_JUL2019.csv", "PUFSVYYR,PUFSVYMO,PUFC05_AGE,PUFC06_MSTAT\n2019,7,25,1\n2019,7,33,3\n")
	writeRelease(t, input, "LFS_APR2005.csv", oldRelease)
	writeRelease(t, input, "LFS_OCT2005.csv", "")
	writeRelease(t, input, "notes.pdf", "ignored")

	writer, err := report.NewWriter(t.TempDir())
	require.NoError(t, err)
	schema := newTestSchema(t)
	worker := NewReleaseWorker(harmonize.NewProcessor(schema, 50), writer, nil, WorkerConfig{DBBatchSize: 10, LowCoverageThreshold: 50})
	service := NewIngestionService(nil, Setup{}, worker, NewFileProcessor(nil, defaultExtensions), writer, ServiceConfig{
		Fields:               schema.FieldNames(),
		Version:              "test",
		BatchSize:            1,
		LowCoverageThreshold: 50,
	})

	state, err := service.Execute(input)
	require.NoError(t, err)

	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, 5, state.TotalRows)
	assert.Equal(t, 2, state.Processed())
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "LFS_OCT2005.csv", state.Errors[0].File)

	data, err := os.ReadFile(writer.Path(report.CombinedFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "PUFSVYYR,PUFSVYMO,PUFC05_AGE,PUFC06_MSTAT\n2005,4,30,1\n")

	assertCombinedMatchesReports(t, state, schema.FieldNames())
}

// assertCombinedMatchesReports checks that every emitted row reached the
// combined file and that its non-missing cells add up to the per-release
// final counts.
func assertCombinedMatchesReports(t *testing.T, state *RunState, fields []string) {
	t.Helper()
	require.NotNil(t, state.Combined)

	rows := 0
	expected := make([]int, len(fields))
	for _, rep := range state.Reports {
		rows += rep.Rows
		for i, field := range fields {
			expected[i] += rep.Columns[field].FinalNonNullCount
		}
	}

	assert.Equal(t, rows, state.Combined.Rows)
	assert.Equal(t, expected, state.Combined.NonNull)
}

func TestIngestionService_SameStemReleases(t *testing.T) {
	input := t.TempDir()
	writeRelease(t, input, "LFS_JUL2019.csv", "PUFSVYYR,PUFSVYMO,PUFC05_AGE\n2019,7,25\n2019,7,33\n2019,7,41\n")
	writeRelease(t, input, "LFS_JUL2019.txt", "PUFSVYYR,PUFSVYMO,PUFC05_AGE\n2019,7,60\n")
	writeRelease(t, input, "a/LFS_APR2018.csv", "PUFSVYYR,PUFC05_AGE\n2018,19\n")
	writeRelease(t, input, "b/lfs_apr2018.CSV", "PUFSVYYR,PUFC05_AGE\n2018,20\n2018,21\n")

	writer, err := report.NewWriter(t.TempDir())
	require.NoError(t, err)
	schema := newTestSchema(t)
	worker := NewReleaseWorker(harmonize.NewProcessor(schema, 50), writer, nil, WorkerConfig{LowCoverageThreshold: 50})
	service := NewIngestionService(nil, Setup{}, worker, NewFileProcessor(nil, defaultExtensions), writer, ServiceConfig{
		Fields:               schema.FieldNames(),
		Version:              "test",
		BatchSize:            2,
		LowCoverageThreshold: 50,
	})

	state, err := service.Execute(input)
	require.NoError(t, err)

	require.Equal(t, 3, state.Processed())
	assert.Empty(t, state.Errors)
	paths := map[string]bool{}
	for _, artifact := range state.Artifacts {
		paths[artifact.Path] = true
	}
	assert.Len(t, paths, 3)

	assert.Equal(t, 5, state.Combined.Rows)
	assertCombinedMatchesReports(t, state, schema.FieldNames())
}

func TestIngestionService_RunSingle(t *testing.T) {
	writer, err := report.NewWriter(t.TempDir())
	require.NoError(t, err)
	schema := newTestSchema(t)
	worker := NewReleaseWorker(harmonize.NewProcessor(schema, 50), writer, nil, WorkerConfig{LowCoverageThreshold: 50})
	service := NewIngestionService(nil, Setup{}, worker, NewFileProcessor(nil, defaultExtensions), writer, ServiceConfig{Fields: schema.FieldNames()})

	path := writeRelease(t, t.TempDir(), "LFS_APR2005.csv", oldRelease)
	result, err := service.RunSingle(path)
	require.NoError(t, err)

	assert.Equal(t, 2005, result.Release.Year)
	assert.FileExists(t, writer.Path("LFS_APR2005_harmonized.csv"))
	assert.FileExists(t, writer.Path("LFS_APR2005_column_report.json"))

	_, err = service.RunSingle(writeRelease(t, t.TempDir(), "empty.csv", ""))
	assert.Error(t, err)
}
