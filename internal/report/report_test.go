package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

var fields = []string{"YEAR", "MONTH", "AGE"}

func intPtr(i int) *int {
	return &i
}

func newTable(year, month float64, ages ...models.Value) *models.HarmonizedTable {
	table := models.NewHarmonizedTable(fields, len(ages))
	for r, age := range ages {
		table.Columns[0][r] = models.Number(year)
		table.Columns[1][r] = models.Number(month)
		table.Columns[2][r] = age
	}
	return table
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteReleaseTableAndCombine(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	later := &models.Release{Identifier: "LFS_JUL2019.csv", Year: 2019, Month: intPtr(7)}
	earlier := &models.Release{Identifier: "LFS_JAN2005.csv", Year: 2005, Month: intPtr(1)}
	undated := &models.Release{Identifier: "extract.csv", Year: 2005}

	laterTable := newTable(2019, 7, models.Number(30), models.Missing())
	earlierTable := newTable(2005, 1, models.Number(41.5))
	undatedTable := newTable(2005, 0, models.Missing(), models.Missing(), models.Number(8))
	undatedTable.Columns[1] = make([]models.Value, 3)

	var artifacts []models.ReleaseArtifact
	for _, pair := range []struct {
		release *models.Release
		table   *models.HarmonizedTable
	}{{later, laterTable}, {earlier, earlierTable}, {undated, undatedTable}} {
		artifact, err := w.WriteReleaseTable(pair.release, pair.table)
		require.NoError(t, err)
		artifacts = append(artifacts, *artifact)
	}

	assert.Equal(t, filepath.Join(w.Path(IndividualDir), "LFS_JUL2019_harmonized.csv"), artifacts[0].Path)
	assert.Equal(t, [][]string{
		{"YEAR", "MONTH", "AGE"},
		{"2019", "7", "30"},
		{"2019", "7", ""},
	}, readCSV(t, artifacts[0].Path))

	result, err := w.Combine(artifacts, fields, 2)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Rows)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 2005, result.YearMin)
	assert.Equal(t, 2019, result.YearMax)

	expectedNonNull := []int{0, 0, 0}
	for _, table := range []*models.HarmonizedTable{laterTable, earlierTable, undatedTable} {
		for c := range fields {
			expectedNonNull[c] += table.NonMissing(c)
		}
	}
	assert.Equal(t, expectedNonNull, result.NonNull)

	records := readCSV(t, result.Path)
	require.Len(t, records, 7)
	assert.Equal(t, []string{"2005", "1", "41.5"}, records[1])
	assert.Equal(t, []string{"2005", "", ""}, records[2])
	assert.Equal(t, []string{"2019", "7", "30"}, records[5])
}

func TestWriteReleaseTableKeepsSameStemReleasesApart(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	csvRelease := &models.Release{Identifier: "LFS_JUL2019.csv", Year: 2019, Month: intPtr(7)}
	txtRelease := &models.Release{Identifier: "LFS_JUL2019.txt", Year: 2019, Month: intPtr(7)}
	csvTable := newTable(2019, 7, models.Number(30), models.Number(31), models.Number(32))
	txtTable := newTable(2019, 7, models.Number(60))

	first, err := w.WriteReleaseTable(csvRelease, csvTable)
	require.NoError(t, err)
	second, err := w.WriteReleaseTable(txtRelease, txtTable)
	require.NoError(t, err)
	third, err := w.WriteReleaseTable(txtRelease, txtTable)
	require.NoError(t, err)

	assert.Equal(t, w.Path(filepath.Join(IndividualDir, "LFS_JUL2019_harmonized.csv")), first.Path)
	assert.Equal(t, w.Path(filepath.Join(IndividualDir, "LFS_JUL2019_txt_harmonized.csv")), second.Path)
	assert.Equal(t, w.Path(filepath.Join(IndividualDir, "LFS_JUL2019_txt_2_harmonized.csv")), third.Path)

	result, err := w.Combine([]models.ReleaseArtifact{*first, *second}, fields, 10)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Rows)
	assert.Equal(t, []int{4, 4, 4}, result.NonNull)
}

func TestCombineRejectsForeignArtifact(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	path := w.Path("other.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,B,C\n1,2,3\n"), 0644))

	_, err = w.Combine([]models.ReleaseArtifact{{Path: path, Year: 2010}}, fields, 10)
	assert.Error(t, err)
}

func TestWriteCoverageMatrix(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	matrix := &coverage.Matrix{
		Fields: []string{"AGE", "SEX"},
		Rows: []coverage.MatrixRow{{
			File: "a.csv", Year: 2010, Month: nil, Rows: 5, SourceColumns: 12, MappedCount: 1, UnmappedCount: 1, OverallRetentionPct: 40,
			Cells: []coverage.MatrixCell{{RetentionPct: 80}, {Unmapped: true}},
		}},
	}

	path, err := w.WriteCoverageMatrix(matrix)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"file", "year", "month", "rows", "source_cols", "mapped_count", "unmapped_count", "overall_retention_pct", "AGE", "SEX"},
		{"a.csv", "2010", "", "5", "12", "1", "1", "40", "80", "UNMAPPED"},
	}, readCSV(t, path))
}

func TestWriteMetadata(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	var releaseErrors []models.ReleaseError
	for i := 0; i < 25; i++ {
		releaseErrors = append(releaseErrors, models.ReleaseError{File: "bad.csv", Message: "Failed to read release", Err: errors.New("boom")})
	}

	path, err := w.WriteMetadata(Metadata{
		Version:        "8",
		FilesProcessed: 3,
		Columns:        fields,
		Errors:         releaseErrors,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(3), decoded["column_count"])
	assert.Len(t, decoded["errors"], 20)
	first := decoded["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "boom", first["error"])
}

func TestWriteSingleRelease(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	release := &models.Release{Identifier: "LFS_APR2016.csv", Year: 2016, Month: intPtr(4)}
	rep := &models.ReleaseReport{File: release.Identifier, Year: 2016, Columns: map[string]*models.FieldDiagnostic{}}

	tablePath, reportPath, err := w.WriteSingleRelease(release, newTable(2016, 4, models.Number(1)), rep)
	require.NoError(t, err)

	assert.Equal(t, w.Path("LFS_APR2016_harmonized.csv"), tablePath)
	assert.Equal(t, w.Path("LFS_APR2016_column_report.json"), reportPath)
	assert.FileExists(t, reportPath)
}

func TestWriteCrossref(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	result := &coverage.CrossrefResult{
		Releases: 2,
		Entries: []coverage.CrossrefEntry{{
			Field: "PUFREG", Variants: []string{"PUFREG", "CREG"}, VariantsMatched: []string{"CREG"},
			CoveredReleases: []string{"a.csv"}, UncoveredReleases: []string{"b.csv"}, CoveragePct: 50,
		}},
		Uncovered: []coverage.UncoveredDetail{{
			Field: "PUFREG", Release: "b.csv", Year: intPtr(2010), VariantsSearched: []string{"PUFREG", "CREG"}, AvailableColumns: []string{"X"},
		}},
	}

	coveragePath, detailPath, err := w.WriteCrossref(result)
	require.NoError(t, err)

	assert.Equal(t, []string{"PUFREG", "1", "2", "50", "CREG", "PUFREG; CREG", "b.csv"}, readCSV(t, coveragePath)[1])
	assert.Equal(t, []string{"PUFREG", "b.csv", "2010", "", "PUFREG; CREG", "X"}, readCSV(t, detailPath)[1])
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "[UNMAPPED]", Badge(&models.FieldDiagnostic{Status: models.StatusUnmapped}, 50))
	assert.Equal(t, "[OK]", Badge(&models.FieldDiagnostic{Status: models.StatusMapped, RetentionPct: 80}, 50))
	assert.Equal(t, "[PARTIAL]", Badge(&models.FieldDiagnostic{Status: models.StatusMapped, RetentionPct: 50}, 50))
	assert.Equal(t, "[LOW]", Badge(&models.FieldDiagnostic{Status: models.StatusMappedTranslated, RetentionPct: 49.99}, 50))
}
