package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const (
	IndividualDir        = "individual_files"
	PerReleaseReportFile = "per_release_report.json"
	CoverageMatrixFile   = "column_coverage_matrix.csv"
	ColumnSummaryFile    = "column_summary.json"
	MetadataFile         = "metadata.json"
	LogFile              = "harmonization_log.txt"
	CombinedFile         = "harmonized_combined.csv"
	CrossrefCoverageFile = "crossref_coverage.csv"
	CrossrefDetailFile   = "crossref_uncovered_detail.csv"

	maxMetadataErrors = 20
)

// Metadata describes a finished run.
type Metadata struct {
	Created         time.Time             `json:"created"`
	Version         string                `json:"version"`
	RunID           string                `json:"run_id"`
	FilesProcessed  int                   `json:"files_processed"`
	FilesWithErrors int                   `json:"files_with_errors"`
	TotalRows       int                   `json:"total_rows"`
	Columns         []string              `json:"columns"`
	ColumnCount     int                   `json:"column_count"`
	Errors          []models.ReleaseError `json:"errors"`
	ColumnSummary   []*models.FieldReport `json:"column_summary"`
}

// Writer owns the layout of the output directory.
type Writer struct {
	outputDir string
	artifacts map[string]bool
}

// NewWriter creates the output directory and its individual_files folder.
func NewWriter(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Join(outputDir, IndividualDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	return &Writer{outputDir: outputDir, artifacts: make(map[string]bool)}, nil
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.outputDir, name)
}

// WriteReleaseTable writes the canonical table of one release under
// individual_files and returns the artifact pointing at it.
func (w *Writer) WriteReleaseTable(release *models.Release, table *models.HarmonizedTable) (*models.ReleaseArtifact, error) {
	path := filepath.Join(w.outputDir, IndividualDir, w.artifactName(release.Identifier))
	if err := WriteTableCSV(path, table); err != nil {
		return nil, err
	}
	return &models.ReleaseArtifact{
		Identifier: release.Identifier,
		Path:       path,
		Year:       release.Year,
		Month:      release.Month,
		Rows:       table.Rows,
	}, nil
}

// artifactName returns <stem>_harmonized.csv, or a longer name when another
// release of this run already took it (LFS_JUL2019.csv and LFS_JUL2019.txt).
func (w *Writer) artifactName(identifier string) string {
	stem := harmonize.Stem(identifier)
	candidates := []string{stem}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(identifier)), "."); ext != "" {
		stem += "_" + ext
		candidates = append(candidates, stem)
	}

	name := ""
	for _, c := range candidates {
		if !w.artifacts[strings.ToLower(c)] {
			name = c
			break
		}
	}
	for n := 2; name == ""; n++ {
		if c := fmt.Sprintf("%s_%d", stem, n); !w.artifacts[strings.ToLower(c)] {
			name = c
		}
	}

	w.artifacts[strings.ToLower(name)] = true
	return name + "_harmonized.csv"
}

// WriteTableCSV writes a harmonized table with the schema as header. Missing
// values are empty cells.
func WriteTableCSV(path string, table *models.HarmonizedTable) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Fields); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	record := make([]string, len(table.Fields))
	for r := 0; r < table.Rows; r++ {
		for c := range table.Columns {
			record[c] = table.Columns[c][r].String()
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d to %s: %w", r, path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}

func (w *Writer) WriteReleaseReports(reports []*models.ReleaseReport) (string, error) {
	if reports == nil {
		reports = []*models.ReleaseReport{}
	}
	path := w.Path(PerReleaseReportFile)
	return path, writeJSON(path, reports)
}

func (w *Writer) WriteColumnSummary(summary *coverage.Summary) (string, error) {
	path := w.Path(ColumnSummaryFile)
	return path, writeJSON(path, summary.Fields)
}

func (w *Writer) WriteMetadata(meta Metadata) (string, error) {
	if len(meta.Errors) > maxMetadataErrors {
		meta.Errors = meta.Errors[:maxMetadataErrors]
	}
	if meta.Errors == nil {
		meta.Errors = []models.ReleaseError{}
	}
	meta.ColumnCount = len(meta.Columns)
	path := w.Path(MetadataFile)
	return path, writeJSON(path, meta)
}

// WriteSingleRelease writes the outputs of single-file mode next to each
// other: <stem>_harmonized.csv and <stem>_column_report.json.
func (w *Writer) WriteSingleRelease(release *models.Release, table *models.HarmonizedTable, rep *models.ReleaseReport) (string, string, error) {
	stem := harmonize.Stem(release.Identifier)
	tablePath := w.Path(stem + "_harmonized.csv")
	if err := WriteTableCSV(tablePath, table); err != nil {
		return "", "", err
	}
	reportPath := w.Path(stem + "_column_report.json")
	if err := writeJSON(reportPath, rep); err != nil {
		return "", "", err
	}
	return tablePath, reportPath, nil
}

// WriteCoverageMatrix writes one row per release with its retention per
// field, or UNMAPPED.
func (w *Writer) WriteCoverageMatrix(matrix *coverage.Matrix) (string, error) {
	header := []string{"file", "year", "month", "rows", "source_cols", "mapped_count", "unmapped_count", "overall_retention_pct"}
	header = append(header, matrix.Fields...)

	records := make([][]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		record := []string{
			row.File,
			strconv.Itoa(row.Year),
			formatMonth(row.Month),
			strconv.Itoa(row.Rows),
			strconv.Itoa(row.SourceColumns),
			strconv.Itoa(row.MappedCount),
			strconv.Itoa(row.UnmappedCount),
			formatFloat(row.OverallRetentionPct),
		}
		for _, cell := range row.Cells {
			record = append(record, cell.String())
		}
		records = append(records, record)
	}

	path := w.Path(CoverageMatrixFile)
	return path, writeCSV(path, header, records)
}

// WriteCrossref writes the per-field header coverage and, separately, the
// releases where a field could not be found.
func (w *Writer) WriteCrossref(result *coverage.CrossrefResult) (string, string, error) {
	coverageRecords := make([][]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		coverageRecords = append(coverageRecords, []string{
			e.Field,
			strconv.Itoa(len(e.CoveredReleases)),
			strconv.Itoa(result.Releases),
			formatFloat(e.CoveragePct),
			joinList(e.VariantsMatched),
			joinList(e.Variants),
			joinList(e.UncoveredReleases),
		})
	}
	coveragePath := w.Path(CrossrefCoverageFile)
	err := writeCSV(coveragePath,
		[]string{"field", "covered", "releases", "coverage_pct", "variants_matched", "variants", "uncovered_releases"},
		coverageRecords)
	if err != nil {
		return "", "", err
	}

	detailRecords := make([][]string, 0, len(result.Uncovered))
	for _, d := range result.Uncovered {
		year := ""
		if d.Year != nil {
			year = strconv.Itoa(*d.Year)
		}
		detailRecords = append(detailRecords, []string{
			d.Field,
			d.Release,
			year,
			formatMonth(d.Month),
			joinList(d.VariantsSearched),
			joinList(d.AvailableColumns),
		})
	}
	detailPath := w.Path(CrossrefDetailFile)
	err = writeCSV(detailPath,
		[]string{"field", "release", "year", "month", "variants_searched", "available_columns"},
		detailRecords)
	if err != nil {
		return "", "", err
	}
	return coveragePath, detailPath, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func formatMonth(m *int) string {
	if m == nil {
		return ""
	}
	return strconv.Itoa(*m)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinList(items []string) string {
	return strings.Join(items, "; ")
}
