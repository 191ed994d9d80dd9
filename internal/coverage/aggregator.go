package coverage

import (
	"math"
	"sort"
	"strconv"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const Unmapped = "UNMAPPED"

// FieldObservation is what one release says about one field. It is the input
// of BuildFieldReport, fed either from in-memory reports or stored diagnostics.
type FieldObservation struct {
	File         string
	Year         int
	Month        *int
	Status       models.Status
	SourceColumn string
	RetentionPct float64
}

// MatrixCell is a retention percentage, or unmapped.
type MatrixCell struct {
	Unmapped     bool
	RetentionPct float64
}

func (c MatrixCell) String() string {
	if c.Unmapped {
		return Unmapped
	}
	return strconv.FormatFloat(c.RetentionPct, 'f', -1, 64)
}

type MatrixRow struct {
	File                string
	Year                int
	Month               *int
	Rows                int
	SourceColumns       int
	MappedCount         int
	UnmappedCount       int
	OverallRetentionPct float64
	Cells               []MatrixCell
}

// Matrix is the release by field retention grid, in chronological order.
type Matrix struct {
	Fields []string
	Rows   []MatrixRow
}

type Summary struct {
	Threshold         float64
	Fields            []*models.FieldReport
	Matrix            *Matrix
	LowCoverage       []string
	AlwaysUnmapped    []string
	PartiallyUnmapped []string
}

// Field returns the report of one field, or nil.
func (s *Summary) Field(name string) *models.FieldReport {
	for _, f := range s.Fields {
		if f.Field == name {
			return f
		}
	}
	return nil
}

// ByRetention returns the field reports ordered from worst to best average
// retention; never-mapped fields come first.
func (s *Summary) ByRetention() []*models.FieldReport {
	out := append([]*models.FieldReport(nil), s.Fields...)
	sort.SliceStable(out, func(i, j int) bool {
		return avgOrBelowZero(out[i]) < avgOrBelowZero(out[j])
	})
	return out
}

func avgOrBelowZero(f *models.FieldReport) float64 {
	if f.AvgRetentionWhenMapped == nil {
		return -1
	}
	return *f.AvgRetentionWhenMapped
}

// Aggregate folds per-release reports into per-field summaries and the
// coverage matrix. A field missing from a report counts as unmapped there.
func Aggregate(fields []string, reports []*models.ReleaseReport, threshold float64) *Summary {
	summary := &Summary{
		Threshold:         threshold,
		Fields:            make([]*models.FieldReport, 0, len(fields)),
		LowCoverage:       []string{},
		AlwaysUnmapped:    []string{},
		PartiallyUnmapped: []string{},
	}

	for _, field := range fields {
		observations := make([]FieldObservation, 0, len(reports))
		for _, rep := range reports {
			observations = append(observations, observe(rep, field))
		}

		fr := BuildFieldReport(field, observations, threshold)
		summary.Fields = append(summary.Fields, fr)

		if fr.LowCoverage {
			summary.LowCoverage = append(summary.LowCoverage, field)
		}
		if fr.AlwaysUnmapped {
			summary.AlwaysUnmapped = append(summary.AlwaysUnmapped, field)
		} else if fr.FilesUnmapped > 0 {
			summary.PartiallyUnmapped = append(summary.PartiallyUnmapped, field)
		}
	}

	sort.SliceStable(summary.PartiallyUnmapped, func(i, j int) bool {
		return summary.Field(summary.PartiallyUnmapped[i]).FilesUnmapped > summary.Field(summary.PartiallyUnmapped[j]).FilesUnmapped
	})

	summary.Matrix = BuildMatrix(fields, reports)
	return summary
}

func observe(rep *models.ReleaseReport, field string) FieldObservation {
	obs := FieldObservation{
		File:   rep.File,
		Year:   rep.Year,
		Month:  rep.Month,
		Status: models.StatusUnmapped,
	}
	if diag, ok := rep.Columns[field]; ok {
		obs.Status = diag.Status
		obs.SourceColumn = diag.SourceColumn
		obs.RetentionPct = diag.RetentionPct
	}
	return obs
}

// BuildFieldReport summarizes one field over a set of releases. Retention
// statistics only consider releases where the field was mapped and are nil
// when it never was.
func BuildFieldReport(field string, observations []FieldObservation, threshold float64) *models.FieldReport {
	fr := &models.FieldReport{
		Field:             field,
		FilesTotal:        len(observations),
		SourceColumnsUsed: map[string]int{},
		UnmappedInFiles:   []string{},
	}

	var sum float64
	minRet, maxRet := math.Inf(1), math.Inf(-1)
	for _, obs := range observations {
		if !obs.Status.IsMapped() {
			fr.FilesUnmapped++
			fr.UnmappedInFiles = append(fr.UnmappedInFiles, obs.File)
			continue
		}
		fr.FilesMapped++
		sum += obs.RetentionPct
		minRet = math.Min(minRet, obs.RetentionPct)
		maxRet = math.Max(maxRet, obs.RetentionPct)
		if obs.SourceColumn != "" {
			fr.SourceColumnsUsed[obs.SourceColumn]++
		}
	}

	if fr.FilesTotal > 0 {
		fr.UnmappedPct = harmonize.Round2(float64(fr.FilesUnmapped) / float64(fr.FilesTotal) * 100)
	}
	if fr.FilesMapped > 0 {
		avg := harmonize.Round2(sum / float64(fr.FilesMapped))
		lo, hi := harmonize.Round2(minRet), harmonize.Round2(maxRet)
		fr.AvgRetentionWhenMapped = &avg
		fr.MinRetentionWhenMapped = &lo
		fr.MaxRetentionWhenMapped = &hi
		fr.LowCoverage = avg < threshold
	}
	fr.AlwaysUnmapped = fr.FilesTotal > 0 && fr.FilesMapped == 0
	return fr
}

// BuildMatrix lays reports out as rows sorted by year then month. Releases
// without a month sort after the dated ones of the same year.
func BuildMatrix(fields []string, reports []*models.ReleaseReport) *Matrix {
	m := &Matrix{Fields: fields, Rows: make([]MatrixRow, 0, len(reports))}
	for _, rep := range reports {
		row := MatrixRow{
			File:                rep.File,
			Year:                rep.Year,
			Month:               rep.Month,
			Rows:                rep.Rows,
			SourceColumns:       rep.SourceColumnsCount,
			MappedCount:         rep.MappedCount,
			UnmappedCount:       rep.UnmappedCount,
			OverallRetentionPct: rep.OverallRetentionPct,
			Cells:               make([]MatrixCell, len(fields)),
		}
		for i, field := range fields {
			obs := observe(rep, field)
			if !obs.Status.IsMapped() {
				row.Cells[i] = MatrixCell{Unmapped: true}
				continue
			}
			row.Cells[i] = MatrixCell{RetentionPct: obs.RetentionPct}
		}
		m.Rows = append(m.Rows, row)
	}

	sort.SliceStable(m.Rows, func(i, j int) bool {
		return Chronological(m.Rows[i].Year, m.Rows[i].Month, m.Rows[j].Year, m.Rows[j].Month)
	})
	return m
}

// Chronological reports whether (y1, m1) sorts before (y2, m2). An unknown
// month sorts last within its year.
func Chronological(y1 int, m1 *int, y2 int, m2 *int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	return monthKey(m1) < monthKey(m2)
}

func monthKey(m *int) int {
	if m == nil {
		return 13
	}
	return *m
}

