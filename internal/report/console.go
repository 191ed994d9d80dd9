package report

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const (
	lineWidth   = 72
	okRetention = 80.0
)

var monthNames = []string{"???", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func rule() string {
	return strings.Repeat("-", lineWidth-2)
}

// Badge classifies a field diagnostic for the mapping table.
func Badge(diag *models.FieldDiagnostic, threshold float64) string {
	switch {
	case !diag.Status.IsMapped():
		return "[UNMAPPED]"
	case diag.RetentionPct >= okRetention:
		return "[OK]"
	case diag.RetentionPct >= threshold:
		return "[PARTIAL]"
	default:
		return "[LOW]"
	}
}

// LogReleaseReport prints the mapping table and summary of one release.
func LogReleaseReport(rep *models.ReleaseReport, fields []string, threshold float64) {
	month := 0
	if rep.Month != nil {
		month = *rep.Month
	}
	log.Printf("Year: %d (%s)  Month: %s  Rows: %d  Source cols: %d", rep.Year, rep.YearSource, monthNames[month], rep.Rows, rep.SourceColumnsCount)

	log.Printf("  %s", rule())
	log.Printf("  %-24s %-12s %-22s %8s  %7s", "TARGET COLUMN", "STATUS", "SOURCE COLUMN", "RETAIN%", "NULL%")
	for _, field := range fields {
		diag, ok := rep.Columns[field]
		if !ok {
			continue
		}
		src := diag.SourceColumn
		if src == "" {
			src = "-"
		}
		extra := ""
		if diag.TranslationLoss > 0 {
			extra = fmt.Sprintf("  *%d translation loss", diag.TranslationLoss)
		}
		if diag.Forced {
			extra += "  (locked)"
		}
		log.Printf("  %-24s %-12s %-22s %7.2f%%  %6.2f%%%s", field, Badge(diag, threshold), src, diag.RetentionPct, diag.NullPct, extra)
	}
	log.Printf("  %s", rule())

	n := len(fields)
	log.Printf("  Mapped: %d/%d (%.1f%%)  Unmapped: %d/%d  Translated: %d  Overall retention: %.2f%%",
		rep.MappedCount, n, rep.MappedPct, rep.UnmappedCount, n, rep.TranslatedCount, rep.OverallRetentionPct)

	for _, field := range rep.UnmappedColumns {
		log.Printf("    - %-26s searched: %s", field, strings.Join(rep.Columns[field].CandidatesSearched, ", "))
	}
	if len(rep.LowRetentionColumns) > 0 {
		log.Printf("  LOW RETENTION MAPPED COLUMNS (< %.0f%% non-null):", threshold)
		for _, field := range rep.LowRetentionColumns {
			diag := rep.Columns[field]
			log.Printf("    - %-26s %6.2f%% retention (source: %s)", field, diag.RetentionPct, diag.SourceColumn)
		}
	}
}

// LogCoverageSummary prints the cross-release table, worst fields first.
func LogCoverageSummary(summary *coverage.Summary) {
	log.Printf("CROSS-RELEASE COLUMN COVERAGE (sorted by avg retention, worst first)")
	log.Printf("  %-24s %10s %8s %10s %10s %10s", "COLUMN", "UNMAPPED", "MAPPED", "AVG RET%", "MIN RET%", "MAX RET%")
	for _, f := range summary.ByRetention() {
		log.Printf("  %-24s %10s %8s %10s %10s %10s",
			f.Field,
			fmt.Sprintf("%d/%d", f.FilesUnmapped, f.FilesTotal),
			fmt.Sprintf("%d/%d", f.FilesMapped, f.FilesTotal),
			pct(f.AvgRetentionWhenMapped), pct(f.MinRetentionWhenMapped), pct(f.MaxRetentionWhenMapped))
	}

	if len(summary.AlwaysUnmapped) > 0 {
		log.Warnf("Always unmapped: %s", strings.Join(summary.AlwaysUnmapped, ", "))
	}
	for _, name := range summary.PartiallyUnmapped {
		f := summary.Field(name)
		sources := make([]string, 0, len(f.SourceColumnsUsed))
		for src := range f.SourceColumnsUsed {
			sources = append(sources, src)
		}
		log.Printf("    - %-26s missing in %3d/%d releases | when mapped, avg ret: %s sources used: %s",
			name, f.FilesUnmapped, f.FilesTotal, pct(f.AvgRetentionWhenMapped), strings.Join(sources, ", "))
	}
	if len(summary.LowCoverage) > 0 {
		log.Warnf("Low coverage (avg retention < %.0f%%): %s", summary.Threshold, strings.Join(summary.LowCoverage, ", "))
	}
}

// LogCombined prints the null analysis of the combined artifact.
func LogCombined(result *CombineResult, threshold float64) {
	log.Printf("Combined file: %s  Rows: %d  Columns: %d  Years: %d-%d", result.Path, result.Rows, len(result.Fields), result.YearMin, result.YearMax)
	log.Printf("  %-24s %12s %12s %12s", "COLUMN", "NON-NULL", "NULL", "RETENTION%")
	for i, field := range result.Fields {
		nn := result.NonNull[i]
		ret := 0.0
		if result.Rows > 0 {
			ret = float64(nn) / float64(result.Rows) * 100
		}
		flag := ""
		if ret < threshold {
			flag = "  <-- HIGH NULL"
		}
		log.Printf("  %-24s %12d %12d %11.2f%%%s", field, nn, result.Rows-nn, ret, flag)
	}
}

func pct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
