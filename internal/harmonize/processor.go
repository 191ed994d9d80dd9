package harmonize

import (
	"errors"
	"math"
	"sort"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

var ErrEmptyTable = errors.New("release has no columns")

const DefaultLowRetentionThreshold = 50.0

// Processor turns one raw release into its canonical table and report. It holds
// no per-release state, so one Processor serves a whole run.
type Processor struct {
	schema                *Schema
	lowRetentionThreshold float64
}

func NewProcessor(schema *Schema, lowRetentionThreshold float64) *Processor {
	return &Processor{
		schema:                schema,
		lowRetentionThreshold: lowRetentionThreshold,
	}
}

func (p *Processor) Schema() *Schema {
	return p.schema
}

// Process resolves and translates every canonical field, locks the year and
// month columns, and reports per-field retention.
func (p *Processor) Process(release *models.Release, table *models.RawTable) (*models.HarmonizedTable, *models.ReleaseReport, error) {
	if table == nil || len(table.Columns) == 0 {
		return nil, nil, ErrEmptyTable
	}

	rows := table.RowCount
	fields := p.schema.Fields()
	out := models.NewHarmonizedTable(p.schema.FieldNames(), rows)
	diagnostics := make(map[string]*models.FieldDiagnostic, len(fields))

	for i, field := range fields {
		resolved := Resolve(field, table)
		if !resolved.Matched() {
			for r := range out.Columns[i] {
				out.Columns[i][r] = models.Missing()
			}
			diag := &models.FieldDiagnostic{
				Status:             models.StatusUnmapped,
				NullCount:          rows,
				CandidatesSearched: append([]string(nil), field.SourcePriority...),
			}
			if rows > 0 {
				diag.NullPct = 100
			}
			diagnostics[field.Name] = diag
			continue
		}

		col := out.Columns[i]
		raw := resolved.Column.NonNullCount()
		clean := 0
		for r, cell := range resolved.Column.Cells {
			col[r] = CleanNumeric(cell)
			if col[r].Valid {
				clean++
			}
		}

		final := clean
		status := models.StatusMapped
		if field.Translator != nil {
			status = models.StatusMappedTranslated
			final = 0
			for r, v := range col {
				col[r] = field.Translator.Translate(v, release.Year)
				if col[r].Valid {
					final++
				}
			}
		}

		diagnostics[field.Name] = &models.FieldDiagnostic{
			Status:            status,
			SourceColumn:      resolved.SourceVariant,
			Translated:        field.Translator != nil,
			RawNonNullCount:   raw,
			CleanNonNullCount: clean,
			FinalNonNullCount: final,
			NullCount:         rows - final,
			RetentionPct:      percent(final, rows),
			NullPct:           percent(rows-final, rows),
			ResolutionLoss:    raw - clean,
			TranslationLoss:   clean - final,
		}
	}

	rules := p.schema.Rules()
	if rules.YearField != "" {
		p.force(out, diagnostics, rules.YearField, float64(release.Year))
	}
	if rules.MonthField != "" && release.Month != nil {
		p.force(out, diagnostics, rules.MonthField, float64(*release.Month))
	}

	return out, p.report(release, table, out, diagnostics), nil
}

// force overwrites a field with a constant. The diagnostic keeps its resolution
// status but its final counts describe the emitted column.
func (p *Processor) force(out *models.HarmonizedTable, diagnostics map[string]*models.FieldDiagnostic, field string, value float64) {
	i := p.schema.Index(field)
	if i < 0 {
		return
	}
	for r := range out.Columns[i] {
		out.Columns[i][r] = models.Number(value)
	}

	name := p.schema.fields[i].Name
	diag := diagnostics[name]
	diag.Forced = true
	diag.FinalNonNullCount = out.Rows
	diag.NullCount = 0
	diag.RetentionPct = percent(out.Rows, out.Rows)
	diag.NullPct = 0
}

func (p *Processor) report(release *models.Release, table *models.RawTable, out *models.HarmonizedTable, diagnostics map[string]*models.FieldDiagnostic) *models.ReleaseReport {
	report := &models.ReleaseReport{
		File:                release.Identifier,
		Year:                release.Year,
		Month:               release.Month,
		YearSource:          release.YearSource,
		YearDefaulted:       release.YearDefaulted(),
		Rows:                out.Rows,
		SourceColumnsCount:  len(table.Columns),
		UnmappedColumns:     []string{},
		LowRetentionColumns: []string{},
		Columns:             diagnostics,
	}

	type lowField struct {
		name      string
		retention float64
	}
	var low []lowField
	totalFinal := 0

	for _, name := range out.Fields {
		diag := diagnostics[name]
		totalFinal += diag.FinalNonNullCount
		if !diag.Status.IsMapped() {
			report.UnmappedCount++
			report.UnmappedColumns = append(report.UnmappedColumns, name)
			continue
		}
		report.MappedCount++
		if diag.Translated {
			report.TranslatedCount++
		}
		if diag.RetentionPct < p.lowRetentionThreshold {
			low = append(low, lowField{name, diag.RetentionPct})
		}
	}

	sort.SliceStable(low, func(i, j int) bool { return low[i].retention < low[j].retention })
	for _, f := range low {
		report.LowRetentionColumns = append(report.LowRetentionColumns, f.name)
	}

	report.MappedPct = percent(report.MappedCount, len(out.Fields))
	report.OverallRetentionPct = percent(totalFinal, out.Rows*len(out.Fields))
	return report
}

// percent returns part/total as a percentage rounded to two decimals, or 0 when
// total is 0.
func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(total) * 100)
}

// Round2 rounds to two decimals, the precision of every reported percentage.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
