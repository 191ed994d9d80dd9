package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a nullable numeric cell. It is the single missing-value
// representation shared by resolution, translation, tables and diagnostics.
type Value struct {
	Float float64
	Valid bool
}

func Missing() Value {
	return Value{}
}

func Number(f float64) Value {
	return Value{Float: f, Valid: true}
}

func (v Value) IsMissing() bool {
	return !v.Valid
}

// String renders the value the way it is written to CSV artifacts: an empty
// string for missing values and the shortest exact decimal otherwise.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// Cell is one raw value read from a release before any cleaning.
type Cell struct {
	Text string
	Null bool
}

type ColumnKind int

const (
	KindNumeric ColumnKind = iota
	KindText
)

func (k ColumnKind) String() string {
	if k == KindText {
		return "text"
	}
	return "numeric"
}

// RawColumn holds the cells of one source column. Kind is Text as soon as one
// non-null cell does not parse as a number.
type RawColumn struct {
	Name  string
	Kind  ColumnKind
	Cells []Cell
}

// NonNullCount returns how many cells are not null.
func (c *RawColumn) NonNullCount() int {
	count := 0
	for _, cell := range c.Cells {
		if !cell.Null {
			count++
		}
	}
	return count
}

// RawTable is a release as read from disk, with case-insensitive column lookup.
type RawTable struct {
	Columns  []*RawColumn
	RowCount int
	byUpper  map[string]*RawColumn
}

// NewRawTable indexes columns by their upper-cased name. When two columns only
// differ by case the first one wins.
func NewRawTable(columns []*RawColumn, rowCount int) *RawTable {
	t := &RawTable{
		Columns:  columns,
		RowCount: rowCount,
		byUpper:  make(map[string]*RawColumn, len(columns)),
	}
	for _, col := range columns {
		key := strings.ToUpper(col.Name)
		if _, exists := t.byUpper[key]; !exists {
			t.byUpper[key] = col
		}
	}
	return t
}

// Column looks a column up ignoring case.
func (t *RawTable) Column(name string) (*RawColumn, bool) {
	col, ok := t.byUpper[strings.ToUpper(name)]
	return col, ok
}

// AvailableColumns maps upper-cased names to the names found in the source.
func (t *RawTable) AvailableColumns() map[string]string {
	out := make(map[string]string, len(t.byUpper))
	for upper, col := range t.byUpper {
		out[upper] = col.Name
	}
	return out
}

func (t *RawTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

type YearSource string

const (
	YearFromIdentifier YearSource = "identifier"
	YearFromColumn     YearSource = "column"
	YearFromFallback   YearSource = "fallback"
)

// Release is one source extract. Year and month are inferred once when the
// release is built and never revised.
type Release struct {
	Identifier       string
	Path             string
	Year             int
	Month            *int
	YearSource       YearSource
	RowCount         int
	AvailableColumns map[string]string
}

// YearDefaulted reports whether the fallback year had to be substituted.
func (r *Release) YearDefaulted() bool {
	return r.YearSource == YearFromFallback
}

type Status string

const (
	StatusMapped           Status = "MAPPED"
	StatusMappedTranslated Status = "MAPPED+TRANSLATED"
	StatusUnmapped         Status = "UNMAPPED"
)

func (s Status) IsMapped() bool {
	return s == StatusMapped || s == StatusMappedTranslated
}

// ResolvedColumn is the outcome of resolving one canonical field against one
// release. Column is nil when no variant was accepted.
type ResolvedColumn struct {
	Field         string
	SourceVariant string
	Column        *RawColumn
	Status        Status
}

func (r ResolvedColumn) Matched() bool {
	return r.Column != nil
}

// FieldDiagnostic is the per-field entry of a release report.
type FieldDiagnostic struct {
	Status             Status   `json:"status"`
	SourceColumn       string   `json:"source_col,omitempty"`
	Translated         bool     `json:"translated"`
	Forced             bool     `json:"forced,omitempty"`
	RawNonNullCount    int      `json:"raw_nonnull_count"`
	CleanNonNullCount  int      `json:"clean_nonnull_count"`
	FinalNonNullCount  int      `json:"final_nonnull_count"`
	NullCount          int      `json:"null_count"`
	RetentionPct       float64  `json:"retention_pct"`
	NullPct            float64  `json:"null_pct"`
	ResolutionLoss     int      `json:"resolution_loss"`
	TranslationLoss    int      `json:"translation_loss"`
	CandidatesSearched []string `json:"candidates_searched,omitempty"`
}

// ReleaseReport is the structured diagnostic record of one processed release.
type ReleaseReport struct {
	File                string                      `json:"file"`
	Year                int                         `json:"year"`
	Month               *int                        `json:"month"`
	YearSource          YearSource                  `json:"year_source"`
	YearDefaulted       bool                        `json:"year_defaulted"`
	Rows                int                         `json:"rows"`
	SourceColumnsCount  int                         `json:"source_columns_count"`
	MappedCount         int                         `json:"mapped_count"`
	UnmappedCount       int                         `json:"unmapped_count"`
	TranslatedCount     int                         `json:"translated_count"`
	MappedPct           float64                     `json:"mapped_pct"`
	OverallRetentionPct float64                     `json:"overall_retention_pct"`
	UnmappedColumns     []string                    `json:"unmapped_columns"`
	LowRetentionColumns []string                    `json:"low_retention_columns"`
	Columns             map[string]*FieldDiagnostic `json:"columns"`
}

// FieldReport aggregates one canonical field across every processed release.
type FieldReport struct {
	Field                  string         `json:"field"`
	FilesTotal             int            `json:"files_total"`
	FilesMapped            int            `json:"files_mapped"`
	FilesUnmapped          int            `json:"files_unmapped"`
	UnmappedPct            float64        `json:"unmapped_pct"`
	AvgRetentionWhenMapped *float64       `json:"avg_retention_when_mapped"`
	MinRetentionWhenMapped *float64       `json:"min_retention_when_mapped"`
	MaxRetentionWhenMapped *float64       `json:"max_retention_when_mapped"`
	SourceColumnsUsed      map[string]int `json:"source_columns_used"`
	UnmappedInFiles        []string       `json:"unmapped_in_files"`
	LowCoverage            bool           `json:"low_coverage"`
	AlwaysUnmapped         bool           `json:"always_unmapped"`
}

// HarmonizedTable is one release in canonical code space: one column per
// canonical field, in schema order.
type HarmonizedTable struct {
	Fields  []string
	Columns [][]Value
	Rows    int
}

func NewHarmonizedTable(fields []string, rows int) *HarmonizedTable {
	columns := make([][]Value, len(fields))
	for i := range columns {
		columns[i] = make([]Value, rows)
	}
	return &HarmonizedTable{Fields: fields, Columns: columns, Rows: rows}
}

// NonMissing counts the valid cells of column c.
func (t *HarmonizedTable) NonMissing(c int) int {
	count := 0
	for _, v := range t.Columns[c] {
		if v.Valid {
			count++
		}
	}
	return count
}

// ReleaseError records a release that could not be processed.
type ReleaseError struct {
	File    string `json:"file"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ReleaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.File, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

func (e ReleaseError) MarshalJSON() ([]byte, error) {
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return json.Marshal(struct {
		File    string `json:"file"`
		Message string `json:"message"`
		Error   string `json:"error,omitempty"`
	}{e.File, e.Message, detail})
}

// FileInfo is a discovered release file.
type FileInfo struct {
	Path     string
	Name     string
	Checksum string
}

// ReleaseJob is one release dispatched to the worker. ReleaseID is zero when
// no ledger is configured.
type ReleaseJob struct {
	FilePath  string
	Name      string
	Checksum  string
	ReleaseID int
}

// ReleaseArtifact points at the canonical table emitted for one release.
type ReleaseArtifact struct {
	Identifier string
	Path       string
	Year       int
	Month      *int
	Rows       int
}

// FirstWritePartition tells, per survey year, whether its partition was
// created during this run.
type FirstWritePartition map[int]bool

// ReleaseRecord is a row of the release ledger.
type ReleaseRecord struct {
	ID          int    `json:"id"`
	FileName    string `json:"file_name"`
	Status      string `json:"status"`
	Checksum    string `json:"checksum"`
	RunID       string `json:"run_id"`
	Year        *int   `json:"year"`
	Month       *int   `json:"month"`
	ProcessedAt string `json:"processed_at"`
}
