package coverage

import (
	"math"
	"sort"
	"strings"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
)

// ReleaseHeader is the column list of one release, read without its data.
type ReleaseHeader struct {
	Release string
	Year    *int
	Month   *int
	Columns []string
}

// CrossrefEntry tells, for one field, which releases carry at least one of its
// source variants in their header.
type CrossrefEntry struct {
	Field             string
	Variants          []string
	VariantsMatched   []string
	CoveredReleases   []string
	UncoveredReleases []string
	VariantUsed       map[string]string
	CoveragePct       float64
}

// UncoveredDetail lists what a release offered when no variant of a field was
// in its header.
type UncoveredDetail struct {
	Field            string
	Release          string
	Year             *int
	Month            *int
	VariantsSearched []string
	AvailableColumns []string
}

type CrossrefResult struct {
	Releases  int
	Entries   []CrossrefEntry
	Uncovered []UncoveredDetail
}

// Crossref checks the crosswalk against release headers only. A variant that
// is present but empty still counts here; the full run decides on data.
func Crossref(fields []harmonize.CanonicalField, headers []ReleaseHeader) *CrossrefResult {
	ordered := append([]ReleaseHeader(nil), headers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return Chronological(yearOrZero(ordered[i].Year), ordered[i].Month, yearOrZero(ordered[j].Year), ordered[j].Month)
	})

	available := make([]map[string]bool, len(ordered))
	for i, h := range ordered {
		available[i] = make(map[string]bool, len(h.Columns))
		for _, c := range h.Columns {
			available[i][strings.ToUpper(strings.TrimSpace(c))] = true
		}
	}

	result := &CrossrefResult{Releases: len(ordered)}
	for _, field := range fields {
		entry := CrossrefEntry{
			Field:             field.Name,
			Variants:          field.SourcePriority,
			VariantsMatched:   []string{},
			CoveredReleases:   []string{},
			UncoveredReleases: []string{},
			VariantUsed:       map[string]string{},
		}
		matched := map[string]bool{}

		for i, h := range ordered {
			variant := ""
			for _, v := range field.SourcePriority {
				if available[i][strings.ToUpper(v)] {
					variant = v
					break
				}
			}
			if variant == "" {
				entry.UncoveredReleases = append(entry.UncoveredReleases, h.Release)
				cols := append([]string(nil), h.Columns...)
				sort.Strings(cols)
				result.Uncovered = append(result.Uncovered, UncoveredDetail{
					Field:            field.Name,
					Release:          h.Release,
					Year:             h.Year,
					Month:            h.Month,
					VariantsSearched: field.SourcePriority,
					AvailableColumns: cols,
				})
				continue
			}
			entry.CoveredReleases = append(entry.CoveredReleases, h.Release)
			entry.VariantUsed[h.Release] = variant
			if !matched[variant] {
				matched[variant] = true
				entry.VariantsMatched = append(entry.VariantsMatched, variant)
			}
		}

		if len(ordered) > 0 {
			entry.CoveragePct = round1(float64(len(entry.CoveredReleases)) / float64(len(ordered)) * 100)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

func yearOrZero(y *int) int {
	if y == nil {
		return 0
	}
	return *y
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
