package harmonize

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

var yearPattern = regexp.MustCompile(`(20\d{2}|199\d)`)

var monthAbbreviations = []string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

// Stem strips directory and extension from a release path.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// YearMonthFromIdentifier reads the survey year and month embedded in a release
// identifier such as "LFS_PUF_APR2019". Either may be nil.
func YearMonthFromIdentifier(identifier string) (year *int, month *int) {
	upper := strings.ToUpper(Stem(identifier))

	if m := yearPattern.FindString(upper); m != "" {
		y := 0
		for _, r := range m {
			y = y*10 + int(r-'0')
		}
		year = &y
	}

	for i, abbr := range monthAbbreviations {
		if strings.Contains(upper, abbr) {
			mo := i + 1
			month = &mo
			break
		}
	}

	return year, month
}

// NewRelease builds the release metadata for a table read from path. The year
// comes from the identifier, then from the most frequent value of the first
// usable year column, then from the fallback year.
func NewRelease(path string, table *models.RawTable, rules ReleaseRules) *models.Release {
	identifier := filepath.Base(path)
	year, month := YearMonthFromIdentifier(identifier)

	release := &models.Release{
		Identifier:       identifier,
		Path:             path,
		Month:            month,
		RowCount:         table.RowCount,
		AvailableColumns: table.AvailableColumns(),
	}

	if year != nil {
		release.Year = *year
		release.YearSource = models.YearFromIdentifier
		return release
	}

	for _, name := range rules.YearColumns {
		col, ok := table.Column(name)
		if !ok {
			continue
		}
		if y, ok := modeYear(col); ok {
			release.Year = y
			release.YearSource = models.YearFromColumn
			return release
		}
	}

	log.Warnf("Could not detect year for %s, defaulting to %d", identifier, rules.FallbackYear)
	release.Year = rules.FallbackYear
	release.YearSource = models.YearFromFallback
	return release
}

// modeYear returns the most frequent positive integer value of a column. Ties
// go to the smallest value.
func modeYear(col *models.RawColumn) (int, bool) {
	counts := make(map[int]int)
	for _, cell := range col.Cells {
		v := CleanNumeric(cell)
		if v.IsMissing() {
			continue
		}
		counts[int(v.Float)]++
	}
	if len(counts) == 0 {
		return 0, false
	}

	values := make([]int, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Ints(values)

	best, bestCount := values[0], counts[values[0]]
	for _, v := range values[1:] {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	if best <= 0 {
		return 0, false
	}
	return best, true
}
