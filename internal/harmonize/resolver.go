package harmonize

import (
	"strings"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

// Resolve picks the source column for a canonical field. Variants are tried in
// priority order and the first one holding a usable value wins, even when a
// later variant is more complete. Present but fully empty variants are skipped.
func Resolve(field CanonicalField, table *models.RawTable) models.ResolvedColumn {
	for _, variant := range field.SourcePriority {
		col, ok := table.Column(variant)
		if !ok {
			continue
		}
		if !hasUsableValue(col) {
			continue
		}
		return models.ResolvedColumn{
			Field:         field.Name,
			SourceVariant: variant,
			Column:        col,
			Status:        models.StatusMapped,
		}
	}

	return models.ResolvedColumn{
		Field:  field.Name,
		Status: models.StatusUnmapped,
	}
}

// hasUsableValue reports whether a column has one non-null value; text columns
// additionally need one value that is not blank.
func hasUsableValue(col *models.RawColumn) bool {
	for _, cell := range col.Cells {
		if cell.Null {
			continue
		}
		if col.Kind != models.KindText {
			return true
		}
		if strings.TrimSpace(cell.Text) != "" {
			return true
		}
	}
	return false
}
