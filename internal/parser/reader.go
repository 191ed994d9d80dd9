package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

// naTokens are read as missing. The list covers the blank and dot markers used
// by the survey extracts plus the usual spreadsheet spellings.
var naTokens = map[string]bool{
	"":         true,
	"\t":       true,
	" ":        true,
	"  ":       true,
	"   ":      true,
	".":        true,
	"NA":       true,
	"N/A":      true,
	"n/a":      true,
	"nan":      true,
	"NaN":      true,
	"-NaN":     true,
	"-nan":     true,
	"NULL":     true,
	"null":     true,
	"None":     true,
	"<NA>":     true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"1.#IND":   true,
	"1.#QNAN":  true,
}

// SupportedExtensions lists the release formats ReadRelease understands.
var SupportedExtensions = []string{".csv", ".txt", ".xlsx"}

func IsNA(s string) bool {
	return naTokens[s]
}

// ReadRelease loads a whole release into memory.
func ReadRelease(path string) (*models.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path)
	case ".csv", ".txt":
		return ReadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported release format %s", filepath.Ext(path))
	}
}

// ReadHeader returns only the column names of a release.
func ReadHeader(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSXHeader(path)
	case ".csv", ".txt":
		return readCSVHeader(path)
	default:
		return nil, fmt.Errorf("unsupported release format %s", filepath.Ext(path))
	}
}

// normalizeHeader trims names, names blank columns by position and suffixes
// repeated names with .1, .2 and so on.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// buildTable turns a header and its records into typed raw columns. Short
// records are padded with missing cells.
func buildTable(header []string, records [][]string) *models.RawTable {
	names := normalizeHeader(header)
	columns := make([]*models.RawColumn, len(names))
	for c, name := range names {
		col := &models.RawColumn{
			Name:  name,
			Kind:  models.KindNumeric,
			Cells: make([]models.Cell, len(records)),
		}
		for r, record := range records {
			if c >= len(record) || IsNA(record[c]) {
				col.Cells[r] = models.Cell{Null: true}
				continue
			}
			text := record[c]
			col.Cells[r] = models.Cell{Text: text}
			if col.Kind == models.KindNumeric {
				if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
					col.Kind = models.KindText
				}
			}
		}
		columns[c] = col
	}
	return models.NewRawTable(columns, len(records))
}
