package ingestion

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/parser"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
	"github.com/ThiagoRGoveia/lfs-harmonizer/pkg/checksum"
)

// CrossrefResult is the outcome of a header-only pass over a directory.
type CrossrefResult struct {
	*coverage.CrossrefResult
	Layouts      int
	CoveragePath string
	DetailPath   string
}

// RunCrossref checks the crosswalk against the headers of every release under
// inputDir without reading any data. Unreadable headers are logged and
// skipped.
func RunCrossref(processor Processor, schema *harmonize.Schema, writer *report.Writer, inputDir string) (*CrossrefResult, error) {
	fileInfos, err := processor.ScanForFiles(inputDir)
	if err != nil {
		return nil, err
	}
	if len(fileInfos) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoReleaseFiles, inputDir)
	}

	headers := make([]coverage.ReleaseHeader, 0, len(fileInfos))
	layouts := make(map[string][]string)
	for _, fileInfo := range fileInfos {
		columns, err := parser.ReadHeader(fileInfo.Path)
		if err != nil {
			log.Warnf("Could not read header of %s: %v", fileInfo.Name, err)
			continue
		}
		year, month := harmonize.YearMonthFromIdentifier(fileInfo.Name)
		headers = append(headers, coverage.ReleaseHeader{Release: fileInfo.Name, Year: year, Month: month, Columns: columns})

		fingerprint := checksum.HeaderFingerprint(columns)
		layouts[fingerprint] = append(layouts[fingerprint], fileInfo.Name)
	}

	result := coverage.Crossref(schema.Fields(), headers)
	coveragePath, detailPath, err := writer.WriteCrossref(result)
	if err != nil {
		return nil, err
	}

	log.Printf("Read %d headers, %d distinct column layouts", len(headers), len(layouts))
	for _, entry := range result.Entries {
		if entry.CoveragePct < 100 {
			log.Printf("  %-24s %5.1f%%  missing in %d/%d releases", entry.Field, entry.CoveragePct, len(entry.UncoveredReleases), result.Releases)
		}
	}
	log.Printf("Saved %s", coveragePath)
	log.Printf("Saved %s", detailPath)

	return &CrossrefResult{
		CrossrefResult: result,
		Layouts:        len(layouts),
		CoveragePath:   coveragePath,
		DetailPath:     detailPath,
	}, nil
}
