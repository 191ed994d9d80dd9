package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const DefaultBatchSize = 10

// CombineResult describes the combined artifact after it was written.
type CombineResult struct {
	Path    string
	Fields  []string
	Rows    int
	NonNull []int
	YearMin int
	YearMax int
	Batches int
}

// Combine concatenates the per-release tables into one CSV, oldest release
// first. Releases are loaded batchSize at a time so only one batch is ever in
// memory. Non-missing cells are counted per field on the way through.
func (w *Writer) Combine(artifacts []models.ReleaseArtifact, fields []string, batchSize int) (*CombineResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ordered := append([]models.ReleaseArtifact(nil), artifacts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return coverage.Chronological(ordered[i].Year, ordered[i].Month, ordered[j].Year, ordered[j].Month)
	})

	path := w.Path(CombinedFile)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	result := &CombineResult{Path: path, Fields: fields, NonNull: make([]int, len(fields))}
	if len(ordered) > 0 {
		result.YearMin = ordered[0].Year
		result.YearMax = ordered[len(ordered)-1].Year
	}
	for start := 0; start < len(ordered); start += batchSize {
		end := min(start+batchSize, len(ordered))
		result.Batches++
		log.Printf("Batch %d: files %d-%d", result.Batches, start+1, end)

		var batch [][]string
		for _, artifact := range ordered[start:end] {
			records, err := readArtifact(artifact.Path, fields)
			if err != nil {
				return nil, err
			}
			batch = append(batch, records...)
		}

		for _, record := range batch {
			for c, cell := range record {
				if cell != "" {
					result.NonNull[c]++
				}
			}
		}
		if err := writer.WriteAll(batch); err != nil {
			return nil, fmt.Errorf("failed to write batch %d to %s: %w", result.Batches, path, err)
		}
		result.Rows += len(batch)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return result, file.Close()
}

func readArtifact(path string, fields []string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(fields)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	for i, name := range header {
		if name != fields[i] {
			return nil, fmt.Errorf("artifact %s has column %s where %s was expected", path, name, fields[i])
		}
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		records = append(records, record)
	}
	return records, nil
}
