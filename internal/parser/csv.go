package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

// headerPeekSize bounds how much of a file readCSVHeader decodes.
const headerPeekSize = 1 << 20

var errRowTooLong = errors.New("record has more fields than the header")

// ReadCSV reads a comma separated release. A strict parse is tried first; if
// the file has malformed rows it is parsed again leniently and the bad rows
// are skipped with a warning.
func ReadCSV(filePath string) (*models.RawTable, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}

	text, enc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	if enc != "utf-8" {
		log.Printf("Decoded %s as %s", filePath, enc)
	}

	header, records, err := parseStrict(text)
	if err != nil {
		log.Warnf("Malformed rows in %s (%v), retrying leniently", filePath, err)
		header, records, err = parseLenient(text, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	return buildTable(header, records), nil
}

func newReader(text string) *csv.Reader {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	return reader
}

func readHeaderRecord(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return header, nil
}

func parseStrict(text string) ([]string, [][]string, error) {
	reader := newReader(text)
	header, err := readHeaderRecord(reader)
	if err != nil {
		return nil, nil, err
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, nil, fmt.Errorf("line %d: %w", line, errRowTooLong)
		}
		records = append(records, record)
	}
	return header, records, nil
}

func parseLenient(text, filePath string) ([]string, [][]string, error) {
	reader := newReader(text)
	reader.LazyQuotes = true
	header, err := readHeaderRecord(reader)
	if err != nil {
		return nil, nil, err
	}

	var records [][]string
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, nil, err
			}
			log.Warnf("Skipping bad line in %s: %v", filePath, err)
			skipped++
			continue
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			log.Warnf("Skipping line %d in %s: expected %d fields, saw %d", line, filePath, len(header), len(record))
			skipped++
			continue
		}
		records = append(records, record)
	}

	if skipped > 0 {
		log.Warnf("Skipped %d malformed lines in %s", skipped, filePath)
	}
	return header, records, nil
}

func readCSVHeader(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	chunk, err := io.ReadAll(io.LimitReader(bufio.NewReader(file), headerPeekSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	if len(chunk) == headerPeekSize {
		if i := bytes.LastIndexByte(chunk, '\n'); i > 0 {
			chunk = chunk[:i+1]
		}
	}

	text, _, err := decode(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}

	reader := newReader(text)
	reader.LazyQuotes = true
	header, err := readHeaderRecord(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", filePath, err)
	}
	return normalizeHeader(header), nil
}
