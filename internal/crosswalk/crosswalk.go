package crosswalk

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/harmonize"
)

var ErrInvalidCrosswalk = errors.New("invalid crosswalk")

//go:embed default.yaml
var defaultCrosswalk []byte

const defaultFallbackYear = 2020

// File is the on-disk crosswalk: the ordered canonical schema, the priority
// list of source variants per field and the recode tables.
type File struct {
	Version     string                     `yaml:"version"`
	Release     ReleaseConfig              `yaml:"release"`
	Fields      []FieldConfig              `yaml:"fields"`
	Translators map[string]TranslatorTable `yaml:"translators"`
}

type ReleaseConfig struct {
	YearField    string   `yaml:"year_field"`
	MonthField   string   `yaml:"month_field"`
	YearColumns  []string `yaml:"year_columns"`
	FallbackYear int      `yaml:"fallback_year"`
}

type FieldConfig struct {
	Name       string   `yaml:"name"`
	Sources    []string `yaml:"sources,omitempty"`
	Translator string   `yaml:"translator,omitempty"`
}

type TranslatorTable struct {
	Eras []EraConfig `yaml:"eras"`
}

type EraConfig struct {
	From        *int          `yaml:"from,omitempty"`
	Map         map[int]int   `yaml:"map,omitempty"`
	Ranges      []RangeConfig `yaml:"ranges,omitempty"`
	Accept      []int         `yaml:"accept,omitempty"`
	Passthrough bool          `yaml:"passthrough,omitempty"`
}

type RangeConfig struct {
	Min      int  `yaml:"min"`
	Max      int  `yaml:"max"`
	Value    int  `yaml:"value,omitempty"`
	Base     int  `yaml:"base,omitempty"`
	Step     int  `yaml:"step,omitempty"`
	Identity bool `yaml:"identity,omitempty"`
}

// LoadFile loads a crosswalk from path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crosswalk file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the crosswalk compiled into the binary.
func Default() (*File, error) {
	return Parse(defaultCrosswalk)
}

// Load reads path, or the built-in crosswalk when path is empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse crosswalk YAML: %w", err)
	}
	applyDefaults(&f)
	return &f, nil
}

func applyDefaults(f *File) {
	if f.Version == "" {
		f.Version = "1"
	}
	if f.Release.FallbackYear == 0 {
		f.Release.FallbackYear = defaultFallbackYear
	}
	if len(f.Release.YearColumns) == 0 && f.Release.YearField != "" {
		f.Release.YearColumns = []string{f.Release.YearField}
	}
	for i := range f.Fields {
		if len(f.Fields[i].Sources) == 0 {
			f.Fields[i].Sources = []string{f.Fields[i].Name}
		}
	}
}

// Schema compiles the crosswalk into the canonical schema used by the engine.
// Every translator table is built, so a broken table fails here even when no
// field references it.
func (f *File) Schema() (*harmonize.Schema, error) {
	translators := make(map[string]*harmonize.Translator, len(f.Translators))
	for name, table := range f.Translators {
		t, err := buildTranslator(name, table)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCrosswalk, err)
		}
		translators[strings.ToLower(name)] = t
	}

	fields := make([]harmonize.CanonicalField, 0, len(f.Fields))
	for _, fc := range f.Fields {
		field := harmonize.CanonicalField{
			Name:           fc.Name,
			SourcePriority: fc.Sources,
		}
		if fc.Translator != "" {
			t, ok := translators[strings.ToLower(fc.Translator)]
			if !ok {
				return nil, fmt.Errorf("%w: field %s uses unknown translator %q", ErrInvalidCrosswalk, fc.Name, fc.Translator)
			}
			field.Translator = t
		}
		fields = append(fields, field)
	}

	schema, err := harmonize.NewSchema(fields, harmonize.ReleaseRules{
		YearField:    f.Release.YearField,
		MonthField:   f.Release.MonthField,
		YearColumns:  f.Release.YearColumns,
		FallbackYear: f.Release.FallbackYear,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCrosswalk, err)
	}
	return schema, nil
}

func buildTranslator(name string, table TranslatorTable) (*harmonize.Translator, error) {
	eras := make([]harmonize.Era, len(table.Eras))
	for i, ec := range table.Eras {
		ranges := make([]harmonize.Range, len(ec.Ranges))
		for j, rc := range ec.Ranges {
			ranges[j] = harmonize.Range{
				Min:      rc.Min,
				Max:      rc.Max,
				Value:    rc.Value,
				Base:     rc.Base,
				Step:     rc.Step,
				Identity: rc.Identity,
			}
		}
		eras[i] = harmonize.Era{
			From:        ec.From,
			Map:         ec.Map,
			Ranges:      ranges,
			Accept:      ec.Accept,
			Passthrough: ec.Passthrough,
		}
	}
	return harmonize.NewTranslator(name, eras)
}

// LoadSchema is the usual entry point: load the crosswalk at path (or the
// built-in one) and compile it.
func LoadSchema(path string) (*harmonize.Schema, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return f.Schema()
}
