package harmonize

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSchema = errors.New("invalid canonical schema")

// CanonicalField is one column of the output schema. SourcePriority lists the
// raw variable names to try, most authoritative first.
type CanonicalField struct {
	Name           string
	SourcePriority []string
	Translator     *Translator
}

// ReleaseRules drives year and month inference and the timestamp lock.
type ReleaseRules struct {
	YearField    string
	MonthField   string
	YearColumns  []string
	FallbackYear int
}

// Schema is the immutable, ordered canonical schema together with the
// crosswalk that feeds it.
type Schema struct {
	fields []CanonicalField
	rules  ReleaseRules
	index  map[string]int
}

// NewSchema validates the field list and freezes it. A field without source
// variants gets its own name as the only variant.
func NewSchema(fields []CanonicalField, rules ReleaseRules) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no canonical fields", ErrInvalidSchema)
	}

	s := &Schema{
		fields: make([]CanonicalField, 0, len(fields)),
		rules:  rules,
		index:  make(map[string]int, len(fields)),
	}

	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: field without a name", ErrInvalidSchema)
		}
		key := strings.ToUpper(name)
		if _, exists := s.index[key]; exists {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrInvalidSchema, name)
		}

		priority := make([]string, 0, len(f.SourcePriority))
		for _, variant := range f.SourcePriority {
			if v := strings.TrimSpace(variant); v != "" {
				priority = append(priority, v)
			}
		}
		if len(priority) == 0 {
			priority = []string{name}
		}

		s.index[key] = len(s.fields)
		s.fields = append(s.fields, CanonicalField{
			Name:           name,
			SourcePriority: priority,
			Translator:     f.Translator,
		})
	}

	if rules.YearField != "" {
		if _, ok := s.index[strings.ToUpper(rules.YearField)]; !ok {
			return nil, fmt.Errorf("%w: year field %s is not in the schema", ErrInvalidSchema, rules.YearField)
		}
	}
	if rules.MonthField != "" {
		if _, ok := s.index[strings.ToUpper(rules.MonthField)]; !ok {
			return nil, fmt.Errorf("%w: month field %s is not in the schema", ErrInvalidSchema, rules.MonthField)
		}
	}

	return s, nil
}

func (s *Schema) Fields() []CanonicalField {
	out := make([]CanonicalField, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) Rules() ReleaseRules {
	return s.rules
}

// Index returns the position of a field in the schema, or -1.
func (s *Schema) Index(name string) int {
	i, ok := s.index[strings.ToUpper(name)]
	if !ok {
		return -1
	}
	return i
}

func (s *Schema) Field(name string) (CanonicalField, bool) {
	i := s.Index(name)
	if i < 0 {
		return CanonicalField{}, false
	}
	return s.fields[i], true
}

// TranslatedFields lists the fields that carry a recode table.
func (s *Schema) TranslatedFields() []string {
	var names []string
	for _, f := range s.fields {
		if f.Translator != nil {
			names = append(names, f.Name)
		}
	}
	return names
}
