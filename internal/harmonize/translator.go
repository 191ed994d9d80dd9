package harmonize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

// maxExactCode bounds the codes a translator accepts; beyond it float64 can no
// longer represent every integer.
const maxExactCode = 1 << 53

var missingTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"na":   true,
	".":    true,
	"none": true,
}

// CleanNumeric coerces a raw cell to a number. Anything that does not parse
// becomes missing; there is no partial recovery.
func CleanNumeric(cell models.Cell) models.Value {
	if cell.Null {
		return models.Missing()
	}
	text := strings.TrimSpace(cell.Text)
	if missingTokens[strings.ToLower(text)] {
		return models.Missing()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return models.Missing()
	}
	return models.Number(f)
}

// Range maps an inclusive code interval. Identity keeps the code, Step > 0
// maps to Base + (code-Min)/Step, otherwise every code maps to Value.
type Range struct {
	Min      int
	Max      int
	Value    int
	Base     int
	Step     int
	Identity bool
}

func (r Range) contains(code int) bool {
	return code >= r.Min && code <= r.Max
}

func (r Range) apply(code int) int {
	switch {
	case r.Identity:
		return code
	case r.Step > 0:
		return r.Base + (code-r.Min)/r.Step
	default:
		return r.Value
	}
}

// Era is one band of the year axis. From is the inclusive lower bound; only
// the first era of a translator may leave it unset.
type Era struct {
	From        *int
	Map         map[int]int
	Ranges      []Range
	Accept      []int
	Passthrough bool

	accept map[int]bool
}

func (e *Era) lookup(code int) (int, bool) {
	if e.Passthrough {
		return code, true
	}
	if v, ok := e.Map[code]; ok {
		return v, true
	}
	for _, r := range e.Ranges {
		if r.contains(code) {
			return r.apply(code), true
		}
	}
	if e.accept[code] {
		return code, true
	}
	return 0, false
}

// Translator recodes raw codes into the canonical code space as a pure
// function of (code, year).
type Translator struct {
	name string
	eras []Era
}

// NewTranslator checks that the eras cover the whole year axis exactly once:
// the first era is open below and lower bounds strictly increase.
func NewTranslator(name string, eras []Era) (*Translator, error) {
	if len(eras) == 0 {
		return nil, fmt.Errorf("translator %s: no eras", name)
	}
	if eras[0].From != nil {
		return nil, fmt.Errorf("translator %s: first era must not have a lower bound", name)
	}

	t := &Translator{name: name, eras: make([]Era, len(eras))}
	for i, era := range eras {
		if i > 0 {
			if era.From == nil {
				return nil, fmt.Errorf("translator %s: era %d has no lower bound", name, i+1)
			}
			if prev := eras[i-1].From; prev != nil && *era.From <= *prev {
				return nil, fmt.Errorf("translator %s: era %d starts at %d, not after %d", name, i+1, *era.From, *prev)
			}
		}
		for _, r := range era.Ranges {
			if r.Min > r.Max {
				return nil, fmt.Errorf("translator %s: era %d has range %d-%d with min above max", name, i+1, r.Min, r.Max)
			}
			if r.Step < 0 {
				return nil, fmt.Errorf("translator %s: era %d has a negative step", name, i+1)
			}
		}

		copied := era
		if era.From != nil {
			from := *era.From
			copied.From = &from
		}
		copied.Map = make(map[int]int, len(era.Map))
		for k, v := range era.Map {
			copied.Map[k] = v
		}
		copied.Ranges = append([]Range(nil), era.Ranges...)
		copied.Accept = append([]int(nil), era.Accept...)
		copied.accept = make(map[int]bool, len(era.Accept))
		for _, code := range era.Accept {
			copied.accept[code] = true
		}
		t.eras[i] = copied
	}
	return t, nil
}

func (t *Translator) Name() string {
	return t.name
}

// EraIndex returns the era that owns year.
func (t *Translator) EraIndex(year int) int {
	n := sort.Search(len(t.eras), func(i int) bool {
		return t.eras[i].From != nil && *t.eras[i].From > year
	})
	return n - 1
}

// Translate maps one cleaned code. Codes absent from the era's rules become
// missing.
func (t *Translator) Translate(code models.Value, year int) models.Value {
	if code.IsMissing() || math.IsNaN(code.Float) || math.IsInf(code.Float, 0) {
		return models.Missing()
	}
	truncated := math.Trunc(code.Float)
	if math.Abs(truncated) > maxExactCode {
		return models.Missing()
	}

	era := &t.eras[t.EraIndex(year)]
	out, ok := era.lookup(int(truncated))
	if !ok {
		return models.Missing()
	}
	return models.Number(float64(out))
}
