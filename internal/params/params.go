// Package params validates the numeric fields a user types to configure a run.
package params

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when a field name is not part of a form.
var ErrUnknownField = errors.New("params: unknown field")

// Field names shared by the swarm and genetic forms.
const (
	Lower          = "lower"
	Upper          = "upper"
	PopulationSize = "populationSize"
	Inertia        = "w"
	Cognitive      = "c1"
	Social         = "c2"
	MutationRate   = "mutationRate"
	CrossoverRate  = "crossoverRate"
	MutationScale  = "mutationScale"
)

// Kind selects the grammar a field is checked against.
type Kind string

const (
	// Decimal is an optionally signed decimal number.
	Decimal Kind = "decimal"
	// Count is a positive integer no larger than MaxCount.
	Count Kind = "count"
	// Unit is an unsigned decimal in [0, 1].
	Unit Kind = "unit"
)

// MaxCount bounds Count fields; populations are allocated up front.
const MaxCount = 10000

var (
	decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	countPattern   = regexp.MustCompile(`^\d+$`)
	unitPattern    = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// Parse checks raw against the grammar of kind.
func Parse(kind Kind, raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)

	switch kind {
	case Decimal:
		if !decimalPattern.MatchString(raw) {
			return 0, false
		}
	case Count:
		if !countPattern.MatchString(raw) {
			return 0, false
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxCount {
			return 0, false
		}
		return float64(n), true
	case Unit:
		if !unitPattern.MatchString(raw) {
			return 0, false
		}
	default:
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if kind == Unit && (v < 0 || v > 1) {
		return 0, false
	}
	return v, true
}

// Field is one user-editable value.
// Raw is what the user typed; Value is the last value that parsed.
type Field struct {
	Name  string  `json:"name"`
	Kind  Kind    `json:"kind"`
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

func newField(name string, kind Kind, raw string) *Field {
	f := &Field{Name: name, Kind: kind}
	f.set(raw)
	return f
}

func (f *Field) set(raw string) {
	f.Raw = raw
	if v, ok := Parse(f.Kind, raw); ok {
		f.Value = v
		f.Valid = true
		return
	}
	f.Valid = false
}

// Form is the set of fields configuring one algorithm, plus the
// bounds-ordering and objective flags that feed the aggregate check.
type Form struct {
	fields         []*Field
	index          map[string]*Field
	boundsOrdered  bool
	objectiveValid bool
}

// NewForm builds a form from name/kind/default triples.
// Lower and Upper must be among the fields.
func NewForm(fields ...Field) *Form {
	form := &Form{index: make(map[string]*Field, len(fields))}
	for _, spec := range fields {
		f := newField(spec.Name, spec.Kind, spec.Raw)
		form.fields = append(form.fields, f)
		form.index[f.Name] = f
	}

	lower, lok := form.index[Lower]
	upper, uok := form.index[Upper]
	form.boundsOrdered = lok && uok && lower.Valid && upper.Valid && lower.Value <= upper.Value
	return form
}

// SwarmForm returns the particle swarm fields with their defaults.
func SwarmForm() *Form {
	return NewForm(
		Field{Name: Lower, Kind: Decimal, Raw: "-5"},
		Field{Name: Upper, Kind: Decimal, Raw: "5"},
		Field{Name: PopulationSize, Kind: Count, Raw: "100"},
		Field{Name: Inertia, Kind: Unit, Raw: "0.65"},
		Field{Name: Cognitive, Kind: Unit, Raw: "0.1"},
		Field{Name: Social, Kind: Unit, Raw: "0.1"},
	)
}

// GeneticForm returns the genetic algorithm fields with their defaults.
func GeneticForm() *Form {
	return NewForm(
		Field{Name: Lower, Kind: Decimal, Raw: "-5"},
		Field{Name: Upper, Kind: Decimal, Raw: "5"},
		Field{Name: PopulationSize, Kind: Count, Raw: "100"},
		Field{Name: MutationRate, Kind: Unit, Raw: "0.1"},
		Field{Name: CrossoverRate, Kind: Unit, Raw: "0.9"},
		Field{Name: MutationScale, Kind: Unit, Raw: "0.05"},
	)
}

// Set updates a field from raw text. Malformed text is not an error: the
// field keeps the text and becomes invalid.
func (f *Form) Set(name, raw string) (Field, error) {
	field, ok := f.index[name]
	if !ok {
		return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	field.set(raw)

	// Ordering only moves when both bounds currently parse; a malformed
	// bound reports its own error and leaves the ordering flag alone.
	if field.Valid && (name == Lower || name == Upper) {
		lower, upper := f.index[Lower], f.index[Upper]
		if lower.Valid && upper.Valid {
			f.boundsOrdered = lower.Value <= upper.Value
		}
	}
	return *field, nil
}

// SetObjectiveValid records whether the current expression is usable.
func (f *Form) SetObjectiveValid(valid bool) {
	f.objectiveValid = valid
}

// ObjectiveValid reports the flag recorded by SetObjectiveValid.
func (f *Form) ObjectiveValid() bool { return f.objectiveValid }

// BoundsOrdered reports whether lower <= upper for the latest valid bounds.
func (f *Form) BoundsOrdered() bool { return f.boundsOrdered }

// Valid is the aggregate "ready to run" flag.
func (f *Form) Valid() bool {
	if !f.objectiveValid || !f.boundsOrdered {
		return false
	}
	for _, field := range f.fields {
		if !field.Valid {
			return false
		}
	}
	return true
}

// Field returns a copy of the named field.
func (f *Form) Field(name string) (Field, bool) {
	field, ok := f.index[name]
	if !ok {
		return Field{}, false
	}
	return *field, true
}

// Fields returns copies of all fields in display order.
func (f *Form) Fields() []Field {
	out := make([]Field, len(f.fields))
	for i, field := range f.fields {
		out[i] = *field
	}
	return out
}

// Value returns the last parsed value of a field, or 0 for unknown names.
func (f *Form) Value(name string) float64 {
	if field, ok := f.index[name]; ok {
		return field.Value
	}
	return 0
}

// Int returns Value truncated to an int.
func (f *Form) Int(name string) int {
	return int(f.Value(name))
}
