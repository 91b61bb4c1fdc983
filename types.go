package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Named year sequences carried by every result bundle
const (
	FullYears        = "full_years"
	HistoricYears    = "historic_years"
	ProspectiveYears = "prospective_years"
)

// AllowedYearRanges lists the named year sequences in bundle order
var AllowedYearRanges = []string{FullYears, HistoricYears, ProspectiveYears}

func isAllowedYearRange(name string) bool {
	for _, r := range AllowedYearRanges {
		if r == name {
			return true
		}
	}
	return false
}

// Result bundle table and mapping names, as referenced by formulas
const (
	TableVectorOutputs  = "vector_outputs"
	TableClimateOutputs = "climate_outputs"
	MapFloatOutputs     = "float_outputs"
	MapFloatInputs      = "float_inputs"
)

// YearRangeKind says how a YearSelector restricts accessor calls
type YearRangeKind int

const (
	NoYearRange    YearRangeKind = iota // Only scalar inputs/outputs may be referenced
	NamedYearRange                      // Accessors return series aligned to a named sequence
	SingleYear                          // Accessors return the value at one year
)

// YearSelector is the year-range argument of a formula: a named sequence,
// a single year, or nothing.
type YearSelector struct {
	Kind YearRangeKind
	Name string
	Year int
}

// Named selects one of the three named year sequences
func Named(name string) YearSelector {
	return YearSelector{Kind: NamedYearRange, Name: name}
}

// AtYear selects a single year
func AtYear(year int) YearSelector {
	return YearSelector{Kind: SingleYear, Year: year}
}

// IsZero reports whether no year range was given
func (s YearSelector) IsZero() bool {
	return s.Kind == NoYearRange
}

func (s YearSelector) String() string {
	switch s.Kind {
	case NamedYearRange:
		return s.Name
	case SingleYear:
		return strconv.Itoa(s.Year)
	default:
		return ""
	}
}

// ParseYearSelector reads a year range tag: "" means none, an integer is a
// single year, anything else must be one of AllowedYearRanges.
func ParseYearSelector(text string) (YearSelector, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return YearSelector{}, nil
	}
	if year, err := strconv.Atoi(text); err == nil {
		return AtYear(year), nil
	}
	if !isAllowedYearRange(text) {
		return YearSelector{}, formulaErrorf(InvalidYearRange, "",
			"invalid year range %q, allowed values are %s or a single year", text, strings.Join(AllowedYearRanges, ", "))
	}
	return Named(text), nil
}

// UnmarshalYAML accepts a year range name or an integer year
func (s *YearSelector) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: year_range must be a string or an integer", value.Line)
	}
	parsed, err := ParseYearSelector(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the selector back as a name or an integer
func (s YearSelector) MarshalYAML() (interface{}, error) {
	switch s.Kind {
	case NamedYearRange:
		return s.Name, nil
	case SingleYear:
		return s.Year, nil
	default:
		return nil, nil
	}
}

// MarshalJSON mirrors MarshalYAML for the web API
func (s YearSelector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case NamedYearRange:
		return []byte(strconv.Quote(s.Name)), nil
	case SingleYear:
		return []byte(strconv.Itoa(s.Year)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a quoted name, a bare integer or null
func (s *YearSelector) UnmarshalJSON(data []byte) error {
	text := string(data)
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	parsed, err := ParseYearSelector(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Table is a year-indexed set of named float columns
type Table struct {
	Years   []int                `json:"years"`
	Columns map[string][]float64 `json:"columns"`
}

// NewTable creates an empty table over the given years
func NewTable(years []int) *Table {
	return &Table{
		Years:   append([]int(nil), years...),
		Columns: make(map[string][]float64),
	}
}

// Has reports whether the column exists
func (t *Table) Has(column string) bool {
	_, ok := t.Columns[column]
	return ok
}

// ColumnNames returns the column names sorted alphabetically
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) rowOf(year int) (int, bool) {
	for i, y := range t.Years {
		if y == year {
			return i, true
		}
	}
	return 0, false
}

// At returns the value of a column at one year
func (t *Table) At(column string, year int) (float64, bool) {
	values, ok := t.Columns[column]
	if !ok {
		return 0, false
	}
	row, ok := t.rowOf(year)
	if !ok || row >= len(values) {
		return 0, false
	}
	return values[row], true
}

// Slice returns a column restricted to the given years, in that order
func (t *Table) Slice(column string, years []int) ([]float64, error) {
	values, ok := t.Columns[column]
	if !ok {
		return nil, fmt.Errorf("column %q not found", column)
	}
	out := make([]float64, len(years))
	for i, year := range years {
		row, ok := t.rowOf(year)
		if !ok || row >= len(values) {
			return nil, fmt.Errorf("year %d not found for column %q", year, column)
		}
		out[i] = values[row]
	}
	return out, nil
}

// Set stores a full column; values must align with Years
func (t *Table) Set(column string, values []float64) {
	t.Columns[column] = values
}

// Clone creates a deep copy of a Table
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := &Table{
		Years:   append([]int(nil), t.Years...),
		Columns: make(map[string][]float64, len(t.Columns)),
	}
	for name, values := range t.Columns {
		clone.Columns[name] = append([]float64(nil), values...)
	}
	return clone
}

// ResultBundle is the output of one simulation run
type ResultBundle struct {
	VectorOutputs  *Table             `json:"vector_outputs"`
	ClimateOutputs *Table             `json:"climate_outputs"`
	FloatOutputs   map[string]float64 `json:"float_outputs"`
	FloatInputs    map[string]float64 `json:"float_inputs"`
	Years          map[string][]int   `json:"years"`
}

// Clone creates a deep copy of a ResultBundle
func (b *ResultBundle) Clone() *ResultBundle {
	if b == nil {
		return nil
	}
	clone := &ResultBundle{
		VectorOutputs:  b.VectorOutputs.Clone(),
		ClimateOutputs: b.ClimateOutputs.Clone(),
		FloatOutputs:   cloneFloatMap(b.FloatOutputs),
		FloatInputs:    cloneFloatMap(b.FloatInputs),
	}
	if b.Years != nil {
		clone.Years = make(map[string][]int, len(b.Years))
		for key, years := range b.Years {
			clone.Years[key] = append([]int(nil), years...)
		}
	}
	return clone
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PiecewiseValue is a parameter given either as a scalar or as breakpoint
// years with values.
//
// With no years and one value it is a constant. With one value fewer than
// years, each value holds over the period between two breakpoints. With
// equal lengths the values are interpolated linearly between breakpoints.
type PiecewiseValue struct {
	Years  []int     `yaml:"years,omitempty" json:"years,omitempty"`
	Values []float64 `yaml:"values" json:"values"`
}

// Scalar builds a constant PiecewiseValue
func Scalar(v float64) PiecewiseValue {
	return PiecewiseValue{Values: []float64{v}}
}

// IsScalar reports whether the value is a plain constant
func (p PiecewiseValue) IsScalar() bool {
	return len(p.Years) == 0 && len(p.Values) == 1
}

// Clone creates a deep copy of a PiecewiseValue
func (p PiecewiseValue) Clone() PiecewiseValue {
	return PiecewiseValue{
		Years:  append([]int(nil), p.Years...),
		Values: append([]float64(nil), p.Values...),
	}
}

// Validate checks the years/values pairing
func (p PiecewiseValue) Validate() error {
	switch {
	case len(p.Values) == 0:
		return fmt.Errorf("no values")
	case len(p.Years) == 0 && len(p.Values) != 1:
		return fmt.Errorf("%d values given without breakpoint years", len(p.Values))
	case len(p.Years) > 0 && len(p.Values) != len(p.Years) && len(p.Values) != len(p.Years)-1:
		return fmt.Errorf("%d values for %d breakpoint years", len(p.Values), len(p.Years))
	}
	for i := 1; i < len(p.Years); i++ {
		if p.Years[i] <= p.Years[i-1] {
			return fmt.Errorf("breakpoint years must be strictly increasing")
		}
	}
	return nil
}

// At evaluates the value at a year
func (p PiecewiseValue) At(year int) float64 {
	if len(p.Values) == 0 {
		return 0
	}
	if len(p.Years) == 0 {
		return p.Values[0]
	}
	if len(p.Values) == len(p.Years)-1 {
		// Period-constant values
		for i := 0; i < len(p.Values); i++ {
			if year < p.Years[i+1] {
				return p.Values[i]
			}
		}
		return p.Values[len(p.Values)-1]
	}
	if year <= p.Years[0] {
		return p.Values[0]
	}
	last := len(p.Years) - 1
	if year >= p.Years[last] {
		return p.Values[last]
	}
	for i := 0; i < last; i++ {
		if year >= p.Years[i] && year <= p.Years[i+1] {
			span := float64(p.Years[i+1] - p.Years[i])
			frac := float64(year-p.Years[i]) / span
			return p.Values[i] + frac*(p.Values[i+1]-p.Values[i])
		}
	}
	return p.Values[last]
}

// ParameterMutation sets one named parameter when a lever is selected
type ParameterMutation struct {
	Parameter      string         `yaml:"parameter" json:"parameter"`
	Value          PiecewiseValue `yaml:"value" json:"value"`
	WhenSelected   []string       `yaml:"when_selected,omitempty" json:"when_selected,omitempty"`
	UnlessSelected []string       `yaml:"unless_selected,omitempty" json:"unless_selected,omitempty"`
}

// AppliesTo reports whether the guards hold for a selected lever set
func (m ParameterMutation) AppliesTo(selected map[string]bool) bool {
	for _, id := range m.WhenSelected {
		if !selected[id] {
			return false
		}
	}
	for _, id := range m.UnlessSelected {
		if selected[id] {
			return false
		}
	}
	return true
}

// LeverDefinition is one policy card: an identifier, a display name and the
// parameter mutations it applies.
type LeverDefinition struct {
	ID          string              `yaml:"id" json:"id"`
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Implemented *bool               `yaml:"implemented,omitempty" json:"implemented,omitempty"`
	Mutations   []ParameterMutation `yaml:"mutations,omitempty" json:"mutations,omitempty"`
}

// IsImplemented reports whether selecting the lever changes the simulation.
// Levers default to implemented.
func (l LeverDefinition) IsImplemented() bool {
	return l.Implemented == nil || *l.Implemented
}

// DisplayName returns the lever name, tagged when not implemented yet
func (l LeverDefinition) DisplayName() string {
	if l.IsImplemented() {
		return l.Name
	}
	return "[NI] " + l.Name
}

type piecewiseFields PiecewiseValue

// UnmarshalYAML accepts either a bare number or a years/values mapping
func (p *PiecewiseValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var v float64
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("line %d: parameter value must be a number: %w", value.Line, err)
		}
		*p = Scalar(v)
		return nil
	}
	var fields piecewiseFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*p = PiecewiseValue(fields)
	return nil
}

// MarshalYAML writes constants back as bare numbers
func (p PiecewiseValue) MarshalYAML() (interface{}, error) {
	if p.IsScalar() {
		return p.Values[0], nil
	}
	return piecewiseFields(p), nil
}

// UnmarshalJSON accepts either a bare number or a years/values object
func (p *PiecewiseValue) UnmarshalJSON(data []byte) error {
	if v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
		*p = Scalar(v)
		return nil
	}
	var fields piecewiseFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = PiecewiseValue(fields)
	return nil
}
