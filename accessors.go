package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// YearSets holds the three named year sequences of a bundle
type YearSets struct {
	Full        []int `json:"full_years"`
	Historic    []int `json:"historic_years"`
	Prospective []int `json:"prospective_years"`
}

// Get returns the sequence for a year range name
func (y YearSets) Get(name string) ([]int, bool) {
	switch name {
	case FullYears:
		return y.Full, true
	case HistoricYears:
		return y.Historic, true
	case ProspectiveYears:
		return y.Prospective, true
	default:
		return nil, false
	}
}

// GetYears extracts and checks the named year sequences of a bundle.
// The returned slices are copies.
func GetYears(bundle *ResultBundle) (YearSets, error) {
	if bundle == nil || bundle.Years == nil {
		return YearSets{}, &MissingKeyError{Key: "years"}
	}
	seqs := make(map[string][]int, len(AllowedYearRanges))
	for _, key := range AllowedYearRanges {
		years, ok := bundle.Years[key]
		if !ok {
			return YearSets{}, &MissingKeyError{Key: key}
		}
		if !sort.IntsAreSorted(years) || hasDuplicate(years) {
			return YearSets{}, &InvalidTypeError{Key: key, Reason: "years must be strictly increasing"}
		}
		seqs[key] = append([]int(nil), years...)
	}

	sets := YearSets{Full: seqs[FullYears], Historic: seqs[HistoricYears], Prospective: seqs[ProspectiveYears]}
	if err := checkYearPartition(sets); err != nil {
		return YearSets{}, err
	}
	return sets, nil
}

func hasDuplicate(years []int) bool {
	for i := 1; i < len(years); i++ {
		if years[i] == years[i-1] {
			return true
		}
	}
	return false
}

// checkYearPartition enforces historic ∪ prospective = full with at most one shared year
func checkYearPartition(sets YearSets) error {
	full := make(map[int]bool, len(sets.Full))
	for _, y := range sets.Full {
		full[y] = true
	}
	covered := make(map[int]int, len(sets.Full))
	for _, part := range []struct {
		key   string
		years []int
	}{{HistoricYears, sets.Historic}, {ProspectiveYears, sets.Prospective}} {
		for _, y := range part.years {
			if !full[y] {
				return &InvalidTypeError{Key: part.key, Reason: fmt.Sprintf("year %d is not in %s", y, FullYears)}
			}
			covered[y]++
		}
	}
	overlap := 0
	for _, y := range sets.Full {
		switch covered[y] {
		case 0:
			return &InvalidTypeError{Key: FullYears, Reason: fmt.Sprintf("year %d is neither historic nor prospective", y)}
		case 2:
			overlap++
		}
	}
	if overlap > 1 {
		return &InvalidTypeError{Key: FullYears, Reason: fmt.Sprintf("%d years are both historic and prospective", overlap)}
	}
	return nil
}

// GetTable returns vector_outputs or climate_outputs from a bundle
func GetTable(bundle *ResultBundle, name string) (*Table, error) {
	if bundle == nil {
		return nil, &MissingKeyError{Key: name}
	}
	var table *Table
	switch name {
	case TableVectorOutputs:
		table = bundle.VectorOutputs
	case TableClimateOutputs:
		table = bundle.ClimateOutputs
	default:
		return nil, &MissingKeyError{Key: name}
	}
	if table == nil {
		return nil, &MissingKeyError{Key: name}
	}
	if table.Columns == nil {
		return nil, &InvalidTypeError{Key: name, Reason: "table has no columns"}
	}
	for column, values := range table.Columns {
		if len(values) != len(table.Years) {
			return nil, &InvalidTypeError{Key: name,
				Reason: fmt.Sprintf("column %q has %d values for %d years", column, len(values), len(table.Years))}
		}
	}
	return table, nil
}

// GetFloat returns a scalar from float_outputs or float_inputs
func GetFloat(bundle *ResultBundle, mapping, name string) (float64, bool, error) {
	if bundle == nil {
		return 0, false, &MissingKeyError{Key: mapping}
	}
	var m map[string]float64
	switch mapping {
	case MapFloatOutputs:
		m = bundle.FloatOutputs
	case MapFloatInputs:
		m = bundle.FloatInputs
	default:
		return 0, false, &MissingKeyError{Key: mapping}
	}
	if m == nil {
		return 0, false, &MissingKeyError{Key: mapping}
	}
	v, ok := m[name]
	return v, ok, nil
}

// LoadResultBundle reads a JSON bundle snapshot from disk
func LoadResultBundle(filename string) (*ResultBundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseResultBundle(data)
}

// ParseResultBundle decodes a JSON bundle snapshot, checking every key and type
func ParseResultBundle(data []byte) (*ResultBundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode result bundle: %w", err)
	}

	bundle := &ResultBundle{}

	rawYears, ok := raw["years"]
	if !ok {
		return nil, &MissingKeyError{Key: "years"}
	}
	yearsMap, ok := rawYears.(map[string]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: "years", Reason: "expected an object"}
	}
	bundle.Years = make(map[string][]int, len(AllowedYearRanges))
	for _, key := range AllowedYearRanges {
		v, ok := yearsMap[key]
		if !ok {
			return nil, &MissingKeyError{Key: key}
		}
		years, err := decodeIntList(key, v)
		if err != nil {
			return nil, err
		}
		bundle.Years[key] = years
	}

	var err error
	if bundle.VectorOutputs, err = decodeTable(raw, TableVectorOutputs); err != nil {
		return nil, err
	}
	if bundle.ClimateOutputs, err = decodeTable(raw, TableClimateOutputs); err != nil {
		return nil, err
	}
	if bundle.FloatOutputs, err = decodeFloatMap(raw, MapFloatOutputs); err != nil {
		return nil, err
	}
	if bundle.FloatInputs, err = decodeFloatMap(raw, MapFloatInputs); err != nil {
		return nil, err
	}

	if _, err := GetYears(bundle); err != nil {
		return nil, err
	}
	for _, name := range []string{TableVectorOutputs, TableClimateOutputs} {
		if _, err := GetTable(bundle, name); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// WriteResultBundle saves a bundle snapshot as indented JSON
func WriteResultBundle(bundle *ResultBundle, filename string) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func decodeIntList(key string, v interface{}) ([]int, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: key, Reason: "expected a list of integers"}
	}
	out := make([]int, len(list))
	for i, item := range list {
		num, ok := item.(json.Number)
		if !ok {
			return nil, &InvalidTypeError{Key: key, Reason: fmt.Sprintf("element %d is not a number", i)}
		}
		n, err := num.Int64()
		if err != nil {
			return nil, &InvalidTypeError{Key: key, Reason: fmt.Sprintf("element %d (%s) is not an integer", i, num)}
		}
		out[i] = int(n)
	}
	return out, nil
}

func decodeFloatList(key string, v interface{}) ([]float64, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: key, Reason: "expected a list of numbers"}
	}
	out := make([]float64, len(list))
	for i, item := range list {
		num, ok := item.(json.Number)
		if !ok {
			return nil, &InvalidTypeError{Key: key, Reason: fmt.Sprintf("element %d is not a number", i)}
		}
		f, err := num.Float64()
		if err != nil {
			return nil, &InvalidTypeError{Key: key, Reason: err.Error()}
		}
		out[i] = f
	}
	return out, nil
}

func decodeTable(raw map[string]interface{}, name string) (*Table, error) {
	v, ok := raw[name]
	if !ok {
		return nil, &MissingKeyError{Key: name}
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: name, Reason: "expected a table object"}
	}
	rawYears, ok := obj["years"]
	if !ok {
		return nil, &InvalidTypeError{Key: name, Reason: "table has no year index"}
	}
	years, err := decodeIntList(name+".years", rawYears)
	if err != nil {
		return nil, err
	}
	rawColumns, ok := obj["columns"].(map[string]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: name, Reason: "table has no columns object"}
	}
	table := NewTable(years)
	for column, rawValues := range rawColumns {
		values, err := decodeFloatList(name+"."+column, rawValues)
		if err != nil {
			return nil, err
		}
		table.Set(column, values)
	}
	return table, nil
}

func decodeFloatMap(raw map[string]interface{}, name string) (map[string]float64, error) {
	v, ok := raw[name]
	if !ok {
		return nil, &MissingKeyError{Key: name}
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &InvalidTypeError{Key: name, Reason: "expected an object of numbers"}
	}
	out := make(map[string]float64, len(obj))
	for key, item := range obj {
		num, ok := item.(json.Number)
		if !ok {
			return nil, &InvalidTypeError{Key: name + "." + key, Reason: "not a number"}
		}
		f, err := num.Float64()
		if err != nil {
			return nil, &InvalidTypeError{Key: name + "." + key, Reason: err.Error()}
		}
		out[key] = f
	}
	return out, nil
}
