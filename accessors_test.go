package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBundleJSON = `{
  "years": {
    "full_years": [2018, 2019, 2020],
    "historic_years": [2018, 2019],
    "prospective_years": [2019, 2020]
  },
  "vector_outputs": {"years": [2018, 2019, 2020], "columns": {"a": [1, 2, 3]}},
  "climate_outputs": {"years": [2018, 2019, 2020], "columns": {"co2_emissions": [10, 20, 30]}},
  "float_outputs": {"budget": 12.5},
  "float_inputs": {"available": 4}
}`

func TestGetYears(t *testing.T) {
	sets, err := GetYears(testBundle())
	require.NoError(t, err)
	assert.Equal(t, []int{2017, 2018, 2019, 2020, 2021}, sets.Full)
	assert.Equal(t, []int{2017, 2018, 2019}, sets.Historic)
	assert.Equal(t, []int{2019, 2020, 2021}, sets.Prospective)

	years, ok := sets.Get(ProspectiveYears)
	assert.True(t, ok)
	assert.Equal(t, sets.Prospective, years)
	_, ok = sets.Get("decades")
	assert.False(t, ok)
}

func TestGetYears_ReturnsCopies(t *testing.T) {
	bundle := testBundle()
	sets, err := GetYears(bundle)
	require.NoError(t, err)
	sets.Full[0] = 1
	assert.Equal(t, 2017, bundle.Years[FullYears][0])
}

func TestGetYears_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *ResultBundle)
	}{
		{"no years", func(b *ResultBundle) { b.Years = nil }},
		{"missing prospective", func(b *ResultBundle) { delete(b.Years, ProspectiveYears) }},
		{"unsorted", func(b *ResultBundle) { b.Years[HistoricYears] = []int{2018, 2017, 2019} }},
		{"gap", func(b *ResultBundle) { b.Years[HistoricYears] = []int{2017, 2019} }},
		{"outside full", func(b *ResultBundle) { b.Years[ProspectiveYears] = []int{2019, 2020, 2021, 2022} }},
		{"two shared years", func(b *ResultBundle) { b.Years[HistoricYears] = []int{2017, 2018, 2019, 2020} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle := testBundle()
			tt.mutate(bundle)
			_, err := GetYears(bundle)
			assert.Error(t, err)
		})
	}
}

func TestGetTable(t *testing.T) {
	table, err := GetTable(testBundle(), TableVectorOutputs)
	require.NoError(t, err)
	v, ok := table.At("b", 2019)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)
	_, ok = table.At("b", 2030)
	assert.False(t, ok)

	_, err = GetTable(testBundle(), "scalar_outputs")
	var missing *MissingKeyError
	assert.ErrorAs(t, err, &missing)

	bundle := testBundle()
	bundle.VectorOutputs.Columns["short"] = []float64{1}
	_, err = GetTable(bundle, TableVectorOutputs)
	var invalid *InvalidTypeError
	assert.ErrorAs(t, err, &invalid)
}

func TestGetFloat(t *testing.T) {
	v, ok, err := GetFloat(testBundle(), MapFloatOutputs, "budget")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 120.0, v)

	_, ok, err = GetFloat(testBundle(), MapFloatInputs, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	bundle := testBundle()
	bundle.FloatInputs = nil
	_, _, err = GetFloat(bundle, MapFloatInputs, "available")
	var missing *MissingKeyError
	assert.ErrorAs(t, err, &missing)
}

func TestParseResultBundle(t *testing.T) {
	bundle, err := ParseResultBundle([]byte(validBundleJSON))
	require.NoError(t, err)
	v, err := Evaluate(bundle, "climate_outputs('co2_emissions') + vector_outputs('a')", Named(ProspectiveYears))
	require.NoError(t, err)
	assert.Equal(t, []float64{22, 33}, v.Series().Values)
	assert.Equal(t, 12.5, bundle.FloatOutputs["budget"])
}

func TestParseResultBundle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		missing bool
	}{
		{"not json", `{`, false},
		{"no years", `{"vector_outputs": {}}`, true},
		{"missing year range", `{"years": {"full_years": [2019], "historic_years": [2019]}}`, true},
		{"fractional year", `{"years": {"full_years": [2019.5], "historic_years": [], "prospective_years": []}}`, false},
		{"missing table", `{"years": {"full_years": [2019], "historic_years": [2019], "prospective_years": [2019]}}`, true},
		{"table is a list", `{"years": {"full_years": [2019], "historic_years": [2019], "prospective_years": [2019]},
			"vector_outputs": [1, 2]}`, false},
		{"string value", `{"years": {"full_years": [2019], "historic_years": [2019], "prospective_years": [2019]},
			"vector_outputs": {"years": [2019], "columns": {"a": ["x"]}}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResultBundle([]byte(tt.json))
			require.Error(t, err)
			var missing *MissingKeyError
			assert.Equal(t, tt.missing, errors.As(err, &missing))
		})
	}
}

func TestWriteAndLoadResultBundle(t *testing.T) {
	engine := newTestEngine(t, newCountingSimulator())
	bundle, err := engine.Compute([]string{"new_energies"})
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, WriteResultBundle(bundle, filename))
	loaded, err := LoadResultBundle(filename)
	require.NoError(t, err)
	assert.Equal(t, bundle.Years, loaded.Years)
	assert.InDeltaSlice(t,
		bundle.VectorOutputs.Columns["co2_emissions_including_energy"],
		loaded.VectorOutputs.Columns["co2_emissions_including_energy"], 1e-9)
}
