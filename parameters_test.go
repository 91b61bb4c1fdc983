package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestPiecewiseValue_At(t *testing.T) {
	tests := []struct {
		name     string
		value    PiecewiseValue
		year     int
		expected float64
	}{
		{"constant", Scalar(3), 2035, 3},
		{"period before first break", PiecewiseValue{Years: []int{2020, 2030, 2050}, Values: []float64{1, 2}}, 2010, 1},
		{"period start", PiecewiseValue{Years: []int{2020, 2030, 2050}, Values: []float64{1, 2}}, 2030, 2},
		{"period end", PiecewiseValue{Years: []int{2020, 2030, 2050}, Values: []float64{1, 2}}, 2050, 2},
		{"interpolated midpoint", PiecewiseValue{Years: []int{2020, 2030}, Values: []float64{0, 10}}, 2025, 5},
		{"interpolated before", PiecewiseValue{Years: []int{2020, 2030}, Values: []float64{0, 10}}, 2000, 0},
		{"interpolated after", PiecewiseValue{Years: []int{2020, 2030}, Values: []float64{0, 10}}, 2045, 10},
		{"empty", PiecewiseValue{}, 2030, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.value.At(tt.year), 1e-9)
		})
	}
}

func TestPiecewiseValue_Validate(t *testing.T) {
	assert.NoError(t, Scalar(1).Validate())
	assert.NoError(t, PiecewiseValue{Years: []int{2020, 2030}, Values: []float64{1}}.Validate())
	assert.Error(t, PiecewiseValue{}.Validate())
	assert.Error(t, PiecewiseValue{Values: []float64{1, 2}}.Validate())
	assert.Error(t, PiecewiseValue{Years: []int{2020, 2030}, Values: []float64{1, 2, 3}}.Validate())
	assert.Error(t, PiecewiseValue{Years: []int{2030, 2020}, Values: []float64{1, 2}}.Validate())
}

func TestMergePiecewise_KeepsBaselineYears(t *testing.T) {
	current := PiecewiseValue{Years: []int{2020, 2030, 2040, 2050}, Values: []float64{0, 0, 0, 0}}

	merged := mergePiecewise(current, PiecewiseValue{Values: []float64{0, 4.8, 24, 35}})
	assert.Equal(t, current.Years, merged.Years)
	assert.Equal(t, []float64{0, 4.8, 24, 35}, merged.Values)

	merged = mergePiecewise(current, Scalar(7))
	assert.True(t, merged.IsScalar())

	explicit := PiecewiseValue{Years: []int{2025, 2050}, Values: []float64{1, 2}}
	assert.Equal(t, explicit, mergePiecewise(current, explicit))
}

func TestApplyLevers_CatalogOrderAndGuards(t *testing.T) {
	levers := []LeverDefinition{
		{ID: "first", Name: "First", Mutations: []ParameterMutation{
			{Parameter: "p", Value: Scalar(1)},
		}},
		{ID: "second", Name: "Second", Mutations: []ParameterMutation{
			{Parameter: "p", Value: Scalar(2)},
			{Parameter: "q", Value: Scalar(10), WhenSelected: []string{"first"}},
			{Parameter: "q", Value: Scalar(20), UnlessSelected: []string{"first"}},
		}},
		{ID: "idle", Name: "Idle", Implemented: boolPtr(false)},
	}

	params := Parameters{"p": Scalar(0), "q": Scalar(0)}
	applyLevers(params, levers, map[string]bool{"second": true, "first": true})
	assert.Equal(t, Scalar(2), params["p"], "the later lever in the catalog wins")
	assert.Equal(t, Scalar(10), params["q"])

	params = Parameters{"p": Scalar(0), "q": Scalar(0)}
	applyLevers(params, levers, map[string]bool{"second": true, "idle": true})
	assert.Equal(t, Scalar(20), params["q"])

	params = Parameters{"p": Scalar(0), "q": Scalar(0)}
	applyLevers(params, levers, map[string]bool{"idle": true})
	assert.Equal(t, Parameters{"p": Scalar(0), "q": Scalar(0)}, params)
}

func TestLeverDefinition_DisplayName(t *testing.T) {
	assert.Equal(t, "Sobriété", LeverDefinition{Name: "Sobriété"}.DisplayName())
	assert.Equal(t, "[NI] Budget carbone", LeverDefinition{Name: "Budget carbone", Implemented: boolPtr(false)}.DisplayName())
}

func TestParameters_ScalarOf(t *testing.T) {
	params := Parameters{
		"flat":  Scalar(4),
		"curve": {Years: []int{2020, 2050}, Values: []float64{0, 1}},
	}
	v, err := params.ScalarOf("flat")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	_, err = params.ScalarOf("curve")
	assert.Error(t, err)
	_, err = params.ScalarOf("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"curve", "flat"}, params.Names())
}

func TestCatalog_Canonical(t *testing.T) {
	catalog, err := NewCatalog([]LeverDefinition{
		{ID: "b", Name: "B"}, {ID: "a", Name: "A"}, {ID: "c", Name: "C"},
	})
	require.NoError(t, err)

	ids, err := catalog.Canonical([]string{"c", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	ids, err = catalog.Canonical(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = catalog.Canonical([]string{"z", "a", "y"})
	var leverErr *InvalidLeverError
	require.ErrorAs(t, err, &leverErr)
	assert.Equal(t, []string{"y", "z"}, leverErr.IDs)
	assert.Equal(t, []string{"b", "a", "c"}, catalog.IDs())
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		levers []LeverDefinition
	}{
		{"missing id", []LeverDefinition{{Name: "A"}}},
		{"comma in id", []LeverDefinition{{ID: "a,b", Name: "A"}}},
		{"missing name", []LeverDefinition{{ID: "a"}}},
		{"duplicate", []LeverDefinition{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.levers)
			var configErr *ConfigError
			assert.ErrorAs(t, err, &configErr)
		})
	}
}
