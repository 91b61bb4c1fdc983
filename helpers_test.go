package main

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// testBundle builds a small bundle over 2017-2021 with 2019 as the shared year
func testBundle() *ResultBundle {
	full := []int{2017, 2018, 2019, 2020, 2021}
	vector := NewTable(full)
	vector.Set("a", []float64{1, 2, 3, 4, 5})
	vector.Set("b", []float64{10, 20, 30, 40, 50})
	vector.Set("x", []float64{7, 8, -5, 3, -1})
	vector.Set("zeroes", []float64{1, 1, 0, 1, 1})
	climate := NewTable(full)
	climate.Set("co2_emissions", []float64{900, 950, 1000, 800, 600})
	return &ResultBundle{
		VectorOutputs:  vector,
		ClimateOutputs: climate,
		FloatOutputs:   map[string]float64{"budget": 120, "consumption": 30},
		FloatInputs:    map[string]float64{"available": 4},
		Years: map[string][]int{
			FullYears:        full,
			HistoricYears:    {2017, 2018, 2019},
			ProspectiveYears: {2019, 2020, 2021},
		},
	}
}

// countingSimulator wraps the aviation model and counts runs
type countingSimulator struct {
	runs  atomic.Int64
	fail  bool
	model *AviationModel
}

func (s *countingSimulator) Run(params Parameters) (*ResultBundle, error) {
	s.runs.Add(1)
	if s.fail {
		return nil, assertErr("model diverged")
	}
	return s.model.Run(params)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newCountingSimulator() *countingSimulator {
	return &countingSimulator{model: DefaultAviationModel()}
}

func loadTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)
	return cfg
}

func newTestEngine(t *testing.T, sim Simulator, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngineFromConfig(loadTestConfig(t), sim, opts...)
	require.NoError(t, err)
	return engine
}

func requireFormulaKind(t *testing.T, err error, kind FormulaErrorKind) {
	t.Helper()
	require.Error(t, err)
	var fe *FormulaError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, kind, fe.Kind, "error: %v", err)
}
