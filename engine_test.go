package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remaining2050(t *testing.T, bundle *ResultBundle) float64 {
	t.Helper()
	v, err := Evaluate(bundle, "climate_outputs('co2_emissions') - vector_outputs('carbon_offset')", AtYear(2050))
	require.NoError(t, err)
	return v.Scalar()
}

// =============================================================================
// Memoization
// =============================================================================

func TestEngine_ComputeIsMemoized(t *testing.T) {
	sim := newCountingSimulator()
	engine := newTestEngine(t, sim)

	first, err := engine.Compute([]string{"sobriety", "technology"})
	require.NoError(t, err)
	second, err := engine.Compute([]string{"sobriety", "technology"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, sim.runs.Load())
	stats := engine.CacheStats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestEngine_SelectionOrderDoesNotMatter(t *testing.T) {
	sim := newCountingSimulator()
	engine := newTestEngine(t, sim)

	a, err := engine.Compute([]string{"technology", "modal_shift", "sobriety"})
	require.NoError(t, err)
	b, err := engine.Compute([]string{"sobriety", "technology", "modal_shift", "sobriety"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.EqualValues(t, 1, sim.runs.Load(), "permutations and duplicates share one cache entry")

	// a fresh engine computes the same result for another ordering
	other := newTestEngine(t, newCountingSimulator())
	c, err := other.Compute([]string{"modal_shift", "sobriety", "technology"})
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestEngine_UnknownLeverNeverRunsTheModel(t *testing.T) {
	sim := newCountingSimulator()
	engine := newTestEngine(t, sim)

	_, err := engine.Compute([]string{"sobriety", "warp_drive", "teleport"})
	var leverErr *InvalidLeverError
	require.ErrorAs(t, err, &leverErr)
	assert.Equal(t, []string{"teleport", "warp_drive"}, leverErr.IDs)
	assert.EqualValues(t, 0, sim.runs.Load())
	assert.Equal(t, 0, engine.CacheStats().Size)
}

func TestEngine_FailuresAreNotCached(t *testing.T) {
	sim := newCountingSimulator()
	sim.fail = true
	engine := newTestEngine(t, sim)

	_, err := engine.Compute([]string{"sobriety"})
	var simErr *SimulationFailure
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, []string{"sobriety"}, simErr.Levers)
	assert.True(t, errors.Is(err, assertErr("model diverged")))
	assert.Equal(t, 0, engine.CacheStats().Size)

	sim.fail = false
	bundle, err := engine.Compute([]string{"sobriety"})
	require.NoError(t, err)
	assert.NotNil(t, bundle)
	assert.EqualValues(t, 2, sim.runs.Load())
}

func TestEngine_NilBundleIsAFailure(t *testing.T) {
	sim := SimulatorFunc(func(Parameters) (*ResultBundle, error) { return nil, nil })
	engine := newTestEngine(t, sim)
	_, err := engine.Compute(nil)
	var simErr *SimulationFailure
	assert.ErrorAs(t, err, &simErr)
}

func TestEngine_ReturnedBundlesAreIndependent(t *testing.T) {
	engine := newTestEngine(t, newCountingSimulator())

	first, err := engine.Compute(nil)
	require.NoError(t, err)
	want := remaining2050(t, first)

	first.VectorOutputs.Columns["carbon_offset"][50] = 1e9
	first.FloatOutputs["cumulative_co2_emissions_2050"] = -1

	second, err := engine.Compute(nil)
	require.NoError(t, err)
	assert.Equal(t, want, remaining2050(t, second))
	assert.NotEqual(t, -1.0, second.FloatOutputs["cumulative_co2_emissions_2050"])
}

// =============================================================================
// Lever semantics
// =============================================================================

func TestEngine_LeversReduceEmissions(t *testing.T) {
	engine := newTestEngine(t, newCountingSimulator())

	reference, err := engine.Compute(nil)
	require.NoError(t, err)
	base := remaining2050(t, reference)

	for _, id := range []string{"sobriety", "emmissions_compensation", "new_energies", "operations_efficiency", "technology"} {
		t.Run(id, func(t *testing.T) {
			bundle, err := engine.Compute([]string{id})
			require.NoError(t, err)
			assert.Less(t, remaining2050(t, bundle), base)
		})
	}
}

func TestEngine_NotImplementedLeverMatchesReference(t *testing.T) {
	engine := newTestEngine(t, newCountingSimulator())

	reference, err := engine.Compute(nil)
	require.NoError(t, err)
	bundle, err := engine.Compute([]string{"carbon_budget"})
	require.NoError(t, err)
	assert.Equal(t, reference, bundle)
	assert.Equal(t, 2, engine.CacheStats().Size, "the selection is still its own cache entry")
}

func TestEngine_ModalShiftDependsOnSobriety(t *testing.T) {
	engine := newTestEngine(t, newCountingSimulator())

	alone, err := engine.Parameters([]string{"modal_shift"})
	require.NoError(t, err)
	assert.Equal(t, PiecewiseValue{Years: []int{2020, 2030, 2040, 2050}, Values: []float64{1, 1, 1}},
		alone[ParamCAGRShortRange])

	combined, err := engine.Parameters([]string{"sobriety", "modal_shift"})
	require.NoError(t, err)
	assert.Equal(t, PiecewiseValue{Years: []int{2020, 2030, 2040, 2050}, Values: []float64{0, 0, 0}},
		combined[ParamCAGRShortRange])
	assert.Equal(t, Scalar(1.5), combined[ParamCAGRMediumRange])

	reference, err := engine.Parameters(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3}, reference[ParamCAGRShortRange].Values)
}

func TestEngine_SharedCacheKeepsProcessesApart(t *testing.T) {
	shared := NewSharedScenarioCache(16)
	simA, simB := newCountingSimulator(), newCountingSimulator()
	a := newTestEngine(t, simA, WithCache(shared), WithName("a"))
	b := newTestEngine(t, simB, WithCache(shared), WithName("b"))
	require.NotEqual(t, a.ProcessID(), b.ProcessID())

	_, err := a.Compute([]string{"sobriety"})
	require.NoError(t, err)
	_, err = b.Compute([]string{"sobriety"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, simA.runs.Load())
	assert.EqualValues(t, 1, simB.runs.Load(), "another process never reads a foreign entry")
	assert.Equal(t, 2, shared.Len())
	assert.Equal(t, a.CacheStats(), b.CacheStats())
}

func TestNewEngineFromConfig_RejectsBadCatalog(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Levers = append(cfg.Levers, LeverDefinition{ID: "sobriety", Name: "again"})
	_, err := NewEngineFromConfig(cfg, newCountingSimulator())
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "sobriety", configErr.Entry)
}
