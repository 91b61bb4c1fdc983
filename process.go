package main

import (
	"github.com/google/uuid"
)

// Simulator runs the aviation model for one parameter set.
// Implementations must be deterministic: the same parameters give the same bundle.
type Simulator interface {
	Run(params Parameters) (*ResultBundle, error)
}

// SimulatorFunc adapts a function to the Simulator interface
type SimulatorFunc func(params Parameters) (*ResultBundle, error)

// Run calls f(params)
func (f SimulatorFunc) Run(params Parameters) (*ResultBundle, error) {
	return f(params)
}

// Process is one simulation instance: a simulator, its baseline and the
// parameters of the next run. Its id scopes cache entries.
type Process struct {
	id       uuid.UUID
	sim      Simulator
	baseline Parameters
	params   Parameters
	data     *ResultBundle
	runs     int
}

// NewProcess creates a process whose parameters start at the baseline
func NewProcess(sim Simulator, baseline Parameters) *Process {
	p := &Process{
		id:       uuid.New(),
		sim:      sim,
		baseline: baseline.Clone(),
	}
	p.Reset()
	return p
}

// ID returns the process identity
func (p *Process) ID() uuid.UUID {
	return p.id
}

// Reset restores the baseline parameters and drops the last result
func (p *Process) Reset() {
	p.params = p.baseline.Clone()
	p.data = nil
}

// Set changes one parameter for the next run. Results cached for this
// process are not invalidated; callers outside the engine own that risk.
func (p *Process) Set(name string, v PiecewiseValue) {
	p.params[name] = v.Clone()
}

// Parameters returns a copy of the current parameters
func (p *Process) Parameters() Parameters {
	return p.params.Clone()
}

// Baseline returns a copy of the baseline parameters
func (p *Process) Baseline() Parameters {
	return p.baseline.Clone()
}

// Compute runs the simulator on the current parameters
func (p *Process) Compute() (*ResultBundle, error) {
	p.runs++
	data, err := p.sim.Run(p.params.Clone())
	if err != nil {
		p.data = nil
		return nil, err
	}
	p.data = data
	return data, nil
}

// Data returns the result of the last successful Compute, or nil
func (p *Process) Data() *ResultBundle {
	return p.data
}

// Runs returns how many times the simulator was invoked
func (p *Process) Runs() int {
	return p.runs
}
