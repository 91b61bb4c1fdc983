package main

import (
	"fmt"
	"sort"
)

// Parameters is the mutable configuration of one simulation run, keyed by
// parameter name.
type Parameters map[string]PiecewiseValue

// Clone creates a deep copy of the parameter set
func (p Parameters) Clone() Parameters {
	clone := make(Parameters, len(p))
	for name, v := range p {
		clone[name] = v.Clone()
	}
	return clone
}

// Names returns the parameter names sorted alphabetically
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a parameter or an error naming the missing one
func (p Parameters) Lookup(name string) (PiecewiseValue, error) {
	v, ok := p[name]
	if !ok {
		return PiecewiseValue{}, fmt.Errorf("parameter %q is not set", name)
	}
	return v, nil
}

// ScalarOf returns a constant parameter's value
func (p Parameters) ScalarOf(name string) (float64, error) {
	v, err := p.Lookup(name)
	if err != nil {
		return 0, err
	}
	if !v.IsScalar() {
		return 0, fmt.Errorf("parameter %q must be a single value", name)
	}
	return v.Values[0], nil
}

// Validate checks every piecewise value
func (p Parameters) Validate() error {
	for _, name := range p.Names() {
		if err := p[name].Validate(); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

// applyLevers sets the mutations of the selected levers, walking levers in
// catalog order so that guards and overrides resolve the same way whatever
// order the caller listed them in.
func applyLevers(params Parameters, levers []LeverDefinition, selected map[string]bool) {
	for _, lever := range levers {
		if !selected[lever.ID] {
			continue
		}
		for _, m := range lever.Mutations {
			if m.AppliesTo(selected) {
				params[m.Parameter] = mergePiecewise(params[m.Parameter], m.Value)
			}
		}
	}
}

// mergePiecewise overlays a mutation onto an existing parameter. A mutation
// that only lists values keeps the breakpoint years of the current value.
func mergePiecewise(current, update PiecewiseValue) PiecewiseValue {
	if len(update.Years) == 0 && len(update.Values) > 1 && len(current.Years) > 0 {
		return PiecewiseValue{Years: append([]int(nil), current.Years...), Values: append([]float64(nil), update.Values...)}
	}
	return update.Clone()
}
