package main

import (
	"fmt"
	"strings"
)

// FormulaErrorKind classifies why a formula could not be evaluated
type FormulaErrorKind int

const (
	InvalidYearRange FormulaErrorKind = iota
	UnknownVariable
	MalformedExpression
	OperatorArityMismatch
	DivisionByZero
)

func (k FormulaErrorKind) String() string {
	switch k {
	case InvalidYearRange:
		return "invalid year range"
	case UnknownVariable:
		return "unknown variable"
	case MalformedExpression:
		return "malformed expression"
	case OperatorArityMismatch:
		return "operator arity mismatch"
	case DivisionByZero:
		return "division by zero"
	default:
		return "unknown"
	}
}

// FormulaError is returned for any failure while compiling or evaluating one formula.
// It only concerns that formula; callers keep evaluating sibling formulas.
type FormulaError struct {
	Kind       FormulaErrorKind
	Expression string
	Message    string
}

func (e *FormulaError) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s in %q: %s", e.Kind, e.Expression, e.Message)
}

func formulaErrorf(kind FormulaErrorKind, expr string, format string, args ...any) *FormulaError {
	return &FormulaError{Kind: kind, Expression: expr, Message: fmt.Sprintf(format, args...)}
}

// InvalidLeverError reports lever ids that are not in the catalog
type InvalidLeverError struct {
	IDs []string
}

func (e *InvalidLeverError) Error() string {
	return fmt.Sprintf("unknown lever id(s): %s", strings.Join(e.IDs, ", "))
}

// SimulationFailure wraps an error raised by the simulation model.
// A failed computation is never cached.
type SimulationFailure struct {
	Levers []string
	Err    error
}

func (e *SimulationFailure) Error() string {
	scenario := "reference scenario"
	if len(e.Levers) > 0 {
		scenario = "levers [" + strings.Join(e.Levers, ", ") + "]"
	}
	return fmt.Sprintf("simulation failed for %s: %v", scenario, e.Err)
}

func (e *SimulationFailure) Unwrap() error {
	return e.Err
}

// MissingKeyError reports a required key absent from a result bundle
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("result bundle does not contain the %q key", e.Key)
}

// InvalidTypeError reports a result bundle entry with the wrong shape
type InvalidTypeError struct {
	Key    string
	Reason string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("result bundle key %q has an invalid type: %s", e.Key, e.Reason)
}

// ConfigError reports an invalid entry found while loading configuration
type ConfigError struct {
	Section string
	Entry   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("config %s: %s", e.Section, e.Message)
	}
	return fmt.Sprintf("config %s %q: %s", e.Section, e.Entry, e.Message)
}
