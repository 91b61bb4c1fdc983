package main

import (
	"encoding/json"
	"math"
)

// Series is a sequence of values aligned to years
type Series struct {
	Years  []int     `json:"years"`
	Values []float64 `json:"values"`
}

// ConstantSeries repeats one value over every year
func ConstantSeries(years []int, v float64) Series {
	values := make([]float64, len(years))
	for i := range values {
		values[i] = v
	}
	return Series{Years: append([]int(nil), years...), Values: values}
}

// Len returns the number of points
func (s Series) Len() int {
	return len(s.Values)
}

// Last returns the final value of the series
func (s Series) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// Equal reports whether two series have identical years and values
func (s Series) Equal(other Series) bool {
	if len(s.Years) != len(other.Years) || len(s.Values) != len(other.Values) {
		return false
	}
	for i := range s.Years {
		if s.Years[i] != other.Years[i] {
			return false
		}
	}
	for i := range s.Values {
		if s.Values[i] != other.Values[i] {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of a Series
func (s Series) Clone() Series {
	return Series{
		Years:  append([]int(nil), s.Years...),
		Values: append([]float64(nil), s.Values...),
	}
}

// Bounds returns the minimum and maximum values
func (s Series) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Value is the result of a formula: either a scalar or a year-aligned series
type Value struct {
	series *Series
	scalar float64
}

// ScalarValue wraps a number
func ScalarValue(v float64) Value {
	return Value{scalar: v}
}

// SeriesValue wraps a series
func SeriesValue(s Series) Value {
	return Value{series: &s}
}

// IsSeries reports whether the value is a series
func (v Value) IsSeries() bool {
	return v.series != nil
}

// Scalar returns the scalar; zero for a series
func (v Value) Scalar() float64 {
	return v.scalar
}

// Series returns the series; empty for a scalar
func (v Value) Series() Series {
	if v.series == nil {
		return Series{}
	}
	return *v.series
}

// MarshalJSON writes scalars as numbers and series as objects
func (v Value) MarshalJSON() ([]byte, error) {
	if v.series != nil {
		return json.Marshal(v.series)
	}
	return json.Marshal(v.scalar)
}

func (v Value) hasZero() bool {
	if v.series == nil {
		return v.scalar == 0
	}
	for _, x := range v.series.Values {
		if x == 0 {
			return true
		}
	}
	return false
}

// combine applies fn elementwise, broadcasting scalars over series
func combine(a, b Value, expr string, fn func(x, y float64) float64) (Value, error) {
	switch {
	case !a.IsSeries() && !b.IsSeries():
		return ScalarValue(fn(a.scalar, b.scalar)), nil
	case a.IsSeries() && b.IsSeries():
		if a.series.Len() != b.series.Len() {
			return Value{}, formulaErrorf(MalformedExpression, expr,
				"series lengths differ (%d and %d)", a.series.Len(), b.series.Len())
		}
		out := make([]float64, a.series.Len())
		for i := range out {
			out[i] = fn(a.series.Values[i], b.series.Values[i])
		}
		return SeriesValue(Series{Years: append([]int(nil), a.series.Years...), Values: out}), nil
	case a.IsSeries():
		out := make([]float64, a.series.Len())
		for i := range out {
			out[i] = fn(a.series.Values[i], b.scalar)
		}
		return SeriesValue(Series{Years: append([]int(nil), a.series.Years...), Values: out}), nil
	default:
		out := make([]float64, b.series.Len())
		for i := range out {
			out[i] = fn(a.scalar, b.series.Values[i])
		}
		return SeriesValue(Series{Years: append([]int(nil), b.series.Years...), Values: out}), nil
	}
}

// applyOperator evaluates one arithmetic operator over two values
func applyOperator(op string, a, b Value, expr string) (Value, error) {
	switch op {
	case "+":
		return combine(a, b, expr, func(x, y float64) float64 { return x + y })
	case "-":
		return combine(a, b, expr, func(x, y float64) float64 { return x - y })
	case "*":
		return combine(a, b, expr, func(x, y float64) float64 { return x * y })
	case "/":
		if b.hasZero() {
			return Value{}, formulaErrorf(DivisionByZero, expr, "divisor is zero")
		}
		return combine(a, b, expr, func(x, y float64) float64 { return x / y })
	default:
		return Value{}, formulaErrorf(MalformedExpression, expr, "invalid operator %q", op)
	}
}

// applyMinMax evaluates the two-argument min or max
func applyMinMax(name string, a, b Value, expr string) (Value, error) {
	switch name {
	case "min":
		return combine(a, b, expr, math.Min)
	case "max":
		return combine(a, b, expr, math.Max)
	default:
		return Value{}, formulaErrorf(MalformedExpression, expr, "unknown function %q", name)
	}
}

func negate(v Value) Value {
	if !v.IsSeries() {
		return ScalarValue(-v.scalar)
	}
	out := make([]float64, v.series.Len())
	for i, x := range v.series.Values {
		out[i] = -x
	}
	return SeriesValue(Series{Years: append([]int(nil), v.series.Years...), Values: out})
}
