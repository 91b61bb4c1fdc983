package main

// evalContext carries the bundle and the resolved year range through one evaluation
type evalContext struct {
	bundle *ResultBundle
	sel    YearSelector
	years  []int
	expr   string
}

// Evaluate compiles expr and evaluates it against bundle.
//
// With a named year range, table accessors yield series aligned to that
// sequence. With a single year they yield the value at that year. Without a
// year range only float_inputs and float_outputs may be referenced.
func Evaluate(bundle *ResultBundle, expr string, sel YearSelector) (Value, error) {
	f, err := CompileFormula(expr)
	if err != nil {
		return Value{}, err
	}
	return f.Evaluate(bundle, sel)
}

// EvaluateSeries evaluates expr over a named year range and always returns a
// series; a scalar result is repeated over every year of the range.
func EvaluateSeries(bundle *ResultBundle, expr string, sel YearSelector) (Series, error) {
	f, err := CompileFormula(expr)
	if err != nil {
		return Series{}, err
	}
	return f.EvaluateSeries(bundle, sel)
}

// Evaluate runs the compiled formula against a bundle
func (f *Formula) Evaluate(bundle *ResultBundle, sel YearSelector) (Value, error) {
	ctx := &evalContext{bundle: bundle, sel: sel, expr: f.source}
	switch sel.Kind {
	case NoYearRange:
		if f.UsesTables() {
			return Value{}, formulaErrorf(InvalidYearRange, f.source,
				"a year range is required to read %s or %s", TableVectorOutputs, TableClimateOutputs)
		}
	case NamedYearRange:
		years, err := resolveYearRange(bundle, sel, f.source)
		if err != nil {
			return Value{}, err
		}
		ctx.years = years
	}
	return f.root.eval(ctx)
}

// EvaluateSeries runs the compiled formula and wraps scalars into a constant series
func (f *Formula) EvaluateSeries(bundle *ResultBundle, sel YearSelector) (Series, error) {
	if sel.Kind != NamedYearRange {
		return Series{}, formulaErrorf(InvalidYearRange, f.source,
			"a series needs a named year range, got %q", sel.String())
	}
	v, err := f.Evaluate(bundle, sel)
	if err != nil {
		return Series{}, err
	}
	if v.IsSeries() {
		return v.Series(), nil
	}
	years, err := resolveYearRange(bundle, sel, f.source)
	if err != nil {
		return Series{}, err
	}
	return ConstantSeries(years, v.Scalar()), nil
}

func resolveYearRange(bundle *ResultBundle, sel YearSelector, expr string) ([]int, error) {
	if !isAllowedYearRange(sel.Name) {
		return nil, formulaErrorf(InvalidYearRange, expr, "invalid year range %q", sel.Name)
	}
	sets, err := GetYears(bundle)
	if err != nil {
		return nil, err
	}
	years, _ := sets.Get(sel.Name)
	return years, nil
}

func (n *numberNode) eval(*evalContext) (Value, error) {
	return ScalarValue(n.value), nil
}

func (n *accessorNode) eval(ctx *evalContext) (Value, error) {
	if !accessorTables[n.table] {
		v, ok, err := GetFloat(ctx.bundle, n.table, n.name)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return Value{}, formulaErrorf(UnknownVariable, ctx.expr, "variable %q not found in %s", n.name, n.table)
		}
		return ScalarValue(v), nil
	}

	table, err := GetTable(ctx.bundle, n.table)
	if err != nil {
		return Value{}, err
	}
	if !table.Has(n.name) {
		return Value{}, formulaErrorf(UnknownVariable, ctx.expr, "variable %q not found in %s", n.name, n.table)
	}
	switch ctx.sel.Kind {
	case SingleYear:
		v, ok := table.At(n.name, ctx.sel.Year)
		if !ok {
			return Value{}, formulaErrorf(InvalidYearRange, ctx.expr, "year %d not available in %s", ctx.sel.Year, n.table)
		}
		return ScalarValue(v), nil
	case NamedYearRange:
		values, err := table.Slice(n.name, ctx.years)
		if err != nil {
			return Value{}, formulaErrorf(InvalidYearRange, ctx.expr, "%s does not cover %s: %v", n.table, ctx.sel.Name, err)
		}
		return SeriesValue(Series{Years: append([]int(nil), ctx.years...), Values: values}), nil
	default:
		return Value{}, formulaErrorf(InvalidYearRange, ctx.expr, "no year range given for %s(%q)", n.table, n.name)
	}
}

func (n *unaryNode) eval(ctx *evalContext) (Value, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return negate(v), nil
}

func (n *binaryNode) eval(ctx *evalContext) (Value, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := n.right.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return applyOperator(n.op, left, right, ctx.expr)
}

func (n *callNode) eval(ctx *evalContext) (Value, error) {
	a, err := n.args[0].eval(ctx)
	if err != nil {
		return Value{}, err
	}
	b, err := n.args[1].eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return applyMinMax(n.fn, a, b, ctx.expr)
}
