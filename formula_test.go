package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Expression evaluation
// =============================================================================

func TestEvaluate_MaxClampsNegativeValues(t *testing.T) {
	v, err := Evaluate(testBundle(), "max(vector_outputs('x'), 0)", Named(ProspectiveYears))
	require.NoError(t, err)
	require.True(t, v.IsSeries())
	assert.Equal(t, []int{2019, 2020, 2021}, v.Series().Years)
	assert.Equal(t, []float64{0, 3, 0}, v.Series().Values)
}

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		expr     string
		sel      YearSelector
		expected []float64
	}{
		{"vector_outputs('a') + vector_outputs('b')", Named(FullYears), []float64{11, 22, 33, 44, 55}},
		{"vector_outputs('b') - vector_outputs('a') * 2", Named(HistoricYears), []float64{8, 16, 24}},
		{"(vector_outputs('b') - vector_outputs('a')) * 2", Named(HistoricYears), []float64{18, 36, 54}},
		{"-vector_outputs('a') + 1", Named(ProspectiveYears), []float64{-2, -3, -4}},
		{"min(vector_outputs('x'), vector_outputs('a'))", Named(ProspectiveYears), []float64{-5, 3, -1}},
		{"climate_outputs(\"co2_emissions\") / 100", Named(ProspectiveYears), []float64{10, 8, 6}},
		{"vector_outputs('a') * float_outputs('budget')", Named(HistoricYears), []float64{120, 240, 360}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(testBundle(), tt.expr, tt.sel)
			require.NoError(t, err)
			require.True(t, v.IsSeries())
			assert.InDeltaSlice(t, tt.expected, v.Series().Values, 1e-9)
		})
	}
}

func TestEvaluate_Scalars(t *testing.T) {
	tests := []struct {
		expr     string
		sel      YearSelector
		expected float64
	}{
		{"1 + 2 * 3", YearSelector{}, 7},
		{"(1 + 2) * 3", YearSelector{}, 9},
		{"10 - 4 - 3", YearSelector{}, 3},
		{"float_outputs('consumption') / float_outputs('budget') * 100", YearSelector{}, 25},
		{"float_inputs('available') - -1", YearSelector{}, 5},
		{"max(1, min(2, 3))", YearSelector{}, 2},
		{"vector_outputs('b') / float_inputs('available')", AtYear(2020), 10},
		{"climate_outputs('co2_emissions')", AtYear(2017), 900},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(testBundle(), tt.expr, tt.sel)
			require.NoError(t, err)
			require.False(t, v.IsSeries())
			assert.InDelta(t, tt.expected, v.Scalar(), 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		sel  YearSelector
		kind FormulaErrorKind
	}{
		{"unknown column", "vector_outputs('nope')", Named(FullYears), UnknownVariable},
		{"unknown scalar", "float_outputs('nope') + 1", YearSelector{}, UnknownVariable},
		{"foreign name", "__import__('os')", YearSelector{}, MalformedExpression},
		{"attribute access", "vector_outputs.keys", Named(FullYears), MalformedExpression},
		{"dangling operator", "1 +", YearSelector{}, MalformedExpression},
		{"unbalanced parenthesis", "(1 + 2", YearSelector{}, MalformedExpression},
		{"empty", "   ", YearSelector{}, MalformedExpression},
		{"one argument min", "min(1)", YearSelector{}, OperatorArityMismatch},
		{"three argument max", "max(1, 2, 3)", YearSelector{}, OperatorArityMismatch},
		{"two argument accessor", "vector_outputs('a', 'b')", Named(FullYears), OperatorArityMismatch},
		{"table without year range", "vector_outputs('a')", YearSelector{}, InvalidYearRange},
		{"unknown year range", "vector_outputs('a')", Named("decades"), InvalidYearRange},
		{"year outside the table", "vector_outputs('a')", AtYear(1990), InvalidYearRange},
		{"scalar division by zero", "1 / (2 - 2)", YearSelector{}, DivisionByZero},
		{"series division by zero", "vector_outputs('a') / vector_outputs('zeroes')", Named(FullYears), DivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(testBundle(), tt.expr, tt.sel)
			requireFormulaKind(t, err, tt.kind)
		})
	}
}

func TestEvaluate_DivisionByZeroOnlyChecksSelectedYear(t *testing.T) {
	// zeroes is 0 in 2019 only
	v, err := Evaluate(testBundle(), "vector_outputs('a') / vector_outputs('zeroes')", AtYear(2021))
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Scalar())
}

func TestEvaluateSeries_WrapsScalars(t *testing.T) {
	s, err := EvaluateSeries(testBundle(), "float_outputs('budget') / 2", Named(ProspectiveYears))
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020, 2021}, s.Years)
	assert.Equal(t, []float64{60, 60, 60}, s.Values)

	_, err = EvaluateSeries(testBundle(), "1", YearSelector{})
	requireFormulaKind(t, err, InvalidYearRange)
	_, err = EvaluateSeries(testBundle(), "vector_outputs('a')", AtYear(2020))
	requireFormulaKind(t, err, InvalidYearRange)
}

func TestEvaluate_MissingBundleKeys(t *testing.T) {
	bundle := testBundle()
	bundle.ClimateOutputs = nil
	_, err := Evaluate(bundle, "climate_outputs('co2_emissions')", Named(FullYears))
	var missing *MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, TableClimateOutputs, missing.Key)
}

func TestCompileFormula_CanonicalForm(t *testing.T) {
	tests := []struct {
		expr     string
		expected string
	}{
		{"(1+2)*3", "(1 + 2) * 3"},
		{"1-(2-3)", "1 - (2 - 3)"},
		{"1-2-3", "1 - 2 - 3"},
		{"-(1+2)", "-(1 + 2)"},
		{"max( vector_outputs( 'a' ) ,0)", "max(vector_outputs(\"a\"), 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := CompileFormula(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f.String())
			assert.Equal(t, tt.expr, f.Source())
		})
	}
}

func TestCompileFormula_Accessors(t *testing.T) {
	f, err := CompileFormula("float_outputs('budget') + vector_outputs('a')")
	require.NoError(t, err)
	assert.Equal(t, []AccessorRef{
		{Table: MapFloatOutputs, Name: "budget"},
		{Table: TableVectorOutputs, Name: "a"},
	}, f.Accessors())
	assert.True(t, f.UsesTables())

	f, err = CompileFormula("float_inputs('available') * 2")
	require.NoError(t, err)
	assert.False(t, f.UsesTables())
}

// =============================================================================
// Token-list evaluation
// =============================================================================

func TestEvaluateTokens_LeftToRight(t *testing.T) {
	tokens := []FormulaToken{
		TokenRef("a", TableVectorOutputs, FullYears),
		TokenOp("+"),
		TokenOp("5"),
		TokenOp("-"),
		TokenRef("b", TableVectorOutputs, FullYears),
	}
	s, err := EvaluateTokens(testBundle(), tokens)
	require.NoError(t, err)
	assert.Equal(t, []float64{-4, -13, -22, -31, -40}, s.Values)

	// no precedence: (a + b) * 2, not a + b*2
	tokens = []FormulaToken{
		TokenRef("a", TableVectorOutputs, HistoricYears),
		TokenOp("+"),
		TokenRef("b", TableVectorOutputs, HistoricYears),
		TokenOp("*"),
		TokenOp("2"),
	}
	s, err = EvaluateTokens(testBundle(), tokens)
	require.NoError(t, err)
	assert.Equal(t, []int{2017, 2018, 2019}, s.Years)
	assert.Equal(t, []float64{22, 44, 66}, s.Values)
}

func TestEvaluateTokens_SingleReference(t *testing.T) {
	s, err := EvaluateTokens(testBundle(), []FormulaToken{TokenRef("co2_emissions", TableClimateOutputs, ProspectiveYears)})
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 800, 600}, s.Values)
}

func TestEvaluateTokens_Errors(t *testing.T) {
	a := TokenRef("a", TableVectorOutputs, FullYears)
	tests := []struct {
		name   string
		tokens []FormulaToken
		kind   FormulaErrorKind
	}{
		{"mixed year ranges", []FormulaToken{a, TokenOp("+"), TokenRef("b", TableVectorOutputs, HistoricYears)}, MalformedExpression},
		{"trailing operator", []FormulaToken{a, TokenOp("+")}, OperatorArityMismatch},
		{"leading operator", []FormulaToken{TokenOp("-"), a}, OperatorArityMismatch},
		{"two operands in a row", []FormulaToken{a, a, TokenOp("+")}, MalformedExpression},
		{"no variable", []FormulaToken{TokenOp("5"), TokenOp("+"), TokenOp("3")}, MalformedExpression},
		{"not a number", []FormulaToken{a, TokenOp("+"), TokenOp("five")}, MalformedExpression},
		{"unknown table", []FormulaToken{TokenRef("a", "outputs", FullYears)}, MalformedExpression},
		{"unknown year range", []FormulaToken{TokenRef("a", TableVectorOutputs, "decades")}, InvalidYearRange},
		{"unknown variable", []FormulaToken{TokenRef("nope", TableVectorOutputs, FullYears)}, UnknownVariable},
		{"division by zero", []FormulaToken{a, TokenOp("/"), TokenOp("0")}, DivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateTokens(testBundle(), tt.tokens)
			requireFormulaKind(t, err, tt.kind)
		})
	}
}

func TestFormulaToken_YAML(t *testing.T) {
	var tokens []FormulaToken
	err := yaml.Unmarshal([]byte(`
- [co2_emissions, climate_outputs, prospective_years]
- "-"
- 12.5
`), &tokens)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.True(t, tokens[0].IsRef())
	assert.Equal(t, VariableRef{Variable: "co2_emissions", Table: TableClimateOutputs, YearRange: ProspectiveYears}, *tokens[0].Ref)
	assert.Equal(t, "-", tokens[1].Text)
	assert.Equal(t, "12.5", tokens[2].Text)

	err = yaml.Unmarshal([]byte(`- [co2_emissions, climate_outputs]`), &tokens)
	assert.Error(t, err)
}

// =============================================================================
// Year selectors
// =============================================================================

func TestParseYearSelector(t *testing.T) {
	sel, err := ParseYearSelector("prospective_years")
	require.NoError(t, err)
	assert.Equal(t, Named(ProspectiveYears), sel)

	sel, err = ParseYearSelector("2050")
	require.NoError(t, err)
	assert.Equal(t, AtYear(2050), sel)

	sel, err = ParseYearSelector("")
	require.NoError(t, err)
	assert.True(t, sel.IsZero())

	_, err = ParseYearSelector("next_decade")
	requireFormulaKind(t, err, InvalidYearRange)
}

func TestFormulaErrorKind_String(t *testing.T) {
	assert.Equal(t, "invalid year range", InvalidYearRange.String())
	assert.Equal(t, "unknown variable", UnknownVariable.String())
	assert.Equal(t, "malformed expression", MalformedExpression.String())
	assert.Equal(t, "operator arity mismatch", OperatorArityMismatch.String())
	assert.Equal(t, "division by zero", DivisionByZero.String())
}
