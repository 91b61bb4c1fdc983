package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VariableRef names one column of a bundle table over a named year range
type VariableRef struct {
	Variable  string
	Table     string
	YearRange string
}

// FormulaToken is one element of a token-list formula: an operator, a
// numeric literal, or a variable reference.
type FormulaToken struct {
	Text string
	Ref  *VariableRef
}

// TokenOp builds an operator or literal token
func TokenOp(text string) FormulaToken {
	return FormulaToken{Text: text}
}

// TokenRef builds a variable reference token
func TokenRef(variable, table, yearRange string) FormulaToken {
	return FormulaToken{Ref: &VariableRef{Variable: variable, Table: table, YearRange: yearRange}}
}

// IsRef reports whether the token references a variable
func (t FormulaToken) IsRef() bool {
	return t.Ref != nil
}

func (t FormulaToken) isOperator() bool {
	if t.Ref != nil {
		return false
	}
	switch t.Text {
	case "+", "-", "*", "/":
		return true
	}
	return false
}

func (t FormulaToken) String() string {
	if t.Ref != nil {
		return fmt.Sprintf("%s(%q)[%s]", t.Ref.Table, t.Ref.Variable, t.Ref.YearRange)
	}
	return t.Text
}

func (t *FormulaToken) setRef(parts []string) error {
	if len(parts) != 3 {
		return fmt.Errorf("a variable token needs [variable, table, year_range], got %d elements", len(parts))
	}
	t.Text = ""
	t.Ref = &VariableRef{Variable: parts[0], Table: parts[1], YearRange: parts[2]}
	return nil
}

// UnmarshalYAML accepts a scalar (operator or literal) or a three element list
func (t *FormulaToken) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = TokenOp(value.Value)
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		if err := t.setRef(parts); err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		return nil
	default:
		return fmt.Errorf("line %d: a formula token must be a string or a list", value.Line)
	}
}

// MarshalYAML writes references as flow lists
func (t FormulaToken) MarshalYAML() (interface{}, error) {
	if t.Ref == nil {
		return t.Text, nil
	}
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, part := range []string{t.Ref.Variable, t.Ref.Table, t.Ref.YearRange} {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part})
	}
	return node, nil
}

// UnmarshalJSON accepts a string, a number or a three element list
func (t *FormulaToken) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		return t.setRef(parts)
	}
	if s, err := strconv.Unquote(trimmed); err == nil {
		*t = TokenOp(s)
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		*t = TokenOp(trimmed)
		return nil
	}
	return fmt.Errorf("invalid formula token %s", trimmed)
}

// MarshalJSON mirrors MarshalYAML
func (t FormulaToken) MarshalJSON() ([]byte, error) {
	if t.Ref == nil {
		return json.Marshal(t.Text)
	}
	return json.Marshal([]string{t.Ref.Variable, t.Ref.Table, t.Ref.YearRange})
}

// renderTokens joins tokens for error messages
func renderTokens(tokens []FormulaToken) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// ValidateTokens checks the shape of a token list without a bundle: one
// shared named year range, alternating operands and operators, parseable
// literals and known tables. It returns the shared year range.
func ValidateTokens(tokens []FormulaToken) (string, error) {
	expr := renderTokens(tokens)
	yearRange := ""
	operands, operators := 0, 0
	for _, tok := range tokens {
		if tok.isOperator() {
			operators++
			continue
		}
		operands++
		if tok.Ref == nil {
			if _, err := strconv.ParseFloat(tok.Text, 64); err != nil {
				return "", formulaErrorf(MalformedExpression, expr, "token %q is neither an operator nor a number", tok.Text)
			}
			continue
		}
		if _, ok := accessorTables[tok.Ref.Table]; !ok {
			return "", formulaErrorf(MalformedExpression, expr, "unknown table %q", tok.Ref.Table)
		}
		if !isAllowedYearRange(tok.Ref.YearRange) {
			return "", formulaErrorf(InvalidYearRange, expr, "invalid year range %q", tok.Ref.YearRange)
		}
		if yearRange == "" {
			yearRange = tok.Ref.YearRange
		} else if yearRange != tok.Ref.YearRange {
			return "", formulaErrorf(MalformedExpression, expr,
				"all variables must share one year range, found %s and %s", yearRange, tok.Ref.YearRange)
		}
	}
	if operands != operators+1 {
		return "", formulaErrorf(OperatorArityMismatch, expr, "%d operands for %d operators", operands, operators)
	}
	for i, tok := range tokens {
		if tok.isOperator() != (i%2 == 1) {
			return "", formulaErrorf(MalformedExpression, expr, "operands and operators must alternate, %s at position %d", tok, i)
		}
	}
	if yearRange == "" {
		return "", formulaErrorf(MalformedExpression, expr, "formula references no variable, so it has no year range")
	}
	return yearRange, nil
}

// EvaluateTokens evaluates a token-list formula strictly left to right with
// no operator precedence: [a, +, 5, -, b] is ((a + 5) - b). The result is
// always a series over the shared year range.
func EvaluateTokens(bundle *ResultBundle, tokens []FormulaToken) (Series, error) {
	yearRange, err := ValidateTokens(tokens)
	if err != nil {
		return Series{}, err
	}
	expr := renderTokens(tokens)
	years, err := resolveYearRange(bundle, Named(yearRange), expr)
	if err != nil {
		return Series{}, err
	}
	ctx := &evalContext{bundle: bundle, sel: Named(yearRange), years: years, expr: expr}

	acc, err := tokenOperand(ctx, tokens[0])
	if err != nil {
		return Series{}, err
	}
	for i := 1; i+1 < len(tokens); i += 2 {
		operand, err := tokenOperand(ctx, tokens[i+1])
		if err != nil {
			return Series{}, err
		}
		if acc, err = applyOperator(tokens[i].Text, acc, operand, expr); err != nil {
			return Series{}, err
		}
	}
	if !acc.IsSeries() {
		return ConstantSeries(years, acc.Scalar()), nil
	}
	return acc.Series(), nil
}

func tokenOperand(ctx *evalContext, tok FormulaToken) (Value, error) {
	if tok.Ref == nil {
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return Value{}, formulaErrorf(MalformedExpression, ctx.expr, "invalid number %q", tok.Text)
		}
		return ScalarValue(v), nil
	}
	node := &accessorNode{table: tok.Ref.Table, name: tok.Ref.Variable}
	return node.eval(ctx)
}
