package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Labels used on the group comparison chart
const (
	referenceSuffix      = " (Scénario de référence)"
	identicalSuffix      = " (Identique au scénario de référence)"
	referenceRemaining   = "Émissions restantes en n'appliquant aucune carte"
	defaultLabelDistance = 100.0
)

// DefaultLineColors are used for the historic, no-card and remaining emission lines
var DefaultLineColors = []string{"#8c564b", "#000000", "#d62728"}

// ChartError records a chart element whose formula failed; the rest of the
// chart is still built.
type ChartError struct {
	Element string `json:"element"`
	Message string `json:"message"`
}

// ChartLine is one plotted line
type ChartLine struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Series Series `json:"series"`
	Failed bool   `json:"failed,omitempty"`
}

// ChartArea is the band between two lines
type ChartArea struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Upper  Series `json:"upper"`
	Lower  Series `json:"lower"`
	Failed bool   `json:"failed,omitempty"`
}

// ProspectiveChart is the emission trajectory of one scenario
type ProspectiveChart struct {
	Title      string       `json:"title"`
	Historic   ChartLine    `json:"historic"`
	NoAspect   ChartLine    `json:"no_aspect"`
	AllAspects ChartLine    `json:"all_aspects"`
	Areas      []ChartArea  `json:"areas"`
	Errors     []ChartError `json:"errors,omitempty"`
}

// ComparisonChart overlays the remaining emissions of every group on the reference scenario
type ComparisonChart struct {
	Lines       []ChartLine  `json:"lines"`
	LabelValues []float64    `json:"label_values"`
	EndLabels   []string     `json:"end_labels"`
	Errors      []ChartError `json:"errors,omitempty"`
}

// BarValue is the budget and consumption of one resource
type BarValue struct {
	Name        string  `json:"name"`
	Budget      float64 `json:"budget"`
	Consumption float64 `json:"consumption"`
	Failed      bool    `json:"failed,omitempty"`
}

// BarChart is the multidisciplinary chart of one scenario
type BarChart struct {
	Title  string       `json:"title"`
	Bars   []BarValue   `json:"bars"`
	Errors []ChartError `json:"errors,omitempty"`
}

// Scale is a shared y-axis range
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func chartError(element string, err error) ChartError {
	recordFormulaError(err)
	log.Warn().Str("component", "charts").Str("element", element).Err(err).Msg("formula failed")
	return ChartError{Element: element, Message: err.Error()}
}

// buildLine evaluates a line formula; a failure yields an empty, flagged line
func buildLine(def FormulaDefinition, color string, bundle *ResultBundle, errs *[]ChartError) ChartLine {
	if def.Color != "" {
		color = def.Color
	}
	line := ChartLine{Name: def.Name, Label: def.Name, Color: color}
	s, err := def.EvaluateSeries(bundle)
	if err != nil {
		*errs = append(*errs, chartError(def.Name, err))
		line.Failed = true
		return line
	}
	line.Series = s
	return line
}

// aspectEdges returns the aspect series followed by the remaining emissions
// line over full_years: n aspects need n+1 edges.
func aspectEdges(cfg *Config, bundle *ResultBundle, errs *[]ChartError) ([]Series, []bool) {
	edges := make([]Series, 0, len(cfg.Aspects)+1)
	ok := make([]bool, 0, len(cfg.Aspects)+1)
	for _, aspect := range cfg.Aspects {
		s, err := aspect.EvaluateSeries(bundle)
		if err != nil {
			*errs = append(*errs, chartError(aspect.Name, err))
		}
		edges = append(edges, s)
		ok = append(ok, err == nil)
	}

	bottom := cfg.Lines.AllAspects
	var s Series
	var err error
	if bottom.IsTokenList() {
		s, err = EvaluateTokens(bundle, bottom.Tokens)
	} else {
		s, err = EvaluateSeries(bundle, bottom.Expression, Named(FullYears))
	}
	if err != nil {
		*errs = append(*errs, chartError(bottom.Name, err))
	}
	return append(edges, s), append(ok, err == nil)
}

// BuildProspectiveChart evaluates every line and area of the scenario chart
func BuildProspectiveChart(cfg *Config, title string, bundle *ResultBundle) ProspectiveChart {
	chart := ProspectiveChart{Title: title}
	chart.Historic = buildLine(cfg.Lines.Historic, DefaultLineColors[0], bundle, &chart.Errors)
	chart.NoAspect = buildLine(cfg.Lines.NoAspect, DefaultLineColors[1], bundle, &chart.Errors)
	chart.AllAspects = buildLine(cfg.Lines.AllAspects, DefaultLineColors[2], bundle, &chart.Errors)

	edges, ok := aspectEdges(cfg, bundle, &chart.Errors)
	palette := GeneratePastelPalette(len(cfg.Aspects))
	for i, aspect := range cfg.Aspects {
		area := ChartArea{Name: aspect.Name, Color: palette[i]}
		if aspect.Color != "" {
			area.Color = aspect.Color
		}
		if ok[i] && ok[i+1] {
			area.Upper = edges[i]
			area.Lower = edges[i+1]
		} else {
			area.Failed = true
		}
		chart.Areas = append(chart.Areas, area)
	}
	return chart
}

// GroupBundle is the result of one group. A nil Bundle marks a group whose
// simulation failed; it keeps its index and colour but draws no line.
type GroupBundle struct {
	Index  int
	Bundle *ResultBundle
}

// BuildGroupComparison builds the comparison chart: the reference no-card and
// remaining lines, then one line per distinct group trajectory. Groups with
// identical trajectories share a line and a label.
func BuildGroupComparison(cfg *Config, reference *ResultBundle, groups []GroupBundle) ComparisonChart {
	var chart ComparisonChart

	refNoAspect := buildLine(cfg.Lines.NoAspect, DefaultLineColors[1], reference, &chart.Errors)
	refNoAspect.Label = cfg.Lines.NoAspect.Name + referenceSuffix
	refRemaining := buildLine(cfg.Lines.AllAspects, DefaultLineColors[2], reference, &chart.Errors)
	refRemaining.Label = referenceRemaining + referenceSuffix
	chart.Lines = append(chart.Lines, refNoAspect, refRemaining)

	var unique []Series
	var members [][]int
	for _, g := range groups {
		if g.Bundle == nil {
			continue
		}
		s, err := cfg.Lines.AllAspects.EvaluateSeries(g.Bundle)
		if err != nil {
			chart.Errors = append(chart.Errors, chartError(fmt.Sprintf("group %d", g.Index), err))
			continue
		}
		merged := false
		for j, existing := range unique {
			if s.Equal(existing) {
				members[j] = append(members[j], g.Index)
				merged = true
				break
			}
		}
		if !merged {
			unique = append(unique, s)
			members = append(members, []int{g.Index})
		}
	}

	palette := GeneratePastelPalette(paletteSize(groups))
	for j, s := range unique {
		label := GroupLineLabel(members[j])
		if !refRemaining.Failed && s.Equal(refRemaining.Series) {
			label += identicalSuffix
		}
		chart.Lines = append(chart.Lines, ChartLine{
			Name:   fmt.Sprintf("group-%d", members[j][0]),
			Label:  label,
			Color:  palette[members[j][0]-1],
			Series: s,
		})
	}

	distance := cfg.Groups.MinimalLabelDistance
	if distance == 0 {
		distance = defaultLabelDistance
	}
	chart.LabelValues, chart.EndLabels = EndLabels(chart.Lines, distance)
	return chart
}

func paletteSize(groups []GroupBundle) int {
	n := len(groups)
	for _, g := range groups {
		if g.Index > n {
			n = g.Index
		}
	}
	return n
}

// GroupLineLabel names a line shared by one or more groups
func GroupLineLabel(groups []int) string {
	if len(groups) == 1 {
		return fmt.Sprintf("Scénario du groupe %d", groups[0])
	}
	head := make([]string, len(groups)-1)
	for i, g := range groups[:len(groups)-1] {
		head[i] = fmt.Sprint(g)
	}
	return fmt.Sprintf("Scénario des groupes %s et %d", strings.Join(head, ", "), groups[len(groups)-1])
}

// EndLabels returns the final value of each line and its label. When two
// final values are closer than minimalDistance every label is blanked so
// they do not overlap.
func EndLabels(lines []ChartLine, minimalDistance float64) ([]float64, []string) {
	values := make([]float64, 0, len(lines))
	for _, line := range lines {
		if last, ok := line.Series.Last(); ok {
			values = append(values, last)
		}
	}
	labels := make([]string, len(values))
	if d := FirstPositiveMinimalDistance(values); d > 0 && d <= minimalDistance {
		return values, labels
	}
	for i, v := range values {
		labels[i] = FormatFinalValue(v)
	}
	return values, labels
}

// FormatFinalValue renders an emission level, truncated to whole megatonnes
func FormatFinalValue(v float64) string {
	return fmt.Sprintf("%d Mt CO₂", int(v))
}

// FirstPositiveMinimalDistance is the smallest non-zero gap between any two
// values, or 0 when there is none.
func FirstPositiveMinimalDistance(values []float64) float64 {
	var distances []float64
	for i := range values {
		for j := i + 1; j < len(values); j++ {
			if d := math.Abs(values[i] - values[j]); d > 0 {
				distances = append(distances, d)
			}
		}
	}
	if len(distances) == 0 {
		return 0
	}
	sort.Float64s(distances)
	return distances[0]
}

// BuildBarChart evaluates the budget and consumption of every bar
func BuildBarChart(cfg *Config, title string, bundle *ResultBundle) BarChart {
	chart := BarChart{Title: title}
	for _, bar := range cfg.Bars {
		value := BarValue{Name: bar.Name}
		budget, err := evaluateBar(bar.Budget, bundle)
		if err != nil {
			chart.Errors = append(chart.Errors, chartError(bar.Name+" (budget)", err))
			value.Failed = true
		}
		consumption, err := evaluateBar(bar.Consumption, bundle)
		if err != nil {
			chart.Errors = append(chart.Errors, chartError(bar.Name+" (consumption)", err))
			value.Failed = true
		}
		value.Budget, value.Consumption = budget, consumption
		chart.Bars = append(chart.Bars, value)
	}
	return chart
}

func evaluateBar(def FormulaDefinition, bundle *ResultBundle) (float64, error) {
	v, err := def.Evaluate(bundle)
	if err != nil {
		return 0, err
	}
	if v.IsSeries() {
		return 0, formulaErrorf(InvalidYearRange, def.Source(), "a bar needs a single value; use a single year as year_range")
	}
	return v.Scalar(), nil
}

// BarScale is the shared y-range of several bar charts
func BarScale(charts []BarChart) Scale {
	var values []float64
	for _, chart := range charts {
		for _, bar := range chart.Bars {
			if !bar.Failed {
				values = append(values, bar.Budget, bar.Consumption)
			}
		}
	}
	return scaleOf(values)
}

// ProspectiveScale is the shared y-range of several prospective charts
func ProspectiveScale(charts []ProspectiveChart) Scale {
	var values []float64
	for _, chart := range charts {
		for _, line := range []ChartLine{chart.Historic, chart.NoAspect, chart.AllAspects} {
			values = append(values, line.Series.Values...)
		}
		for _, area := range chart.Areas {
			values = append(values, area.Upper.Values...)
			values = append(values, area.Lower.Values...)
		}
	}
	return scaleOf(values)
}

func scaleOf(values []float64) Scale {
	if len(values) == 0 {
		return Scale{}
	}
	lo, hi := Series{Values: values}.Bounds()
	return Scale{Min: lo, Max: hi}
}

// GeneratePastelPalette spreads n hues evenly at fixed saturation and value
func GeneratePastelPalette(n int) []string {
	palette := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, g, b := hsvToRGB(float64(i)/float64(n), 0.8, 0.75)
		palette = append(palette, fmt.Sprintf("#%02x%02x%02x", int(r*255), int(g*255), int(b*255)))
	}
	return palette
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	if s == 0 {
		return v, v, v
	}
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
