package main

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// ScenarioMetrics are the headline figures of one scenario
type ScenarioMetrics struct {
	Levers              []string `json:"levers"`
	Emissions2050       float64  `json:"emissions_2050"`
	Remaining2050       float64  `json:"remaining_2050"`
	CumulativeEmissions float64  `json:"cumulative_emissions_2050"`
	Temperature2050     float64  `json:"temperature_2050"`
	BudgetShare         float64  `json:"budget_share"`
}

// LeverImpact compares a lever applied alone with the reference scenario
type LeverImpact struct {
	Lever       LeverDefinition `json:"lever"`
	Metrics     ScenarioMetrics `json:"metrics"`
	Delta2050   float64         `json:"delta_2050"`
	DeltaCumul  float64         `json:"delta_cumulative"`
	ReductionPc float64         `json:"reduction_percent"`
	Error       string          `json:"error,omitempty"`
}

// ImpactAnalysis holds the single-lever impacts and the pairwise matrix of
// 2050 remaining emissions.
type ImpactAnalysis struct {
	Reference ScenarioMetrics `json:"reference"`
	All       ScenarioMetrics `json:"all_levers"`
	Impacts   []LeverImpact   `json:"impacts"`
	Pairs     [][]float64     `json:"pairs"`
	PairIDs   []string        `json:"pair_ids"`
	Timestamp string          `json:"timestamp"`
}

// MeasureScenario extracts the headline figures of a bundle. The remaining
// emissions use the configured all-aspects formula.
func MeasureScenario(cfg *Config, levers []string, bundle *ResultBundle) (ScenarioMetrics, error) {
	m := ScenarioMetrics{Levers: levers}
	v, err := Evaluate(bundle, "climate_outputs('co2_emissions')", AtYear(2050))
	if err != nil {
		return m, err
	}
	m.Emissions2050 = v.Scalar()
	v, err = Evaluate(bundle, "climate_outputs('temperature_increase_from_aviation')", AtYear(2050))
	if err != nil {
		return m, err
	}
	m.Temperature2050 = v.Scalar()

	remaining, err := cfg.Lines.AllAspects.EvaluateSeries(bundle)
	if err != nil {
		return m, err
	}
	m.Remaining2050, _ = remaining.Last()

	cumul, ok, err := GetFloat(bundle, MapFloatOutputs, "cumulative_co2_emissions_2050")
	if err != nil {
		return m, err
	}
	if !ok {
		return m, &MissingKeyError{Key: "cumulative_co2_emissions_2050"}
	}
	m.CumulativeEmissions = cumul

	v, err = Evaluate(bundle, "vector_outputs('cumulative_co2_emissions') / float_outputs('gross_carbon_budget_2050') * 100", AtYear(2050))
	if err != nil {
		return m, err
	}
	m.BudgetShare = v.Scalar()
	return m, nil
}

// RunImpactAnalysis computes every implemented lever alone, every pair of
// implemented levers, and all implemented levers together.
func RunImpactAnalysis(cfg *Config, engine *Engine) (*ImpactAnalysis, error) {
	reference, err := engine.Compute(nil)
	if err != nil {
		return nil, err
	}
	refMetrics, err := MeasureScenario(cfg, nil, reference)
	if err != nil {
		return nil, fmt.Errorf("reference scenario: %w", err)
	}
	analysis := &ImpactAnalysis{Reference: refMetrics, Timestamp: time.Now().Format("2006-01-02_1504")}

	var implemented []string
	for _, lever := range engine.Catalog().Levers() {
		if lever.IsImplemented() {
			implemented = append(implemented, lever.ID)
		}
		impact := LeverImpact{Lever: lever}
		metrics, err := measure(cfg, engine, []string{lever.ID})
		if err != nil {
			impact.Error = err.Error()
			analysis.Impacts = append(analysis.Impacts, impact)
			continue
		}
		impact.Metrics = metrics
		impact.Delta2050 = metrics.Remaining2050 - refMetrics.Remaining2050
		impact.DeltaCumul = metrics.CumulativeEmissions - refMetrics.CumulativeEmissions
		if refMetrics.Remaining2050 != 0 {
			impact.ReductionPc = -impact.Delta2050 / refMetrics.Remaining2050 * 100
		}
		analysis.Impacts = append(analysis.Impacts, impact)
	}

	analysis.PairIDs = implemented
	analysis.Pairs = make([][]float64, len(implemented))
	for i, a := range implemented {
		analysis.Pairs[i] = make([]float64, len(implemented))
		for j, b := range implemented {
			if j < i {
				analysis.Pairs[i][j] = analysis.Pairs[j][i]
				continue
			}
			metrics, err := measure(cfg, engine, []string{a, b})
			if err != nil {
				return nil, err
			}
			analysis.Pairs[i][j] = metrics.Remaining2050
		}
	}

	all, err := measure(cfg, engine, implemented)
	if err != nil {
		return nil, err
	}
	analysis.All = all
	return analysis, nil
}

func measure(cfg *Config, engine *Engine, levers []string) (ScenarioMetrics, error) {
	bundle, err := engine.Compute(levers)
	if err != nil {
		return ScenarioMetrics{}, err
	}
	return MeasureScenario(cfg, levers, bundle)
}

// LeverName returns the display name of a lever id
func (a *ImpactAnalysis) LeverName(id string) string {
	for _, impact := range a.Impacts {
		if impact.Lever.ID == id {
			return impact.Lever.Name
		}
	}
	return id
}

var impactTemplate = template.Must(template.New("impact").Funcs(template.FuncMap{
	"mt":   func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"pc":   func(v float64) string { return fmt.Sprintf("%+.1f%%", v) },
	"cell": pairCellColor,
}).Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - Impact des cartes</title>
    <style>
        * { box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            margin: 0; padding: 20px;
            background: #f5f5f5;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        h1 { color: #1a237e; margin-bottom: 10px; }
        h2 { color: #303f9f; margin-top: 30px; }
        .subtitle { color: #666; margin-bottom: 30px; }
        .panel {
            background: white;
            padding: 20px;
            border-radius: 8px;
            margin-bottom: 30px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            overflow-x: auto;
        }
        table { border-collapse: collapse; margin: 0 auto; }
        th, td { padding: 8px 12px; text-align: center; border: 1px solid #ddd; }
        th { background: #1a237e; color: white; font-weight: 600; }
        .row-header { background: #303f9f; color: white; font-weight: 600; text-align: left; }
        .error { color: #c62828; }
        .ni { color: #999; font-style: italic; }
    </style>
</head>
<body>
<div class="container">
    <h1>{{.Title}}</h1>
    <div class="subtitle">Impact de chaque carte sur les émissions de 2050 - {{.Analysis.Timestamp}}</div>

    <div class="panel">
        <h2>Carte par carte</h2>
        <table>
            <tr><th>Carte</th><th>Émissions 2050 (Mt CO₂)</th><th>Écart</th><th>Réduction</th><th>Cumul 2050 (Gt CO₂)</th><th>Part du budget</th></tr>
            <tr><td class="row-header">Scénario de référence</td><td>{{mt .Analysis.Reference.Remaining2050}}</td><td>-</td><td>-</td><td>{{printf "%.1f" .Analysis.Reference.CumulativeEmissions}}</td><td>{{printf "%.1f%%" .Analysis.Reference.BudgetShare}}</td></tr>
            {{range .Analysis.Impacts}}
            <tr>
                <td class="row-header">{{.Lever.DisplayName}}</td>
                {{if .Error}}<td colspan="5" class="error">{{.Error}}</td>{{else}}
                <td>{{mt .Metrics.Remaining2050}}</td><td>{{mt .Delta2050}}</td><td>{{pc .ReductionPc}}</td>
                <td>{{printf "%.1f" .Metrics.CumulativeEmissions}}</td><td>{{printf "%.1f%%" .Metrics.BudgetShare}}</td>{{end}}
            </tr>
            {{end}}
            <tr><td class="row-header">Toutes les cartes</td><td>{{mt .Analysis.All.Remaining2050}}</td><td>-</td><td>-</td><td>{{printf "%.1f" .Analysis.All.CumulativeEmissions}}</td><td>{{printf "%.1f%%" .Analysis.All.BudgetShare}}</td></tr>
        </table>
    </div>

    <div class="panel">
        <h2>Combinaisons de deux cartes (émissions restantes en 2050)</h2>
        <table>
            <tr><th></th>{{range .PairNames}}<th>{{.}}</th>{{end}}</tr>
            {{range $i, $row := .Analysis.Pairs}}
            <tr><td class="row-header">{{index $.PairNames $i}}</td>
                {{range $row}}<td style="background: {{cell . $.Analysis.Reference.Remaining2050}}">{{mt .}}</td>{{end}}
            </tr>
            {{end}}
        </table>
    </div>
</div>
</body>
</html>
`))

// pairCellColor shades a cell from red (no reduction) to green (full reduction)
func pairCellColor(value, reference float64) template.CSS {
	ratio := 0.0
	if reference > 0 {
		ratio = 1 - value/reference
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	r := int(255 - 155*ratio)
	g := int(205 + 50*ratio)
	return template.CSS(fmt.Sprintf("rgb(%d, %d, 210)", r, g))
}

// GenerateImpactReport writes the analysis as index.html under outputDir
func GenerateImpactReport(cfg *Config, analysis *ImpactAnalysis, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(outputDir, "index.html")
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	names := make([]string, len(analysis.PairIDs))
	for i, id := range analysis.PairIDs {
		names[i] = analysis.LeverName(id)
	}
	data := struct {
		Title     string
		Analysis  *ImpactAnalysis
		PairNames []string
	}{cfg.Title, analysis, names}
	if err := impactTemplate.Execute(f, data); err != nil {
		return "", err
	}
	return filename, nil
}
