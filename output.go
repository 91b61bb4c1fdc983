package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FormatEmissions formats a level in MtCO₂
func FormatEmissions(v float64) string {
	return fmt.Sprintf("%.0f Mt", v)
}

// FormatPercent formats a share already expressed in percent
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// PrintHeader prints the dashboard title and the lever catalog
func PrintHeader(w io.Writer, cfg *Config) {
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║ %-76s ║\n", strings.ToUpper(cfg.Title))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	PrintLeverCatalog(w, cfg.Levers)
}

// PrintLeverCatalog lists the cards with their ids
func PrintLeverCatalog(w io.Writer, levers []LeverDefinition) {
	fmt.Fprintln(w, "Cartes:")
	fmt.Fprintln(w, "───────")
	for i, lever := range levers {
		fmt.Fprintf(w, "  %2d. %-45s %s\n", i+1, lever.DisplayName(), lever.ID)
	}
	fmt.Fprintln(w)
}

// PrintScenarioSummary prints the emission decomposition of a scenario every
// five years, then its headline figures.
func PrintScenarioSummary(w io.Writer, cfg *Config, title string, levers []string, bundle *ResultBundle) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║ %-76s ║\n", title)
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════════════════════╝")
	if len(levers) > 0 {
		fmt.Fprintf(w, "Cartes: %s\n", strings.Join(levers, ", "))
	} else {
		fmt.Fprintln(w, "Cartes: aucune")
	}
	fmt.Fprintln(w)

	table, err := GetTable(bundle, TableVectorOutputs)
	if err != nil {
		return err
	}
	climate, err := GetTable(bundle, TableClimateOutputs)
	if err != nil {
		return err
	}
	columns := []struct {
		header string
		table  *Table
		name   string
	}{
		{"Sans carte", table, "co2_emissions_2019technology_baseline3"},
		{"Techno", table, "co2_emissions_2019technology"},
		{"Efficacité", table, "co2_emissions_including_aircraft_efficiency"},
		{"Opérations", table, "co2_emissions_including_load_factor"},
		{"Énergie", table, "co2_emissions_including_energy"},
		{"Compens.", table, "carbon_offset"},
		{"Net", climate, "net_co2_emissions"},
		{"ΔT (°C)", climate, "temperature_increase_from_aviation"},
	}

	fmt.Fprintf(w, "%-6s", "Année")
	for _, c := range columns {
		fmt.Fprintf(w, " │ %10s", c.header)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("─", 6+len(columns)*13))
	for i, year := range table.Years {
		if i != 0 && i != len(table.Years)-1 && year%5 != 0 {
			continue
		}
		fmt.Fprintf(w, "%-6d", year)
		for _, c := range columns {
			v, _ := c.table.At(c.name, year)
			if c.table == climate && c.name == "temperature_increase_from_aviation" {
				fmt.Fprintf(w, " │ %10.4f", v)
			} else {
				fmt.Fprintf(w, " │ %10.1f", v)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, strings.Repeat("─", 6+len(columns)*13))

	metrics, err := MeasureScenario(cfg, levers, bundle)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Résumé:")
	fmt.Fprintf(w, "  Émissions restantes 2050:  %s\n", FormatEmissions(metrics.Remaining2050))
	fmt.Fprintf(w, "  Émissions cumulées 2050:   %.1f Gt CO₂\n", metrics.CumulativeEmissions)
	fmt.Fprintf(w, "  Part du budget carbone:    %s\n", FormatPercent(metrics.BudgetShare))
	fmt.Fprintf(w, "  Réchauffement (aviation):  %.4f °C\n", metrics.Temperature2050)
	return nil
}

// PrintBarChart prints budgets and consumptions as a text bar chart
func PrintBarChart(w io.Writer, chart BarChart) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s - budgets et consommations\n", chart.Title)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, bar := range chart.Bars {
		if bar.Failed {
			fmt.Fprintf(w, "  %-28s  (erreur)\n", bar.Name)
			continue
		}
		status := "✓"
		if bar.Consumption > bar.Budget {
			status = "⚠️"
		}
		fmt.Fprintf(w, "  %-28s budget %7s  consommé %7s  %s\n",
			bar.Name, FormatPercent(bar.Budget), FormatPercent(bar.Consumption), status)
	}
	for _, e := range chart.Errors {
		fmt.Fprintf(w, "  ! %s: %s\n", e.Element, e.Message)
	}
}

// PrintComparison prints the final value of every line of a comparison chart
func PrintComparison(w io.Writer, chart ComparisonChart) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      COMPARAISON DES SCÉNARIOS DES GROUPES                        ║")
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════════════════════════════╝")
	for _, line := range chart.Lines {
		last, ok := line.Series.Last()
		value := "-"
		if ok {
			value = FormatFinalValue(last)
		}
		fmt.Fprintf(w, "  %-70s %12s\n", line.Label, value)
	}
	for _, e := range chart.Errors {
		fmt.Fprintf(w, "  ! %s: %s\n", e.Element, e.Message)
	}
}

// PrintImpactAnalysis prints the single-lever impact table
func PrintImpactAnalysis(w io.Writer, analysis *ImpactAnalysis) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-45s │ %10s │ %10s │ %9s │ %10s\n", "Carte", "2050", "Écart", "Réduction", "Cumul (Gt)")
	fmt.Fprintln(w, strings.Repeat("─", 96))
	fmt.Fprintf(w, "%-45s │ %10s │ %10s │ %9s │ %10.1f\n", "Scénario de référence",
		FormatEmissions(analysis.Reference.Remaining2050), "-", "-", analysis.Reference.CumulativeEmissions)
	for _, impact := range analysis.Impacts {
		if impact.Error != "" {
			fmt.Fprintf(w, "%-45s │ erreur: %s\n", impact.Lever.DisplayName(), impact.Error)
			continue
		}
		fmt.Fprintf(w, "%-45s │ %10s │ %10s │ %8.1f%% │ %10.1f\n", impact.Lever.DisplayName(),
			FormatEmissions(impact.Metrics.Remaining2050), FormatEmissions(impact.Delta2050),
			impact.ReductionPc, impact.Metrics.CumulativeEmissions)
	}
	fmt.Fprintln(w, strings.Repeat("─", 96))
	fmt.Fprintf(w, "%-45s │ %10s │ %10s │ %9s │ %10.1f\n", "Toutes les cartes",
		FormatEmissions(analysis.All.Remaining2050), "-", "-", analysis.All.CumulativeEmissions)
}

// PrintValue prints a formula result: one number, or one line per year
func PrintValue(w io.Writer, v Value) {
	if !v.IsSeries() {
		fmt.Fprintf(w, "%g\n", v.Scalar())
		return
	}
	s := v.Series()
	for i, year := range s.Years {
		fmt.Fprintf(w, "%d\t%g\n", year, s.Values[i])
	}
}

// WriteScenarioCSV writes every vector and climate output column, one row per year
func WriteScenarioCSV(w io.Writer, bundle *ResultBundle) error {
	vector, err := GetTable(bundle, TableVectorOutputs)
	if err != nil {
		return err
	}
	climate, err := GetTable(bundle, TableClimateOutputs)
	if err != nil {
		return err
	}
	years, err := GetYears(bundle)
	if err != nil {
		return err
	}

	type column struct {
		table *Table
		name  string
	}
	header := []string{"year"}
	var columns []column
	for _, name := range vector.ColumnNames() {
		header = append(header, TableVectorOutputs+"."+name)
		columns = append(columns, column{vector, name})
	}
	for _, name := range climate.ColumnNames() {
		header = append(header, TableClimateOutputs+"."+name)
		columns = append(columns, column{climate, name})
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, year := range years.Full {
		row := []string{strconv.Itoa(year)}
		for _, c := range columns {
			v, ok := c.table.At(c.name, year)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
