package main

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	svgWidth  = 720.0
	svgHeight = 320.0
	svgPad    = 40.0
)

const reportStyle = `
        :root {
            --primary: #2563eb;
            --danger: #dc2626;
            --bg: #f8fafc;
            --card-bg: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
            padding: 2rem;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: var(--primary); }
        h2 { font-size: 1.25rem; margin: 1.5rem 0 1rem; padding-bottom: 0.5rem; border-bottom: 2px solid var(--border); }
        .subtitle { color: var(--text-muted); margin-bottom: 1.5rem; }
        .card { background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px; padding: 1.25rem; margin-bottom: 1.5rem; }
        table { border-collapse: collapse; width: 100%; }
        th, td { padding: 0.4rem 0.75rem; border-bottom: 1px solid var(--border); text-align: right; }
        th:first-child, td:first-child { text-align: left; }
        th { background: #f1f5f9; }
        .over { color: var(--danger); font-weight: 600; }
        .error { color: var(--danger); font-size: 0.85rem; }
        .legend span { display: inline-block; margin-right: 1rem; font-size: 0.85rem; }
        .swatch { display: inline-block; width: 12px; height: 12px; margin-right: 4px; vertical-align: middle; }
        a { color: var(--primary); }
`

var reportFuncs = template.FuncMap{
	"pc":      FormatPercent,
	"svgPros": svgProspective,
	"svgComp": svgComparison,
	"css":     func(s string) template.CSS { return template.CSS(s) },
	"file":    groupReportFilename,
	"join":    strings.Join,
}

var sessionIndexTemplate = template.Must(template.New("index").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>{{css .Style}}</style>
</head>
<body>
<div class="container">
    <h1>{{.Title}}</h1>
    <div class="subtitle">Session du {{.Date}}</div>

    <div class="card">
        <h2>Comparaison des scénarios des groupes</h2>
        {{svgComp .View.Comparison}}
        <table>
            <tr><th>Trajectoire</th><th>2050</th></tr>
            {{range $i, $l := .View.Comparison.Lines}}
            <tr><td><span class="swatch" style="background: {{css $l.Color}}"></span>{{$l.Label}}</td>
                <td>{{if lt $i (len $.View.Comparison.EndLabels)}}{{index $.View.Comparison.EndLabels $i}}{{end}}</td></tr>
            {{end}}
        </table>
        {{range .View.Comparison.Errors}}<div class="error">{{.Element}} : {{.Message}}</div>{{end}}
    </div>

    <div class="card">
        <h2>Groupes</h2>
        <table>
            <tr><th>Groupe</th><th>Cartes</th></tr>
            <tr><td><a href="{{file .View.Reference}}">{{.View.Reference.Title}}</a></td><td>aucune</td></tr>
            {{range .View.Groups}}
            <tr><td><a href="{{file .}}">{{.Title}}</a></td>
                <td>{{if .Error}}<span class="error">{{.Error}}</span>{{else if .Levers}}{{join .Levers ", "}}{{else}}aucune{{end}}</td></tr>
            {{end}}
        </table>
    </div>
</div>
</body>
</html>
`))

var groupReportTemplate = template.Must(template.New("group").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - {{.Group.Title}}</title>
    <style>{{css .Style}}</style>
</head>
<body>
<div class="container">
    <h1>{{.Group.Title}}</h1>
    <div class="subtitle"><a href="index.html">{{.Title}}</a> - {{.Date}}</div>
    {{if .Group.Error}}
    <div class="card error">Simulation impossible : {{.Group.Error}}</div>
    {{else}}
    <div class="card">
        <h2>Scénario prospectif</h2>
        {{svgPros .Group.Prospective .Scale}}
        <div class="legend">
            {{range .Group.Prospective.Areas}}<span><span class="swatch" style="background: {{css .Color}}"></span>{{.Name}}</span>{{end}}
        </div>
        {{range .Group.Prospective.Errors}}<div class="error">{{.Element}} : {{.Message}}</div>{{end}}
    </div>
    <div class="card">
        <h2>Budgets et consommations</h2>
        <table>
            <tr><th>Ressource</th><th>Budget</th><th>Consommé</th></tr>
            {{range .Group.Bars.Bars}}
            <tr><td>{{.Name}}</td>
                {{if .Failed}}<td>-</td><td>-</td>{{else}}
                <td>{{pc .Budget}}</td><td{{if gt .Consumption .Budget}} class="over"{{end}}>{{pc .Consumption}}</td>{{end}}</tr>
            {{end}}
        </table>
        {{range .Group.Bars.Errors}}<div class="error">{{.Element}} : {{.Message}}</div>{{end}}
    </div>
    {{end}}
</div>
</body>
</html>
`))

// GenerateSessionHTMLReport writes index.html and one page per scenario into outputDir
func GenerateSessionHTMLReport(config *Config, view *DashboardView, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	date := time.Now().Format("2 January 2006 15:04")

	pages := append([]GroupView{view.Reference}, view.Groups...)
	for _, g := range pages {
		data := struct {
			Title string
			Style string
			Date  string
			Group GroupView
			Scale Scale
		}{config.Title, reportStyle, date, g, view.ProspectiveScale}
		if err := writeTemplate(filepath.Join(outputDir, groupReportFilename(g)), groupReportTemplate, data); err != nil {
			return "", err
		}
	}

	index := filepath.Join(outputDir, "index.html")
	data := struct {
		Title string
		Style string
		Date  string
		View  *DashboardView
	}{config.Title, reportStyle, date, view}
	if err := writeTemplate(index, sessionIndexTemplate, data); err != nil {
		return "", err
	}
	return index, nil
}

func writeTemplate(filename string, tmpl *template.Template, data interface{}) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

// groupReportFilename names the page of one scenario
func groupReportFilename(g GroupView) string {
	if g.Index == 0 {
		return "reference.html"
	}
	return fmt.Sprintf("group-%d.html", g.Index)
}

// svgScale maps years and values into the drawing box
type svgScale struct {
	scale Scale
}

func (s svgScale) x(year int) float64 {
	return svgPad + float64(year-chartFirstYear)/float64(chartLastYear-chartFirstYear)*(svgWidth-2*svgPad)
}

func (s svgScale) y(v float64) float64 {
	span := s.scale.Max - s.scale.Min
	if span == 0 {
		span = 1
	}
	return svgHeight - svgPad - (v-s.scale.Min)/span*(svgHeight-2*svgPad)
}

func (s svgScale) points(series Series) string {
	var b strings.Builder
	for i, year := range series.Years {
		fmt.Fprintf(&b, "%.1f,%.1f ", s.x(year), s.y(series.Values[i]))
	}
	return strings.TrimSpace(b.String())
}

func (s svgScale) axes(b *strings.Builder) {
	fmt.Fprintf(b, `<line x1="%.0f" y1="%.0f" x2="%.0f" y2="%.0f" stroke="#94a3b8"/>`, svgPad, svgHeight-svgPad, svgWidth-svgPad, svgHeight-svgPad)
	fmt.Fprintf(b, `<line x1="%.0f" y1="%.0f" x2="%.0f" y2="%.0f" stroke="#94a3b8"/>`, svgPad, svgPad, svgPad, svgHeight-svgPad)
	for year := chartFirstYear; year <= chartLastYear; year += 10 {
		fmt.Fprintf(b, `<text x="%.1f" y="%.0f" font-size="10" text-anchor="middle">%d</text>`, s.x(year), svgHeight-svgPad+14, year)
	}
	for i := 0; i <= 4; i++ {
		v := s.scale.Min + (s.scale.Max-s.scale.Min)*float64(i)/4
		fmt.Fprintf(b, `<text x="%.0f" y="%.1f" font-size="10" text-anchor="end">%.0f</text>`, svgPad-4, s.y(v)+3, v)
	}
}

func svgOpen(b *strings.Builder) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.0f %.0f" width="100%%">`, svgWidth, svgHeight)
}

func svgPolyline(b *strings.Builder, s svgScale, series Series, color string) {
	if series.Len() == 0 {
		return
	}
	fmt.Fprintf(b, `<polyline fill="none" stroke="%s" stroke-width="2" points="%s"/>`, template.HTMLEscapeString(color), s.points(series))
}

// svgProspective renders areas and reference lines of one scenario
func svgProspective(chart ProspectiveChart, scale Scale) template.HTML {
	if scale.Max <= scale.Min {
		scale = ProspectiveScale([]ProspectiveChart{chart})
	}
	s := svgScale{scale}
	var b strings.Builder
	svgOpen(&b)
	s.axes(&b)
	for _, area := range chart.Areas {
		if area.Failed || area.Upper.Len() == 0 {
			continue
		}
		lower := Series{Years: make([]int, 0, area.Lower.Len()), Values: make([]float64, 0, area.Lower.Len())}
		for i := area.Lower.Len() - 1; i >= 0; i-- {
			lower.Years = append(lower.Years, area.Lower.Years[i])
			lower.Values = append(lower.Values, area.Lower.Values[i])
		}
		fmt.Fprintf(&b, `<polygon fill="%s" fill-opacity="0.6" points="%s %s"><title>%s</title></polygon>`,
			template.HTMLEscapeString(area.Color), s.points(area.Upper), s.points(lower), template.HTMLEscapeString(area.Name))
	}
	for _, line := range []ChartLine{chart.Historic, chart.NoAspect, chart.AllAspects} {
		if !line.Failed {
			svgPolyline(&b, s, line.Series, line.Color)
		}
	}
	b.WriteString("</svg>")
	return template.HTML(b.String())
}

// svgComparison renders the group comparison lines
func svgComparison(chart ComparisonChart) template.HTML {
	values := []float64{0}
	for _, line := range chart.Lines {
		values = append(values, line.Series.Values...)
	}
	s := svgScale{scaleOf(values)}
	var b strings.Builder
	svgOpen(&b)
	s.axes(&b)
	for _, line := range chart.Lines {
		svgPolyline(&b, s, line.Series, line.Color)
	}
	b.WriteString("</svg>")
	return template.HTML(b.String())
}
