package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	contentWidth = pageWidth - marginLeft - marginRight

	chartFirstYear = 2000
	chartLastYear  = 2050
)

// PDFSessionReport renders a facilitation session: the reference scenario,
// every group scenario and the comparison chart.
type PDFSessionReport struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	config *Config
	view   *DashboardView
}

// GenerateSessionPDFReport creates the PDF report of a dashboard view
func GenerateSessionPDFReport(config *Config, view *DashboardView) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	report := &PDFSessionReport{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		config: config,
		view:   view,
	}

	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)

	report.addTitlePage()
	report.addScenarioPage(view.Reference)
	for _, g := range view.Groups {
		report.addScenarioPage(g)
	}
	report.addComparisonPage()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// text converts UTF-8 to the code page of the core fonts; subscript two has
// no equivalent there.
func (r *PDFSessionReport) text(s string) string {
	return r.tr(strings.ReplaceAll(s, "₂", "2"))
}

func (r *PDFSessionReport) addTitlePage() {
	r.pdf.AddPage()

	r.pdf.SetFont("Arial", "B", 28)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.Ln(35)
	r.pdf.CellFormat(contentWidth, 15, r.text(r.config.Title), "", 1, "C", false, 0, "")

	r.pdf.SetFont("Arial", "I", 11)
	r.pdf.SetTextColor(80, 80, 80)
	r.pdf.Ln(5)
	r.pdf.CellFormat(contentWidth, 8, fmt.Sprintf("Generated: %s", time.Now().Format("2 January 2006")), "", 1, "C", false, 0, "")

	r.pdf.Ln(15)
	r.pdf.SetFillColor(245, 247, 250)
	r.pdf.SetDrawColor(200, 200, 200)
	r.pdf.SetFont("Arial", "B", 12)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 8, r.text("Cartes choisies par les groupes"), "1", 1, "C", true, 0, "")

	r.pdf.SetFont("Arial", "", 11)
	r.pdf.SetTextColor(50, 50, 50)
	catalog, err := r.config.Catalog()
	for _, g := range r.view.Groups {
		names := make([]string, 0, len(g.Levers))
		for _, id := range g.Levers {
			if err == nil {
				if lever, ok := catalog.Lookup(id); ok {
					names = append(names, lever.Name)
					continue
				}
			}
			names = append(names, id)
		}
		cards := "aucune carte"
		if len(names) > 0 {
			cards = strings.Join(names, ", ")
		}
		r.pdf.CellFormat(contentWidth, 7, r.text(fmt.Sprintf("%s : %s", g.Title, cards)), "LR", 1, "C", true, 0, "")
	}
	r.pdf.CellFormat(contentWidth, 1, "", "LRB", 1, "C", true, 0, "")
}

func (r *PDFSessionReport) addScenarioPage(g GroupView) {
	r.pdf.AddPage()
	r.drawSectionHeader(g.Title)

	if g.Error != "" {
		r.pdf.SetFont("Arial", "", 11)
		r.pdf.SetTextColor(180, 0, 0)
		r.pdf.MultiCell(contentWidth, 6, r.text("Simulation impossible : "+g.Error), "", "L", false)
		return
	}

	top := r.pdf.GetY()
	chartWidth := contentWidth * 0.62
	r.drawProspectiveChart(g.Prospective, marginLeft, top, chartWidth, 120)

	r.pdf.SetXY(marginLeft+chartWidth+8, top)
	r.drawBarTable(g.Bars, contentWidth-chartWidth-8)

	r.pdf.SetXY(marginLeft, top+130)
	r.drawLegend(g.Prospective)
	r.drawErrors(append(append([]ChartError(nil), g.Prospective.Errors...), g.Bars.Errors...))
}

func (r *PDFSessionReport) addComparisonPage() {
	r.pdf.AddPage()
	r.drawSectionHeader("Comparaison des scénarios des groupes")

	chart := r.view.Comparison
	top := r.pdf.GetY()
	scale := ProspectiveScale(nil)
	var values []float64
	for _, line := range chart.Lines {
		values = append(values, line.Series.Values...)
	}
	if len(values) > 0 {
		scale = scaleOf(append(values, 0))
	}
	r.drawAxes(marginLeft, top, contentWidth*0.7, 130, scale)
	for _, line := range chart.Lines {
		r.drawSeries(line.Series, line.Color, marginLeft, top, contentWidth*0.7, 130, scale)
	}

	r.pdf.SetXY(marginLeft+contentWidth*0.7+8, top)
	r.pdf.SetFont("Arial", "", 9)
	for i, line := range chart.Lines {
		red, green, blue := hexToRGB(line.Color)
		r.pdf.SetTextColor(red, green, blue)
		label := line.Label
		if i < len(chart.EndLabels) && chart.EndLabels[i] != "" {
			label += " : " + chart.EndLabels[i]
		}
		r.pdf.SetX(marginLeft + contentWidth*0.7 + 8)
		r.pdf.MultiCell(contentWidth*0.3-8, 5, r.text(label), "", "L", false)
		r.pdf.Ln(1)
	}
	r.pdf.SetXY(marginLeft, top+140)
	r.drawErrors(chart.Errors)
}

// drawProspectiveChart draws the aspect areas, then the three reference lines
func (r *PDFSessionReport) drawProspectiveChart(chart ProspectiveChart, x, y, w, h float64) {
	scale := r.view.ProspectiveScale
	if scale.Max <= scale.Min {
		scale = ProspectiveScale([]ProspectiveChart{chart})
	}
	r.drawAxes(x, y, w, h, scale)

	r.pdf.SetAlpha(0.6, "Normal")
	for _, area := range chart.Areas {
		if area.Failed || area.Upper.Len() == 0 {
			continue
		}
		var points []fpdf.PointType
		for i, year := range area.Upper.Years {
			points = append(points, r.point(year, area.Upper.Values[i], x, y, w, h, scale))
		}
		for i := area.Lower.Len() - 1; i >= 0; i-- {
			points = append(points, r.point(area.Lower.Years[i], area.Lower.Values[i], x, y, w, h, scale))
		}
		red, green, blue := hexToRGB(area.Color)
		r.pdf.SetFillColor(red, green, blue)
		r.pdf.Polygon(points, "F")
	}
	r.pdf.SetAlpha(1, "Normal")

	for _, line := range []ChartLine{chart.Historic, chart.NoAspect, chart.AllAspects} {
		if !line.Failed {
			r.drawSeries(line.Series, line.Color, x, y, w, h, scale)
		}
	}
}

func (r *PDFSessionReport) point(year int, value, x, y, w, h float64, scale Scale) fpdf.PointType {
	span := scale.Max - scale.Min
	if span == 0 {
		span = 1
	}
	px := x + float64(year-chartFirstYear)/float64(chartLastYear-chartFirstYear)*w
	py := y + h - (value-scale.Min)/span*h
	return fpdf.PointType{X: px, Y: py}
}

func (r *PDFSessionReport) drawSeries(s Series, color string, x, y, w, h float64, scale Scale) {
	if s.Len() < 2 {
		return
	}
	red, green, blue := hexToRGB(color)
	r.pdf.SetDrawColor(red, green, blue)
	r.pdf.SetLineWidth(0.6)
	prev := r.point(s.Years[0], s.Values[0], x, y, w, h, scale)
	for i := 1; i < s.Len(); i++ {
		p := r.point(s.Years[i], s.Values[i], x, y, w, h, scale)
		r.pdf.Line(prev.X, prev.Y, p.X, p.Y)
		prev = p
	}
	r.pdf.SetLineWidth(0.2)
}

func (r *PDFSessionReport) drawAxes(x, y, w, h float64, scale Scale) {
	r.pdf.SetDrawColor(150, 150, 150)
	r.pdf.SetLineWidth(0.2)
	r.pdf.Line(x, y+h, x+w, y+h)
	r.pdf.Line(x, y, x, y+h)

	r.pdf.SetFont("Arial", "", 7)
	r.pdf.SetTextColor(100, 100, 100)
	for year := chartFirstYear; year <= chartLastYear; year += 10 {
		p := r.point(year, scale.Min, x, y, w, h, scale)
		r.pdf.Text(p.X-3, y+h+4, strconv.Itoa(year))
	}
	for i := 0; i <= 4; i++ {
		v := scale.Min + (scale.Max-scale.Min)*float64(i)/4
		p := r.point(chartFirstYear, v, x, y, w, h, scale)
		r.pdf.Text(x-12, p.Y+1, fmt.Sprintf("%.0f", v))
	}
}

func (r *PDFSessionReport) drawBarTable(chart BarChart, width float64) {
	left := r.pdf.GetX()
	widths := []float64{width * 0.5, width * 0.25, width * 0.25}
	r.pdf.SetFillColor(0, 51, 102)
	r.pdf.SetTextColor(255, 255, 255)
	r.pdf.SetFont("Arial", "B", 9)
	for i, header := range []string{"Ressource", "Budget", r.text("Consommé")} {
		align := "L"
		if i > 0 {
			align = "R"
		}
		r.pdf.CellFormat(widths[i], 6, r.text(header), "1", 0, align, true, 0, "")
	}
	r.pdf.Ln(-1)

	r.pdf.SetFont("Arial", "", 9)
	for _, bar := range chart.Bars {
		r.pdf.SetX(left)
		r.pdf.SetFillColor(250, 250, 250)
		r.pdf.SetTextColor(50, 50, 50)
		budget, consumption := FormatPercent(bar.Budget), FormatPercent(bar.Consumption)
		if bar.Failed {
			budget, consumption = "-", "-"
		} else if bar.Consumption > bar.Budget {
			r.pdf.SetTextColor(180, 0, 0)
		}
		r.pdf.CellFormat(widths[0], 5, r.text(bar.Name), "1", 0, "L", true, 0, "")
		r.pdf.CellFormat(widths[1], 5, budget, "1", 0, "R", true, 0, "")
		r.pdf.CellFormat(widths[2], 5, consumption, "1", 0, "R", true, 0, "")
		r.pdf.Ln(-1)
	}
}

func (r *PDFSessionReport) drawLegend(chart ProspectiveChart) {
	r.pdf.SetFont("Arial", "", 8)
	for _, area := range chart.Areas {
		red, green, blue := hexToRGB(area.Color)
		r.pdf.SetFillColor(red, green, blue)
		r.pdf.Rect(r.pdf.GetX(), r.pdf.GetY()+1, 4, 3, "F")
		r.pdf.SetX(r.pdf.GetX() + 5)
		r.pdf.SetTextColor(50, 50, 50)
		label := r.text(area.Name)
		r.pdf.CellFormat(r.pdf.GetStringWidth(label)+6, 5, label, "", 0, "L", false, 0, "")
	}
	r.pdf.Ln(-1)
}

func (r *PDFSessionReport) drawErrors(errs []ChartError) {
	if len(errs) == 0 {
		return
	}
	r.pdf.SetFont("Arial", "I", 8)
	r.pdf.SetTextColor(180, 0, 0)
	for _, e := range errs {
		r.pdf.MultiCell(contentWidth, 4, r.text(fmt.Sprintf("%s : %s", e.Element, e.Message)), "", "L", false)
	}
}

func (r *PDFSessionReport) drawSectionHeader(title string) {
	r.pdf.SetFont("Arial", "B", 16)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 10, r.text(title), "", 1, "L", false, 0, "")
	r.pdf.SetDrawColor(0, 51, 102)
	r.pdf.Line(marginLeft, r.pdf.GetY(), marginLeft+contentWidth, r.pdf.GetY())
	r.pdf.Ln(5)
}

// hexToRGB parses #rrggbb; anything else is drawn in grey
func hexToRGB(color string) (int, int, int) {
	if len(color) != 7 || color[0] != '#' {
		return 128, 128, 128
	}
	v, err := strconv.ParseUint(color[1:], 16, 32)
	if err != nil {
		return 128, 128, 128
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
