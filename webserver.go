package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// WebServer serves the dashboard UI and its JSON API
type WebServer struct {
	dashboard *Dashboard
	addr      string
	exportDir string
}

// NewWebServer creates a new web server instance
func NewWebServer(dashboard *Dashboard, addr string) *WebServer {
	return &WebServer{
		dashboard: dashboard,
		addr:      addr,
		exportDir: "exports",
	}
}

// APIResponse is the envelope of every JSON answer
type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// APIGroupsRequest changes the number of groups
type APIGroupsRequest struct {
	Count int `json:"count"`
}

// APISelectRequest sets the cards of one group
type APISelectRequest struct {
	Group  int      `json:"group"`
	Levers []string `json:"levers"`
}

// APIComputeRequest computes a single lever selection
type APIComputeRequest struct {
	Levers []string `json:"levers"`
}

// APIComputeResponse is a computed scenario with its charts
type APIComputeResponse struct {
	Levers      []string         `json:"levers"`
	Metrics     ScenarioMetrics  `json:"metrics"`
	Prospective ProspectiveChart `json:"prospective"`
	Bars        BarChart         `json:"bars"`
}

// APIEvaluateRequest evaluates a formula against a lever selection
type APIEvaluateRequest struct {
	Levers     []string       `json:"levers"`
	Expression string         `json:"expression,omitempty"`
	Tokens     []FormulaToken `json:"tokens,omitempty"`
	YearRange  YearSelector   `json:"year_range"`
}

// APIExportRequest exports one lever selection, or the whole session when Levers is nil
type APIExportRequest struct {
	Levers   []string `json:"levers"`
	Filename string   `json:"filename"`
}

// ExportResponse reports where an export was written
type ExportResponse struct {
	FilePath string `json:"file_path"`
	Message  string `json:"message"`
}

// Handler returns the routes of the dashboard, instrumented with metrics
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", instrument("index", ws.handleIndex))
	mux.HandleFunc("/api/config", instrument("config", ws.handleGetConfig))
	mux.HandleFunc("/api/levers", instrument("levers", ws.handleLevers))
	mux.HandleFunc("/api/groups", instrument("groups", ws.handleGroups))
	mux.HandleFunc("/api/groups/select", instrument("select", ws.handleSelect))
	mux.HandleFunc("/api/dashboard", instrument("dashboard", ws.handleDashboard))
	mux.HandleFunc("/api/compute", instrument("compute", ws.handleCompute))
	mux.HandleFunc("/api/evaluate", instrument("evaluate", ws.handleEvaluate))
	mux.HandleFunc("/api/impact", instrument("impact", ws.handleImpact))
	mux.HandleFunc("/api/cache", instrument("cache", ws.handleCacheStats))
	mux.HandleFunc("/api/export-csv", instrument("export-csv", ws.handleExportCSV))
	mux.HandleFunc("/api/export-pdf", instrument("export-pdf", ws.handleExportPDF))
	mux.HandleFunc("/api/download-pdf", instrument("download-pdf", ws.handleDownloadPDF))
	mux.Handle("/metrics", MetricsHandler())
	return mux
}

// listen opens the listener and derives the browser URL
func (ws *WebServer) listen() (net.Listener, string, error) {
	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return nil, "", err
	}
	actualAddr := listener.Addr().String()
	url := fmt.Sprintf("http://%s", actualAddr)
	// If listening on all interfaces, use localhost for the URL
	if strings.HasPrefix(actualAddr, ":") || strings.HasPrefix(actualAddr, "0.0.0.0:") || strings.HasPrefix(actualAddr, "[::]:") {
		port := actualAddr[strings.LastIndex(actualAddr, ":")+1:]
		url = fmt.Sprintf("http://localhost:%s", port)
	}
	return listener, url, nil
}

// Start serves until the process exits, opening the dashboard in a browser
func (ws *WebServer) Start(openInBrowser bool) error {
	listener, url, err := ws.listen()
	if err != nil {
		return err
	}
	log.Info().Str("addr", listener.Addr().String()).Str("url", url).Msg("starting web server")
	if openInBrowser {
		go openBrowser(url)
	}
	return http.Serve(listener, ws.Handler())
}

// StartForEmbedded starts the server without blocking and returns its URL
// and a cleanup function that shuts it down.
func (ws *WebServer) StartForEmbedded() (url string, cleanup func(), err error) {
	listener, url, err := ws.listen()
	if err != nil {
		return "", nil, err
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("starting embedded web server")

	server := &http.Server{Handler: ws.Handler()}
	go func() {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	cleanup = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	return url, cleanup, nil
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// sendJSONError maps the error taxonomy onto HTTP statuses
func sendJSONError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	kind := "request"
	var leverErr *InvalidLeverError
	var simErr *SimulationFailure
	var formulaErr *FormulaError
	var configErr *ConfigError
	var validationErr ValidationError
	switch {
	case errors.As(err, &leverErr):
		kind = "invalid_lever"
	case errors.As(err, &simErr):
		status, kind = http.StatusInternalServerError, "simulation_failure"
	case errors.As(err, &formulaErr):
		status, kind = http.StatusUnprocessableEntity, formulaErr.Kind.String()
	case errors.As(err, &configErr):
		status, kind = http.StatusUnprocessableEntity, "config"
	case errors.As(err, &validationErr):
		kind = "validation"
	}
	writeJSON(w, status, APIResponse{Error: err.Error(), Kind: kind})
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "Method not allowed"})
	return false
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleIndex serves the main web UI
func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, webUIHTML)
}

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sendJSON(w, ws.dashboard.Config())
}

func (ws *WebServer) handleLevers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sendJSON(w, ws.dashboard.Catalog().Levers())
}

// groupsState lists the current selection of every group
func (ws *WebServer) groupsState() []APISelectRequest {
	n := ws.dashboard.GroupCount()
	groups := make([]APISelectRequest, 0, n)
	for g := 1; g <= n; g++ {
		levers, err := ws.dashboard.Selection(g)
		if err != nil {
			continue
		}
		groups = append(groups, APISelectRequest{Group: g, Levers: levers})
	}
	return groups
}

func (ws *WebServer) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		var req APIGroupsRequest
		if err := decodeBody(r, &req); err != nil {
			sendJSONError(w, err)
			return
		}
		if err := validateGroupCount(req.Count); err != nil {
			sendJSONError(w, err)
			return
		}
		if err := ws.dashboard.SetGroupCount(req.Count); err != nil {
			sendJSONError(w, err)
			return
		}
	}
	sendJSON(w, ws.groupsState())
}

func (ws *WebServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req APISelectRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, err)
		return
	}
	if err := ws.dashboard.Select(req.Group, req.Levers); err != nil {
		sendJSONError(w, err)
		return
	}
	sendJSON(w, ws.groupsState())
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	view, err := ws.dashboard.View()
	if err != nil {
		sendJSONError(w, err)
		return
	}
	sendJSON(w, view)
}

func (ws *WebServer) handleCompute(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req APIComputeRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, err)
		return
	}
	levers, err := ws.dashboard.Catalog().Canonical(req.Levers)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	bundle, err := ws.dashboard.Scenario(levers)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	cfg := ws.dashboard.Config()
	metrics, err := MeasureScenario(cfg, levers, bundle)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	title := "Scénario personnalisé"
	sendJSON(w, APIComputeResponse{
		Levers:      levers,
		Metrics:     metrics,
		Prospective: BuildProspectiveChart(cfg, title, bundle),
		Bars:        BuildBarChart(cfg, title, bundle),
	})
}

func (ws *WebServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req APIEvaluateRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, err)
		return
	}
	def := FormulaDefinition{Name: "api", Expression: req.Expression, Tokens: req.Tokens, YearRange: req.YearRange}
	if err := def.Validate(); err != nil {
		sendJSONError(w, err)
		return
	}
	bundle, err := ws.dashboard.Scenario(req.Levers)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	v, err := def.Evaluate(bundle)
	if err != nil {
		recordFormulaError(err)
		sendJSONError(w, err)
		return
	}
	sendJSON(w, v)
}

func (ws *WebServer) handleImpact(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	analysis, err := RunImpactAnalysis(ws.dashboard.Config(), ws.dashboard.Engines()[0])
	if err != nil {
		sendJSONError(w, err)
		return
	}
	sendJSON(w, analysis)
}

func (ws *WebServer) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats := make(map[string]CacheStats)
	for _, e := range ws.dashboard.Engines() {
		stats[e.Name()] = e.CacheStats()
	}
	sendJSON(w, stats)
}

// writeExport stores content under the export directory and returns its absolute path
func (ws *WebServer) writeExport(filename string, content []byte) (string, error) {
	if err := os.MkdirAll(ws.exportDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create exports directory: %w", err)
	}
	filePath := filepath.Join(ws.exportDir, filepath.Base(filename))
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		absPath = filePath
	}
	return absPath, nil
}

func (ws *WebServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req APIExportRequest
	if err := decodeBody(r, &req); err != nil {
		sendJSONError(w, err)
		return
	}
	bundle, err := ws.dashboard.Scenario(req.Levers)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteScenarioCSV(&buf, bundle); err != nil {
		sendJSONError(w, err)
		return
	}
	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("fresque-aeromaps-%s.csv", time.Now().Format("2006-01-02-150405"))
	}
	path, err := ws.writeExport(filename, buf.Bytes())
	if err != nil {
		sendJSONError(w, err)
		return
	}
	sendJSON(w, ExportResponse{FilePath: path, Message: fmt.Sprintf("CSV saved to %s", path)})
}

// sessionPDF renders the whole session as a PDF document
func (ws *WebServer) sessionPDF() ([]byte, error) {
	view, err := ws.dashboard.View()
	if err != nil {
		return nil, err
	}
	return GenerateSessionPDFReport(ws.dashboard.Config(), view)
}

func (ws *WebServer) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	pdfBytes, err := ws.sessionPDF()
	if err != nil {
		sendJSONError(w, err)
		return
	}
	filename := fmt.Sprintf("fresque-aeromaps-%s.pdf", time.Now().Format("2006-01-02-150405"))
	path, err := ws.writeExport(filename, pdfBytes)
	if err != nil {
		sendJSONError(w, err)
		return
	}
	sendJSON(w, ExportResponse{FilePath: path, Message: fmt.Sprintf("PDF saved to %s", path)})
}

// handleDownloadPDF returns the PDF content directly for browser download
func (ws *WebServer) handleDownloadPDF(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	pdfBytes, err := ws.sessionPDF()
	if err != nil {
		sendJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"fresque-aeromaps.pdf\"")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.Write(pdfBytes)
}

// webUIHTML is the embedded dashboard page
const webUIHTML = `<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Fresque AéroMAPS</title>
    <style>
        :root {
            --primary: #2563eb;
            --danger: #dc2626;
            --bg: #f1f5f9;
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
            padding: 20px;
        }
        h1 { margin-bottom: 16px; }
        .toolbar { display: flex; gap: 12px; align-items: center; margin-bottom: 16px; flex-wrap: wrap; }
        .toolbar button { background: var(--primary); color: white; border: 0; padding: 8px 14px; border-radius: 6px; cursor: pointer; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 16px; }
        .card { background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px; padding: 16px; }
        .card h2 { font-size: 16px; margin-bottom: 8px; }
        .levers { display: flex; flex-wrap: wrap; gap: 6px; margin-bottom: 8px; }
        .levers label { font-size: 12px; border: 1px solid var(--border); border-radius: 4px; padding: 2px 6px; }
        .error { color: var(--danger); font-size: 12px; }
        .muted { color: var(--text-muted); font-size: 12px; }
        svg { width: 100%; height: 260px; }
    </style>
</head>
<body>
    <h1 id="title">Fresque AéroMAPS</h1>
    <div class="toolbar">
        <label>Groupes <input id="group-count" type="number" min="1" max="10" value="3" style="width: 60px"></label>
        <button onclick="setGroups()">Appliquer</button>
        <button onclick="refresh()">Recalculer</button>
        <button onclick="exportPDF()">Exporter PDF</button>
        <span id="status" class="muted"></span>
    </div>
    <div class="card" style="margin-bottom: 16px">
        <h2>Comparaison des groupes</h2>
        <svg id="comparison"></svg>
    </div>
    <div id="groups" class="grid"></div>

    <script>
        let levers = [];

        async function api(path, body) {
            const opts = body === undefined ? {} : {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body)
            };
            const res = await fetch(path, opts);
            const data = await res.json();
            if (!data.success) throw new Error(data.error);
            return data.data;
        }

        function setStatus(text) {
            document.getElementById('status').textContent = text;
        }

        function polyline(series, color, scale, w, h) {
            if (!series || !series.years || series.years.length === 0) return '';
            const x0 = series.years[0], x1 = 2050;
            const pts = series.years.map((y, i) => {
                const x = (y - 2000) / (x1 - 2000) * w;
                const v = h - (series.values[i] - scale.min) / ((scale.max - scale.min) || 1) * h;
                return x.toFixed(1) + ',' + v.toFixed(1);
            });
            return '<polyline fill="none" stroke="' + color + '" stroke-width="2" points="' + pts.join(' ') + '"/>';
        }

        function area(a, scale, w, h) {
            if (a.failed || !a.upper.years) return '';
            const px = (y) => ((y - 2000) / 50 * w).toFixed(1);
            const py = (v) => (h - (v - scale.min) / ((scale.max - scale.min) || 1) * h).toFixed(1);
            const top = a.upper.years.map((y, i) => px(y) + ',' + py(a.upper.values[i]));
            const bottom = a.lower.years.map((y, i) => px(y) + ',' + py(a.lower.values[i])).reverse();
            return '<polygon fill="' + a.color + '" fill-opacity="0.6" points="' + top.concat(bottom).join(' ') + '"><title>' + a.name + '</title></polygon>';
        }

        function drawProspective(svg, chart, scale) {
            const w = svg.clientWidth || 400, h = 240;
            let html = chart.areas.map(a => area(a, scale, w, h)).join('');
            [chart.historic, chart.no_aspect, chart.all_aspects].forEach(l => html += polyline(l.series, l.color, scale, w, h));
            svg.innerHTML = html;
        }

        function drawComparison(chart) {
            const svg = document.getElementById('comparison');
            const w = svg.clientWidth || 800, h = 240;
            let min = Infinity, max = -Infinity;
            chart.lines.forEach(l => (l.series.values || []).forEach(v => { min = Math.min(min, v); max = Math.max(max, v); }));
            const scale = { min: Math.min(0, min), max: max };
            let html = chart.lines.map(l => polyline(l.series, l.color, scale, w, h)).join('');
            chart.lines.forEach((l, i) => {
                const label = chart.end_labels[i] ? ' - ' + chart.end_labels[i] : '';
                html += '<text x="10" y="' + (14 + i * 14) + '" font-size="11" fill="' + l.color + '">' + l.label + label + '</text>';
            });
            svg.innerHTML = html;
        }

        function groupCard(g, scale) {
            const div = document.createElement('div');
            div.className = 'card';
            const boxes = levers.map(l => '<label><input type="checkbox" data-group="' + g.index + '" value="' + l.id + '"' +
                (g.levers && g.levers.includes(l.id) ? ' checked' : '') + '> ' + l.name + '</label>').join('');
            div.innerHTML = '<h2>' + g.title + '</h2><div class="levers">' + boxes + '</div>' +
                (g.error ? '<div class="error">' + g.error + '</div>' : '<svg></svg>');
            div.querySelectorAll('input').forEach(cb => cb.addEventListener('change', () => select(g.index)));
            if (!g.error) drawProspective(div.querySelector('svg'), g.prospective, scale);
            return div;
        }

        async function select(group) {
            const ids = Array.from(document.querySelectorAll('input[data-group="' + group + '"]:checked')).map(cb => cb.value);
            try {
                await api('/api/groups/select', { group: group, levers: ids });
                await refresh();
            } catch (err) {
                setStatus('Erreur: ' + err.message);
            }
        }

        async function setGroups() {
            const count = parseInt(document.getElementById('group-count').value, 10);
            try {
                await api('/api/groups', { count: count });
                await refresh();
            } catch (err) {
                setStatus('Erreur: ' + err.message);
            }
        }

        async function refresh() {
            setStatus('Calcul en cours...');
            try {
                const view = await api('/api/dashboard');
                const container = document.getElementById('groups');
                container.innerHTML = '';
                view.groups.forEach(g => container.appendChild(groupCard(g, view.prospective_scale)));
                drawComparison(view.comparison);
                document.getElementById('group-count').value = view.groups.length;
                setStatus('');
            } catch (err) {
                setStatus('Erreur: ' + err.message);
            }
        }

        async function exportPDF() {
            try {
                const res = await api('/api/export-pdf', {});
                setStatus(res.message);
            } catch (err) {
                setStatus('Erreur: ' + err.message);
            }
        }

        (async () => {
            const cfg = await api('/api/config');
            document.getElementById('title').textContent = cfg.title || 'Fresque AéroMAPS';
            levers = await api('/api/levers');
            await refresh();
        })();
    </script>
</body>
</html>
`
