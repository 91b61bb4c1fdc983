package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configFile string
	verbose    bool
	jsonLogs   bool
)

// rootCmd opens the dashboard window, falling back to the console session
var rootCmd = &cobra.Command{
	Use:   "goFresqueAeroMaps",
	Short: "Aviation decarbonisation scenario dashboard",
	Long: `Fresque AéroMAPS dashboard: groups pick policy cards (sobriety, new
energies, technology, ...), each selection is simulated and the emission
trajectories and resource budgets of every group are compared.

Without a command the dashboard opens in an embedded window. Console builds
(-tags console) start the interactive console session instead.

Configuration:
  Edit config.yaml (or pass --config) to change cards, reference parameters
  and chart formulas. Without a config file the embedded defaults are used.
  Run 'config dump > config.yaml' to start from the defaults.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose, jsonLogs)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dashboard, err := loadDashboard()
		if err != nil {
			return err
		}
		if err := runEmbeddedUI(dashboard); err != nil {
			log.Warn().Err(err).Msg("GUI unavailable, falling back to console mode")
			return NewInteractiveSession(dashboard, os.Stdin, cmd.OutOrStdout()).Run()
		}
		return nil
	},
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the dashboard in an embedded browser window",
	RunE: func(cmd *cobra.Command, args []string) error {
		dashboard, err := loadDashboard()
		if err != nil {
			return err
		}
		return runEmbeddedUI(dashboard)
	},
}

var (
	webAddr      string
	webNoBrowser bool
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the dashboard over HTTP",
	Long: `Serve the dashboard and its JSON API. Prometheus metrics are exposed
on /metrics.

Examples:
  goFresqueAeroMaps web                     Port from config (server.port)
  goFresqueAeroMaps web --addr :0           Auto-assigned port
  goFresqueAeroMaps web --no-browser        Do not open a browser`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dashboard, err := loadDashboard()
		if err != nil {
			return err
		}
		addr := webAddr
		if addr == "" {
			addr = fmt.Sprintf("localhost:%d", dashboard.Config().Server.Port)
		}
		return NewWebServer(dashboard, addr).Start(!webNoBrowser)
	},
}

var (
	leversFlag  string
	computeJSON bool
	computeCSV  string
	computeSave string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute one lever selection and print its emission decomposition",
	Long: `Compute one lever selection. Levers are given by id, comma separated.

Examples:
  goFresqueAeroMaps compute
  goFresqueAeroMaps compute --levers sobriety,technology
  goFresqueAeroMaps compute --levers new_energies --csv out.csv --save bundle.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, engine, err := loadEngine()
		if err != nil {
			return err
		}
		levers, err := engine.Catalog().Canonical(splitLevers(leversFlag))
		if err != nil {
			return err
		}
		bundle, err := engine.Compute(levers)
		if err != nil {
			return err
		}

		if computeSave != "" {
			if err := WriteResultBundle(bundle, computeSave); err != nil {
				return err
			}
			log.Info().Str("file", computeSave).Msg("result bundle saved")
		}
		if computeCSV != "" {
			f, err := os.Create(computeCSV)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := WriteScenarioCSV(f, bundle); err != nil {
				return err
			}
			log.Info().Str("file", computeCSV).Msg("CSV written")
		}

		out := cmd.OutOrStdout()
		if computeJSON {
			metrics, err := MeasureScenario(cfg, levers, bundle)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(APIComputeResponse{
				Levers:      levers,
				Metrics:     metrics,
				Prospective: BuildProspectiveChart(cfg, "Scénario", bundle),
				Bars:        BuildBarChart(cfg, "Scénario", bundle),
			})
		}
		if err := PrintScenarioSummary(out, cfg, "Scénario", levers, bundle); err != nil {
			return err
		}
		PrintBarChart(out, BuildBarChart(cfg, "Scénario", bundle))
		return nil
	},
}

var (
	evalYearRange string
	evalBundle    string
	evalTokens    bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <formula>",
	Short: "Evaluate a formula against a scenario",
	Long: `Evaluate a formula against a computed scenario or a saved bundle.

A formula is an expression such as
  vector_outputs('co2_emissions_including_energy') - vector_outputs('carbon_offset')
or, with --tokens, a YAML token list such as
  "[[co2_emissions, climate_outputs, prospective_years], '-', 5]"

Examples:
  goFresqueAeroMaps eval "float_outputs('aviation_carbon_budget')"
  goFresqueAeroMaps eval --year-range 2050 --levers sobriety "climate_outputs('co2_emissions')"
  goFresqueAeroMaps eval --bundle bundle.json --year-range full_years "vector_outputs('rpk')"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def := FormulaDefinition{Name: "cli"}
		if evalTokens {
			if err := yaml.Unmarshal([]byte(args[0]), &def.Tokens); err != nil {
				return fmt.Errorf("invalid token list: %w", err)
			}
		} else {
			def.Expression = args[0]
		}
		if evalYearRange != "" {
			sel, err := ParseYearSelector(evalYearRange)
			if err != nil {
				return err
			}
			def.YearRange = sel
		}

		var bundle *ResultBundle
		var err error
		if evalBundle != "" {
			bundle, err = LoadResultBundle(evalBundle)
		} else {
			var engine *Engine
			if _, engine, err = loadEngine(); err == nil {
				bundle, err = engine.Compute(splitLevers(leversFlag))
			}
		}
		if err != nil {
			return err
		}

		v, err := def.Evaluate(bundle)
		if err != nil {
			recordFormulaError(err)
			return err
		}
		PrintValue(cmd.OutOrStdout(), v)
		return nil
	},
}

var (
	compareGroups []string
	compareHTML   string
	comparePDF    string
	compareOpen   bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the scenarios of several groups",
	Long: `Compute one scenario per group and compare them with the reference.
Each --group flag gives the cards of one group.

Examples:
  goFresqueAeroMaps compare --group sobriety,modal_shift --group technology
  goFresqueAeroMaps compare --group sobriety --group sobriety --html reports/
  goFresqueAeroMaps compare --group new_energies --pdf session.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dashboard, err := loadDashboard()
		if err != nil {
			return err
		}
		if len(compareGroups) > 0 {
			if err := dashboard.SetGroupCount(len(compareGroups)); err != nil {
				return err
			}
			for i, g := range compareGroups {
				if err := dashboard.Select(i+1, splitLevers(g)); err != nil {
					return fmt.Errorf("group %d: %w", i+1, err)
				}
			}
		}
		view, err := dashboard.View()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, g := range view.Groups {
			if g.Error != "" {
				fmt.Fprintf(out, "\n%s: ⚠️  %s\n", g.Title, g.Error)
				continue
			}
			PrintBarChart(out, g.Bars)
		}
		PrintComparison(out, view.Comparison)

		if compareHTML != "" {
			dir := filepath.Join(compareHTML, time.Now().Format("2006-01-02_1504"))
			index, err := GenerateSessionHTMLReport(dashboard.Config(), view, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nHTML report: %s\n", index)
			if compareOpen {
				openBrowser(index)
			}
		}
		if comparePDF != "" {
			data, err := GenerateSessionPDFReport(dashboard.Config(), view)
			if err != nil {
				return err
			}
			if err := os.WriteFile(comparePDF, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(out, "PDF report: %s\n", comparePDF)
		}
		return nil
	},
}

var (
	impactHTML string
	impactJSON bool
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Measure the impact of every card alone and in pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, engine, err := loadEngine()
		if err != nil {
			return err
		}
		analysis, err := RunImpactAnalysis(cfg, engine)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if impactJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		PrintImpactAnalysis(out, analysis)
		if impactHTML != "" {
			report, err := GenerateImpactReport(cfg, analysis, filepath.Join(impactHTML, "impact_"+analysis.Timestamp))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nImpact report: %s\n", report)
			openBrowser(report)
		}
		stats := engine.CacheStats()
		log.Debug().Uint64("hits", stats.Hits).Uint64("misses", stats.Misses).Int("size", stats.Size).Msg("cache statistics")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate or export configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d cards, %d aspects, %d bars\n",
			configFile, len(cfg.Levers), len(cfg.Aspects), len(cfg.Bars))
		return nil
	},
}

var dumpFormat string

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch strings.ToLower(dumpFormat) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		default:
			return fmt.Errorf("unknown format %q (yaml|json)", dumpFormat)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil {
			return fmt.Errorf("%s already exists", args[0])
		}
		cfg, err := LoadDefaultConfig()
		if err != nil {
			return err
		}
		if err := SaveConfig(cfg, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration written to %s\n", args[0])
		return nil
	},
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run a facilitation session on the console",
	RunE: func(cmd *cobra.Command, args []string) error {
		dashboard, err := loadDashboard()
		if err != nil {
			return err
		}
		return NewInteractiveSession(dashboard, cmd.InOrStdin(), cmd.OutOrStdout()).Run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log as JSON instead of console text")

	webCmd.Flags().StringVar(&webAddr, "addr", "", "Listen address (default localhost:<server.port>, :0 for auto port)")
	webCmd.Flags().BoolVar(&webNoBrowser, "no-browser", false, "Do not open a browser")

	computeCmd.Flags().StringVarP(&leversFlag, "levers", "l", "", "Comma separated lever ids")
	computeCmd.Flags().BoolVar(&computeJSON, "json", false, "Print charts and metrics as JSON")
	computeCmd.Flags().StringVar(&computeCSV, "csv", "", "Write every output column to a CSV file")
	computeCmd.Flags().StringVar(&computeSave, "save", "", "Save the result bundle as JSON")

	evalCmd.Flags().StringVarP(&leversFlag, "levers", "l", "", "Comma separated lever ids")
	evalCmd.Flags().StringVarP(&evalYearRange, "year-range", "y", "", "full_years, historic_years, prospective_years or a year")
	evalCmd.Flags().StringVar(&evalBundle, "bundle", "", "Evaluate against a saved result bundle")
	evalCmd.Flags().BoolVar(&evalTokens, "tokens", false, "Formula is a YAML token list")

	compareCmd.Flags().StringArrayVarP(&compareGroups, "group", "g", nil, "Cards of one group (repeat per group)")
	compareCmd.Flags().StringVar(&compareHTML, "html", "", "Write an HTML report in a dated folder under this directory")
	compareCmd.Flags().StringVar(&comparePDF, "pdf", "", "Write a PDF report to this file")
	compareCmd.Flags().BoolVar(&compareOpen, "open", false, "Open the HTML report in a browser")

	impactCmd.Flags().StringVar(&impactHTML, "html", "", "Write an HTML report under this directory")
	impactCmd.Flags().BoolVar(&impactJSON, "json", false, "Print the analysis as JSON")

	configDumpCmd.Flags().StringVar(&dumpFormat, "format", "yaml", "Output format (yaml|json)")
	configCmd.AddCommand(configValidateCmd, configDumpCmd, configInitCmd)

	rootCmd.AddCommand(uiCmd, webCmd, computeCmd, evalCmd, compareCmd, impactCmd, configCmd, interactiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setupLogging configures the global zerolog logger
func setupLogging(debug, asJSON bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if !asJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// loadConfig reads --config, or the embedded defaults when the file does not exist
func loadConfig() (*Config, error) {
	cfg, err := LoadConfig(configFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("file", configFile).Msg("config file not found, using embedded defaults")
		return LoadDefaultConfig()
	}
	return cfg, err
}

func loadEngine() (*Config, *Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	engine, err := NewEngineFromConfig(cfg, DefaultAviationModel(), WithName("cli"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, engine, nil
}

func loadDashboard() (*Dashboard, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return NewDashboard(cfg, DefaultAviationModel())
}

// splitLevers parses a comma separated lever list
func splitLevers(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// openBrowser opens a file or URL in the default browser
func openBrowser(target string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		log.Warn().Str("os", runtime.GOOS).Msg("cannot open browser")
		return
	}

	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Msg("error opening browser")
	}
}
