package main

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default-config.yaml
var defaultConfigYAML string

// Limits on the number of facilitated groups
const (
	MinGroups     = 1
	MaxGroups     = 10
	DefaultGroups = 3
)

// FormulaDefinition describes one drawable line, area or bar value.
// Exactly one of Expression and Tokens is set.
type FormulaDefinition struct {
	Name       string         `yaml:"name,omitempty" json:"name,omitempty"`
	Expression string         `yaml:"expression,omitempty" json:"expression,omitempty"`
	Tokens     []FormulaToken `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	YearRange  YearSelector   `yaml:"year_range,omitempty" json:"year_range"`
	Color      string         `yaml:"color,omitempty" json:"color,omitempty"`
}

// IsTokenList reports whether the formula uses the token-list form
func (f FormulaDefinition) IsTokenList() bool {
	return len(f.Tokens) > 0
}

// Source returns a printable form of the formula
func (f FormulaDefinition) Source() string {
	if f.IsTokenList() {
		return renderTokens(f.Tokens)
	}
	return f.Expression
}

// Validate checks the formula without a result bundle
func (f FormulaDefinition) Validate() error {
	switch {
	case f.Expression != "" && f.IsTokenList():
		return fmt.Errorf("both expression and tokens are set")
	case f.IsTokenList():
		_, err := ValidateTokens(f.Tokens)
		return err
	case f.Expression == "":
		return fmt.Errorf("no expression given")
	}
	compiled, err := CompileFormula(f.Expression)
	if err != nil {
		return err
	}
	if f.YearRange.IsZero() && compiled.UsesTables() {
		return formulaErrorf(InvalidYearRange, f.Expression, "reads a table but has no year_range")
	}
	return nil
}

// Evaluate computes the formula against a bundle. Token lists always give a series.
func (f FormulaDefinition) Evaluate(bundle *ResultBundle) (Value, error) {
	if f.IsTokenList() {
		s, err := EvaluateTokens(bundle, f.Tokens)
		if err != nil {
			return Value{}, err
		}
		return SeriesValue(s), nil
	}
	return Evaluate(bundle, f.Expression, f.YearRange)
}

// EvaluateSeries computes the formula as a series over its year range
func (f FormulaDefinition) EvaluateSeries(bundle *ResultBundle) (Series, error) {
	if f.IsTokenList() {
		return EvaluateTokens(bundle, f.Tokens)
	}
	return EvaluateSeries(bundle, f.Expression, f.YearRange)
}

// LinesConfig holds the three reference lines of the prospective scenario chart
type LinesConfig struct {
	Historic   FormulaDefinition `yaml:"historic" json:"historic"`
	NoAspect   FormulaDefinition `yaml:"no_aspect" json:"no_aspect"`
	AllAspects FormulaDefinition `yaml:"all_aspects" json:"all_aspects"`
}

// BarDefinition pairs a budget and a consumption formula for one resource
type BarDefinition struct {
	Name        string            `yaml:"name" json:"name"`
	Budget      FormulaDefinition `yaml:"output_formula_BUDGET" json:"output_formula_BUDGET"`
	Consumption FormulaDefinition `yaml:"output_formula_CONSUMPTION" json:"output_formula_CONSUMPTION"`
}

// GroupsConfig holds facilitation settings
type GroupsConfig struct {
	Count                int     `yaml:"count" json:"count"`
	MinimalLabelDistance float64 `yaml:"minimal_label_distance" json:"minimal_label_distance"`
}

// CacheConfig sizes the scenario cache
type CacheConfig struct {
	Capacity int  `yaml:"capacity" json:"capacity"`
	Shared   bool `yaml:"shared" json:"shared"`
}

// ServerConfig holds web dashboard settings
type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Config holds the complete configuration
type Config struct {
	Title    string              `yaml:"title" json:"title"`
	Levers   []LeverDefinition   `yaml:"levers" json:"levers"`
	Baseline Parameters          `yaml:"baseline" json:"baseline"`
	Lines    LinesConfig         `yaml:"lines" json:"lines"`
	Aspects  []FormulaDefinition `yaml:"aspects" json:"aspects"`
	Bars     []BarDefinition     `yaml:"bars" json:"bars"`
	Groups   GroupsConfig        `yaml:"groups" json:"groups"`
	Cache    CacheConfig         `yaml:"cache" json:"cache"`
	Server   ServerConfig        `yaml:"server" json:"server"`
}

// ApplyDefaults fills unset settings
func (c *Config) ApplyDefaults() {
	if c.Title == "" {
		c.Title = "Fresque AéroMAPS"
	}
	if c.Groups.Count == 0 {
		c.Groups.Count = DefaultGroups
	}
	if c.Groups.MinimalLabelDistance == 0 {
		c.Groups.MinimalLabelDistance = 100
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Baseline == nil {
		c.Baseline = Parameters{}
	}
}

// Validate checks every section and returns the first invalid entry
func (c *Config) Validate() error {
	if _, err := c.Catalog(); err != nil {
		return err
	}
	if err := c.Baseline.Validate(); err != nil {
		return &ConfigError{Section: "baseline", Message: err.Error()}
	}
	for _, name := range ModelParameters {
		if _, ok := c.Baseline[name]; !ok {
			return &ConfigError{Section: "baseline", Entry: name, Message: "parameter is required by the model"}
		}
	}

	ids := make(map[string]bool, len(c.Levers))
	for _, lever := range c.Levers {
		ids[lever.ID] = true
	}
	for _, lever := range c.Levers {
		for _, m := range lever.Mutations {
			current, ok := c.Baseline[m.Parameter]
			if !ok {
				return &ConfigError{Section: "levers", Entry: lever.ID, Message: fmt.Sprintf("unknown parameter %q", m.Parameter)}
			}
			if err := mergePiecewise(current, m.Value).Validate(); err != nil {
				return &ConfigError{Section: "levers", Entry: lever.ID, Message: fmt.Sprintf("parameter %q: %v", m.Parameter, err)}
			}
			for _, guard := range append(append([]string(nil), m.WhenSelected...), m.UnlessSelected...) {
				if !ids[guard] {
					return &ConfigError{Section: "levers", Entry: lever.ID, Message: fmt.Sprintf("guard references unknown lever %q", guard)}
				}
			}
		}
	}

	series := []struct {
		section string
		def     FormulaDefinition
	}{
		{"lines.historic", c.Lines.Historic},
		{"lines.no_aspect", c.Lines.NoAspect},
		{"lines.all_aspects", c.Lines.AllAspects},
	}
	for _, aspect := range c.Aspects {
		series = append(series, struct {
			section string
			def     FormulaDefinition
		}{"aspects", aspect})
	}
	for _, s := range series {
		if err := s.def.Validate(); err != nil {
			return &ConfigError{Section: s.section, Entry: s.def.Name, Message: err.Error()}
		}
		if !s.def.IsTokenList() && s.def.YearRange.Kind != NamedYearRange {
			return &ConfigError{Section: s.section, Entry: s.def.Name, Message: "a chart line needs a named year_range"}
		}
	}

	for _, bar := range c.Bars {
		if bar.Name == "" {
			return &ConfigError{Section: "bars", Message: "bar without a name"}
		}
		if err := bar.Budget.Validate(); err != nil {
			return &ConfigError{Section: "bars", Entry: bar.Name, Message: "budget: " + err.Error()}
		}
		if err := bar.Consumption.Validate(); err != nil {
			return &ConfigError{Section: "bars", Entry: bar.Name, Message: "consumption: " + err.Error()}
		}
	}

	if c.Groups.Count < MinGroups || c.Groups.Count > MaxGroups {
		return &ConfigError{Section: "groups", Message: fmt.Sprintf("count must be between %d and %d", MinGroups, MaxGroups)}
	}
	if c.Cache.Capacity < 0 {
		return &ConfigError{Section: "cache", Message: "capacity must not be negative"}
	}
	return nil
}

// Catalog returns the lever catalog described by the configuration
func (c *Config) Catalog() (*Catalog, error) {
	return NewCatalog(c.Levers)
}

// ParseConfig decodes YAML (or JSON) configuration, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	content := preprocessPercentages(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfig loads configuration from a YAML or JSON file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	// Add a header comment with instructions
	header := []byte(`# Fresque AéroMAPS configuration
# Generated by goFresqueAeroMaps - feel free to edit manually
#
# levers:    policy cards and the model parameters they change
# baseline:  parameters of the reference scenario
# lines:     historic, no-card and all-cards emission lines
# aspects:   stacked areas, one per lever family
# bars:      budget and consumption of each resource
#
# Formulas use + - * / min max and the accessors vector_outputs('name'),
# climate_outputs('name'), float_inputs('name') and float_outputs('name').
# year_range is full_years, historic_years, prospective_years or a year.
#
#   ./goFresqueAeroMaps config validate -c this-file.yaml

`)
	content := append(header, data...)
	return os.WriteFile(filename, content, 0644)
}

// LoadDefaultConfig loads the default configuration from embedded default-config.yaml
func LoadDefaultConfig() (*Config, error) {
	return ParseConfig([]byte(defaultConfigYAML))
}

var (
	percentScalarRe = regexp.MustCompile(`(?m)^(\s*(?:-\s+)?(?:[\w.-]+:\s*)?)(-?\d+(?:\.\d+)?)%(\s*(?:#.*)?)$`)
	percentFlowRe   = regexp.MustCompile(`(?m)^(\s*(?:-\s+)?[\w.-]+:\s*)\[([^\]\n]*)\](\s*(?:#.*)?)$`)
	percentItemRe   = regexp.MustCompile(`^\s*-?\d+(?:\.\d+)?%?\s*$`)
)

// preprocessPercentages strips percent signs like "5%" to "5"; model shares
// and growth rates are expressed in percent. Only whole numeric values are
// rewritten: a scalar such as "rate: 5%" or a flow list of numbers such as
// "[0%, 5%]". Free text like "description: 5% less" is left untouched.
func preprocessPercentages(content string) string {
	content = percentScalarRe.ReplaceAllString(content, "${1}${2}${3}")
	return percentFlowRe.ReplaceAllStringFunc(content, func(line string) string {
		m := percentFlowRe.FindStringSubmatch(line)
		items := strings.Split(m[2], ",")
		for _, item := range items {
			if !percentItemRe.MatchString(item) {
				return line
			}
		}
		return m[1] + "[" + strings.ReplaceAll(m[2], "%", "") + "]" + m[3]
	})
}

// Catalog is the immutable, ordered set of levers. Declaration order is the
// order in which lever mutations are applied.
type Catalog struct {
	levers []LeverDefinition
	index  map[string]int
}

// NewCatalog checks lever ids and builds a catalog
func NewCatalog(levers []LeverDefinition) (*Catalog, error) {
	c := &Catalog{
		levers: make([]LeverDefinition, len(levers)),
		index:  make(map[string]int, len(levers)),
	}
	copy(c.levers, levers)
	for i, lever := range levers {
		if strings.TrimSpace(lever.ID) == "" {
			return nil, &ConfigError{Section: "levers", Message: fmt.Sprintf("lever %d has no id", i+1)}
		}
		if strings.Contains(lever.ID, ",") {
			return nil, &ConfigError{Section: "levers", Entry: lever.ID, Message: "ids must not contain commas"}
		}
		if lever.Name == "" {
			return nil, &ConfigError{Section: "levers", Entry: lever.ID, Message: "lever has no name"}
		}
		if _, dup := c.index[lever.ID]; dup {
			return nil, &ConfigError{Section: "levers", Entry: lever.ID, Message: "duplicate lever id"}
		}
		c.index[lever.ID] = i
	}
	return c, nil
}

// Levers returns the levers in declaration order
func (c *Catalog) Levers() []LeverDefinition {
	return c.levers
}

// Lookup finds a lever by id
func (c *Catalog) Lookup(id string) (LeverDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return LeverDefinition{}, false
	}
	return c.levers[i], true
}

// IDs returns lever ids in declaration order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.levers))
	for i, lever := range c.levers {
		ids[i] = lever.ID
	}
	return ids
}

// Canonical sorts and de-duplicates lever ids. Unknown ids give an
// InvalidLeverError listing all of them.
func (c *Catalog) Canonical(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	var canonical, unknown []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := c.index[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		canonical = append(canonical, id)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &InvalidLeverError{IDs: unknown}
	}
	sort.Strings(canonical)
	return canonical, nil
}
