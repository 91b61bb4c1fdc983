package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "Fresque AéroMAPS", cfg.Title)
	assert.Len(t, cfg.Levers, 9)
	assert.Len(t, cfg.Aspects, 5)
	assert.Len(t, cfg.Bars, 4)
	assert.Equal(t, 3, cfg.Groups.Count)
	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.Equal(t, Named(HistoricYears), cfg.Lines.Historic.YearRange)
	assert.Equal(t, AtYear(2050), cfg.Bars[1].Consumption.YearRange)
	assert.True(t, cfg.Aspects[4].IsTokenList())

	// percentages are stripped before decoding
	assert.Equal(t, Scalar(3), cfg.Baseline[ParamCAGRMediumRange])

	lever, ok := mustCatalog(t, cfg).Lookup("carbon_budget")
	require.True(t, ok)
	assert.False(t, lever.IsImplemented())
}

func mustCatalog(t *testing.T, cfg *Config) *Catalog {
	t.Helper()
	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	return catalog
}

func TestParseConfig_AppliesDefaults(t *testing.T) {
	base := loadTestConfig(t)
	base.Title = ""
	base.Groups = GroupsConfig{}
	base.Cache = CacheConfig{}
	base.Server = ServerConfig{}

	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(base, filename))
	cfg, err := LoadConfig(filename)
	require.NoError(t, err)

	assert.Equal(t, "Fresque AéroMAPS", cfg.Title)
	assert.Equal(t, DefaultGroups, cfg.Groups.Count)
	assert.Equal(t, 100.0, cfg.Groups.MinimalLabelDistance)
	assert.Equal(t, DefaultCacheCapacity, cfg.Cache.Capacity)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	original := loadTestConfig(t)
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(original, filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Fresque AéroMAPS configuration"))

	loaded, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, original.Levers, loaded.Levers)
	assert.Equal(t, original.Baseline, loaded.Baseline)
	assert.Equal(t, original.Lines, loaded.Lines)
	assert.Equal(t, original.Aspects, loaded.Aspects)
	assert.Equal(t, original.Bars, loaded.Bars)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		section string
	}{
		{"unknown mutated parameter", func(c *Config) {
			c.Levers[0].Mutations[0].Parameter = "cagr_spaceships"
		}, "levers"},
		{"bad guard", func(c *Config) {
			c.Levers[3].Mutations[0].WhenSelected = []string{"nobody"}
		}, "levers"},
		{"mutation values do not fit the baseline years", func(c *Config) {
			c.Levers[2].Mutations[0].Value = PiecewiseValue{Values: []float64{1, 2}}
		}, "levers"},
		{"missing model parameter", func(c *Config) {
			delete(c.Baseline, ParamCAGRFreight)
		}, "baseline"},
		{"broken baseline", func(c *Config) {
			c.Baseline[ParamBiofuelShare] = PiecewiseValue{Years: []int{2050, 2020}, Values: []float64{1, 2}}
		}, "baseline"},
		{"line without a year range", func(c *Config) {
			c.Lines.NoAspect.YearRange = YearSelector{}
		}, "lines.no_aspect"},
		{"line with a single year", func(c *Config) {
			c.Lines.Historic.YearRange = AtYear(2019)
		}, "lines.historic"},
		{"malformed aspect", func(c *Config) {
			c.Aspects[0].Expression = "vector_outputs('a') +"
		}, "aspects"},
		{"aspect with mixed token ranges", func(c *Config) {
			c.Aspects[4].Tokens = []FormulaToken{
				TokenRef("a", TableVectorOutputs, FullYears), TokenOp("-"), TokenRef("b", TableVectorOutputs, HistoricYears),
			}
		}, "aspects"},
		{"bar reading a table without a year", func(c *Config) {
			c.Bars[1].Consumption.YearRange = YearSelector{}
		}, "bars"},
		{"unnamed bar", func(c *Config) {
			c.Bars[0].Name = ""
		}, "bars"},
		{"too many groups", func(c *Config) {
			c.Groups.Count = MaxGroups + 1
		}, "groups"},
		{"negative cache", func(c *Config) {
			c.Cache.Capacity = -1
		}, "cache"},
		{"duplicate lever", func(c *Config) {
			c.Levers = append(c.Levers, c.Levers[0])
		}, "levers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadTestConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.section, configErr.Section, "error: %v", err)
		})
	}
}

func TestParseConfig_InvalidYearRange(t *testing.T) {
	_, err := ParseConfig([]byte(`
lines:
  historic:
    expression: climate_outputs('co2_emissions')
    year_range: next_decade
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid year range")
}

func TestPreprocessPercentages(t *testing.T) {
	assert.Equal(t, "rate: 3.5", preprocessPercentages("rate: 3.5%"))
	assert.Equal(t, "values: [0, 4.8, 24]", preprocessPercentages("values: [0%, 4.8%, 24%]"))
	assert.Equal(t, "name: Sobriété 100%", preprocessPercentages("name: Sobriété 100%"))
	assert.Equal(t, "  - value: -2 # cut\n", preprocessPercentages("  - value: -2% # cut\n"))
	assert.Equal(t, "- 12.5", preprocessPercentages("- 12.5%"))

	tests := []string{
		"description: cuts traffic, 5% less",
		"description: [5% less, 3%]",
		"note: 5%, then 3%",
		"title: 40% by 2050",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, text, preprocessPercentages(text))
		})
	}
}

func TestParseConfig_KeepsPercentInText(t *testing.T) {
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)
	cfg.Levers[0].Description = "Cuts traffic growth, 5% less each year"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Cuts traffic growth, 5% less each year", loaded.Levers[0].Description)
}

func TestFormulaDefinition_Validate(t *testing.T) {
	assert.Error(t, FormulaDefinition{}.Validate())
	assert.Error(t, FormulaDefinition{
		Expression: "1",
		Tokens:     []FormulaToken{TokenRef("a", TableVectorOutputs, FullYears)},
	}.Validate())
	assert.NoError(t, FormulaDefinition{Expression: "float_outputs('budget') * 2"}.Validate())
	assert.NoError(t, FormulaDefinition{Expression: "vector_outputs('a')", YearRange: AtYear(2050)}.Validate())

	err := FormulaDefinition{Expression: "vector_outputs('a')"}.Validate()
	requireFormulaKind(t, err, InvalidYearRange)
}
