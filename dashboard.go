package main

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Group is one facilitated team with its own engine and card selection
type Group struct {
	Index  int
	Engine *Engine
	Levers []string
}

// Title returns the chart title of the group
func (g *Group) Title() string {
	return fmt.Sprintf("Scénario du groupe %d", g.Index)
}

// Dashboard holds the reference scenario and the groups of a session
type Dashboard struct {
	mu        sync.Mutex
	cfg       *Config
	sim       Simulator
	catalog   *Catalog
	shared    *ScenarioCache
	reference *Engine
	groups    []*Group
}

// GroupView is everything displayed for one group
type GroupView struct {
	Index       int              `json:"index"`
	Title       string           `json:"title"`
	Levers      []string         `json:"levers"`
	Prospective ProspectiveChart `json:"prospective"`
	Bars        BarChart         `json:"bars"`
	Error       string           `json:"error,omitempty"`
}

// DashboardView is a full render of the session
type DashboardView struct {
	Reference        GroupView       `json:"reference"`
	Groups           []GroupView     `json:"groups"`
	Comparison       ComparisonChart `json:"comparison"`
	ProspectiveScale Scale           `json:"prospective_scale"`
	BarScale         Scale           `json:"bar_scale"`
}

// NewDashboard creates a session with cfg.Groups.Count empty groups
func NewDashboard(cfg *Config, sim Simulator) (*Dashboard, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	d := &Dashboard{cfg: cfg, sim: sim, catalog: catalog}
	if cfg.Cache.Shared {
		d.shared = NewSharedScenarioCache(cfg.Cache.Capacity)
	}
	d.reference = d.newEngine("reference")
	if err := d.SetGroupCount(cfg.Groups.Count); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dashboard) newEngine(name string) *Engine {
	opts := []EngineOption{WithName(name)}
	if d.shared != nil {
		opts = append(opts, WithCache(d.shared))
	} else {
		opts = append(opts, WithCacheCapacity(d.cfg.Cache.Capacity))
	}
	return NewEngine(d.catalog, NewProcess(d.sim, d.cfg.Baseline), opts...)
}

// Config returns the session configuration
func (d *Dashboard) Config() *Config {
	return d.cfg
}

// Catalog returns the lever catalog
func (d *Dashboard) Catalog() *Catalog {
	return d.catalog
}

// GroupCount returns the number of groups
func (d *Dashboard) GroupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}

// SetGroupCount adds or removes groups; existing groups keep their selection and cache
func (d *Dashboard) SetGroupCount(n int) error {
	if n < MinGroups || n > MaxGroups {
		return fmt.Errorf("le nombre de groupes doit être un entier entre %d et %d", MinGroups, MaxGroups)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.groups) < n {
		index := len(d.groups) + 1
		d.groups = append(d.groups, &Group{Index: index, Engine: d.newEngine(fmt.Sprintf("group-%d", index))})
	}
	d.groups = d.groups[:n]
	return nil
}

// Select sets the cards of a group (1-based)
func (d *Dashboard) Select(group int, levers []string) error {
	canonical, err := d.catalog.Canonical(levers)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	g, err := d.group(group)
	if err != nil {
		return err
	}
	g.Levers = canonical
	log.Debug().Str("component", "dashboard").Int("group", group).Strs("levers", canonical).Msg("selection changed")
	return nil
}

// Selection returns the cards of a group (1-based)
func (d *Dashboard) Selection(group int) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, err := d.group(group)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g.Levers...), nil
}

func (d *Dashboard) group(index int) (*Group, error) {
	if index < 1 || index > len(d.groups) {
		return nil, fmt.Errorf("group %d does not exist (1-%d)", index, len(d.groups))
	}
	return d.groups[index-1], nil
}

// Reference computes the reference scenario
func (d *Dashboard) Reference() (*ResultBundle, error) {
	return d.reference.Compute(nil)
}

// Scenario computes an arbitrary lever selection on the reference engine
func (d *Dashboard) Scenario(levers []string) (*ResultBundle, error) {
	return d.reference.Compute(levers)
}

// GroupResult computes the scenario of a group
func (d *Dashboard) GroupResult(group int) (*ResultBundle, error) {
	d.mu.Lock()
	g, err := d.group(group)
	var levers []string
	if err == nil {
		levers = append(levers, g.Levers...)
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Engine.Compute(levers)
}

// Engines returns the reference engine followed by the group engines
func (d *Dashboard) Engines() []*Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	engines := []*Engine{d.reference}
	for _, g := range d.groups {
		engines = append(engines, g.Engine)
	}
	return engines
}

// View computes every scenario and builds all charts. A group whose
// simulation fails is reported in its view and left out of the comparison.
func (d *Dashboard) View() (*DashboardView, error) {
	reference, err := d.Reference()
	if err != nil {
		return nil, err
	}
	view := &DashboardView{
		Reference: GroupView{
			Title:       "Scénario de référence",
			Prospective: BuildProspectiveChart(d.cfg, "Scénario de référence", reference),
			Bars:        BuildBarChart(d.cfg, "Scénario de référence", reference),
		},
	}

	type groupSnapshot struct {
		index  int
		title  string
		engine *Engine
		levers []string
	}
	d.mu.Lock()
	snapshots := make([]groupSnapshot, len(d.groups))
	for i, g := range d.groups {
		snapshots[i] = groupSnapshot{index: g.Index, title: g.Title(), engine: g.Engine, levers: append([]string(nil), g.Levers...)}
	}
	d.mu.Unlock()

	results := make([]GroupBundle, 0, len(snapshots))
	prospective := []ProspectiveChart{view.Reference.Prospective}
	bars := []BarChart{view.Reference.Bars}
	for _, g := range snapshots {
		gv := GroupView{Index: g.index, Title: g.title, Levers: append([]string(nil), g.levers...)}
		bundle, err := g.engine.Compute(g.levers)
		results = append(results, GroupBundle{Index: g.index, Bundle: bundle})
		if err != nil {
			gv.Error = err.Error()
			view.Groups = append(view.Groups, gv)
			continue
		}
		gv.Prospective = BuildProspectiveChart(d.cfg, gv.Title, bundle)
		gv.Bars = BuildBarChart(d.cfg, gv.Title, bundle)
		prospective = append(prospective, gv.Prospective)
		bars = append(bars, gv.Bars)
		view.Groups = append(view.Groups, gv)
	}

	view.Comparison = BuildGroupComparison(d.cfg, reference, results)
	view.ProspectiveScale = ProspectiveScale(prospective)
	view.BarScale = BarScale(bars)
	return view, nil
}
