package strategy

import (
	"sort"
	"sync"
	"time"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

// Strategy names.
const (
	Recommended       = "recommended"
	Balanced          = "balanced"
	CashGame          = "cash_game"
	Tournament        = "tournament"
	Contrarian        = "contrarian"
	ConstraintFocused = "constraint_focused"
	Portfolio         = "portfolio"
)

// Preset is one registry entry. Distribution is nil for single-sampler
// presets and for recommended, which resolves its mix per request.
type Preset struct {
	Name         string
	Description  string
	Algorithm    optimizer.Algorithm
	Distribution *optimizer.Distribution
	Formula      string
	ContestFit   []optimizer.ContestType

	build func(d optimizer.Defaults, contest optimizer.Contest, activeBounds int) optimizer.StrategyConfig
}

// Info is the listing form of a preset.
type Info struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Algorithm    optimizer.Algorithm     `json:"algorithm"`
	Distribution *optimizer.Distribution `json:"distribution,omitempty"`
	Formula      string                  `json:"formula,omitempty"`
	ContestFit   []optimizer.ContestType `json:"contest_fit"`
}

// Resolved is a strategy ready to hand to the driver.
type Resolved struct {
	Name    string
	Config  optimizer.StrategyConfig
	Formula string
}

// Usage accumulates per-strategy generation stats.
type Usage struct {
	Runs          int64     `json:"runs"`
	Lineups       int64     `json:"lineups"`
	Failures      int64     `json:"failures"`
	AverageNexus  float64   `json:"average_nexus_score"`
	AverageMillis float64   `json:"average_duration_ms"`
	LastUsed      time.Time `json:"last_used"`
}

// Registry maps strategy names to presets built on configured defaults.
type Registry struct {
	defaults optimizer.Defaults
	presets  map[string]Preset
	order    []string

	mu    sync.Mutex
	usage map[string]*Usage
}

func NewRegistry(defaults optimizer.Defaults) *Registry {
	r := &Registry{
		defaults: defaults,
		presets:  make(map[string]Preset),
		usage:    make(map[string]*Usage),
	}
	for _, p := range builtinPresets() {
		r.presets[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r
}

func dist(mc, ga, sa float64) *optimizer.Distribution {
	return &optimizer.Distribution{MonteCarlo: mc, Genetic: ga, Annealing: sa}
}

func builtinPresets() []Preset {
	allContests := []optimizer.ContestType{optimizer.ContestCash, optimizer.ContestDoubleUp, optimizer.ContestGPP, optimizer.ContestSingleEntry}
	return []Preset{
		{
			Name:        Recommended,
			Description: "Hybrid mix picked from the contest type and the number of exposure bounds",
			Algorithm:   optimizer.AlgorithmHybrid,
			ContestFit:  allContests,
			build: func(d optimizer.Defaults, contest optimizer.Contest, bounds int) optimizer.StrategyConfig {
				return d.Hybrid(optimizer.AutoDistribution(contest, bounds))
			},
		},
		{
			Name:         Balanced,
			Description:  "General purpose hybrid weighted toward Monte-Carlo",
			Algorithm:    optimizer.AlgorithmHybrid,
			Distribution: dist(0.6, 0.3, 0.1),
			ContestFit:   allContests,
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				return d.Hybrid(*dist(0.6, 0.3, 0.1))
			},
		},
		{
			Name:         CashGame,
			Description:  "Low variance lineups close to the projection leaders",
			Algorithm:    optimizer.AlgorithmHybrid,
			Distribution: dist(0.8, 0.1, 0.1),
			ContestFit:   []optimizer.ContestType{optimizer.ContestCash, optimizer.ContestDoubleUp},
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				cfg := d.Hybrid(*dist(0.8, 0.1, 0.1))
				cfg.MonteCarlo.Randomness = 0.15
				cfg.MonteCarlo.LeverageMultiplier = 0.5
				return cfg
			},
		},
		{
			Name:         Tournament,
			Description:  "GA-heavy search for high ceiling, leveraged lineups",
			Algorithm:    optimizer.AlgorithmHybrid,
			Distribution: dist(0.2, 0.7, 0.1),
			ContestFit:   []optimizer.ContestType{optimizer.ContestGPP, optimizer.ContestSingleEntry},
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				cfg := d.Hybrid(*dist(0.2, 0.7, 0.1))
				cfg.MonteCarlo.Randomness = 0.4
				cfg.MonteCarlo.LeverageMultiplier = 1.3
				cfg.Genetic.Seeding = cfg.MonteCarlo
				return cfg
			},
		},
		{
			Name:        Contrarian,
			Description: "Monte-Carlo with strong ownership leverage, scored by the ownership formula",
			Algorithm:   optimizer.AlgorithmMonteCarlo,
			Formula:     "ownership",
			ContestFit:  []optimizer.ContestType{optimizer.ContestGPP},
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				cfg := d.MonteCarlo
				cfg.LeverageMultiplier = 1.8
				cfg.Randomness = 0.6
				return cfg
			},
		},
		{
			Name:         ConstraintFocused,
			Description:  "Annealing-heavy mix for dense exposure settings",
			Algorithm:    optimizer.AlgorithmHybrid,
			Distribution: dist(0.2, 0.3, 0.5),
			ContestFit:   allContests,
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				return d.Hybrid(*dist(0.2, 0.3, 0.5))
			},
		},
		{
			Name:        Portfolio,
			Description: "Bulk candidate generation with a floor/ceiling/balanced barbell selection",
			Algorithm:   optimizer.AlgorithmPortfolio,
			ContestFit:  []optimizer.ContestType{optimizer.ContestGPP},
			build: func(d optimizer.Defaults, _ optimizer.Contest, _ int) optimizer.StrategyConfig {
				cfg := d.Portfolio
				cfg.Hybrid = d.Hybrid(cfg.Hybrid.Distribution)
				return cfg
			},
		},
	}
}

// Resolve builds the config for name. custom, when present, is overlaid and
// the result validated.
func (r *Registry) Resolve(name string, contest optimizer.Contest, activeBounds int, custom *CustomConfig) (Resolved, error) {
	if name == "" {
		name = Recommended
	}
	p, ok := r.presets[name]
	if !ok {
		return Resolved{}, optimizer.NewUnknownStrategyError(name)
	}
	cfg := p.build(r.defaults, contest, activeBounds)
	formula := p.Formula
	if custom != nil {
		var err error
		if cfg, err = custom.Apply(cfg); err != nil {
			return Resolved{}, err
		}
		if custom.Formula != "" {
			formula = custom.Formula
		}
	}
	if formula != "" {
		if _, err := optimizer.LookupFormula(formula); err != nil {
			return Resolved{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Resolved{}, err
	}
	return Resolved{Name: name, Config: cfg, Formula: formula}, nil
}

// List returns the presets in registration order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		p := r.presets[name]
		out = append(out, Info{
			Name:         p.Name,
			Description:  p.Description,
			Algorithm:    p.Algorithm,
			Distribution: p.Distribution,
			Formula:      p.Formula,
			ContestFit:   p.ContestFit,
		})
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.presets[name]
	return ok
}

// Recommend names the preset best suited to a contest and constraint load.
func (r *Registry) Recommend(contest optimizer.Contest, activeBounds int) string {
	switch {
	case activeBounds > 25:
		return ConstraintFocused
	case contest.Type == optimizer.ContestCash, contest.Type == optimizer.ContestDoubleUp:
		return CashGame
	case contest.Type == optimizer.ContestGPP && contest.FieldSize >= 10000:
		return Tournament
	default:
		return Recommended
	}
}

// Fits reports whether a preset lists the contest type among its fits.
func (r *Registry) Fits(name string, contest optimizer.ContestType) bool {
	p, ok := r.presets[name]
	if !ok {
		return false
	}
	for _, c := range p.ContestFit {
		if c == contest {
			return true
		}
	}
	return false
}

// Record adds one generation run to the usage stats. Failed runs only bump
// the failure counter.
func (r *Registry) Record(name string, lineups int, nexusMean float64, took time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[name]
	if !ok {
		u = &Usage{}
		r.usage[name] = u
	}
	u.LastUsed = time.Now()
	if failed {
		u.Failures++
		return
	}
	u.Runs++
	u.Lineups += int64(lineups)
	n := float64(u.Runs)
	u.AverageNexus += (nexusMean - u.AverageNexus) / n
	u.AverageMillis += (float64(took.Milliseconds()) - u.AverageMillis) / n
}

// Stats returns a copy of the usage stats keyed by strategy name.
func (r *Registry) Stats() map[string]Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Usage, len(r.usage))
	for k, v := range r.usage {
		out[k] = *v
	}
	return out
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
