package strategy

import (
	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

// CustomConfig overrides preset tunables for a single request. Unset fields
// keep the preset value. Fields that do not apply to the resolved algorithm
// are rejected.
type CustomConfig struct {
	Formula      string                  `json:"formula,omitempty"`
	Distribution *optimizer.Distribution `json:"distribution,omitempty"`

	Randomness          *float64                 `json:"randomness,omitempty"`
	LeverageMultiplier  *float64                 `json:"leverage_multiplier,omitempty"`
	IterationsPerLineup *int                     `json:"iterations_per_lineup,omitempty"`
	StackSizes          []optimizer.StackPattern `json:"stack_sizes,omitempty"`

	PopulationSize *int     `json:"population_size,omitempty"`
	Generations    *int     `json:"generations,omitempty"`
	MutationRate   *float64 `json:"mutation_rate,omitempty"`

	InitialTemperature *float64 `json:"initial_temperature,omitempty"`
	CoolingRate        *float64 `json:"cooling_rate,omitempty"`
	MaxProposals       *int     `json:"max_proposals,omitempty"`

	BulkMultiplier *int                      `json:"bulk_multiplier,omitempty"`
	Targets        *optimizer.BarbellTargets `json:"targets,omitempty"`
	StackTargets   map[string]float64        `json:"stack_targets,omitempty"`
}

func (c CustomConfig) touchesGenetic() bool {
	return c.PopulationSize != nil || c.Generations != nil || c.MutationRate != nil
}

func (c CustomConfig) touchesAnnealing() bool {
	return c.InitialTemperature != nil || c.CoolingRate != nil || c.MaxProposals != nil
}

func (c CustomConfig) touchesPortfolio() bool {
	return c.BulkMultiplier != nil || c.Targets != nil || c.StackTargets != nil
}

func (c CustomConfig) monteCarlo(cfg optimizer.MonteCarloConfig) optimizer.MonteCarloConfig {
	if c.Randomness != nil {
		cfg.Randomness = *c.Randomness
	}
	if c.LeverageMultiplier != nil {
		cfg.LeverageMultiplier = *c.LeverageMultiplier
	}
	if c.IterationsPerLineup != nil {
		cfg.IterationsPerLineup = *c.IterationsPerLineup
	}
	if len(c.StackSizes) > 0 {
		cfg.StackSizes = append([]optimizer.StackPattern(nil), c.StackSizes...)
	}
	return cfg
}

func (c CustomConfig) genetic(cfg optimizer.GeneticConfig) optimizer.GeneticConfig {
	if c.PopulationSize != nil {
		cfg.PopulationSize = *c.PopulationSize
	}
	if c.Generations != nil {
		cfg.Generations = *c.Generations
	}
	if c.MutationRate != nil {
		cfg.MutationRate = *c.MutationRate
	}
	cfg.Seeding = c.monteCarlo(cfg.Seeding)
	return cfg
}

func (c CustomConfig) annealing(cfg optimizer.AnnealingConfig) optimizer.AnnealingConfig {
	if c.InitialTemperature != nil {
		cfg.InitialTemperature = *c.InitialTemperature
	}
	if c.CoolingRate != nil {
		cfg.CoolingRate = *c.CoolingRate
	}
	if c.MaxProposals != nil {
		cfg.MaxProposals = *c.MaxProposals
	}
	cfg.Seeding = c.monteCarlo(cfg.Seeding)
	return cfg
}

func (c CustomConfig) hybrid(cfg optimizer.HybridConfig) optimizer.HybridConfig {
	if c.Distribution != nil {
		cfg.Distribution = *c.Distribution
		cfg.Auto = false
	}
	cfg.MonteCarlo = c.monteCarlo(cfg.MonteCarlo)
	cfg.Genetic = c.genetic(cfg.Genetic)
	cfg.Annealing = c.annealing(cfg.Annealing)
	return cfg
}

// Apply overlays c on cfg. The result is not validated here.
func (c CustomConfig) Apply(cfg optimizer.StrategyConfig) (optimizer.StrategyConfig, error) {
	switch base := cfg.(type) {
	case optimizer.MonteCarloConfig:
		if c.Distribution != nil || c.touchesGenetic() || c.touchesAnnealing() || c.touchesPortfolio() {
			return nil, optimizer.NewInputError("custom_config sets fields that do not apply to %s", base.Algorithm())
		}
		return c.monteCarlo(base), nil
	case optimizer.GeneticConfig:
		if c.Distribution != nil || c.touchesAnnealing() || c.touchesPortfolio() {
			return nil, optimizer.NewInputError("custom_config sets fields that do not apply to %s", base.Algorithm())
		}
		return c.genetic(base), nil
	case optimizer.AnnealingConfig:
		if c.Distribution != nil || c.touchesGenetic() || c.touchesPortfolio() {
			return nil, optimizer.NewInputError("custom_config sets fields that do not apply to %s", base.Algorithm())
		}
		return c.annealing(base), nil
	case optimizer.HybridConfig:
		if c.touchesPortfolio() {
			return nil, optimizer.NewInputError("custom_config sets portfolio fields on a hybrid strategy")
		}
		return c.hybrid(base), nil
	case optimizer.PortfolioConfig:
		if c.BulkMultiplier != nil {
			base.BulkMultiplier = *c.BulkMultiplier
		}
		if c.Targets != nil {
			base.Targets = *c.Targets
		}
		if c.StackTargets != nil {
			base.StackTargets = c.StackTargets
		}
		base.Hybrid = c.hybrid(base.Hybrid)
		return base, nil
	}
	return nil, optimizer.NewInputError("unsupported strategy config %T", cfg)
}
