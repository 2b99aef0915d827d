package optimizer

import (
	"math"
	"strconv"
	"strings"
)

// StrategyConfig is the closed set of sampler and driver configurations.
type StrategyConfig interface {
	Algorithm() Algorithm
	Validate() error
	isStrategyConfig()
}

// StackPattern is a stack shape such as "4-2" with its draw weight.
type StackPattern struct {
	Pattern string  `json:"pattern"`
	Weight  float64 `json:"weight"`
}

// Sizes parses the pattern into team sizes, largest first.
func (p StackPattern) Sizes() ([]int, error) {
	parts := strings.Split(strings.TrimSpace(p.Pattern), "-")
	sizes := make([]int, 0, len(parts))
	sum := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, invalidInputf("invalid stack pattern %q", p.Pattern)
		}
		if len(sizes) > 0 && n > sizes[len(sizes)-1] {
			return nil, invalidInputf("stack pattern %q must be non-increasing", p.Pattern)
		}
		sizes = append(sizes, n)
		sum += n
	}
	if sum > NumSlots {
		return nil, invalidInputf("stack pattern %q needs more than %d slots", p.Pattern, NumSlots)
	}
	return sizes, nil
}

// MonteCarloConfig tunes the Monte-Carlo sampler.
type MonteCarloConfig struct {
	Randomness          float64        `json:"randomness"`
	LeverageMultiplier  float64        `json:"leverage_multiplier"`
	IterationsPerLineup int            `json:"iterations_per_lineup"`
	StackSizes          []StackPattern `json:"stack_sizes"`
}

func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Randomness:          0.3,
		LeverageMultiplier:  1.0,
		IterationsPerLineup: 64,
		StackSizes: []StackPattern{
			{Pattern: "4-2", Weight: 0.6},
			{Pattern: "3-2-1", Weight: 0.4},
		},
	}
}

func (MonteCarloConfig) Algorithm() Algorithm { return AlgorithmMonteCarlo }
func (MonteCarloConfig) isStrategyConfig()    {}

func (c MonteCarloConfig) Validate() error {
	if c.Randomness < 0.1 || c.Randomness > 0.8 {
		return invalidInputf("randomness must be within [0.1, 0.8], got %v", c.Randomness)
	}
	if c.LeverageMultiplier < 0.2 || c.LeverageMultiplier > 2.0 {
		return invalidInputf("leverage_multiplier must be within [0.2, 2.0], got %v", c.LeverageMultiplier)
	}
	if c.IterationsPerLineup < 1 || c.IterationsPerLineup > 10000 {
		return invalidInputf("iterations_per_lineup must be within [1, 10000], got %d", c.IterationsPerLineup)
	}
	total := 0.0
	for _, p := range c.StackSizes {
		if _, err := p.Sizes(); err != nil {
			return err
		}
		if p.Weight < 0 || math.IsNaN(p.Weight) {
			return invalidInputf("stack pattern %q has a negative weight", p.Pattern)
		}
		total += p.Weight
	}
	if len(c.StackSizes) > 0 && total <= 0 {
		return invalidInputf("stack pattern weights sum to zero")
	}
	return nil
}

// GeneticConfig tunes the genetic sampler.
type GeneticConfig struct {
	PopulationSize int              `json:"population_size"`
	Generations    int              `json:"generations"`
	MutationRate   float64          `json:"mutation_rate"`
	EliteFraction  float64          `json:"elite_fraction"`
	TournamentSize int              `json:"tournament_size"`
	Seeding        MonteCarloConfig `json:"seeding"`
}

func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 100,
		Generations:    50,
		MutationRate:   0.08,
		EliteFraction:  0.05,
		TournamentSize: 3,
		Seeding:        DefaultMonteCarloConfig(),
	}
}

func (GeneticConfig) Algorithm() Algorithm { return AlgorithmGenetic }
func (GeneticConfig) isStrategyConfig()    {}

func (c GeneticConfig) Validate() error {
	if c.PopulationSize < 50 || c.PopulationSize > 200 {
		return invalidInputf("population_size must be within [50, 200], got %d", c.PopulationSize)
	}
	if c.Generations < 20 || c.Generations > 100 {
		return invalidInputf("generations must be within [20, 100], got %d", c.Generations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return invalidInputf("mutation_rate must be within [0, 1]")
	}
	if c.EliteFraction < 0 || c.EliteFraction > 0.5 {
		return invalidInputf("elite_fraction must be within [0, 0.5]")
	}
	if c.TournamentSize < 2 || c.TournamentSize > c.PopulationSize {
		return invalidInputf("tournament_size must be within [2, population_size]")
	}
	return c.Seeding.Validate()
}

// AnnealingConfig tunes the simulated annealing sampler.
type AnnealingConfig struct {
	InitialTemperature float64          `json:"initial_temperature"`
	CoolingRate        float64          `json:"cooling_rate"`
	MinTemperature     float64          `json:"min_temperature"`
	MaxProposals       int              `json:"max_proposals"`
	Seeding            MonteCarloConfig `json:"seeding"`
}

func DefaultAnnealingConfig() AnnealingConfig {
	return AnnealingConfig{
		InitialTemperature: 5.0,
		CoolingRate:        0.98,
		MinTemperature:     0.05,
		MaxProposals:       2000,
		Seeding:            DefaultMonteCarloConfig(),
	}
}

func (AnnealingConfig) Algorithm() Algorithm { return AlgorithmAnnealing }
func (AnnealingConfig) isStrategyConfig()    {}

func (c AnnealingConfig) Validate() error {
	if c.InitialTemperature <= 0 {
		return invalidInputf("initial_temperature must be positive")
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		return invalidInputf("cooling_rate must be within (0, 1)")
	}
	if c.MinTemperature <= 0 || c.MinTemperature >= c.InitialTemperature {
		return invalidInputf("min_temperature must be within (0, initial_temperature)")
	}
	if c.MaxProposals < 1 || c.MaxProposals > 100000 {
		return invalidInputf("max_proposals must be within [1, 100000]")
	}
	return c.Seeding.Validate()
}

// Distribution splits a count across the three samplers.
type Distribution struct {
	MonteCarlo float64 `json:"monte_carlo"`
	Genetic    float64 `json:"genetic"`
	Annealing  float64 `json:"simulated_annealing"`
}

func (d Distribution) Validate() error {
	for _, v := range []float64{d.MonteCarlo, d.Genetic, d.Annealing} {
		if v < 0 || math.IsNaN(v) {
			return invalidInputf("distribution weights must be non-negative")
		}
	}
	if sum := d.MonteCarlo + d.Genetic + d.Annealing; math.Abs(sum-1) > 1e-6 {
		return invalidInputf("distribution must sum to 1, got %.4f", sum)
	}
	return nil
}

// Allocate rounds n x d for each sampler and puts any rounding drift on the
// largest share, so the parts always sum to n.
func (d Distribution) Allocate(n int) (mc, ga, sa int) {
	shares := [3]float64{d.MonteCarlo, d.Genetic, d.Annealing}
	var parts [3]int
	sum, largest := 0, 0
	for i, s := range shares {
		parts[i] = int(math.Round(float64(n) * s))
		sum += parts[i]
		if s > shares[largest] {
			largest = i
		}
	}
	parts[largest] += n - sum
	if parts[largest] < 0 {
		parts[largest] = 0
	}
	return parts[0], parts[1], parts[2]
}

// HybridConfig runs the three samplers under a distribution. With Auto set the
// distribution is chosen from the contest and constraint density at call time.
type HybridConfig struct {
	Distribution Distribution     `json:"distribution"`
	Auto         bool             `json:"auto"`
	MonteCarlo   MonteCarloConfig `json:"monte_carlo_config"`
	Genetic      GeneticConfig    `json:"genetic_config"`
	Annealing    AnnealingConfig  `json:"annealing_config"`
}

func DefaultHybridConfig(d Distribution) HybridConfig {
	return HybridConfig{
		Distribution: d,
		MonteCarlo:   DefaultMonteCarloConfig(),
		Genetic:      DefaultGeneticConfig(),
		Annealing:    DefaultAnnealingConfig(),
	}
}

func (HybridConfig) Algorithm() Algorithm { return AlgorithmHybrid }
func (HybridConfig) isStrategyConfig()    {}

func (c HybridConfig) Validate() error {
	if !c.Auto {
		if err := c.Distribution.Validate(); err != nil {
			return err
		}
	}
	if err := c.MonteCarlo.Validate(); err != nil {
		return err
	}
	if err := c.Genetic.Validate(); err != nil {
		return err
	}
	return c.Annealing.Validate()
}

// BarbellTargets are the floor, ceiling and balanced portfolio fractions.
type BarbellTargets struct {
	Floor    float64 `json:"floor"`
	Ceiling  float64 `json:"ceiling"`
	Balanced float64 `json:"balanced"`
}

func (t BarbellTargets) Validate() error {
	for _, v := range []float64{t.Floor, t.Ceiling, t.Balanced} {
		if v < 0 || math.IsNaN(v) {
			return invalidInputf("barbell targets must be non-negative")
		}
	}
	if sum := t.Floor + t.Ceiling + t.Balanced; math.Abs(sum-1) > 1e-6 {
		return invalidInputf("barbell targets must sum to 1, got %.4f", sum)
	}
	return nil
}

// PortfolioConfig over-generates candidates with Hybrid and selects a
// barbell subset.
type PortfolioConfig struct {
	BulkMultiplier int                `json:"bulk_multiplier"`
	Targets        BarbellTargets     `json:"targets"`
	StackTargets   map[string]float64 `json:"stack_targets,omitempty"`
	MaxCandidates  int                `json:"max_candidates"`
	Hybrid         HybridConfig       `json:"hybrid"`
}

func DefaultPortfolioConfig() PortfolioConfig {
	return PortfolioConfig{
		BulkMultiplier: 25,
		Targets:        BarbellTargets{Floor: 0.35, Ceiling: 0.35, Balanced: 0.30},
		MaxCandidates:  10000,
		Hybrid:         DefaultHybridConfig(Distribution{MonteCarlo: 0.6, Genetic: 0.3, Annealing: 0.1}),
	}
}

func (PortfolioConfig) Algorithm() Algorithm { return AlgorithmPortfolio }
func (PortfolioConfig) isStrategyConfig()    {}

func (c PortfolioConfig) Validate() error {
	if c.BulkMultiplier < 1 || c.BulkMultiplier > 100 {
		return invalidInputf("bulk_multiplier must be within [1, 100], got %d", c.BulkMultiplier)
	}
	if c.MaxCandidates < 1 {
		return invalidInputf("max_candidates must be positive")
	}
	if err := c.Targets.Validate(); err != nil {
		return err
	}
	total := 0.0
	for sig, f := range c.StackTargets {
		if _, err := (StackPattern{Pattern: strings.ReplaceAll(sig, "|", "-")}).Sizes(); err != nil {
			return err
		}
		if f < 0 || f > 1 {
			return invalidInputf("stack target %q must be within [0, 1]", sig)
		}
		total += f
	}
	if total > 1+1e-6 {
		return invalidInputf("stack targets sum to more than 1")
	}
	return c.Hybrid.Validate()
}

// Defaults carries configured tunables into every generation.
type Defaults struct {
	SalaryCap  int
	MonteCarlo MonteCarloConfig
	Genetic    GeneticConfig
	Annealing  AnnealingConfig
	Portfolio  PortfolioConfig
}

func DefaultDefaults() Defaults {
	return Defaults{
		SalaryCap:  DefaultSalaryCap,
		MonteCarlo: DefaultMonteCarloConfig(),
		Genetic:    DefaultGeneticConfig(),
		Annealing:  DefaultAnnealingConfig(),
		Portfolio:  DefaultPortfolioConfig(),
	}
}

// Hybrid builds a hybrid config from the defaults.
func (d Defaults) Hybrid(dist Distribution) HybridConfig {
	return HybridConfig{
		Distribution: dist,
		MonteCarlo:   d.MonteCarlo,
		Genetic:      d.Genetic,
		Annealing:    d.Annealing,
	}
}
