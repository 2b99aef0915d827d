package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

var (
	cash = optimizer.Contest{Type: optimizer.ContestCash, FieldSize: 100}
	gpp  = optimizer.Contest{Type: optimizer.ContestGPP, FieldSize: 50000}
)

func newRegistry() *Registry { return NewRegistry(optimizer.DefaultDefaults()) }

func TestRegistry_ResolvesEveryPreset(t *testing.T) {
	r := newRegistry()
	for _, info := range r.List() {
		t.Run(info.Name, func(t *testing.T) {
			res, err := r.Resolve(info.Name, gpp, 0, nil)
			require.NoError(t, err)
			assert.Equal(t, info.Name, res.Name)
			assert.Equal(t, info.Algorithm, res.Config.Algorithm())
			assert.NoError(t, res.Config.Validate())
		})
	}
	assert.Len(t, r.List(), 7)
}

func TestRegistry_PresetValues(t *testing.T) {
	r := newRegistry()

	res, err := r.Resolve(CashGame, cash, 0, nil)
	require.NoError(t, err)
	h := res.Config.(optimizer.HybridConfig)
	assert.Equal(t, optimizer.Distribution{MonteCarlo: 0.8, Genetic: 0.1, Annealing: 0.1}, h.Distribution)
	assert.Equal(t, 0.15, h.MonteCarlo.Randomness)
	assert.Equal(t, 0.5, h.MonteCarlo.LeverageMultiplier)

	res, err = r.Resolve(Tournament, gpp, 0, nil)
	require.NoError(t, err)
	h = res.Config.(optimizer.HybridConfig)
	assert.Equal(t, 1.3, h.MonteCarlo.LeverageMultiplier)
	assert.Equal(t, 0.4, h.MonteCarlo.Randomness)

	res, err = r.Resolve(Contrarian, gpp, 0, nil)
	require.NoError(t, err)
	mc := res.Config.(optimizer.MonteCarloConfig)
	assert.Equal(t, 1.8, mc.LeverageMultiplier)
	assert.Equal(t, "ownership", res.Formula)

	res, err = r.Resolve(ConstraintFocused, cash, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, optimizer.Distribution{MonteCarlo: 0.2, Genetic: 0.3, Annealing: 0.5}, res.Config.(optimizer.HybridConfig).Distribution)
}

func TestRegistry_RecommendedFollowsContest(t *testing.T) {
	r := newRegistry()
	tests := []struct {
		name    string
		contest optimizer.Contest
		bounds  int
		want    optimizer.Distribution
	}{
		{"cash", cash, 0, optimizer.Distribution{MonteCarlo: 0.8, Genetic: 0.1, Annealing: 0.1}},
		{"large gpp", gpp, 0, optimizer.Distribution{MonteCarlo: 0.2, Genetic: 0.6, Annealing: 0.2}},
		{"dense bounds", cash, 30, optimizer.Distribution{MonteCarlo: 0.2, Genetic: 0.3, Annealing: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve("", tt.contest, tt.bounds, nil)
			require.NoError(t, err)
			assert.Equal(t, Recommended, res.Name)
			assert.Equal(t, tt.want, res.Config.(optimizer.HybridConfig).Distribution)
		})
	}
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	_, err := newRegistry().Resolve("moonshot", gpp, 0, nil)
	assert.True(t, errors.Is(err, optimizer.ErrUnknownStrategy))
}

func TestRegistry_CustomConfig(t *testing.T) {
	r := newRegistry()
	randomness := 0.5
	pop := 80

	res, err := r.Resolve(Balanced, gpp, 0, &CustomConfig{
		Randomness:     &randomness,
		PopulationSize: &pop,
		Distribution:   &optimizer.Distribution{MonteCarlo: 0.5, Genetic: 0.5},
		Formula:        "ceiling",
	})
	require.NoError(t, err)
	h := res.Config.(optimizer.HybridConfig)
	assert.Equal(t, 0.5, h.MonteCarlo.Randomness)
	assert.Equal(t, 0.5, h.Genetic.Seeding.Randomness)
	assert.Equal(t, 80, h.Genetic.PopulationSize)
	assert.Equal(t, 0.5, h.Distribution.Genetic)
	assert.Equal(t, "ceiling", res.Formula)

	tooRandom := 0.95
	tests := []struct {
		name   string
		preset string
		custom CustomConfig
	}{
		{"randomness out of range", Balanced, CustomConfig{Randomness: &tooRandom}},
		{"distribution not summing to one", Balanced, CustomConfig{Distribution: &optimizer.Distribution{MonteCarlo: 0.3}}},
		{"unknown formula", Balanced, CustomConfig{Formula: "vibes"}},
		{"genetic field on monte carlo", Contrarian, CustomConfig{PopulationSize: &pop}},
		{"portfolio field on hybrid", Balanced, CustomConfig{Targets: &optimizer.BarbellTargets{Floor: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.preset, gpp, 0, &tt.custom)
			assert.True(t, errors.Is(err, optimizer.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestRegistry_PortfolioCustomTargets(t *testing.T) {
	bulk := 5
	res, err := newRegistry().Resolve(Portfolio, gpp, 0, &CustomConfig{
		BulkMultiplier: &bulk,
		Targets:        &optimizer.BarbellTargets{Floor: 0.5, Ceiling: 0.5},
		StackTargets:   map[string]float64{"4|2": 0.4},
	})
	require.NoError(t, err)
	pc := res.Config.(optimizer.PortfolioConfig)
	assert.Equal(t, 5, pc.BulkMultiplier)
	assert.Equal(t, 0.5, pc.Targets.Floor)
	assert.Equal(t, 0.4, pc.StackTargets["4|2"])
}

func TestRegistry_Recommend(t *testing.T) {
	r := newRegistry()
	assert.Equal(t, CashGame, r.Recommend(cash, 0))
	assert.Equal(t, Tournament, r.Recommend(gpp, 0))
	assert.Equal(t, Recommended, r.Recommend(optimizer.Contest{Type: optimizer.ContestGPP, FieldSize: 500}, 0))
	assert.Equal(t, ConstraintFocused, r.Recommend(gpp, 40))

	assert.True(t, r.Fits(CashGame, optimizer.ContestDoubleUp))
	assert.False(t, r.Fits(CashGame, optimizer.ContestGPP))
	assert.False(t, r.Fits("nope", optimizer.ContestGPP))
}

func TestRegistry_UsageStats(t *testing.T) {
	r := newRegistry()
	r.Record(Balanced, 10, 40, 200*time.Millisecond, false)
	r.Record(Balanced, 20, 50, 400*time.Millisecond, false)
	r.Record(Balanced, 0, 0, 0, true)

	stats := r.Stats()
	u := stats[Balanced]
	assert.Equal(t, int64(2), u.Runs)
	assert.Equal(t, int64(30), u.Lineups)
	assert.Equal(t, int64(1), u.Failures)
	assert.InDelta(t, 45.0, u.AverageNexus, 1e-9)
	assert.InDelta(t, 300.0, u.AverageMillis, 1e-9)
	assert.NotContains(t, stats, CashGame)
}
