package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portfolioConfig() PortfolioConfig {
	cfg := DefaultPortfolioConfig()
	cfg.Hybrid = DefaultHybridConfig(Distribution{MonteCarlo: 1})
	return cfg
}

func TestPortfolio_BarbellQuotas(t *testing.T) {
	pool := slatePool(t, 5)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    20,
		Strategy: "portfolio",
		Config:   portfolioConfig(),
		Contest:  gppContest(),
		Seed:     seedOf(12),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 20)
	assertValidBatch(t, pool, res.Lineups)

	ps := res.Summary.Portfolio
	require.NotNil(t, ps)
	assert.Equal(t, AlgorithmPortfolio, res.Summary.Algorithm)
	assert.Equal(t, 500, ps.Candidates)
	assert.Equal(t, map[PortfolioLabel]int{LabelFloor: 7, LabelCeiling: 7, LabelBalanced: 6}, ps.Quotas)
	assert.Equal(t, ps.Quotas, ps.Selected)
	assert.LessOrEqual(t, ps.FloorThreshold, ps.CeilingThreshold)

	// leverage rewards low ownership, so the floor leg carries the chalk
	assert.GreaterOrEqual(t, ps.MeanOwnership[LabelFloor], ps.MeanOwnership[LabelCeiling])
	assert.GreaterOrEqual(t, ps.MeanNexus[LabelCeiling], ps.MeanNexus[LabelFloor])

	for i := 1; i < len(res.Lineups); i++ {
		assert.GreaterOrEqual(t, res.Lineups[i-1].NexusScore, res.Lineups[i].NexusScore)
	}
}

func TestPortfolio_StackTargets(t *testing.T) {
	pool := slatePool(t, 5)
	cfg := portfolioConfig()
	cfg.BulkMultiplier = 10
	cfg.StackTargets = map[string]float64{"4|2": 0.5}

	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   10,
		Config:  cfg,
		Contest: gppContest(),
		Seed:    seedOf(30),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 10)

	ps := res.Summary.Portfolio
	require.NotNil(t, ps)
	assert.Equal(t, map[string]int{"4-2": 5, otherStacks: 5}, ps.StackQuotas)
	total := 0
	for _, n := range ps.StackSelected {
		total += n
	}
	assert.Equal(t, 10, total)
}

func TestPortfolio_RespectsExposure(t *testing.T) {
	pool := slatePool(t, 5)
	cfg := portfolioConfig()
	cfg.BulkMultiplier = 10

	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   10,
		Config:  cfg,
		Contest: gppContest(),
		Exposure: []ExposureSetting{
			{Scope: ScopeTeam, Team: "T5", Min: 30},
			{Scope: ScopeTeam, Team: "T1", Max: fp(40)},
		},
		Seed: seedOf(31),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 10)
	assert.GreaterOrEqual(t, countWithTeam(pool, res.Lineups, "T5"), 3)
	assert.LessOrEqual(t, countWithTeam(pool, res.Lineups, "T1"), 4)
	assert.Empty(t, res.Summary.Exposure.Violations)
}

func TestPortfolio_InvalidConfig(t *testing.T) {
	pool := slatePool(t, 3)
	cfg := portfolioConfig()
	cfg.Targets = BarbellTargets{Floor: 0.5, Ceiling: 0.5, Balanced: 0.5}

	_, err := testDriver(pool).Generate(context.Background(), GenerateRequest{Count: 5, Config: cfg, Contest: gppContest()})
	assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
}

func TestLabelCandidates(t *testing.T) {
	cands := make([]ScoredLineup, 8)
	for i := range cands {
		cands[i].NexusScore = float64(60 - i)
	}
	labelCandidates(cands)

	want := []PortfolioLabel{LabelCeiling, LabelCeiling, LabelBalanced, LabelBalanced, LabelBalanced, LabelBalanced, LabelFloor, LabelFloor}
	for i, c := range cands {
		assert.Equal(t, want[i], c.Label, "rank %d", i)
	}
}

func TestPortfolio_ProgressOrder(t *testing.T) {
	pool := slatePool(t, 5)
	rec := &recorder{}
	_, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    10,
		Strategy: "portfolio",
		Config:   portfolioConfig(),
		Contest:  gppContest(),
		Seed:     seedOf(14),
		Progress: rec.progress,
	})
	require.NoError(t, err)

	phases := []string{"Generating", "Scoring", "Selecting", "Finalizing"}
	last := 0
	seen := make(map[string]int)
	for _, status := range rec.statuses {
		for i, phase := range phases {
			if strings.HasPrefix(status, phase) {
				assert.GreaterOrEqual(t, i, last, "%q reported after %q", status, phases[last])
				last = i
				seen[phase]++
			}
		}
	}
	assert.Equal(t, 1, seen["Selecting"])
	assert.Equal(t, 1, seen["Finalizing"])
	assert.Positive(t, seen["Scoring"])
}

func TestPortfolio_ShortSelectionHonorsMax(t *testing.T) {
	pool := minimalPool(t)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    40,
		Config:   portfolioConfig(),
		Contest:  gppContest(),
		Exposure: []ExposureSetting{{Scope: ScopeTeam, Team: "A", Max: fp(30)}},
		Seed:     seedOf(15),
	})
	if err != nil {
		assert.True(t, errors.Is(err, ErrExposureInfeasible), "got %v", err)
		assert.Equal(t, "team:A", ErrorEntity(err))
		return
	}
	require.NotEmpty(t, res.Lineups)
	assert.True(t, res.Summary.Partial)
	assert.LessOrEqual(t, float64(countWithTeam(pool, res.Lineups, "A"))/float64(len(res.Lineups)), 0.3)
	assert.Empty(t, res.Summary.Exposure.Violations)
}
