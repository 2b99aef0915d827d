package optimizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDriver(pool *PlayerPool) *Driver {
	logger, _ := test.NewNullLogger()
	return NewDriver(pool, nil, DriverOptions{Workers: 2, Logger: logrus.NewEntry(logger)})
}

type recorder struct {
	mu       sync.Mutex
	percents []float64
	statuses []string
}

func (r *recorder) progress(percent float64, status string, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
	r.statuses = append(r.statuses, status)
}

func balanced() HybridConfig {
	return DefaultHybridConfig(Distribution{MonteCarlo: 0.6, Genetic: 0.3, Annealing: 0.1})
}

func TestGenerate_MinimalFeasible(t *testing.T) {
	pool := minimalPool(t)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    1,
		Strategy: "balanced",
		Config:   balanced(),
		Contest:  cashContest(),
		Seed:     seedOf(1),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 1)

	l := res.Lineups[0]
	assert.Equal(t, 32500, l.TotalSalary)
	assert.Equal(t, 25.0, l.NexusScore)
	assert.Equal(t, 1, res.Summary.Generated)
	assert.Equal(t, "balanced", res.Summary.Strategy)
	assertValidBatch(t, pool, res.Lineups)
}

func TestGenerate_StackBonus(t *testing.T) {
	var players []Player
	for _, pos := range AllPositions {
		p := Player{ID: "A-" + pos.String(), Team: "A", Position: pos, Salary: 6000, ProjectedPoints: 50, Ownership: 5}
		if pos == PositionTEAM {
			p.Salary, p.ProjectedPoints = 4000, 30
		}
		players = append(players, p)
		for _, team := range []string{"B", "C"} {
			players = append(players, Player{ID: team + "-" + pos.String(), Team: team, Position: pos, Salary: 6000, ProjectedPoints: 10, Ownership: 40})
		}
	}
	pool, err := NewPlayerPool(players, []Stack{{Team: "A", Positions: RolePositions, StackPlus: 10}})
	require.NoError(t, err)

	cfg := DefaultMonteCarloConfig()
	cfg.StackSizes = []StackPattern{{Pattern: "5-1", Weight: 1}}
	cfg.Randomness = 0.1

	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   1,
		Config:  cfg,
		Contest: gppContest(),
		Seed:    seedOf(4),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 1)

	l := res.Lineups[0]
	assert.True(t, strings.HasPrefix(l.StackSignature, "5") || strings.HasPrefix(l.StackSignature, "6"), l.StackSignature)
	assert.GreaterOrEqual(t, ComputeTerms(pool, l.Lineup).StackBonus, 9.0)
	assert.Greater(t, l.NexusScore, 35.0)
}

func TestGenerate_ExposureMinimums(t *testing.T) {
	pool := slatePool(t, 2)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   10,
		Config:  balanced(),
		Contest: cashContest(),
		Exposure: []ExposureSetting{
			{Scope: ScopeTeam, Team: "T1", Min: 50},
			{Scope: ScopeTeam, Team: "T2", Min: 50},
		},
		Seed: seedOf(9),
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 10)

	assert.GreaterOrEqual(t, countWithTeam(pool, res.Lineups, "T1"), 5)
	assert.GreaterOrEqual(t, countWithTeam(pool, res.Lineups, "T2"), 5)
	assert.Empty(t, res.Summary.Exposure.Violations)
	assertValidBatch(t, pool, res.Lineups)
}

func TestGenerate_ExposureMaximums(t *testing.T) {
	pool := slatePool(t, 4)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   20,
		Config:  balanced(),
		Contest: gppContest(),
		Exposure: []ExposureSetting{
			{Scope: ScopeTeam, Team: "T1", Max: fp(30)},
			{Scope: ScopePlayer, PlayerID: "T4-ADC", Max: fp(20)},
		},
		Seed: seedOf(17),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Lineups)

	n := len(res.Lineups)
	assert.LessOrEqual(t, float64(countWithTeam(pool, res.Lineups, "T1")), 0.3*float64(n)+1e-9)

	adc, _ := pool.Lookup("T4-ADC")
	with := 0
	for _, l := range res.Lineups {
		if l.Contains(adc) {
			with++
		}
	}
	assert.LessOrEqual(t, with, 4)
}

func TestGenerate_InfeasibleCap(t *testing.T) {
	players := slatePlayers(2)
	for i := range players {
		players[i].Salary = 10000
	}
	pool, err := NewPlayerPool(players, nil)
	require.NoError(t, err)

	rec := &recorder{}
	_, err = testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    5,
		Config:   balanced(),
		Contest:  cashContest(),
		Progress: rec.progress,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
	assert.True(t, IsInputError(err))
	assert.Empty(t, rec.statuses)
}

func TestGenerate_InvalidInput(t *testing.T) {
	pool := slatePool(t, 2)
	d := testDriver(pool)

	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{"zero count", GenerateRequest{Count: 0, Config: balanced(), Contest: cashContest()}},
		{"missing config", GenerateRequest{Count: 1, Contest: cashContest()}},
		{"bad contest", GenerateRequest{Count: 1, Config: balanced(), Contest: Contest{Type: "league", FieldSize: 10}}},
		{"tiny field", GenerateRequest{Count: 1, Config: balanced(), Contest: Contest{Type: ContestGPP, FieldSize: 1}}},
		{"bad distribution", GenerateRequest{Count: 1, Config: DefaultHybridConfig(Distribution{MonteCarlo: 0.5}), Contest: cashContest()}},
		{"bad exposure", GenerateRequest{Count: 1, Config: balanced(), Contest: cashContest(),
			Exposure: []ExposureSetting{{Scope: ScopePlayer, PlayerID: "ghost", Min: 10}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			tt.req.Progress = rec.progress
			_, err := d.Generate(context.Background(), tt.req)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
			assert.Empty(t, rec.statuses)
		})
	}
}

func TestGenerate_ExposureInfeasible(t *testing.T) {
	pool := slatePool(t, 3)
	_, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   6,
		Config:  balanced(),
		Contest: cashContest(),
		Exposure: []ExposureSetting{
			{Scope: ScopePlayer, PlayerID: "T1-MID", Min: 100},
			{Scope: ScopePlayer, PlayerID: "T2-MID", Min: 100},
		},
		Seed: seedOf(3),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExposureInfeasible), "got %v", err)
	assert.NotEmpty(t, ErrorEntity(err))
}

func TestGenerate_ShortBatchHonorsMax(t *testing.T) {
	pool := minimalPool(t)
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    100,
		Config:   DefaultMonteCarloConfig(),
		Contest:  gppContest(),
		Exposure: []ExposureSetting{{Scope: ScopeTeam, Team: "A", Max: fp(30)}},
		Seed:     seedOf(1),
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
	assert.Equal(t, len(res.Lineups), res.Summary.Exposure.TotalLineups)
}

func TestGenerate_EveryCandidateOverMax(t *testing.T) {
	pool := minimalPool(t)
	_, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:   1,
		Config:  DefaultMonteCarloConfig(),
		Contest: cashContest(),
		Exposure: []ExposureSetting{
			{Scope: ScopeTeam, Team: "A", Max: fp(50)},
			{Scope: ScopeTeam, Team: "B", Max: fp(50)},
		},
		Seed: seedOf(2),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExposureInfeasible), "got %v", err)
	assert.False(t, IsInputError(err))
	assert.True(t, strings.HasPrefix(ErrorEntity(err), "team:"), "entity %q", ErrorEntity(err))
}

func TestGenerate_Invariants(t *testing.T) {
	pool := slatePool(t, 4)
	rec := &recorder{}
	res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
		Count:    50,
		Config:   balanced(),
		Contest:  gppContest(),
		Seed:     seedOf(7),
		Progress: rec.progress,
	})
	require.NoError(t, err)
	require.Len(t, res.Lineups, 50)
	assertValidBatch(t, pool, res.Lineups)

	for i := 1; i < len(res.Lineups); i++ {
		prev, cur := res.Lineups[i-1], res.Lineups[i]
		assert.True(t, prev.NexusScore > cur.NexusScore || (prev.NexusScore == cur.NexusScore && prev.ID < cur.ID))
	}

	require.NotEmpty(t, rec.percents)
	for i := 1; i < len(rec.percents); i++ {
		assert.GreaterOrEqual(t, rec.percents[i], rec.percents[i-1])
	}
	for _, p := range rec.percents {
		assert.Less(t, p, 100.0)
	}
	assert.Equal(t, "Finalizing", rec.statuses[len(rec.statuses)-1])
	assert.Contains(t, rec.statuses, "Generating candidates 50 of 50")
	assert.Contains(t, rec.statuses, "Scoring candidates 50 of 50")

	total := 0
	for _, n := range res.Summary.ByAlgorithm {
		total += n
	}
	assert.Equal(t, 50, total)
	assert.Equal(t, 30, res.Summary.Allocation[AlgorithmMonteCarlo])
	assert.Equal(t, 15, res.Summary.Allocation[AlgorithmGenetic])
	assert.Equal(t, 5, res.Summary.Allocation[AlgorithmAnnealing])
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	pool := slatePool(t, 4)
	run := func() []ScoredLineup {
		res, err := testDriver(pool).Generate(context.Background(), GenerateRequest{
			Count:   20,
			Config:  balanced(),
			Contest: gppContest(),
			Seed:    seedOf(42),
		})
		require.NoError(t, err)
		return res.Lineups
	}

	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].NexusScore, second[i].NexusScore)
		assert.Equal(t, first[i].ROI, second[i].ROI)
	}
}

func TestGenerate_Cancellation(t *testing.T) {
	pool := slatePool(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := testDriver(pool).Generate(ctx, GenerateRequest{
		Count:   100,
		Config:  balanced(),
		Contest: gppContest(),
		Progress: func(percent float64, _ string, _, _ int) {
			if percent >= 10 {
				cancel()
			}
		},
	})
	if err != nil {
		assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
		return
	}
	assert.True(t, res.Summary.Partial)
	assert.LessOrEqual(t, len(res.Lineups), 100)
	assertValidBatch(t, pool, res.Lineups)
}

func TestGenerate_FormulaSwapAffectsLaterLineups(t *testing.T) {
	pool := slatePool(t, 4)
	scorer := NewScorer(pool)
	d := NewDriver(pool, scorer, DriverOptions{Workers: 1})

	req := GenerateRequest{Count: 3, Config: DefaultMonteCarloConfig(), Contest: gppContest(), Seed: seedOf(5)}
	first, err := d.Generate(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, scorer.SetFormula("ownership"))
	second, err := d.Generate(context.Background(), req)
	require.NoError(t, err)

	for _, l := range first.Lineups {
		assert.Equal(t, FormulaCanonical, l.Formula)
	}
	for _, l := range second.Lineups {
		assert.Equal(t, "ownership", l.Formula)
	}
	assert.Equal(t, "ownership", second.Summary.Formula)
}
