package optimizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestEvaluator_Feasible(t *testing.T) {
	pool := slatePool(t, 4)
	eval := NewEvaluator(pool, DefaultSalaryCap)
	base := lineupOf(t, pool, "T1", PositionMID)

	ok, v := eval.Feasible(base, nil)
	require.True(t, ok)
	assert.Equal(t, ViolationNone, v)

	tests := []struct {
		name   string
		mutate func(l *Lineup)
		want   Violation
	}{
		{name: "empty slot", mutate: func(l *Lineup) { l.Slots[PositionADC] = NoPlayer }, want: ViolationPositionFill},
		{name: "player in the wrong slot", mutate: func(l *Lineup) {
			l.Slots[PositionTOP] = pool.TeamPosition("T2", PositionJNG)[0]
		}, want: ViolationPositionFill},
		{name: "captain on TEAM", mutate: func(l *Lineup) { l.Captain = PositionTEAM }, want: ViolationCaptainPosition},
		{name: "over the cap", mutate: func(l *Lineup) {
			for _, pos := range AllPositions {
				l.Slots[pos] = pool.TeamPosition("T4", pos)[0]
			}
			l.Captain = PositionSUP
		}, want: ViolationSalaryCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			tt.mutate(&l)
			ok, v := eval.Feasible(l, nil)
			assert.False(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluator_ExposureCounters(t *testing.T) {
	pool := slatePool(t, 2)
	eval := NewEvaluator(pool, DefaultSalaryCap)
	l := lineupOf(t, pool, "T1", PositionTOP)

	policy, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopePlayer, PlayerID: "T1-TOP", Max: fp(50)}})
	require.NoError(t, err)
	counters := newBatchCounters(policy, 2)

	ok, _ := eval.Feasible(l, &counters)
	assert.True(t, ok)

	counters.apply(l, 1)
	ok, v := eval.Feasible(l, &counters)
	assert.False(t, ok)
	assert.Equal(t, ViolationExposure, v)
}

func TestScoring_MinimalLineup(t *testing.T) {
	pool := minimalPool(t)
	l := lineupOf(t, pool, "A", PositionTOP)

	assert.Equal(t, 32500, LineupSalary(pool, l))
	assert.InDelta(t, 130.0, ProjectedPoints(pool, l), 1e-9)
	assert.Equal(t, "6", StackSignature(TeamCounts(pool, l)))

	// base 13 at leverage 1 plus a 6-stack bonus of 12/2 stays under the floor
	assert.Equal(t, 25.0, NewScorer(pool).Nexus(l))
}

func TestComputeTerms(t *testing.T) {
	terms := computeTerms(200, 5, 10, []TeamCount{{Team: "A", Count: 5}, {Team: "B", Count: 1}})

	assert.InDelta(t, 20.0, terms.Base, 1e-9)
	assert.InDelta(t, 0.5, terms.OwnershipRatio, 1e-9)
	assert.InDelta(t, 1.5, terms.Leverage, 1e-9)
	assert.InDelta(t, 9.0, terms.StackBonus, 1e-9)

	canonical, err := LookupFormula(FormulaCanonical)
	require.NoError(t, err)
	assert.Equal(t, 34.5, canonical.Score(terms))

	// a zero field mean means no leverage adjustment
	flat := computeTerms(200, 5, 0, nil)
	assert.Equal(t, 1.0, flat.OwnershipRatio)
	assert.Equal(t, 1.0, flat.Leverage)
	assert.Zero(t, flat.StackBonus)
}

func TestStackSignature(t *testing.T) {
	tests := []struct {
		counts []TeamCount
		want   string
	}{
		{counts: []TeamCount{{"A", 4}, {"B", 2}}, want: "4|2"},
		{counts: []TeamCount{{"A", 2}, {"B", 3}, {"C", 1}}, want: "3|2"},
		{counts: []TeamCount{{"A", 1}, {"B", 1}}, want: ""},
		{counts: []TeamCount{{"A", 6}}, want: "6"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StackSignature(tt.counts))
	}
}

func TestROI(t *testing.T) {
	tests := []struct {
		contest ContestType
		want    float64
	}{
		{ContestCash, 4},
		{ContestDoubleUp, 6},
		{ContestGPP, 20},
		{ContestSingleEntry, 12},
	}
	for _, tt := range tests {
		t.Run(string(tt.contest), func(t *testing.T) {
			assert.InDelta(t, tt.want, ROI(120, 100, tt.contest), 1e-9)
			assert.InDelta(t, -tt.want, ROI(80, 100, tt.contest), 1e-9)
		})
	}
	assert.Zero(t, ROI(120, 0, ContestGPP))
}

func TestFormulas_StayInRange(t *testing.T) {
	pool := slatePool(t, 4)
	env := NewEnv(pool, nil, DefaultSalaryCap)
	policy, err := NewExposurePolicy(pool, nil)
	require.NoError(t, err)
	mc := NewMonteCarloSampler(DefaultMonteCarloConfig(), env, NewExposureEngine(policy, 0), rand.New(rand.NewSource(3)))

	var lineups []Lineup
	for len(lineups) < 40 {
		if l, ok := mc.Candidate(); ok {
			lineups = append(lineups, l)
		}
	}

	require.Len(t, FormulaNames(), 5)
	for _, name := range FormulaNames() {
		f, err := LookupFormula(name)
		require.NoError(t, err)
		for _, l := range lineups {
			score := f.Score(ComputeTerms(pool, l))
			assert.GreaterOrEqual(t, score, 25.0, name)
			assert.LessOrEqual(t, score, 65.0, name)
		}
	}

	_, err = LookupFormula("nope")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestScorer_SetFormula(t *testing.T) {
	pool := slatePool(t, 2)
	scorer := NewScorer(pool)
	l := lineupOf(t, pool, "T1", PositionTOP)

	before := scorer.Score(l, AlgorithmMonteCarlo)
	assert.Equal(t, FormulaCanonical, before.Formula)

	require.NoError(t, scorer.SetFormula("ceiling"))
	after := scorer.Score(l, AlgorithmMonteCarlo)
	assert.Equal(t, "ceiling", after.Formula)
	assert.Equal(t, FormulaCanonical, before.Formula)
	assert.Equal(t, before.ID, after.ID)

	assert.Error(t, scorer.SetFormula("unknown"))
	assert.Equal(t, "ceiling", scorer.Formula().Name)
}
