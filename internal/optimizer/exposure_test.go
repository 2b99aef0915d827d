package optimizer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposureSetting_Validate(t *testing.T) {
	mid := PositionMID
	tests := []struct {
		name    string
		setting ExposureSetting
		wantErr bool
	}{
		{name: "team max", setting: ExposureSetting{Scope: ScopeTeam, Team: "T1", Max: fp(40)}},
		{name: "position min", setting: ExposureSetting{Scope: ScopePosition, Position: &mid, Min: 10}},
		{name: "stack size", setting: ExposureSetting{Scope: ScopeTeamStack, StackSize: 4, Max: fp(30)}},
		{name: "min above max", setting: ExposureSetting{Scope: ScopeTeam, Team: "T1", Min: 60, Max: fp(40)}, wantErr: true},
		{name: "out of range", setting: ExposureSetting{Scope: ScopeGlobal, Max: fp(140)}, wantErr: true},
		{name: "team scope without team", setting: ExposureSetting{Scope: ScopeTeam, Max: fp(40)}, wantErr: true},
		{name: "stack of one", setting: ExposureSetting{Scope: ScopeTeamStack, StackSize: 1}, wantErr: true},
		{name: "player scope without id", setting: ExposureSetting{Scope: ScopePlayer, Min: 5}, wantErr: true},
		{name: "unknown scope", setting: ExposureSetting{Scope: "per_game"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.setting.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExposureScope_Unmarshal(t *testing.T) {
	var s ExposureSetting
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"per-team","team":"T1","max_exposure":50}`), &s))
	assert.Equal(t, ScopeTeam, s.Scope)
	assert.Equal(t, 50.0, s.MaxExposure())

	require.NoError(t, json.Unmarshal([]byte(`{"scope":"player","player_id":"x"}`), &s))
	assert.Equal(t, ScopePlayer, s.Scope)

	assert.Error(t, json.Unmarshal([]byte(`{"scope":"weekly"}`), &s))
}

func TestNewExposurePolicy_UnknownEntities(t *testing.T) {
	pool := slatePool(t, 2)

	_, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopePlayer, PlayerID: "ghost", Max: fp(10)}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopeTeam, Team: "ZZZ", Min: 10}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	policy, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopeGlobal, Max: fp(60)}})
	require.NoError(t, err)
	assert.Equal(t, pool.Len(), policy.ActiveBounds())
}

func TestExposureEngine_MaxAgainstTarget(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopeTeam, Team: "T1", Max: fp(50)}})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 4)

	withT1 := lineupOf(t, pool, "T1", PositionTOP)
	withT1b := withT1
	withT1b.Slots[PositionSUP] = pool.TeamPosition("T2", PositionSUP)[0]
	withT1c := withT1
	withT1c.Slots[PositionADC] = pool.TeamPosition("T3", PositionADC)[0]
	withoutT1 := lineupOf(t, pool, "T2", PositionTOP)

	assert.True(t, engine.TryAdd(withT1))
	assert.True(t, engine.TryAdd(withT1b))
	assert.False(t, engine.TryAdd(withT1c), "third T1 lineup would put T1 at 75%")
	assert.True(t, engine.TryAdd(withoutT1))
	assert.Equal(t, 3, engine.Total())

	engine.Remove(withT1b)
	assert.True(t, engine.TryAdd(withT1c))
}

func TestExposureEngine_DeficitsAndSwap(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{
		{Scope: ScopeTeam, Team: "T3", Min: 50},
		{Scope: ScopeTeam, Team: "T1", Min: 50},
	})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 2)

	t1 := lineupOf(t, pool, "T1", PositionTOP)
	t2 := lineupOf(t, pool, "T2", PositionTOP)
	require.True(t, engine.TryAdd(t1))
	require.True(t, engine.TryAdd(t2))

	deficits := engine.Deficits()
	require.Len(t, deficits, 1)
	assert.Equal(t, "team:T3", deficits[0].Entity)
	assert.Equal(t, 1, deficits[0].Required)
	assert.Equal(t, 0, deficits[0].Count)

	t3 := lineupOf(t, pool, "T3", PositionTOP)
	assert.False(t, engine.Swap(t1, t3), "removing the only T1 lineup breaks the T1 min")
	assert.True(t, engine.Swap(t2, t3))
	assert.Empty(t, engine.Deficits())

	report := engine.Report()
	assert.Equal(t, 2, report.TotalLineups)
	assert.Empty(t, report.Violations)
	for _, te := range report.Teams {
		if te.Team == "T2" {
			assert.Zero(t, te.Count)
		} else {
			assert.Equal(t, 50.0, te.Percentage)
		}
	}
}

func TestExposureEngine_BiasTowardsUnderExposed(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{
		{Scope: ScopeTeam, Team: "T2", Min: 40},
		{Scope: ScopeTeam, Team: "T3", Max: fp(25)},
	})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 4)
	require.True(t, engine.TryAdd(lineupOf(t, pool, "T3", PositionTOP)))

	b := engine.bias()
	assert.Greater(t, b.team("T2"), 1.0)
	assert.Equal(t, biasFloor, b.team("T3"))
	assert.Equal(t, 1.0, b.team("T1"))
}

func TestTrimExcess_ShortBatch(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopeTeam, Team: "T1", Max: fp(50)}})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 4)

	withT1 := lineupOf(t, pool, "T1", PositionTOP)
	withT1b := withT1
	withT1b.Slots[PositionSUP] = pool.TeamPosition("T2", PositionSUP)[0]
	withoutT1 := lineupOf(t, pool, "T2", PositionTOP)
	for _, l := range []Lineup{withT1, withT1b, withoutT1} {
		require.True(t, engine.TryAdd(l))
	}

	// two of three is above 50% once the batch stops short of its target
	excess := engine.Excess()
	require.Len(t, excess, 1)
	assert.Equal(t, "team:T1", excess[0].Entity)
	assert.Equal(t, 2, excess[0].Count)
	assert.Equal(t, 1, excess[0].Allowed)

	kept, dropped, err := trimExcess(pool, engine, []ScoredLineup{
		{Lineup: withT1, ID: "a", NexusScore: 40},
		{Lineup: withT1b, ID: "b", NexusScore: 30},
		{Lineup: withoutT1, ID: "c", NexusScore: 35},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
	assert.Empty(t, engine.Excess())
	assert.Empty(t, engine.Report().Violations)
}

func TestTrimExcess_KeepsMetMins(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{
		{Scope: ScopeTeam, Team: "T1", Max: fp(50)},
		{Scope: ScopeTeam, Team: "T2", Min: 60},
	})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 4)

	withT1 := lineupOf(t, pool, "T1", PositionTOP)
	withT1b := withT1
	withT1b.Slots[PositionSUP] = pool.TeamPosition("T2", PositionSUP)[0]
	withoutT1 := lineupOf(t, pool, "T2", PositionTOP)
	for _, l := range []Lineup{withT1, withT1b, withoutT1} {
		require.True(t, engine.TryAdd(l))
	}

	kept, _, err := trimExcess(pool, engine, []ScoredLineup{
		{Lineup: withT1, ID: "a", NexusScore: 40},
		{Lineup: withT1b, ID: "b", NexusScore: 30},
		{Lineup: withoutT1, ID: "c", NexusScore: 35},
	})
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "b", kept[0].ID, "b carries the second T2 appearance")
	assert.Equal(t, "c", kept[1].ID)
	assert.Empty(t, engine.Deficits())
}

func TestTrimExcess_EntityInEveryLineup(t *testing.T) {
	pool := slatePool(t, 3)
	policy, err := NewExposurePolicy(pool, []ExposureSetting{{Scope: ScopeTeam, Team: "T1", Max: fp(50)}})
	require.NoError(t, err)
	engine := NewExposureEngine(policy, 4)

	withT1 := lineupOf(t, pool, "T1", PositionTOP)
	withT1c := withT1
	withT1c.Slots[PositionADC] = pool.TeamPosition("T3", PositionADC)[0]
	require.True(t, engine.TryAdd(withT1))
	require.True(t, engine.TryAdd(withT1c))

	_, _, err = trimExcess(pool, engine, []ScoredLineup{
		{Lineup: withT1, ID: "a", NexusScore: 40},
		{Lineup: withT1c, ID: "b", NexusScore: 30},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExposureInfeasible), "got %v", err)
	assert.Equal(t, "team:T1", ErrorEntity(err))
}
