package optimizer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var teamNames = []string{"T1", "T2", "T3", "T4", "T5", "T6"}

// slatePlayers builds one player per position per team. Higher team index
// means higher salary, projection and ownership.
func slatePlayers(teams int) []Player {
	var players []Player
	for t := 0; t < teams; t++ {
		for _, pos := range AllPositions {
			p := Player{
				ID:              fmt.Sprintf("%s-%s", teamNames[t], pos),
				Name:            fmt.Sprintf("%s %s", teamNames[t], pos),
				Team:            teamNames[t],
				Position:        pos,
				Salary:          5000 + 800*int(pos) + 600*t,
				ProjectedPoints: 25 + 2*float64(pos) + float64(t),
				Ownership:       5 + 10*float64(t) + float64(pos),
			}
			if pos == PositionTEAM {
				p.Salary = 3000 + 400*t
				p.ProjectedPoints = 10 + float64(t)
			}
			players = append(players, p)
		}
	}
	return players
}

func slateStacks(teams int) []Stack {
	stacks := make([]Stack, 0, teams)
	for t := 0; t < teams; t++ {
		stacks = append(stacks, Stack{
			Team:      teamNames[t],
			Positions: []Position{PositionTOP, PositionJNG, PositionMID, PositionADC},
			StackPlus: 6 + 2*float64(t),
		})
	}
	return stacks
}

func slatePool(t *testing.T, teams int) *PlayerPool {
	t.Helper()
	pool, err := NewPlayerPool(slatePlayers(teams), slateStacks(teams))
	require.NoError(t, err)
	return pool
}

// minimalPool is two identical players per position across teams A and B,
// with a single Stack+ entry for A.
func minimalPool(t *testing.T) *PlayerPool {
	t.Helper()
	var players []Player
	for _, team := range []string{"A", "B"} {
		for _, pos := range AllPositions {
			players = append(players, Player{
				ID:              team + "-" + pos.String(),
				Name:            team + " " + pos.String(),
				Team:            team,
				Position:        pos,
				Salary:          5000,
				ProjectedPoints: 20,
				Ownership:       10,
			})
		}
	}
	pool, err := NewPlayerPool(players, []Stack{{Team: "A", Positions: []Position{PositionTOP, PositionJNG, PositionMID}, StackPlus: 10}})
	require.NoError(t, err)
	return pool
}

// lineupOf builds a lineup from one team's players with the given captain.
func lineupOf(t *testing.T, pool *PlayerPool, team string, captain Position) Lineup {
	t.Helper()
	l := NewLineup()
	for _, pos := range AllPositions {
		ids := pool.TeamPosition(team, pos)
		require.NotEmpty(t, ids, "team %s has no %s", team, pos)
		l.Slots[pos] = ids[0]
	}
	l.Captain = captain
	return l
}

func seedOf(v uint64) *uint64 { return &v }

func fp(v float64) *float64 { return &v }

func cashContest() Contest { return Contest{Type: ContestCash, FieldSize: 100, EntryFee: 5} }

func gppContest() Contest { return Contest{Type: ContestGPP, FieldSize: 5000, EntryFee: 20} }

// assertValidBatch checks roster rules, the cap, the score range and dedupe.
func assertValidBatch(t *testing.T, pool *PlayerPool, lineups []ScoredLineup) {
	t.Helper()
	eval := NewEvaluator(pool, DefaultSalaryCap)
	seen := make(map[Fingerprint]bool)
	for _, l := range lineups {
		ok, v := eval.Feasible(l.Lineup, nil)
		assert.True(t, ok, "lineup %s infeasible: %s", l.ID, v)
		assert.LessOrEqual(t, l.TotalSalary, DefaultSalaryCap)
		assert.GreaterOrEqual(t, l.NexusScore, 25.0)
		assert.LessOrEqual(t, l.NexusScore, 65.0)
		assert.False(t, seen[l.Fingerprint], "duplicate fingerprint in batch")
		seen[l.Fingerprint] = true
	}
}

func countWithTeam(pool *PlayerPool, lineups []ScoredLineup, team string) int {
	n := 0
	for _, l := range lineups {
		for _, idx := range l.Slots {
			if pool.Player(idx).Team == team {
				n++
				break
			}
		}
	}
	return n
}
