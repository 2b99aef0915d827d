package optimizer

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// PlayerPool is an immutable, indexed view over the slate's players. Lineups
// refer to players by PlayerIndex into this pool.
type PlayerPool struct {
	players        []Player
	byID           map[string]PlayerIndex
	byPosition     [NumSlots][]PlayerIndex
	byTeamPosition map[string]*[NumSlots][]PlayerIndex
	teams          []string
	stacks         map[string][]Stack
	stackPlus      map[string]float64
	fieldOwnership float64
	minSalary      [NumSlots]int
}

// NewPlayerPool validates players and stacks and builds the lookup indexes.
func NewPlayerPool(players []Player, stacks []Stack) (*PlayerPool, error) {
	if len(players) == 0 {
		return nil, invalidInputf("player pool is empty")
	}

	pp := &PlayerPool{
		players:        make([]Player, len(players)),
		byID:           make(map[string]PlayerIndex, len(players)),
		byTeamPosition: make(map[string]*[NumSlots][]PlayerIndex),
		stacks:         make(map[string][]Stack),
		stackPlus:      make(map[string]float64),
	}
	copy(pp.players, players)

	ownership := make([]float64, len(players))
	for i := range pp.players {
		p := &pp.players[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Team = strings.TrimSpace(p.Team)
		if err := validatePlayer(p); err != nil {
			return nil, err
		}
		if _, dup := pp.byID[p.ID]; dup {
			return nil, invalidInputf("duplicate player id %q", p.ID)
		}

		idx := PlayerIndex(i)
		pp.byID[p.ID] = idx
		pp.byPosition[p.Position] = append(pp.byPosition[p.Position], idx)
		tp, ok := pp.byTeamPosition[p.Team]
		if !ok {
			tp = new([NumSlots][]PlayerIndex)
			pp.byTeamPosition[p.Team] = tp
			pp.teams = append(pp.teams, p.Team)
		}
		tp[p.Position] = append(tp[p.Position], idx)
		ownership[i] = p.Ownership
	}
	sort.Strings(pp.teams)
	pp.fieldOwnership = stat.Mean(ownership, nil)

	for pos := range pp.byPosition {
		pp.minSalary[pos] = math.MaxInt
		for _, idx := range pp.byPosition[pos] {
			if s := pp.players[idx].Salary; s < pp.minSalary[pos] {
				pp.minSalary[pos] = s
			}
		}
	}

	for _, s := range stacks {
		s.Team = strings.TrimSpace(s.Team)
		if s.Team == "" {
			return nil, invalidInputf("stack without team")
		}
		if math.IsNaN(s.StackPlus) || math.IsInf(s.StackPlus, 0) {
			return nil, invalidInputf("stack %s has a non-finite stack_plus", s.Team)
		}
		for _, pos := range s.Positions {
			if !pos.Valid() {
				return nil, invalidInputf("stack %s has an invalid position", s.Team)
			}
		}
		s.Positions = append([]Position(nil), s.Positions...)
		pp.stacks[s.Team] = append(pp.stacks[s.Team], s)
		if cur, ok := pp.stackPlus[s.Team]; !ok || s.StackPlus > cur {
			pp.stackPlus[s.Team] = s.StackPlus
		}
	}

	return pp, nil
}

func validatePlayer(p *Player) error {
	switch {
	case p.ID == "":
		return invalidInputf("player with empty id")
	case p.Team == "":
		return invalidInputf("player %s has no team", p.ID)
	case !p.Position.Valid():
		return invalidInputf("player %s has an invalid position", p.ID)
	case p.Salary < 0:
		return invalidInputf("player %s has a negative salary", p.ID)
	case p.ProjectedPoints < 0 || math.IsNaN(p.ProjectedPoints) || math.IsInf(p.ProjectedPoints, 0):
		return invalidInputf("player %s has an invalid projection", p.ID)
	case p.Ownership < 0 || p.Ownership > 100 || math.IsNaN(p.Ownership):
		return invalidInputf("player %s ownership must be within [0, 100]", p.ID)
	}
	return nil
}

func (pp *PlayerPool) Len() int { return len(pp.players) }

// Player returns the player at idx. The pointer must be treated as read-only.
func (pp *PlayerPool) Player(idx PlayerIndex) *Player { return &pp.players[idx] }

// Players returns a copy of the pool's players.
func (pp *PlayerPool) Players() []Player { return append([]Player(nil), pp.players...) }

func (pp *PlayerPool) Lookup(id string) (PlayerIndex, bool) {
	idx, ok := pp.byID[id]
	return idx, ok
}

func (pp *PlayerPool) ByPosition(pos Position) []PlayerIndex { return pp.byPosition[pos] }

// TeamPosition returns the team's players eligible for pos.
func (pp *PlayerPool) TeamPosition(team string, pos Position) []PlayerIndex {
	if tp, ok := pp.byTeamPosition[team]; ok {
		return tp[pos]
	}
	return nil
}

// Teams returns every team in ascending order.
func (pp *PlayerPool) Teams() []string { return pp.teams }

func (pp *PlayerPool) HasTeam(team string) bool {
	_, ok := pp.byTeamPosition[team]
	return ok
}

func (pp *PlayerPool) Stacks(team string) []Stack { return pp.stacks[team] }

// StackPlus returns the team's best Stack+ rating, zero without descriptors.
func (pp *PlayerPool) StackPlus(team string) float64 { return pp.stackPlus[team] }

// FieldOwnership is the mean ownership across the whole pool.
func (pp *PlayerPool) FieldOwnership() float64 { return pp.fieldOwnership }

// MinimumSalary is the cheapest possible lineup: every position at its
// cheapest player, with the cheapest role player as captain.
func (pp *PlayerPool) MinimumSalary() int {
	base, cheapestRole := 0, math.MaxInt
	for pos := range pp.minSalary {
		base += pp.minSalary[pos]
		if Position(pos).IsRole() && pp.minSalary[pos] < cheapestRole {
			cheapestRole = pp.minSalary[pos]
		}
	}
	return effectiveSalary(base, cheapestRole)
}

// CheckFeasible fails when some position has no player or even the cheapest
// lineup breaks the cap.
func (pp *PlayerPool) CheckFeasible(salaryCap int) error {
	for _, pos := range AllPositions {
		if len(pp.byPosition[pos]) == 0 {
			return infeasiblef("no player available for position %s", pos)
		}
	}
	if min := pp.MinimumSalary(); min > salaryCap {
		return infeasiblef("cheapest lineup costs %d, over the %d salary cap", min, salaryCap)
	}
	return nil
}

func effectiveSalary(base, captainSalary int) int {
	return int(math.Round(float64(base) + (CaptainMultiplier-1)*float64(captainSalary)))
}
