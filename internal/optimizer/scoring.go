package optimizer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	nexusMin          = 25.0
	nexusMax          = 65.0
	minOwnershipFloor = 0.1
)

// TeamCount is how many lineup players came from one team.
type TeamCount struct {
	Team  string `json:"team"`
	Count int    `json:"count"`
}

// TeamCounts returns per-team player counts ordered by team name.
func TeamCounts(pool *PlayerPool, l Lineup) []TeamCount {
	counts := make([]TeamCount, 0, NumSlots)
	for _, idx := range l.Slots {
		if idx == NoPlayer {
			continue
		}
		team := pool.Player(idx).Team
		found := false
		for i := range counts {
			if counts[i].Team == team {
				counts[i].Count++
				found = true
				break
			}
		}
		if !found {
			counts = append(counts, TeamCount{Team: team, Count: 1})
		}
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Team < counts[j].Team })
	return counts
}

// StackCounts maps team to player count for the lineup.
func StackCounts(pool *PlayerPool, l Lineup) map[string]int {
	out := make(map[string]int, NumSlots)
	for _, tc := range TeamCounts(pool, l) {
		out[tc.Team] = tc.Count
	}
	return out
}

// StackSignature joins the team counts of at least two in descending order,
// e.g. "4|2". Lineups with no such team yield "".
func StackSignature(counts []TeamCount) string {
	sizes := make([]int, 0, len(counts))
	for _, tc := range counts {
		if tc.Count >= 2 {
			sizes = append(sizes, tc.Count)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, "|")
}

// ProjectedPoints sums the lineup projection with the captain at 1.5x.
func ProjectedPoints(pool *PlayerPool, l Lineup) float64 {
	total := 0.0
	for pos, idx := range l.Slots {
		if idx == NoPlayer {
			continue
		}
		pts := pool.Player(idx).ProjectedPoints
		if Position(pos) == l.Captain {
			pts *= CaptainMultiplier
		}
		total += pts
	}
	return total
}

// LineupSalary is the effective salary with the captain at 1.5x.
func LineupSalary(pool *PlayerPool, l Lineup) int {
	base := 0
	for _, idx := range l.Slots {
		if idx != NoPlayer {
			base += pool.Player(idx).Salary
		}
	}
	captain := 0
	if c := l.CaptainPlayer(); c != NoPlayer {
		captain = pool.Player(c).Salary
	}
	return effectiveSalary(base, captain)
}

// Ownership returns the summed and mean ownership of the lineup's players.
func Ownership(pool *PlayerPool, l Lineup) (total, mean float64) {
	n := 0
	for _, idx := range l.Slots {
		if idx != NoPlayer {
			total += pool.Player(idx).Ownership
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return total, total / float64(n)
}

// NexusTerms are the intermediate quantities every formula combines.
type NexusTerms struct {
	Base           float64
	OwnershipRatio float64
	Leverage       float64
	StackBonus     float64
	MeanOwnership  float64
}

// ComputeTerms derives NexusTerms for a lineup.
func ComputeTerms(pool *PlayerPool, l Lineup) NexusTerms {
	_, mean := Ownership(pool, l)
	return computeTerms(ProjectedPoints(pool, l), mean, pool.FieldOwnership(), TeamCounts(pool, l))
}

func computeTerms(projected, meanOwnership, fieldOwnership float64, counts []TeamCount) NexusTerms {
	own := clamp(meanOwnership, minOwnershipFloor, 100)
	ratio := 1.0
	if fieldOwnership > 0 {
		ratio = own / fieldOwnership
	}
	leverage := clamp(2-ratio, 0.5, 1.5)

	bonus := 0
	for _, tc := range counts {
		if tc.Count >= 3 {
			bonus += (tc.Count - 2) * 3
		}
	}

	return NexusTerms{
		Base:           projected / 10,
		OwnershipRatio: ratio,
		Leverage:       leverage,
		StackBonus:     float64(bonus),
		MeanOwnership:  own,
	}
}

// NexusFormula maps NexusTerms to a raw score before clamping.
type NexusFormula struct {
	Name        string
	Description string
	raw         func(t NexusTerms) float64
}

// Score clamps the raw value to [25, 65] and rounds to one decimal.
func (f NexusFormula) Score(t NexusTerms) float64 {
	v := clamp(f.raw(t), nexusMin, nexusMax)
	return math.Round(v*10) / 10
}

// FormulaCanonical is the default Nexus formula.
const FormulaCanonical = "canonical"

var formulas = map[string]NexusFormula{
	FormulaCanonical: {
		Name:        FormulaCanonical,
		Description: "base x leverage + stack bonus / 2",
		raw: func(t NexusTerms) float64 {
			return t.Base*t.Leverage + t.StackBonus/2
		},
	},
	"multiplicative": {
		Name:        "multiplicative",
		Description: "base x leverage x (1 + stack bonus / 30)",
		raw: func(t NexusTerms) float64 {
			return t.Base * t.Leverage * (1 + t.StackBonus/30)
		},
	},
	"weighted": {
		Name:        "weighted",
		Description: "0.6 base x leverage + 0.4 base + 0.75 stack bonus",
		raw: func(t NexusTerms) float64 {
			return 0.6*t.Base*t.Leverage + 0.4*t.Base + 0.75*t.StackBonus
		},
	},
	"ceiling": {
		Name:        "ceiling",
		Description: "base x leverage + full stack bonus",
		raw: func(t NexusTerms) float64 {
			return t.Base*t.Leverage + t.StackBonus
		},
	},
	"ownership": {
		Name:        "ownership",
		Description: "base x leverage squared + stack bonus / 4",
		raw: func(t NexusTerms) float64 {
			return t.Base*t.Leverage*t.Leverage + t.StackBonus/4
		},
	},
}

// LookupFormula returns the named formula.
func LookupFormula(name string) (NexusFormula, error) {
	if name == "" {
		name = FormulaCanonical
	}
	f, ok := formulas[name]
	if !ok {
		return NexusFormula{}, invalidInputf("unknown nexus formula %q", name)
	}
	return f, nil
}

// FormulaNames lists the registered formulas alphabetically.
func FormulaNames() []string {
	names := make([]string, 0, len(formulas))
	for name := range formulas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scorer computes NexusScore against a pool. The active formula can be
// swapped while generations run; a lineup is scored with whichever formula is
// active when it is emitted.
type Scorer struct {
	pool    *PlayerPool
	formula atomic.Pointer[NexusFormula]
}

func NewScorer(pool *PlayerPool) *Scorer {
	s := &Scorer{pool: pool}
	f := formulas[FormulaCanonical]
	s.formula.Store(&f)
	return s
}

func (s *Scorer) SetFormula(name string) error {
	f, err := LookupFormula(name)
	if err != nil {
		return err
	}
	s.formula.Store(&f)
	return nil
}

func (s *Scorer) Formula() NexusFormula { return *s.formula.Load() }

// Nexus scores l with the active formula.
func (s *Scorer) Nexus(l Lineup) float64 {
	return s.Formula().Score(ComputeTerms(s.pool, l))
}

// Score fills every derived metric except ROI, which needs the whole batch.
func (s *Scorer) Score(l Lineup, alg Algorithm) ScoredLineup {
	f := s.Formula()
	counts := TeamCounts(s.pool, l)
	projected := ProjectedPoints(s.pool, l)
	total, mean := Ownership(s.pool, l)
	return ScoredLineup{
		Lineup:           l,
		ID:               lineupID(s.pool, l),
		Algorithm:        alg,
		Fingerprint:      l.Fingerprint(),
		TotalSalary:      LineupSalary(s.pool, l),
		ProjectedPoints:  projected,
		NexusScore:       f.Score(computeTerms(projected, mean, s.pool.FieldOwnership(), counts)),
		Formula:          f.Name,
		StackSignature:   StackSignature(counts),
		TotalOwnership:   total,
		AverageOwnership: mean,
	}
}

// ROIMultiplier is the contest scale k in the ROI estimate.
func ROIMultiplier(ct ContestType) float64 {
	switch ct {
	case ContestCash:
		return 0.2
	case ContestDoubleUp:
		return 0.3
	case ContestSingleEntry:
		return 0.6
	default:
		return 1.0
	}
}

// ROI estimates return in percent: (P / poolMean - 1) x k x 100.
func ROI(projected, poolMean float64, ct ContestType) float64 {
	if poolMean <= 0 {
		return 0
	}
	return (projected/poolMean - 1) * ROIMultiplier(ct) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
