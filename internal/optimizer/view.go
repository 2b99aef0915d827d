package optimizer

// LineupPlayer is one slot of a rendered lineup.
type LineupPlayer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Team            string   `json:"team"`
	Position        Position `json:"position"`
	Salary          int      `json:"salary"`
	ProjectedPoints float64  `json:"projected_points"`
	Ownership       float64  `json:"ownership"`
	Captain         bool     `json:"captain"`
}

// LineupView is the self-contained, pool-free form of a lineup used for
// responses, storage and export.
type LineupView struct {
	ID               string         `json:"id"`
	Captain          LineupPlayer   `json:"captain"`
	Players          []LineupPlayer `json:"players"`
	TotalSalary      int            `json:"total_salary"`
	ProjectedPoints  float64        `json:"projected_points"`
	NexusScore       float64        `json:"nexus_score"`
	Formula          string         `json:"formula"`
	StackSignature   string         `json:"stack_signature"`
	StackCounts      map[string]int `json:"stack_counts"`
	TotalOwnership   float64        `json:"total_ownership"`
	AverageOwnership float64        `json:"average_ownership"`
	ROI              float64        `json:"roi"`
	Algorithm        Algorithm      `json:"algorithm"`
	Label            PortfolioLabel `json:"label,omitempty"`
}

// View renders sl against the pool it was built from.
func (pp *PlayerPool) View(sl ScoredLineup) LineupView {
	v := LineupView{
		ID:               sl.ID,
		Players:          make([]LineupPlayer, 0, NumSlots),
		TotalSalary:      sl.TotalSalary,
		ProjectedPoints:  round2(sl.ProjectedPoints),
		NexusScore:       sl.NexusScore,
		Formula:          sl.Formula,
		StackSignature:   sl.StackSignature,
		StackCounts:      StackCounts(pp, sl.Lineup),
		TotalOwnership:   round2(sl.TotalOwnership),
		AverageOwnership: round2(sl.AverageOwnership),
		ROI:              round2(sl.ROI),
		Algorithm:        sl.Algorithm,
		Label:            sl.Label,
	}
	for pos, idx := range sl.Slots {
		p := pp.Player(idx)
		lp := LineupPlayer{
			ID:              p.ID,
			Name:            p.Name,
			Team:            p.Team,
			Position:        p.Position,
			Salary:          p.Salary,
			ProjectedPoints: p.ProjectedPoints,
			Ownership:       p.Ownership,
			Captain:         Position(pos) == sl.Captain,
		}
		if lp.Captain {
			v.Captain = lp
		}
		v.Players = append(v.Players, lp)
	}
	return v
}

func (pp *PlayerPool) Views(lineups []ScoredLineup) []LineupView {
	out := make([]LineupView, len(lineups))
	for i := range lineups {
		out[i] = pp.View(lineups[i])
	}
	return out
}
