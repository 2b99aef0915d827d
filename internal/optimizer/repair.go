package optimizer

// MaxRepairs bounds the repair swaps attempted on one candidate.
const MaxRepairs = 20

type repairer struct {
	pool      *PlayerPool
	evaluator *Evaluator
	exposure  *ExposureEngine
}

// repair walks l towards feasibility with single-slot swaps. Salary breaches
// swap the most expensive slot for the best-projected cheaper player at the
// same position; player exposure breaches swap the offender out. It returns
// the lineup, the swaps made and whether the result is feasible.
func (r *repairer) repair(l Lineup) (Lineup, int, bool) {
	var exhausted [NumSlots]bool
	var banned []PlayerIndex
	repairs := 0
	for {
		ok, v := r.evaluator.Feasible(l, nil)
		if ok {
			fits, offender, _ := r.exposure.Check(l)
			if fits {
				return l, repairs, true
			}
			if offender == NoPlayer || repairs >= MaxRepairs {
				return l, repairs, false
			}
			banned = append(banned, offender)
			if !r.swapOut(&l, offender, banned) {
				return l, repairs, false
			}
			repairs++
			continue
		}
		if repairs >= MaxRepairs {
			return l, repairs, false
		}
		switch v {
		case ViolationCaptainPosition:
			l.Captain = bestCaptain(r.pool, l)
		case ViolationSalaryCap:
			if !r.swapCheaper(&l, &exhausted) {
				return l, repairs, false
			}
		default:
			return l, repairs, false
		}
		repairs++
	}
}

func bestCaptain(pool *PlayerPool, l Lineup) Position {
	best, bestPts := PositionTOP, -1.0
	for _, pos := range RolePositions {
		if idx := l.Slots[pos]; idx != NoPlayer {
			if pts := pool.Player(idx).ProjectedPoints; pts > bestPts {
				best, bestPts = pos, pts
			}
		}
	}
	return best
}

func slotSalary(pool *PlayerPool, l Lineup, pos Position) float64 {
	s := float64(pool.Player(l.Slots[pos]).Salary)
	if pos == l.Captain {
		s *= CaptainMultiplier
	}
	return s
}

func (r *repairer) swapCheaper(l *Lineup, exhausted *[NumSlots]bool) bool {
	for {
		slot, top := -1, -1.0
		for pos := range l.Slots {
			if exhausted[pos] {
				continue
			}
			if s := slotSalary(r.pool, *l, Position(pos)); s > top {
				slot, top = pos, s
			}
		}
		if slot < 0 {
			return false
		}
		current := r.pool.Player(l.Slots[slot])
		alt := r.bestAlternative(*l, Position(slot), func(p *Player) bool { return p.Salary < current.Salary }, nil)
		if alt == NoPlayer {
			exhausted[slot] = true
			continue
		}
		l.Slots[slot] = alt
		return true
	}
}

func (r *repairer) swapOut(l *Lineup, offender PlayerIndex, banned []PlayerIndex) bool {
	slot := r.pool.Player(offender).Position
	headroom := r.evaluator.SalaryCap() - LineupSalary(r.pool, *l)
	limit := r.pool.Player(offender).Salary + headroom
	if slot == l.Captain {
		limit = r.pool.Player(offender).Salary + int(float64(headroom)/CaptainMultiplier)
	}
	alt := r.bestAlternative(*l, slot, func(p *Player) bool { return p.Salary <= limit }, banned)
	if alt == NoPlayer {
		return false
	}
	l.Slots[slot] = alt
	return true
}

// bestAlternative returns the highest-projected player at pos not already in
// l that passes keep.
func (r *repairer) bestAlternative(l Lineup, pos Position, keep func(*Player) bool, banned []PlayerIndex) PlayerIndex {
	best, bestPts := NoPlayer, -1.0
outer:
	for _, idx := range r.pool.ByPosition(pos) {
		if l.Contains(idx) {
			continue
		}
		for _, b := range banned {
			if b == idx {
				continue outer
			}
		}
		p := r.pool.Player(idx)
		if keep(p) && p.ProjectedPoints > bestPts {
			best, bestPts = idx, p.ProjectedPoints
		}
	}
	return best
}
