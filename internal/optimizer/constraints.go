package optimizer

// Violation is the first failed check for an infeasible lineup.
type Violation uint8

const (
	ViolationNone Violation = iota
	ViolationPositionFill
	ViolationCaptainPosition
	ViolationDuplicatePlayer
	ViolationSalaryCap
	ViolationExposure
)

var violationNames = [...]string{
	ViolationNone:            "none",
	ViolationPositionFill:    "position_fill",
	ViolationCaptainPosition: "captain_position",
	ViolationDuplicatePlayer: "duplicate_player",
	ViolationSalaryCap:       "salary_cap",
	ViolationExposure:        "exposure",
}

func (v Violation) String() string {
	if int(v) < len(violationNames) {
		return violationNames[v]
	}
	return "unknown"
}

// Evaluator checks lineups against the roster rules. It holds no batch state;
// exposure counters are passed in per call.
type Evaluator struct {
	pool      *PlayerPool
	salaryCap int
}

func NewEvaluator(pool *PlayerPool, salaryCap int) *Evaluator {
	if salaryCap <= 0 {
		salaryCap = DefaultSalaryCap
	}
	return &Evaluator{pool: pool, salaryCap: salaryCap}
}

func (e *Evaluator) SalaryCap() int { return e.salaryCap }

// Feasible runs the checks in order and stops at the first failure: position
// fill, captain position, uniqueness, salary, then exposure maxes when
// counters is non-nil.
func (e *Evaluator) Feasible(l Lineup, counters *BatchCounters) (bool, Violation) {
	for pos, idx := range l.Slots {
		if idx == NoPlayer || int(idx) >= e.pool.Len() || e.pool.Player(idx).Position != Position(pos) {
			return false, ViolationPositionFill
		}
	}
	if !l.Captain.IsRole() {
		return false, ViolationCaptainPosition
	}
	for i := 0; i < NumSlots; i++ {
		for j := i + 1; j < NumSlots; j++ {
			if l.Slots[i] == l.Slots[j] || e.pool.Player(l.Slots[i]).ID == e.pool.Player(l.Slots[j]).ID {
				return false, ViolationDuplicatePlayer
			}
		}
	}
	if LineupSalary(e.pool, l) > e.salaryCap {
		return false, ViolationSalaryCap
	}
	if counters != nil {
		if bad, _, _ := counters.violation(l); bad {
			return false, ViolationExposure
		}
	}
	return true, ViolationNone
}
