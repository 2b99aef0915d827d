package optimizer

import (
	"fmt"
	"math"
	"strings"
)

// Position is a lineup role. Five player roles plus the TEAM slot.
type Position uint8

const (
	PositionTOP Position = iota
	PositionJNG
	PositionMID
	PositionADC
	PositionSUP
	PositionTEAM
	numPositions
)

const (
	// NumSlots is the number of players in a lineup, one per Position.
	NumSlots = int(numPositions)
	// DefaultSalaryCap is the showdown salary cap.
	DefaultSalaryCap = 50000
	// CaptainMultiplier scales the captain's salary and points.
	CaptainMultiplier = 1.5
)

var positionNames = [NumSlots]string{"TOP", "JNG", "MID", "ADC", "SUP", "TEAM"}

var positionAliases = map[string]Position{
	"TOP":     PositionTOP,
	"JNG":     PositionJNG,
	"JUNGLE":  PositionJNG,
	"MID":     PositionMID,
	"ADC":     PositionADC,
	"BOT":     PositionADC,
	"SUP":     PositionSUP,
	"SUPPORT": PositionSUP,
	"TEAM":    PositionTEAM,
}

// AllPositions lists every slot in lineup order.
var AllPositions = []Position{PositionTOP, PositionJNG, PositionMID, PositionADC, PositionSUP, PositionTEAM}

// RolePositions lists the slots eligible for captain.
var RolePositions = []Position{PositionTOP, PositionJNG, PositionMID, PositionADC, PositionSUP}

func (p Position) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Position(%d)", uint8(p))
	}
	return positionNames[p]
}

func (p Position) Valid() bool { return p < numPositions }

// IsRole reports whether p is a player role (captain-eligible).
func (p Position) IsRole() bool { return p < PositionTEAM }

// ParsePosition parses a role name, case-insensitively.
func ParsePosition(s string) (Position, error) {
	if p, ok := positionAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return 0, invalidInputf("unknown position %q", s)
}

func (p Position) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, invalidInputf("invalid position %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	parsed, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Player is one entry of the player pool.
type Player struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Team            string   `json:"team"`
	Opponent        string   `json:"opponent,omitempty"`
	Position        Position `json:"position"`
	Salary          int      `json:"salary"`
	ProjectedPoints float64  `json:"projected_points"`
	Ownership       float64  `json:"ownership"`
}

// Stack describes a team's stackable positions and its Stack+ rating.
type Stack struct {
	Team      string     `json:"team"`
	Positions []Position `json:"stack_positions"`
	StackPlus float64    `json:"stack_plus"`
}

// ContestType drives ROI scaling and automatic strategy choice.
type ContestType string

const (
	ContestCash        ContestType = "cash"
	ContestDoubleUp    ContestType = "double_up"
	ContestGPP         ContestType = "gpp"
	ContestSingleEntry ContestType = "single_entry"
)

func (c ContestType) Valid() bool {
	switch c {
	case ContestCash, ContestDoubleUp, ContestGPP, ContestSingleEntry:
		return true
	}
	return false
}

// Contest is the contest a batch is generated for.
type Contest struct {
	Type      ContestType `json:"type"`
	FieldSize int         `json:"field_size"`
	EntryFee  float64     `json:"entry_fee"`
}

func (c Contest) Validate() error {
	if !c.Type.Valid() {
		return invalidInputf("unknown contest type %q", c.Type)
	}
	if c.FieldSize < 2 {
		return invalidInputf("contest field size must be at least 2, got %d", c.FieldSize)
	}
	if c.EntryFee < 0 || math.IsNaN(c.EntryFee) {
		return invalidInputf("contest entry fee must be non-negative")
	}
	return nil
}

// PlayerIndex addresses a player inside a PlayerPool.
type PlayerIndex uint32

// NoPlayer marks an unfilled lineup slot.
const NoPlayer PlayerIndex = math.MaxUint32

// Lineup is one player per slot, indexed by Position, plus the slot holding the
// captain.
type Lineup struct {
	Slots   [NumSlots]PlayerIndex
	Captain Position
}

// NewLineup returns a lineup with every slot empty.
func NewLineup() Lineup {
	var l Lineup
	for i := range l.Slots {
		l.Slots[i] = NoPlayer
	}
	return l
}

// CaptainPlayer returns the captain's pool index.
func (l Lineup) CaptainPlayer() PlayerIndex { return l.Slots[l.Captain] }

// Complete reports whether every slot holds a player.
func (l Lineup) Complete() bool {
	for _, idx := range l.Slots {
		if idx == NoPlayer {
			return false
		}
	}
	return true
}

// Contains reports whether idx is anywhere in the lineup.
func (l Lineup) Contains(idx PlayerIndex) bool {
	for _, s := range l.Slots {
		if s == idx {
			return true
		}
	}
	return false
}

// Fingerprint is the sorted set of player indices in a lineup. Captain
// placement is not part of it.
type Fingerprint [NumSlots]PlayerIndex

func (l Lineup) Fingerprint() Fingerprint {
	fp := Fingerprint(l.Slots)
	// insertion sort, six elements
	for i := 1; i < len(fp); i++ {
		for j := i; j > 0 && fp[j] < fp[j-1]; j-- {
			fp[j], fp[j-1] = fp[j-1], fp[j]
		}
	}
	return fp
}

func (f Fingerprint) Less(o Fingerprint) bool {
	for i := range f {
		if f[i] != o[i] {
			return f[i] < o[i]
		}
	}
	return false
}

// Algorithm names a sampler or driver.
type Algorithm string

const (
	AlgorithmMonteCarlo Algorithm = "monte_carlo"
	AlgorithmGenetic    Algorithm = "genetic"
	AlgorithmAnnealing  Algorithm = "simulated_annealing"
	AlgorithmHybrid     Algorithm = "hybrid"
	AlgorithmPortfolio  Algorithm = "portfolio"
)

// PortfolioLabel is the barbell bucket a selected lineup came from.
type PortfolioLabel string

const (
	LabelFloor    PortfolioLabel = "floor"
	LabelCeiling  PortfolioLabel = "ceiling"
	LabelBalanced PortfolioLabel = "balanced"
)

// ScoredLineup is an accepted lineup with every derived metric attached.
type ScoredLineup struct {
	Lineup
	ID               string
	Algorithm        Algorithm
	Fingerprint      Fingerprint
	TotalSalary      int
	ProjectedPoints  float64
	NexusScore       float64
	Formula          string
	StackSignature   string
	TotalOwnership   float64
	AverageOwnership float64
	ROI              float64
	Label            PortfolioLabel
}
