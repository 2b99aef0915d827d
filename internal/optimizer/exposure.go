package optimizer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

const (
	exposureEpsilon = 1e-9
	// biasFloor is the seed weight multiplier for entities that would breach a max.
	biasFloor = 1e-3
	// biasBoost is the largest multiplier applied to an entity below its min or target.
	biasBoost = 10.0
)

// ExposureScope selects what an exposure setting bounds.
type ExposureScope string

const (
	ScopeGlobal    ExposureScope = "global"
	ScopePosition  ExposureScope = "per_position"
	ScopeTeam      ExposureScope = "per_team"
	ScopeTeamStack ExposureScope = "per_team_stack"
	ScopePlayer    ExposureScope = "per_player"
)

func (s *ExposureScope) UnmarshalText(b []byte) error {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(b))), "-", "_")
	if v != string(ScopeGlobal) && !strings.HasPrefix(v, "per_") {
		v = "per_" + v
	}
	switch ExposureScope(v) {
	case ScopeGlobal, ScopePosition, ScopeTeam, ScopeTeamStack, ScopePlayer:
		*s = ExposureScope(v)
		return nil
	}
	return invalidInputf("unknown exposure scope %q", string(b))
}

// ExposureSetting bounds the share of a batch containing an entity. Min, Max
// and Target are percentages in [0, 100].
type ExposureSetting struct {
	Scope     ExposureScope `json:"scope"`
	Position  *Position     `json:"position,omitempty"`
	Team      string        `json:"team,omitempty"`
	StackSize int           `json:"stack_size,omitempty"`
	PlayerID  string        `json:"player_id,omitempty"`
	Min       float64       `json:"min_exposure"`
	Max       *float64      `json:"max_exposure,omitempty"`
	Target    *float64      `json:"target_exposure,omitempty"`
}

// MaxExposure returns the max bound, 100 when unset.
func (s ExposureSetting) MaxExposure() float64 {
	if s.Max == nil {
		return 100
	}
	return *s.Max
}

// Active reports whether the setting constrains anything.
func (s ExposureSetting) Active() bool {
	return s.Min > 0 || s.MaxExposure() < 100 || s.Target != nil
}

func (s ExposureSetting) Validate() error {
	inRange := func(v float64) bool { return v >= 0 && v <= 100 && !math.IsNaN(v) }
	if !inRange(s.Min) || !inRange(s.MaxExposure()) {
		return invalidInputf("exposure bounds must be within [0, 100]")
	}
	if s.Min > s.MaxExposure() {
		return invalidInputf("exposure min %.1f exceeds max %.1f", s.Min, s.MaxExposure())
	}
	if s.Target != nil && !inRange(*s.Target) {
		return invalidInputf("exposure target must be within [0, 100]")
	}
	switch s.Scope {
	case ScopeGlobal:
	case ScopePosition:
		if s.Position == nil || !s.Position.Valid() {
			return invalidInputf("per_position exposure requires a position")
		}
	case ScopeTeam:
		if s.Team == "" {
			return invalidInputf("per_team exposure requires a team")
		}
	case ScopeTeamStack:
		if s.StackSize < 2 || s.StackSize > NumSlots {
			return invalidInputf("per_team_stack exposure requires a stack size in [2, %d]", NumSlots)
		}
	case ScopePlayer:
		if s.PlayerID == "" {
			return invalidInputf("per_player exposure requires a player id")
		}
	default:
		return invalidInputf("unknown exposure scope %q", s.Scope)
	}
	return nil
}

// StackKey identifies a team stack of a given size. An empty Team stands for
// any team.
type StackKey struct {
	Team string
	Size int
}

func (k StackKey) entity() string {
	team := k.Team
	if team == "" {
		team = "*"
	}
	return fmt.Sprintf("team_stack:%s:%d", team, k.Size)
}

type bound struct {
	min, max, target float64
	hasTarget        bool
}

func newBound() bound { return bound{max: 100} }

func (b *bound) merge(s ExposureSetting) {
	b.min = math.Max(b.min, s.Min)
	b.max = math.Min(b.max, s.MaxExposure())
	if s.Target != nil {
		b.target = math.Max(b.target, *s.Target)
		b.hasTarget = true
	}
}

func (b bound) goal() float64 {
	if b.hasTarget {
		return math.Max(b.min, b.target)
	}
	return b.min
}

// ExposurePolicy is a resolved, immutable set of exposure settings.
type ExposurePolicy struct {
	pool     *PlayerPool
	settings []ExposureSetting
	players  []bound
	teams    map[string]bound
	stacks   map[StackKey]bound
	active   int
}

// NewExposurePolicy validates settings against the pool.
func NewExposurePolicy(pool *PlayerPool, settings []ExposureSetting) (*ExposurePolicy, error) {
	p := &ExposurePolicy{
		pool:     pool,
		settings: append([]ExposureSetting(nil), settings...),
		players:  make([]bound, pool.Len()),
		teams:    make(map[string]bound),
		stacks:   make(map[StackKey]bound),
	}
	for i := range p.players {
		p.players[i] = newBound()
	}

	for _, s := range settings {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if !s.Active() {
			continue
		}
		switch s.Scope {
		case ScopeGlobal:
			for i := range p.players {
				p.players[i].merge(s)
			}
			p.active += pool.Len()
		case ScopePosition:
			for _, idx := range pool.ByPosition(*s.Position) {
				p.players[idx].merge(s)
				p.active++
			}
		case ScopePlayer:
			idx, ok := pool.Lookup(s.PlayerID)
			if !ok {
				return nil, invalidInputf("exposure setting references unknown player %q", s.PlayerID)
			}
			p.players[idx].merge(s)
			p.active++
		case ScopeTeam:
			if !pool.HasTeam(s.Team) {
				return nil, invalidInputf("exposure setting references unknown team %q", s.Team)
			}
			b, ok := p.teams[s.Team]
			if !ok {
				b = newBound()
			}
			b.merge(s)
			p.teams[s.Team] = b
			p.active++
		case ScopeTeamStack:
			if s.Team != "" && !pool.HasTeam(s.Team) {
				return nil, invalidInputf("exposure setting references unknown team %q", s.Team)
			}
			key := StackKey{Team: s.Team, Size: s.StackSize}
			b, ok := p.stacks[key]
			if !ok {
				b = newBound()
			}
			b.merge(s)
			p.stacks[key] = b
			p.active++
		}
	}
	return p, nil
}

// ActiveBounds counts the entity bounds in force, used to judge constraint
// density.
func (p *ExposurePolicy) ActiveBounds() int { return p.active }

func (p *ExposurePolicy) Empty() bool { return p.active == 0 }

func (p *ExposurePolicy) Settings() []ExposureSetting { return p.settings }

// BatchCounters count entity appearances across a batch in progress.
type BatchCounters struct {
	Target     int
	Total      int
	Players    []int
	Teams      map[string]int
	TeamStacks map[StackKey]int
	policy     *ExposurePolicy
}

func newBatchCounters(policy *ExposurePolicy, target int) BatchCounters {
	return BatchCounters{
		Target:     target,
		Players:    make([]int, policy.pool.Len()),
		Teams:      make(map[string]int),
		TeamStacks: make(map[StackKey]int),
		policy:     policy,
	}
}

func (c *BatchCounters) clone() BatchCounters {
	out := *c
	out.Players = append([]int(nil), c.Players...)
	out.Teams = make(map[string]int, len(c.Teams))
	for k, v := range c.Teams {
		out.Teams[k] = v
	}
	out.TeamStacks = make(map[StackKey]int, len(c.TeamStacks))
	for k, v := range c.TeamStacks {
		out.TeamStacks[k] = v
	}
	return out
}

// denominator is the batch size hypothetical percentages are measured
// against: the batch target when known, else the post-add total.
func (c *BatchCounters) denominator() float64 {
	if c.Target > 0 {
		return float64(c.Target)
	}
	return float64(c.Total + 1)
}

func stackKeys(counts []TeamCount) []StackKey {
	keys := make([]StackKey, 0, len(counts)*2)
	seenSize := 0
	for _, tc := range counts {
		if tc.Count < 2 {
			continue
		}
		keys = append(keys, StackKey{Team: tc.Team, Size: tc.Count})
		if seenSize&(1<<tc.Count) == 0 {
			seenSize |= 1 << tc.Count
			keys = append(keys, StackKey{Size: tc.Count})
		}
	}
	return keys
}

func (c *BatchCounters) apply(l Lineup, delta int) {
	counts := TeamCounts(c.policy.pool, l)
	c.Total += delta
	for _, idx := range l.Slots {
		c.Players[idx] += delta
	}
	for _, tc := range counts {
		c.Teams[tc.Team] += delta
	}
	for _, k := range stackKeys(counts) {
		c.TeamStacks[k] += delta
	}
}

func exceeds(count int, denom, max float64) bool {
	return float64(count+1)/denom*100 > max+exposureEpsilon
}

// violation checks every max bound for a hypothetical add of l. It returns
// the offending player when the breach is player-level.
func (c *BatchCounters) violation(l Lineup) (bool, PlayerIndex, string) {
	p := c.policy
	if p == nil || p.Empty() {
		return false, NoPlayer, ""
	}
	denom := c.denominator()
	for _, idx := range l.Slots {
		if exceeds(c.Players[idx], denom, p.players[idx].max) {
			return true, idx, "player:" + p.pool.Player(idx).ID
		}
	}
	counts := TeamCounts(p.pool, l)
	for _, tc := range counts {
		if b, ok := p.teams[tc.Team]; ok && exceeds(c.Teams[tc.Team], denom, b.max) {
			return true, NoPlayer, "team:" + tc.Team
		}
	}
	for _, k := range stackKeys(counts) {
		if b, ok := p.stacks[k]; ok && exceeds(c.TeamStacks[k], denom, b.max) {
			return true, NoPlayer, k.entity()
		}
	}
	return false, NoPlayer, ""
}

// ExposureDeficit is an entity below its min exposure.
type ExposureDeficit struct {
	Scope     ExposureScope `json:"scope"`
	Entity    string        `json:"entity"`
	Player    PlayerIndex   `json:"-"`
	Team      string        `json:"team,omitempty"`
	StackSize int           `json:"stack_size,omitempty"`
	Count     int           `json:"count"`
	Required  int           `json:"required"`
}

// ExposureExcess is an entity counted in more lineups than its max allows.
type ExposureExcess struct {
	Scope     ExposureScope `json:"scope"`
	Entity    string        `json:"entity"`
	Player    PlayerIndex   `json:"-"`
	Team      string        `json:"team,omitempty"`
	StackSize int           `json:"stack_size,omitempty"`
	Count     int           `json:"count"`
	Allowed   int           `json:"allowed"`
	Max       float64       `json:"max_exposure"`
}

// deficit views the excess entity as a deficit so the entity helpers apply.
func (x ExposureExcess) deficit() ExposureDeficit {
	return ExposureDeficit{Scope: x.Scope, Entity: x.Entity, Player: x.Player, Team: x.Team, StackSize: x.StackSize}
}

func allowed(max float64, total int) int {
	return int(math.Floor(max/100*float64(total) + exposureEpsilon))
}

func over(count, total int, max float64) bool {
	return total > 0 && float64(count)/float64(total)*100 > max+exposureEpsilon
}

// excess checks every max against the counted total rather than the target.
func (c *BatchCounters) excess() []ExposureExcess {
	p := c.policy
	if p == nil || p.Empty() || c.Total == 0 {
		return nil
	}
	var out []ExposureExcess
	for i, b := range p.players {
		if over(c.Players[i], c.Total, b.max) {
			out = append(out, ExposureExcess{
				Scope: ScopePlayer, Entity: "player:" + p.pool.Player(PlayerIndex(i)).ID,
				Player: PlayerIndex(i), Count: c.Players[i], Allowed: allowed(b.max, c.Total), Max: b.max,
			})
		}
	}
	for _, team := range p.pool.Teams() {
		if b, ok := p.teams[team]; ok && over(c.Teams[team], c.Total, b.max) {
			out = append(out, ExposureExcess{
				Scope: ScopeTeam, Entity: "team:" + team, Player: NoPlayer,
				Team: team, Count: c.Teams[team], Allowed: allowed(b.max, c.Total), Max: b.max,
			})
		}
	}
	keys := make([]StackKey, 0, len(p.stacks))
	for k, b := range p.stacks {
		if b.max < 100 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Team != keys[j].Team {
			return keys[i].Team < keys[j].Team
		}
		return keys[i].Size < keys[j].Size
	})
	for _, k := range keys {
		b := p.stacks[k]
		if over(c.TeamStacks[k], c.Total, b.max) {
			out = append(out, ExposureExcess{
				Scope: ScopeTeamStack, Entity: k.entity(), Player: NoPlayer,
				Team: k.Team, StackSize: k.Size, Count: c.TeamStacks[k], Allowed: allowed(b.max, c.Total), Max: b.max,
			})
		}
	}
	return out
}

func required(min float64, total int) int {
	return int(math.Ceil(min/100*float64(total) - exposureEpsilon))
}

// deficits lists every unmet min, players first, then teams, then stacks, each
// in a stable order.
func (c *BatchCounters) deficits() []ExposureDeficit {
	p := c.policy
	if p == nil || p.Empty() || c.Total == 0 {
		return nil
	}
	var out []ExposureDeficit
	for i, b := range p.players {
		if b.min <= 0 {
			continue
		}
		if need := required(b.min, c.Total); c.Players[i] < need {
			out = append(out, ExposureDeficit{
				Scope: ScopePlayer, Entity: "player:" + p.pool.Player(PlayerIndex(i)).ID,
				Player: PlayerIndex(i), Count: c.Players[i], Required: need,
			})
		}
	}
	for _, team := range p.pool.Teams() {
		b, ok := p.teams[team]
		if !ok || b.min <= 0 {
			continue
		}
		if need := required(b.min, c.Total); c.Teams[team] < need {
			out = append(out, ExposureDeficit{
				Scope: ScopeTeam, Entity: "team:" + team, Player: NoPlayer,
				Team: team, Count: c.Teams[team], Required: need,
			})
		}
	}
	keys := make([]StackKey, 0, len(p.stacks))
	for k, b := range p.stacks {
		if b.min > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Team != keys[j].Team {
			return keys[i].Team < keys[j].Team
		}
		return keys[i].Size < keys[j].Size
	})
	for _, k := range keys {
		if need := required(p.stacks[k].min, c.Total); c.TeamStacks[k] < need {
			out = append(out, ExposureDeficit{
				Scope: ScopeTeamStack, Entity: k.entity(), Player: NoPlayer,
				Team: k.Team, StackSize: k.Size, Count: c.TeamStacks[k], Required: need,
			})
		}
	}
	return out
}

func bias(count int, denom float64, b bound) float64 {
	if exceeds(count, denom, b.max) {
		return biasFloor
	}
	goal := b.goal()
	if goal <= 0 {
		return 1
	}
	share := float64(count) / denom * 100
	if share >= goal {
		return 1
	}
	return 1 + (biasBoost-1)*(goal-share)/goal
}

// exposureBias is a snapshot of seed-weight multipliers for samplers.
type exposureBias struct {
	players []float64
	teams   map[string]float64
}

func (b *exposureBias) player(idx PlayerIndex) float64 {
	if b == nil || b.players == nil {
		return 1
	}
	return b.players[idx]
}

func (b *exposureBias) team(team string) float64 {
	if b == nil {
		return 1
	}
	if v, ok := b.teams[team]; ok {
		return v
	}
	return 1
}

func (c *BatchCounters) bias() *exposureBias {
	p := c.policy
	if p == nil || p.Empty() {
		return nil
	}
	denom := c.denominator()
	out := &exposureBias{players: make([]float64, len(p.players)), teams: make(map[string]float64)}
	for i, b := range p.players {
		out.players[i] = bias(c.Players[i], denom, b)
	}
	for team, b := range p.teams {
		out.teams[team] = bias(c.Teams[team], denom, b)
	}
	for k, b := range p.stacks {
		if k.Team == "" {
			continue
		}
		// Stack maxes are size-specific, so they only ever boost the team.
		v := bias(c.TeamStacks[k], denom, b)
		if cur, ok := out.teams[k.Team]; v > 1 && (!ok || (cur >= 1 && v > cur)) {
			out.teams[k.Team] = v
		}
	}
	return out
}

// ExposureEngine guards the batch counters. Checks and updates happen under
// one mutex.
type ExposureEngine struct {
	policy   *ExposurePolicy
	mu       sync.Mutex
	counters BatchCounters
}

func NewExposureEngine(policy *ExposurePolicy, target int) *ExposureEngine {
	return &ExposureEngine{policy: policy, counters: newBatchCounters(policy, target)}
}

func (e *ExposureEngine) Policy() *ExposurePolicy { return e.policy }

// Check reports whether l could be added without breaching a max.
func (e *ExposureEngine) Check(l Lineup) (bool, PlayerIndex, string) {
	if e.policy.Empty() {
		return true, NoPlayer, ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bad, idx, entity := e.counters.violation(l)
	return !bad, idx, entity
}

// TryAdd admits l when no max would be breached.
func (e *ExposureEngine) TryAdd(l Lineup) bool {
	ok, _ := e.admit(l)
	return ok
}

// admit is TryAdd that also names the entity that blocked l.
func (e *ExposureEngine) admit(l Lineup) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bad, _, entity := e.counters.violation(l); bad {
		return false, entity
	}
	e.counters.apply(l, 1)
	return true, ""
}

func (e *ExposureEngine) Remove(l Lineup) {
	e.mu.Lock()
	e.counters.apply(l, -1)
	e.mu.Unlock()
}

// Swap replaces out with in when doing so breaches no max and leaves every
// min that was met still met.
func (e *ExposureEngine) Swap(out, in Lineup) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := deficitIndex(e.counters.deficits())
	trial := e.counters.clone()
	trial.apply(out, -1)
	if bad, _, _ := trial.violation(in); bad {
		return false
	}
	trial.apply(in, 1)
	for _, d := range trial.deficits() {
		prev, was := before[d.Entity]
		if !was || d.Count < prev {
			return false
		}
	}
	e.counters = trial
	return true
}

func deficitIndex(ds []ExposureDeficit) map[string]int {
	out := make(map[string]int, len(ds))
	for _, d := range ds {
		out[d.Entity] = d.Count
	}
	return out
}

// Drop removes l when doing so leaves every min that was met still met.
func (e *ExposureEngine) Drop(l Lineup) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := deficitIndex(e.counters.deficits())
	trial := e.counters.clone()
	trial.apply(l, -1)
	if trial.Total == 0 {
		return false
	}
	for _, d := range trial.deficits() {
		prev, was := before[d.Entity]
		if !was || d.Count < prev {
			return false
		}
	}
	e.counters = trial
	return true
}

// Excess lists every entity above its max share of the lineups actually
// counted, in the same order as Deficits.
func (e *ExposureEngine) Excess() []ExposureExcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters.excess()
}

// Deficits lists every unmet min against the current total.
func (e *ExposureEngine) Deficits() []ExposureDeficit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters.deficits()
}

func (e *ExposureEngine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters.Total
}

func (e *ExposureEngine) bias() *exposureBias {
	if e.policy.Empty() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters.bias()
}

// ExposureReport summarizes a finished batch.
type ExposureReport struct {
	TotalLineups int                `json:"total_lineups"`
	Players      []PlayerExposure   `json:"player_exposures"`
	Teams        []TeamExposure     `json:"team_exposures"`
	Stacks       []StackExposure    `json:"stack_exposures"`
	Positions    []PositionExposure `json:"position_exposures"`
	Violations   []string           `json:"violations"`
}

type PlayerExposure struct {
	PlayerID    string   `json:"player_id"`
	PlayerName  string   `json:"player_name"`
	Position    Position `json:"position"`
	Count       int      `json:"count"`
	Percentage  float64  `json:"percentage"`
	MinRequired float64  `json:"min_required,omitempty"`
	MaxAllowed  float64  `json:"max_allowed"`
}

type TeamExposure struct {
	Team        string  `json:"team"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	MinRequired float64 `json:"min_required,omitempty"`
	MaxAllowed  float64 `json:"max_allowed"`
}

type StackExposure struct {
	Team       string  `json:"team"`
	StackSize  int     `json:"stack_size"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PositionExposure is a team's share of all slots at a position,
// appearances / (total x 6).
type PositionExposure struct {
	Position   Position `json:"position"`
	Team       string   `json:"team"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
}

func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

// Report builds an exposure report for the lineups currently counted.
func (e *ExposureEngine) Report() ExposureReport {
	e.mu.Lock()
	c := e.counters.clone()
	e.mu.Unlock()

	p := e.policy
	pool := p.pool
	r := ExposureReport{TotalLineups: c.Total, Violations: []string{}}

	for i, n := range c.Players {
		if n == 0 && p.players[i].min == 0 {
			continue
		}
		pl := pool.Player(PlayerIndex(i))
		pe := PlayerExposure{
			PlayerID: pl.ID, PlayerName: pl.Name, Position: pl.Position,
			Count: n, Percentage: pct(n, c.Total),
			MinRequired: p.players[i].min, MaxAllowed: p.players[i].max,
		}
		r.Players = append(r.Players, pe)
		if pe.Percentage > pe.MaxAllowed+exposureEpsilon {
			r.Violations = append(r.Violations, fmt.Sprintf("player:%s above max %.1f%%", pl.ID, pe.MaxAllowed))
		}
	}
	sort.SliceStable(r.Players, func(i, j int) bool { return r.Players[i].Count > r.Players[j].Count })

	for _, team := range pool.Teams() {
		b, ok := p.teams[team]
		if !ok {
			b = newBound()
		}
		te := TeamExposure{
			Team: team, Count: c.Teams[team], Percentage: pct(c.Teams[team], c.Total),
			MinRequired: b.min, MaxAllowed: b.max,
		}
		r.Teams = append(r.Teams, te)
		if te.Percentage > te.MaxAllowed+exposureEpsilon {
			r.Violations = append(r.Violations, fmt.Sprintf("team:%s above max %.1f%%", team, te.MaxAllowed))
		}
	}

	for k, n := range c.TeamStacks {
		if k.Team == "" || n == 0 {
			continue
		}
		r.Stacks = append(r.Stacks, StackExposure{Team: k.Team, StackSize: k.Size, Count: n, Percentage: pct(n, c.Total)})
	}
	sort.Slice(r.Stacks, func(i, j int) bool {
		if r.Stacks[i].Team != r.Stacks[j].Team {
			return r.Stacks[i].Team < r.Stacks[j].Team
		}
		return r.Stacks[i].StackSize < r.Stacks[j].StackSize
	})

	for _, pos := range AllPositions {
		for _, team := range pool.Teams() {
			n := 0
			for _, idx := range pool.TeamPosition(team, pos) {
				n += c.Players[idx]
			}
			if n > 0 {
				r.Positions = append(r.Positions, PositionExposure{
					Position: pos, Team: team, Count: n, Percentage: pct(n, c.Total*NumSlots),
				})
			}
		}
	}

	for _, d := range c.deficits() {
		r.Violations = append(r.Violations, fmt.Sprintf("%s below min (%d of %d)", d.Entity, d.Count, d.Required))
	}
	return r
}
