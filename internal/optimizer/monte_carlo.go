package optimizer

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
)

// Env bundles the read-only collaborators every sampler needs.
type Env struct {
	Pool      *PlayerPool
	Evaluator *Evaluator
	Scorer    *Scorer
}

// NewEnv builds an Env for pool with the given salary cap.
func NewEnv(pool *PlayerPool, scorer *Scorer, salaryCap int) *Env {
	if scorer == nil {
		scorer = NewScorer(pool)
	}
	return &Env{Pool: pool, Evaluator: NewEvaluator(pool, salaryCap), Scorer: scorer}
}

// Sampler produces candidate lineups into a shared batch.
type Sampler interface {
	Algorithm() Algorithm
	// Sample offers candidates until n are accepted, the attempt budget runs
	// out or ctx is done.
	Sample(ctx context.Context, batch *Batch, n int) error
}

// candidateOpts force part of a Monte-Carlo draw, used by backfill.
type candidateOpts struct {
	team      string
	stackSize int
	player    PlayerIndex
}

var noForce = candidateOpts{player: NoPlayer}

// MonteCarloSampler draws lineups around a weighted seed-team stack.
type MonteCarloSampler struct {
	cfg      MonteCarloConfig
	env      *Env
	exposure *ExposureEngine
	repairer repairer
	rng      *rand.Rand
	patterns [][]int
	weights  []float64
}

func NewMonteCarloSampler(cfg MonteCarloConfig, env *Env, exposure *ExposureEngine, rng *rand.Rand) *MonteCarloSampler {
	s := &MonteCarloSampler{
		cfg:      cfg,
		env:      env,
		exposure: exposure,
		repairer: repairer{pool: env.Pool, evaluator: env.Evaluator, exposure: exposure},
		rng:      rng,
	}
	for _, p := range cfg.StackSizes {
		sizes, err := p.Sizes()
		if err != nil || p.Weight <= 0 {
			continue
		}
		s.patterns = append(s.patterns, sizes)
		s.weights = append(s.weights, p.Weight)
	}
	return s
}

func (s *MonteCarloSampler) Algorithm() Algorithm { return AlgorithmMonteCarlo }

func (s *MonteCarloSampler) Sample(ctx context.Context, batch *Batch, n int) error {
	if n <= 0 {
		return nil
	}
	accepted := 0
	budget := n * s.cfg.IterationsPerLineup
	for attempts := 0; accepted < n && attempts < budget && !batch.Full(); attempts++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l, ok := s.candidate(batch, noForce)
		if !ok {
			continue
		}
		if batch.Offer(l, AlgorithmMonteCarlo) {
			accepted++
		}
	}
	return nil
}

// candidate builds and repairs one lineup, recording repair outcomes on the
// batch stats when batch is non-nil.
func (s *MonteCarloSampler) candidate(batch *Batch, opts candidateOpts) (Lineup, bool) {
	l, repairs, ok := s.repairer.repair(s.draw(opts))
	if batch != nil {
		batch.Stats.Repairs.Add(int64(repairs))
		if !ok {
			batch.repairFailed(l)
			batch.Stats.Discarded.Add(1)
		}
	}
	return l, ok
}

// Candidate returns one feasible lineup, or false when repair gave up.
func (s *MonteCarloSampler) Candidate() (Lineup, bool) {
	return s.candidate(nil, noForce)
}

func (s *MonteCarloSampler) draftWeight(p *Player) float64 {
	lm := s.cfg.LeverageMultiplier
	return lm * p.ProjectedPoints / math.Pow(math.Max(p.Ownership, minOwnershipFloor), lm)
}

func (s *MonteCarloSampler) pickTeam(exclude []string, bias *exposureBias) string {
	pool := s.env.Pool
	teams := make([]string, 0, len(pool.Teams()))
	weights := make([]float64, 0, len(pool.Teams()))
outer:
	for _, t := range pool.Teams() {
		for _, e := range exclude {
			if e == t {
				continue outer
			}
		}
		teams = append(teams, t)
		weights = append(weights, math.Max(pool.StackPlus(t), 0.1)*bias.team(t))
	}
	if len(teams) == 0 {
		return ""
	}
	return teams[weightedPick(s.rng, weights)]
}

func (s *MonteCarloSampler) drawPattern() []int {
	if len(s.patterns) == 0 {
		return nil
	}
	return s.patterns[weightedPick(s.rng, append([]float64(nil), s.weights...))]
}

// pickPlayer draws from candidates by draft weight, skipping players already
// in l.
func (s *MonteCarloSampler) pickPlayer(l *Lineup, candidates []PlayerIndex, bias *exposureBias) PlayerIndex {
	pool := s.env.Pool
	idxs := make([]PlayerIndex, 0, len(candidates))
	weights := make([]float64, 0, len(candidates))
	for _, idx := range candidates {
		if l.Contains(idx) {
			continue
		}
		idxs = append(idxs, idx)
		weights = append(weights, s.draftWeight(pool.Player(idx))*bias.player(idx))
	}
	if len(idxs) == 0 {
		return NoPlayer
	}
	return idxs[weightedPick(s.rng, weights)]
}

// draftStack places up to k players from team, preferring the positions of
// one of its stack descriptors. It returns the positions filled.
func (s *MonteCarloSampler) draftStack(l *Lineup, team string, k int, bias *exposureBias) []Position {
	pool := s.env.Pool
	var preferred []Position
	if stacks := pool.Stacks(team); len(stacks) > 0 {
		w := make([]float64, len(stacks))
		for i, st := range stacks {
			w[i] = math.Max(st.StackPlus, 0.1)
		}
		preferred = stacks[weightedPick(s.rng, w)].Positions
	}

	open := func(pos Position) bool {
		return l.Slots[pos] == NoPlayer && len(pool.TeamPosition(team, pos)) > 0
	}
	var first, rest []Position
	for _, pos := range preferred {
		if open(pos) && !containsPosition(first, pos) {
			first = append(first, pos)
		}
	}
	for _, pos := range AllPositions {
		if open(pos) && !containsPosition(first, pos) {
			rest = append(rest, pos)
		}
	}

	filled := make([]Position, 0, k)
	for _, group := range [][]Position{first, rest} {
		need := k - len(filled)
		if need <= 0 {
			break
		}
		w := make([]float64, len(group))
		for i, pos := range group {
			for _, idx := range pool.TeamPosition(team, pos) {
				w[i] = math.Max(w[i], s.draftWeight(pool.Player(idx))*bias.player(idx))
			}
		}
		for _, i := range weightedSubset(s.rng, w, need) {
			pos := group[i]
			if idx := s.pickPlayer(l, pool.TeamPosition(team, pos), bias); idx != NoPlayer {
				l.Slots[pos] = idx
				filled = append(filled, pos)
			}
		}
	}
	return filled
}

func containsPosition(ps []Position, p Position) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func (s *MonteCarloSampler) draw(opts candidateOpts) Lineup {
	pool := s.env.Pool
	bias := s.exposure.bias()
	l := NewLineup()

	if opts.player != NoPlayer {
		l.Slots[pool.Player(opts.player).Position] = opts.player
	}

	seed := opts.team
	if seed == "" {
		if opts.player != NoPlayer {
			seed = pool.Player(opts.player).Team
		} else {
			seed = s.pickTeam(nil, bias)
		}
	}

	sizes := s.drawPattern()
	if opts.stackSize > 0 {
		sizes = []int{opts.stackSize}
	}
	primary := 1
	if len(sizes) > 0 {
		primary = sizes[0]
	}
	if opts.player != NoPlayer && pool.Player(opts.player).Team == seed {
		primary--
	}

	used := []string{seed}
	stack := s.draftStack(&l, seed, primary, bias)
	if opts.player != NoPlayer && pool.Player(opts.player).Team == seed {
		stack = append(stack, pool.Player(opts.player).Position)
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < 2 {
			break
		}
		team := s.pickTeam(used, bias)
		if team == "" {
			break
		}
		used = append(used, team)
		s.draftStack(&l, team, sizes[i], bias)
	}

	for _, pos := range AllPositions {
		if l.Slots[pos] != NoPlayer {
			continue
		}
		// Keep the drawn stack shape where the slate allows it.
		var outside []PlayerIndex
		for _, idx := range pool.ByPosition(pos) {
			team := pool.Player(idx).Team
			inLineup := false
			for _, other := range l.Slots {
				if other != NoPlayer && pool.Player(other).Team == team {
					inLineup = true
					break
				}
			}
			if !inLineup {
				outside = append(outside, idx)
			}
		}
		idx := s.pickPlayer(&l, outside, bias)
		if idx == NoPlayer {
			idx = s.pickPlayer(&l, pool.ByPosition(pos), bias)
		}
		l.Slots[pos] = idx
	}

	l.Captain = s.pickCaptain(l, stack)
	return l
}

func (s *MonteCarloSampler) pickCaptain(l Lineup, stack []Position) Position {
	pool := s.env.Pool
	if s.rng.Float64() < 1-s.cfg.Randomness {
		best, bestPts := Position(0), -1.0
		for _, pos := range stack {
			if !pos.IsRole() || l.Slots[pos] == NoPlayer {
				continue
			}
			if pts := pool.Player(l.Slots[pos]).ProjectedPoints; pts > bestPts {
				best, bestPts = pos, pts
			}
		}
		if bestPts >= 0 {
			return best
		}
	}
	return RolePositions[s.rng.Intn(len(RolePositions))]
}
