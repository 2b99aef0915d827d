package optimizer

import (
	"context"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

const (
	// annealKeep is how many distinct lineups one annealing run can emit.
	annealKeep = 5
	// captainMoveRate is the share of proposals that move the captain.
	captainMoveRate = 0.2
)

// AnnealingSampler walks from a Monte-Carlo start lineup by single swaps,
// accepting moves by the Metropolis rule with energy = -NexusScore.
type AnnealingSampler struct {
	cfg      AnnealingConfig
	env      *Env
	exposure *ExposureEngine
	seeder   *MonteCarloSampler
	rng      *rand.Rand
}

func NewAnnealingSampler(cfg AnnealingConfig, env *Env, exposure *ExposureEngine, rng *rand.Rand) *AnnealingSampler {
	return &AnnealingSampler{
		cfg:      cfg,
		env:      env,
		exposure: exposure,
		seeder:   NewMonteCarloSampler(cfg.Seeding, env, exposure, rng),
		rng:      rng,
	}
}

func (s *AnnealingSampler) Algorithm() Algorithm { return AlgorithmAnnealing }

func (s *AnnealingSampler) Sample(ctx context.Context, batch *Batch, n int) error {
	if n <= 0 {
		return nil
	}
	accepted := 0
	budget := n * 4
	for run := 0; run < budget && accepted < n && !batch.Full(); run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start, ok := s.seeder.candidate(batch, noForce)
		if !ok {
			continue
		}
		found, err := s.anneal(ctx, start)
		for _, l := range found {
			if batch.Offer(l, AlgorithmAnnealing) {
				accepted++
				break
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type observed struct {
	lineup Lineup
	score  float64
	fp     Fingerprint
}

// anneal runs one schedule from start and returns the best distinct lineups
// it saw, best first.
func (s *AnnealingSampler) anneal(ctx context.Context, start Lineup) ([]Lineup, error) {
	scorer := s.env.Scorer
	current := start
	energy := -scorer.Nexus(current)
	best := []observed{{lineup: current, score: -energy, fp: current.Fingerprint()}}

	temp := s.cfg.InitialTemperature
	for k := 0; k < s.cfg.MaxProposals && temp >= s.cfg.MinTemperature; k++ {
		if k%100 == 0 {
			if err := ctx.Err(); err != nil {
				return bestLineups(best), err
			}
		}
		next, ok := s.propose(current)
		temp *= s.cfg.CoolingRate
		if !ok {
			continue
		}
		e := -scorer.Nexus(next)
		if delta := e - energy; delta <= 0 || s.rng.Float64() < math.Exp(-delta/temp) {
			current, energy = next, e
			best = remember(best, observed{lineup: next, score: -e, fp: next.Fingerprint()})
		}
	}
	return bestLineups(best), nil
}

// propose makes one feasible neighbour: a same-position swap or a captain move.
func (s *AnnealingSampler) propose(l Lineup) (Lineup, bool) {
	pool := s.env.Pool
	next := l
	if s.rng.Float64() < captainMoveRate {
		pos := RolePositions[s.rng.Intn(len(RolePositions))]
		if pos == l.Captain {
			return l, false
		}
		next.Captain = pos
	} else {
		pos := AllPositions[s.rng.Intn(NumSlots)]
		candidates := pool.ByPosition(pos)
		pick := candidates[s.rng.Intn(len(candidates))]
		if l.Contains(pick) {
			return l, false
		}
		next.Slots[pos] = pick
	}
	if ok, _ := s.env.Evaluator.Feasible(next, nil); !ok {
		return l, false
	}
	if ok, _, _ := s.exposure.Check(next); !ok {
		return l, false
	}
	return next, true
}

func remember(best []observed, o observed) []observed {
	for i := range best {
		if best[i].fp == o.fp {
			if o.score > best[i].score {
				best[i] = o
			}
			return best
		}
	}
	best = append(best, o)
	sort.SliceStable(best, func(i, j int) bool { return best[i].score > best[j].score })
	if len(best) > annealKeep {
		best = best[:annealKeep]
	}
	return best
}

func bestLineups(best []observed) []Lineup {
	out := make([]Lineup, len(best))
	for i, o := range best {
		out[i] = o.lineup
	}
	return out
}
