package optimizer

import (
	"context"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

const (
	// stallGenerations and stallImprovement decide early termination: stop once
	// the top-10 mean fitness improves by no more than stallImprovement for
	// stallGenerations generations in a row.
	stallGenerations = 5
	stallImprovement = 0.01
	eliteWindow      = 10
)

type individual struct {
	lineup  Lineup
	fitness float64
	fp      Fingerprint
}

// GeneticSampler evolves a population seeded by Monte-Carlo draws.
type GeneticSampler struct {
	cfg      GeneticConfig
	env      *Env
	seeder   *MonteCarloSampler
	repairer repairer
	rng      *rand.Rand
}

func NewGeneticSampler(cfg GeneticConfig, env *Env, exposure *ExposureEngine, rng *rand.Rand) *GeneticSampler {
	return &GeneticSampler{
		cfg:      cfg,
		env:      env,
		seeder:   NewMonteCarloSampler(cfg.Seeding, env, exposure, rng),
		repairer: repairer{pool: env.Pool, evaluator: env.Evaluator, exposure: exposure},
		rng:      rng,
	}
}

func (s *GeneticSampler) Algorithm() Algorithm { return AlgorithmGenetic }

// Sample runs as many evolutions as needed, offering each final population
// best-first, until n lineups are accepted.
func (s *GeneticSampler) Sample(ctx context.Context, batch *Batch, n int) error {
	if n <= 0 {
		return nil
	}
	perRun := s.cfg.PopulationSize / 2
	runs := (n + perRun - 1) / perRun
	accepted := 0
	for run := 0; run < runs+2 && accepted < n && !batch.Full(); run++ {
		pop, err := s.evolve(ctx, batch)
		for _, ind := range pop {
			if accepted >= n {
				break
			}
			if batch.Offer(ind.lineup, AlgorithmGenetic) {
				accepted++
			}
		}
		if err != nil {
			return err
		}
		if len(pop) == 0 {
			return nil
		}
	}
	return nil
}

func (s *GeneticSampler) individual(l Lineup) individual {
	return individual{lineup: l, fitness: s.env.Scorer.Nexus(l), fp: l.Fingerprint()}
}

func sortPopulation(pop []individual) {
	sort.SliceStable(pop, func(i, j int) bool {
		if pop[i].fitness != pop[j].fitness {
			return pop[i].fitness > pop[j].fitness
		}
		return pop[i].fp.Less(pop[j].fp)
	})
}

func topMean(pop []individual) float64 {
	n := eliteWindow
	if len(pop) < n {
		n = len(pop)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, ind := range pop[:n] {
		sum += ind.fitness
	}
	return sum / float64(n)
}

func (s *GeneticSampler) seedPopulation(ctx context.Context, batch *Batch) ([]individual, error) {
	size := s.cfg.PopulationSize
	pop := make([]individual, 0, size)
	for tries := 0; len(pop) < size && tries < size*4; tries++ {
		if err := ctx.Err(); err != nil {
			return pop, err
		}
		if l, ok := s.seeder.candidate(batch, noForce); ok {
			pop = append(pop, s.individual(l))
		}
	}
	return pop, nil
}

// evolve runs one evolution and returns the final population sorted by
// fitness.
func (s *GeneticSampler) evolve(ctx context.Context, batch *Batch) ([]individual, error) {
	pop, err := s.seedPopulation(ctx, batch)
	sortPopulation(pop)
	if err != nil || len(pop) < 2 {
		return pop, err
	}

	best := topMean(pop)
	stalled := 0
	elite := int(math.Ceil(float64(len(pop)) * s.cfg.EliteFraction))

	for gen := 0; gen < s.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return pop, err
		}

		next := make([]individual, 0, len(pop))
		next = append(next, pop[:elite]...)
		failures := 0
		for len(next) < len(pop) && failures < 4*len(pop) {
			child := s.crossover(s.tournament(pop).lineup, s.tournament(pop).lineup)
			s.mutate(&child)

			fixed, repairs, ok := s.repairer.repair(child)
			batch.Stats.Repairs.Add(int64(repairs))
			if !ok {
				batch.repairFailed(fixed)
				if fixed, ok = s.seeder.candidate(batch, noForce); !ok {
					failures++
					continue
				}
			}
			next = append(next, s.individual(fixed))
		}
		for i := 0; len(next) < len(pop); i++ {
			next = append(next, pop[i%len(pop)])
		}

		pop = next
		sortPopulation(pop)

		mean := topMean(pop)
		if mean-best <= stallImprovement {
			stalled++
		} else {
			stalled = 0
		}
		if mean > best {
			best = mean
		}
		if stalled >= stallGenerations {
			break
		}
	}
	return pop, nil
}

func (s *GeneticSampler) tournament(pop []individual) individual {
	best := pop[s.rng.Intn(len(pop))]
	for i := 1; i < s.cfg.TournamentSize; i++ {
		if c := pop[s.rng.Intn(len(pop))]; c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

// crossover mixes parents slot by slot. A slot whose player already appears
// in the child is re-drawn from its position weighted by projection.
func (s *GeneticSampler) crossover(a, b Lineup) Lineup {
	child := NewLineup()
	for pos := range child.Slots {
		pick := a.Slots[pos]
		if s.rng.Float64() < 0.5 {
			pick = b.Slots[pos]
		}
		if s.duplicates(child, pick) {
			pick = s.resample(child, Position(pos))
		}
		child.Slots[pos] = pick
	}
	child.Captain = a.Captain
	if s.rng.Float64() < 0.5 {
		child.Captain = b.Captain
	}
	return child
}

func (s *GeneticSampler) duplicates(l Lineup, idx PlayerIndex) bool {
	if idx == NoPlayer {
		return false
	}
	id := s.env.Pool.Player(idx).ID
	for _, other := range l.Slots {
		if other != NoPlayer && s.env.Pool.Player(other).ID == id {
			return true
		}
	}
	return false
}

func (s *GeneticSampler) resample(l Lineup, pos Position) PlayerIndex {
	pool := s.env.Pool
	var idxs []PlayerIndex
	var weights []float64
	for _, idx := range pool.ByPosition(pos) {
		if !s.duplicates(l, idx) {
			idxs = append(idxs, idx)
			weights = append(weights, pool.Player(idx).ProjectedPoints)
		}
	}
	if len(idxs) == 0 {
		return NoPlayer
	}
	return idxs[weightedPick(s.rng, weights)]
}

func (s *GeneticSampler) mutate(l *Lineup) {
	pool := s.env.Pool
	for pos := range l.Slots {
		if s.rng.Float64() >= s.cfg.MutationRate {
			continue
		}
		candidates := pool.ByPosition(Position(pos))
		pick := candidates[s.rng.Intn(len(candidates))]
		if pick != l.Slots[pos] && s.duplicates(*l, pick) {
			continue
		}
		l.Slots[pos] = pick
	}
	if s.rng.Float64() < s.cfg.MutationRate/2 {
		next := RolePositions[s.rng.Intn(len(RolePositions)-1)]
		if next >= l.Captain {
			next++
		}
		l.Captain = next
	}
}
