package optimizer

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

const (
	maxBackfillRounds = 2
	// backfillVictims caps the swap-out candidates tried per new lineup.
	backfillVictims = 8
)

// backfill raises unmet exposure minimums by drawing lineups that contain the
// short entity and swapping out the lowest-scoring lineups whose removal keeps
// every other min intact. It returns the rounds used.
func (d *Driver) backfill(ctx context.Context, batch *Batch, exposure *ExposureEngine, cfg MonteCarloConfig, seed uint64) (int, error) {
	if len(exposure.Deficits()) == 0 {
		return 0, nil
	}
	sampler := NewMonteCarloSampler(cfg, d.env, exposure, newRNG(deriveSeed(seed, streamBackfill)))

	rounds := 0
	for rounds < maxBackfillRounds {
		deficits := exposure.Deficits()
		if len(deficits) == 0 {
			break
		}
		rounds++
		for _, def := range deficits {
			if err := d.fillDeficit(ctx, batch, exposure, sampler, def, cfg.IterationsPerLineup); err != nil {
				return rounds, err
			}
		}
		d.logger.WithFields(logrus.Fields{
			"round":    rounds,
			"deficits": len(deficits),
		}).Debug("Exposure backfill round finished")
	}

	if deficits := exposure.Deficits(); len(deficits) > 0 {
		first := deficits[0]
		return rounds, exposureInfeasible(first.Entity, "%d of %d required lineups after %d backfill rounds",
			first.Count, first.Required, rounds)
	}
	return rounds, nil
}

func forceFor(def ExposureDeficit) candidateOpts {
	switch def.Scope {
	case ScopeTeam:
		return candidateOpts{team: def.Team, player: NoPlayer}
	case ScopeTeamStack:
		return candidateOpts{team: def.Team, stackSize: def.StackSize, player: NoPlayer}
	default:
		return candidateOpts{player: def.Player}
	}
}

// containsEntity reports whether l counts towards def's entity.
func containsEntity(pool *PlayerPool, def ExposureDeficit, l Lineup) bool {
	switch def.Scope {
	case ScopeTeam:
		for _, idx := range l.Slots {
			if pool.Player(idx).Team == def.Team {
				return true
			}
		}
		return false
	case ScopeTeamStack:
		for _, tc := range TeamCounts(pool, l) {
			if tc.Count == def.StackSize && (def.Team == "" || tc.Team == def.Team) {
				return true
			}
		}
		return false
	default:
		return l.Contains(def.Player)
	}
}

func stillShort(exposure *ExposureEngine, entity string) bool {
	for _, d := range exposure.Deficits() {
		if d.Entity == entity {
			return true
		}
	}
	return false
}

func (d *Driver) fillDeficit(ctx context.Context, batch *Batch, exposure *ExposureEngine, sampler *MonteCarloSampler, def ExposureDeficit, iterations int) error {
	pool := d.env.Pool
	opts := forceFor(def)
	budget := (def.Required-def.Count+1)*iterations + iterations

	for attempt := 0; attempt < budget && stillShort(exposure, def.Entity); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l, ok := sampler.candidate(batch, opts)
		if !ok || !containsEntity(pool, def, l) || batch.Contains(l.Fingerprint()) {
			continue
		}
		if !batch.Full() {
			batch.Offer(l, AlgorithmMonteCarlo)
			continue
		}

		current := batch.Lineups()
		victims := make([]int, 0, len(current))
		for i := range current {
			if !containsEntity(pool, def, current[i].Lineup) {
				victims = append(victims, i)
			}
		}
		sort.SliceStable(victims, func(a, b int) bool {
			return current[victims[a]].NexusScore < current[victims[b]].NexusScore
		})
		if len(victims) > backfillVictims {
			victims = victims[:backfillVictims]
		}
		for _, i := range victims {
			if exposure.Swap(current[i].Lineup, l) {
				batch.replace(i, l, AlgorithmMonteCarlo)
				break
			}
		}
	}
	return nil
}

// trimExcess drops the lowest-scoring lineups holding an entity above its max
// share of the lineups kept. Admission measures maxes against the target size,
// so a short batch can hold more than its share. A drop never breaks a met min.
func trimExcess(pool *PlayerPool, exposure *ExposureEngine, lineups []ScoredLineup) ([]ScoredLineup, int, error) {
	kept := append([]ScoredLineup(nil), lineups...)
	dropped := 0
	for {
		excess := exposure.Excess()
		if len(excess) == 0 {
			return kept, dropped, nil
		}
		x := excess[0]
		victim := -1
		if x.Count < len(kept) {
			order := make([]int, len(kept))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(a, b int) bool {
				la, lb := kept[order[a]], kept[order[b]]
				if la.NexusScore != lb.NexusScore {
					return la.NexusScore < lb.NexusScore
				}
				return la.ID > lb.ID
			})
			target := x.deficit()
			for _, i := range order {
				if containsEntity(pool, target, kept[i].Lineup) && exposure.Drop(kept[i].Lineup) {
					victim = i
					break
				}
			}
		}
		if victim < 0 {
			return nil, dropped, exposureInfeasible(x.Entity, "%d of %d lineups exceed the %.1f%% max", x.Count, len(kept), x.Max)
		}
		kept = append(kept[:victim], kept[victim+1:]...)
		dropped++
	}
}

// emptyBatchError explains a batch that accepted nothing. When exposure maxes
// rejected candidates the last blocking entity is named.
func emptyBatchError(stats *BatchStats, what string) error {
	if stats.ExposureRejects.Load() > 0 {
		if entity := stats.LastRejected(); entity != "" {
			return exposureInfeasible(entity, "every %s was rejected by an exposure max", what)
		}
	}
	return infeasiblef("no feasible %s found within the attempt budget", what)
}
