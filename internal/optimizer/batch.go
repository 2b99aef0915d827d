package optimizer

import (
	"sync"
	"sync/atomic"
)

// FingerprintSet is a concurrent set of lineup fingerprints.
type FingerprintSet struct {
	m sync.Map
	n atomic.Int64
}

// Add inserts fp and reports whether it was absent.
func (s *FingerprintSet) Add(fp Fingerprint) bool {
	if _, loaded := s.m.LoadOrStore(fp, struct{}{}); loaded {
		return false
	}
	s.n.Add(1)
	return true
}

func (s *FingerprintSet) Remove(fp Fingerprint) {
	if _, loaded := s.m.LoadAndDelete(fp); loaded {
		s.n.Add(-1)
	}
}

func (s *FingerprintSet) Contains(fp Fingerprint) bool {
	_, ok := s.m.Load(fp)
	return ok
}

func (s *FingerprintSet) Len() int { return int(s.n.Load()) }

// BatchStats count what happened to candidates during one generation.
type BatchStats struct {
	Offered         atomic.Int64
	Discarded       atomic.Int64
	Duplicates      atomic.Int64
	ExposureRejects atomic.Int64
	Repairs         atomic.Int64
	RepairFailures  atomic.Int64

	rejected atomic.Value
}

// LastRejected names the entity whose max blocked the most recent exposure
// rejection, "" when none was rejected.
func (s *BatchStats) LastRejected() string {
	if v, ok := s.rejected.Load().(string); ok {
		return v
	}
	return ""
}

// Batch collects accepted lineups for one generation. Samplers share it and
// offer candidates concurrently.
type Batch struct {
	pool      *PlayerPool
	evaluator *Evaluator
	scorer    *Scorer
	exposure  *ExposureEngine
	seen      FingerprintSet
	capacity  int
	onAccept  func(accepted, capacity int)

	mu       sync.Mutex
	accepted []ScoredLineup

	Stats BatchStats
}

func newBatch(env *Env, exposure *ExposureEngine, capacity int, onAccept func(accepted, capacity int)) *Batch {
	return &Batch{
		pool:      env.Pool,
		evaluator: env.Evaluator,
		scorer:    env.Scorer,
		exposure:  exposure,
		capacity:  capacity,
		onAccept:  onAccept,
		accepted:  make([]ScoredLineup, 0, capacity),
	}
}

// Offer tries to admit l: roster rules, then fingerprint dedupe, then exposure
// maxes, then capacity. It reports whether l was accepted.
func (b *Batch) Offer(l Lineup, alg Algorithm) bool {
	b.Stats.Offered.Add(1)
	if ok, _ := b.evaluator.Feasible(l, nil); !ok {
		b.Stats.Discarded.Add(1)
		return false
	}
	fp := l.Fingerprint()
	if !b.seen.Add(fp) {
		b.Stats.Duplicates.Add(1)
		return false
	}
	if ok, entity := b.exposure.admit(l); !ok {
		b.seen.Remove(fp)
		b.Stats.ExposureRejects.Add(1)
		b.Stats.rejected.Store(entity)
		return false
	}
	scored := b.scorer.Score(l, alg)

	b.mu.Lock()
	if len(b.accepted) >= b.capacity {
		b.mu.Unlock()
		b.exposure.Remove(l)
		b.seen.Remove(fp)
		return false
	}
	b.accepted = append(b.accepted, scored)
	n := len(b.accepted)
	b.mu.Unlock()

	if b.onAccept != nil {
		b.onAccept(n, b.capacity)
	}
	return true
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accepted)
}

func (b *Batch) Full() bool { return b.Len() >= b.capacity }

func (b *Batch) Capacity() int { return b.capacity }

func (b *Batch) Contains(fp Fingerprint) bool { return b.seen.Contains(fp) }

// Lineups returns a copy of the accepted lineups in acceptance order.
func (b *Batch) Lineups() []ScoredLineup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ScoredLineup(nil), b.accepted...)
}

// replace swaps the lineup at i for in. Exposure counters must already
// reflect the swap.
func (b *Batch) replace(i int, in Lineup, alg Algorithm) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen.Remove(b.accepted[i].Fingerprint)
	b.seen.Add(in.Fingerprint())
	b.accepted[i] = b.scorer.Score(in, alg)
}

// repairFailed records a candidate repair gave up on. A lineup that is
// otherwise feasible but blocked by an exposure max counts as an exposure
// reject naming the entity.
func (b *Batch) repairFailed(l Lineup) {
	if ok, _ := b.evaluator.Feasible(l, nil); ok {
		if fits, _, entity := b.exposure.Check(l); !fits {
			b.Stats.ExposureRejects.Add(1)
			if entity != "" {
				b.Stats.rejected.Store(entity)
			}
			return
		}
	}
	b.Stats.RepairFailures.Add(1)
}
