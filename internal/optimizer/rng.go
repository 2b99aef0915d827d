package optimizer

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var lineupNamespace = uuid.MustParse("5c1e3a52-8f0b-4b7e-9d8e-3f4a2b6c7d10")

// lineupID derives a stable id from the captain and the sorted player ids, so
// identical lineups get identical ids across runs and sessions.
func lineupID(pool *PlayerPool, l Lineup) string {
	ids := make([]string, 0, NumSlots)
	for _, idx := range l.Slots {
		if idx != NoPlayer {
			ids = append(ids, pool.Player(idx).ID)
		}
	}
	sort.Strings(ids)
	captain := ""
	if c := l.CaptainPlayer(); c != NoPlayer {
		captain = pool.Player(c).ID
	}
	return uuid.NewSHA1(lineupNamespace, []byte(captain+"|"+strings.Join(ids, ","))).String()
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// deriveSeed gives each sampler stream its own seed (splitmix64 finalizer).
func deriveSeed(seed, stream uint64) uint64 {
	z := seed + stream*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func sanitizeWeights(w []float64) []float64 {
	for i, v := range w {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			w[i] = 0
		}
	}
	return w
}

// weightedPick draws one index proportionally to weights, falling back to a
// uniform draw when every weight is zero.
func weightedPick(rng *rand.Rand, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	if idx, ok := sampleuv.NewWeighted(sanitizeWeights(weights), rng).Take(); ok {
		return idx
	}
	return rng.Intn(len(weights))
}

// weightedSubset draws k distinct indices without replacement.
func weightedSubset(rng *rand.Rand, weights []float64, k int) []int {
	if k >= len(weights) {
		out := make([]int, len(weights))
		for i := range out {
			out[i] = i
		}
		return out
	}
	w := sampleuv.NewWeighted(sanitizeWeights(weights), rng)
	out := make([]int, 0, k)
	taken := make([]bool, len(weights))
	for len(out) < k {
		idx, ok := w.Take()
		if !ok {
			break
		}
		taken[idx] = true
		out = append(out, idx)
	}
	for len(out) < k {
		idx := rng.Intn(len(weights))
		if !taken[idx] {
			taken[idx] = true
			out = append(out, idx)
		}
	}
	return out
}
