package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// otherStacks collects signatures without an explicit stack target.
const otherStacks = "other"

// PortfolioSummary reports how a barbell selection was filled.
type PortfolioSummary struct {
	Candidates       int                        `json:"candidates"`
	BulkMultiplier   int                        `json:"bulk_multiplier"`
	FloorThreshold   float64                    `json:"floor_threshold"`
	CeilingThreshold float64                    `json:"ceiling_threshold"`
	Quotas           map[PortfolioLabel]int     `json:"quotas"`
	Selected         map[PortfolioLabel]int     `json:"selected"`
	MeanNexus        map[PortfolioLabel]float64 `json:"mean_nexus_score"`
	MeanOwnership    map[PortfolioLabel]float64 `json:"mean_ownership"`
	StackQuotas      map[string]int             `json:"stack_quotas,omitempty"`
	StackSelected    map[string]int             `json:"stack_selected,omitempty"`
}

// LargestRemainder splits n by fractions: round down, then hand the leftover
// units to the largest fractional remainders, earlier entries first on ties.
func LargestRemainder(n int, fractions []float64) []int {
	out := make([]int, len(fractions))
	total := 0.0
	for _, f := range fractions {
		total += f
	}
	if total <= 0 || n <= 0 {
		return out
	}
	type rem struct {
		i int
		r float64
	}
	rems := make([]rem, len(fractions))
	assigned := 0
	for i, f := range fractions {
		exact := float64(n) * f / total
		out[i] = int(math.Floor(exact + 1e-9))
		assigned += out[i]
		rems[i] = rem{i: i, r: exact - float64(out[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	for k := 0; assigned < n; k++ {
		out[rems[k%len(rems)].i]++
		assigned++
	}
	return out
}

// labelCandidates labels by NexusScore rank: the top quarter is ceiling, the
// bottom quarter floor, the rest balanced. Candidates must be sorted best
// first.
func labelCandidates(cands []ScoredLineup) {
	n := len(cands)
	q := n / 4
	for i := range cands {
		switch {
		case i < q:
			cands[i].Label = LabelCeiling
		case i >= n-q:
			cands[i].Label = LabelFloor
		default:
			cands[i].Label = LabelBalanced
		}
	}
}

// sortCandidates orders by NexusScore, then lower total ownership, then id.
func sortCandidates(cands []ScoredLineup) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.NexusScore != b.NexusScore {
			return a.NexusScore > b.NexusScore
		}
		if a.TotalOwnership != b.TotalOwnership {
			return a.TotalOwnership < b.TotalOwnership
		}
		return a.ID < b.ID
	})
}

func stackBucket(sig string, targets map[string]float64) string {
	key := strings.ReplaceAll(sig, "|", "-")
	if _, ok := targets[key]; ok {
		return key
	}
	if _, ok := targets[sig]; ok {
		return sig
	}
	return otherStacks
}

func (d *Driver) runPortfolio(ctx context.Context, req GenerateRequest, cfg PortfolioConfig, policy *ExposurePolicy, seed uint64, deterministic bool, progress *progressTracker) (*Result, error) {
	m := req.Count
	total := m * cfg.BulkMultiplier
	if total > cfg.MaxCandidates {
		total = cfg.MaxCandidates
	}
	if total < m {
		total = m
	}

	hybrid, dist := hybridFor(cfg.Hybrid, req.Contest, policy)
	candidateExposure := NewExposureEngine(policy, total)
	batch := newBatch(d.env, candidateExposure, total, func(accepted, capacity int) {
		progress.report(generateBand*float64(accepted)/float64(capacity),
			fmt.Sprintf("Generating candidates %d of %d", accepted, capacity), accepted, capacity)
	})
	alloc, err := d.sample(ctx, batch, candidateExposure, hybrid, dist, seed, deterministic)
	if err != nil && ctx.Err() == nil {
		return nil, NewInternalError(err)
	}

	cands := batch.Lineups()
	if len(cands) == 0 {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, emptyBatchError(&batch.Stats, "candidate")
	}

	n := len(cands)
	step := n / 15
	if step < 1 {
		step = 1
	}
	for i := range cands {
		if done := i + 1; done%step == 0 || done == n {
			progress.report(generateBand+(scoreBand-generateBand)*float64(done)/float64(n),
				fmt.Sprintf("Scoring candidates %d of %d", done, n), done, n)
		}
	}
	sortCandidates(cands)
	labelCandidates(cands)

	progress.report(selectStart, fmt.Sprintf("Selecting top %d", m), 0, 0)
	sel := newSelection(d.env.Pool, policy, cfg, m)
	sel.pick(cands)
	if err := sel.repairMins(cands); err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, err
	}

	picked, trimmed, err := trimExcess(d.env.Pool, sel.exposure, sel.lineups(cands))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, err
	}

	// Candidates were already counted through the scoring phase above.
	lineups := d.score(picked, req.Contest, nil)
	progress.report(finalizeAt, "Finalizing", 0, 0)

	summary := d.summarize(lineups, batch, sel.exposure)
	summary.Algorithm = AlgorithmPortfolio
	summary.Distribution = &dist
	summary.Allocation = alloc
	summary.ExposureTrimmed = trimmed
	summary.Partial = ctx.Err() != nil || len(lineups) < m
	summary.Portfolio = sel.summary(cands, lineups, cfg)
	return &Result{Lineups: lineups, Summary: summary}, nil
}

// selection is the greedy barbell picker over sorted, labelled candidates.
type selection struct {
	pool       *PlayerPool
	m          int
	exposure   *ExposureEngine
	labels     []PortfolioLabel
	quota      map[PortfolioLabel]int
	stackQuota map[string]int
	stackPlan  map[string]int
	targets    map[string]float64
	chosen     []int
	taken      map[int]bool
}

func newSelection(pool *PlayerPool, policy *ExposurePolicy, cfg PortfolioConfig, m int) *selection {
	s := &selection{
		pool:     pool,
		m:        m,
		exposure: NewExposureEngine(policy, m),
		labels:   []PortfolioLabel{LabelFloor, LabelCeiling, LabelBalanced},
		quota:    make(map[PortfolioLabel]int),
		targets:  cfg.StackTargets,
		taken:    make(map[int]bool),
	}
	q := LargestRemainder(m, []float64{cfg.Targets.Floor, cfg.Targets.Ceiling, cfg.Targets.Balanced})
	for i, l := range s.labels {
		s.quota[l] = q[i]
	}

	if len(cfg.StackTargets) > 0 {
		keys := make([]string, 0, len(cfg.StackTargets))
		for k := range cfg.StackTargets {
			keys = append(keys, strings.ReplaceAll(k, "|", "-"))
		}
		sort.Strings(keys)
		fractions := make([]float64, len(keys), len(keys)+1)
		sum := 0.0
		for i, k := range keys {
			f := cfg.StackTargets[k]
			if f == 0 {
				f = cfg.StackTargets[strings.ReplaceAll(k, "-", "|")]
			}
			fractions[i] = f
			sum += f
		}
		if rest := 1 - sum; rest > 1e-9 {
			keys = append(keys, otherStacks)
			fractions = append(fractions, rest)
		}
		sq := LargestRemainder(m, fractions)
		s.stackQuota = make(map[string]int, len(keys))
		s.stackPlan = make(map[string]int, len(keys))
		for i, k := range keys {
			s.stackQuota[k] = sq[i]
			s.stackPlan[k] = sq[i]
		}
		s.targets = make(map[string]float64, len(keys))
		for i, k := range keys {
			s.targets[k] = fractions[i]
		}
	}
	return s
}

func (s *selection) stackKey(c ScoredLineup) string {
	if s.stackQuota == nil {
		return ""
	}
	return stackBucket(c.StackSignature, s.targets)
}

// pick fills the quotas greedily. A second pass ignores the stack quotas and
// a third the label quotas, so exposure rejections cannot strand the
// portfolio below M when candidates remain.
func (s *selection) pick(cands []ScoredLineup) {
	for pass := 0; pass < 3 && len(s.chosen) < s.m; pass++ {
		for i := range cands {
			if len(s.chosen) >= s.m {
				return
			}
			if s.taken[i] {
				continue
			}
			c := cands[i]
			if pass < 2 && s.quota[c.Label] <= 0 {
				continue
			}
			sk := s.stackKey(c)
			if pass < 1 && s.stackQuota != nil && s.stackQuota[sk] <= 0 {
				continue
			}
			if !s.exposure.TryAdd(c.Lineup) {
				continue
			}
			s.taken[i] = true
			s.chosen = append(s.chosen, i)
			s.quota[c.Label]--
			if s.stackQuota != nil {
				s.stackQuota[sk]--
			}
		}
	}
}

// repairMins swaps unused candidates containing an under-exposed entity in
// for the lowest-scoring selected lineups that do not, preferring a victim
// with the same label.
func (s *selection) repairMins(cands []ScoredLineup) error {
	for round := 0; round < maxBackfillRounds; round++ {
		deficits := s.exposure.Deficits()
		if len(deficits) == 0 {
			return nil
		}
		for _, def := range deficits {
			for i := range cands {
				if !stillShort(s.exposure, def.Entity) {
					break
				}
				if s.taken[i] || !containsEntity(s.pool, def, cands[i].Lineup) {
					continue
				}
				s.swapIn(cands, i, def)
			}
		}
	}
	if deficits := s.exposure.Deficits(); len(deficits) > 0 {
		first := deficits[0]
		return exposureInfeasible(first.Entity, "%d of %d required lineups in the portfolio", first.Count, first.Required)
	}
	return nil
}

func (s *selection) swapIn(cands []ScoredLineup, in int, def ExposureDeficit) {
	victims := make([]int, 0, len(s.chosen))
	for k, idx := range s.chosen {
		if !containsEntity(s.pool, def, cands[idx].Lineup) {
			victims = append(victims, k)
		}
	}
	label := cands[in].Label
	sort.SliceStable(victims, func(a, b int) bool {
		va, vb := cands[s.chosen[victims[a]]], cands[s.chosen[victims[b]]]
		if (va.Label == label) != (vb.Label == label) {
			return va.Label == label
		}
		return va.NexusScore < vb.NexusScore
	})
	for _, k := range victims {
		out := s.chosen[k]
		if s.exposure.Swap(cands[out].Lineup, cands[in].Lineup) {
			delete(s.taken, out)
			s.taken[in] = true
			s.chosen[k] = in
			return
		}
	}
}

func (s *selection) lineups(cands []ScoredLineup) []ScoredLineup {
	out := make([]ScoredLineup, len(s.chosen))
	for i, idx := range s.chosen {
		out[i] = cands[idx]
	}
	return out
}

func (s *selection) summary(cands, selected []ScoredLineup, cfg PortfolioConfig) *PortfolioSummary {
	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.NexusScore
	}
	sort.Float64s(scores)

	ps := &PortfolioSummary{
		Candidates:       len(cands),
		BulkMultiplier:   cfg.BulkMultiplier,
		FloorThreshold:   stat.Quantile(0.25, stat.Empirical, scores, nil),
		CeilingThreshold: stat.Quantile(0.75, stat.Empirical, scores, nil),
		Quotas:           make(map[PortfolioLabel]int),
		Selected:         make(map[PortfolioLabel]int),
		MeanNexus:        make(map[PortfolioLabel]float64),
		MeanOwnership:    make(map[PortfolioLabel]float64),
	}
	q := LargestRemainder(s.m, []float64{cfg.Targets.Floor, cfg.Targets.Ceiling, cfg.Targets.Balanced})
	for i, l := range s.labels {
		ps.Quotas[l] = q[i]
	}

	for _, l := range s.labels {
		var nexus, own []float64
		for _, c := range selected {
			if c.Label == l {
				nexus = append(nexus, c.NexusScore)
				own = append(own, c.AverageOwnership)
			}
		}
		ps.Selected[l] = len(nexus)
		if len(nexus) > 0 {
			ps.MeanNexus[l] = round2(stat.Mean(nexus, nil))
			ps.MeanOwnership[l] = round2(stat.Mean(own, nil))
		}
	}

	if s.stackQuota != nil {
		ps.StackQuotas = s.stackPlan
		ps.StackSelected = make(map[string]int)
		for _, c := range selected {
			ps.StackSelected[stackBucket(c.StackSignature, s.targets)]++
		}
	}
	return ps
}
