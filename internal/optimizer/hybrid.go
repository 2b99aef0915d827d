package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// heavyConstraintBounds is the active-bound count above which auto mode
// treats the exposure set as dense.
const heavyConstraintBounds = 25

// Seed streams keep each sampler's RNG independent of the others.
const (
	streamMonteCarlo uint64 = iota + 1
	streamGenetic
	streamAnnealing
	streamRefill
	streamBackfill
)

// Progress percent bands.
const (
	generateBand = 70.0
	scoreBand    = 85.0
	selectStart  = 85.0
	finalizeAt   = 95.0
)

// ProgressFunc receives progress updates. current and target are zero when the
// status carries no counter.
type ProgressFunc func(percent float64, status string, current, target int)

// GenerateRequest is one batch generation.
type GenerateRequest struct {
	Count    int
	Strategy string
	Config   StrategyConfig
	Contest  Contest
	Exposure []ExposureSetting
	// Seed fixes every RNG stream and forces sequential sampler execution.
	Seed     *uint64
	Progress ProgressFunc
}

// Result is a generated batch and its summary.
type Result struct {
	Lineups []ScoredLineup
	Summary Summary
}

// Summary describes how a batch was produced.
type Summary struct {
	Strategy          string            `json:"strategy"`
	Algorithm         Algorithm         `json:"algorithm"`
	Formula           string            `json:"formula"`
	Requested         int               `json:"requested"`
	Generated         int               `json:"generated"`
	Distribution      *Distribution     `json:"distribution,omitempty"`
	Allocation        map[Algorithm]int `json:"allocation"`
	ByAlgorithm       map[Algorithm]int `json:"by_algorithm"`
	Offered           int64             `json:"offered"`
	Discarded         int64             `json:"discarded"`
	Duplicates        int64             `json:"duplicates"`
	ExposureRejects   int64             `json:"exposure_rejects"`
	Repairs           int64             `json:"repairs"`
	RepairFailures    int64             `json:"repair_failures"`
	BackfillRounds    int               `json:"backfill_rounds"`
	ExposureTrimmed   int               `json:"exposure_trimmed"`
	Partial           bool              `json:"partial"`
	Seed              *uint64           `json:"seed,omitempty"`
	DurationMs        int64             `json:"duration_ms"`
	AverageNexus      float64           `json:"average_nexus_score"`
	AverageProjected  float64           `json:"average_projected_points"`
	AverageSalary     float64           `json:"average_salary"`
	AverageOwnership  float64           `json:"average_ownership"`
	PoolMeanProjected float64           `json:"pool_mean_projected"`
	StackDistribution map[string]int    `json:"stack_distribution"`
	Exposure          ExposureReport    `json:"exposure"`
	Portfolio         *PortfolioSummary `json:"portfolio,omitempty"`
}

// DriverOptions configure a Driver.
type DriverOptions struct {
	// Workers bounds parallel sampler tasks. Zero means one per CPU.
	Workers   int
	SalaryCap int
	Logger    *logrus.Entry
}

// Driver runs generation requests against one pool.
type Driver struct {
	env     *Env
	workers int
	logger  *logrus.Entry
}

func NewDriver(pool *PlayerPool, scorer *Scorer, opts DriverOptions) *Driver {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{env: NewEnv(pool, scorer, opts.SalaryCap), workers: workers, logger: logger}
}

// AutoDistribution picks a sampler mix from the contest and the number of
// active exposure bounds. Dense constraint sets win over contest type.
func AutoDistribution(contest Contest, activeBounds int) Distribution {
	switch {
	case activeBounds > heavyConstraintBounds:
		return Distribution{MonteCarlo: 0.2, Genetic: 0.3, Annealing: 0.5}
	case contest.Type == ContestCash:
		return Distribution{MonteCarlo: 0.8, Genetic: 0.1, Annealing: 0.1}
	case contest.Type == ContestDoubleUp:
		return Distribution{MonteCarlo: 0.7, Genetic: 0.2, Annealing: 0.1}
	case contest.Type == ContestGPP && contest.FieldSize < 10000:
		return Distribution{MonteCarlo: 0.2, Genetic: 0.7, Annealing: 0.1}
	case contest.Type == ContestGPP:
		return Distribution{MonteCarlo: 0.2, Genetic: 0.6, Annealing: 0.2}
	default:
		return Distribution{MonteCarlo: 0.6, Genetic: 0.3, Annealing: 0.1}
	}
}

// hybridFor lifts single-sampler configs into a hybrid run.
func hybridFor(cfg StrategyConfig, contest Contest, policy *ExposurePolicy) (HybridConfig, Distribution) {
	switch c := cfg.(type) {
	case MonteCarloConfig:
		h := DefaultHybridConfig(Distribution{MonteCarlo: 1})
		h.MonteCarlo = c
		return h, h.Distribution
	case GeneticConfig:
		h := DefaultHybridConfig(Distribution{Genetic: 1})
		h.Genetic = c
		h.MonteCarlo = c.Seeding
		return h, h.Distribution
	case AnnealingConfig:
		h := DefaultHybridConfig(Distribution{Annealing: 1})
		h.Annealing = c
		h.MonteCarlo = c.Seeding
		return h, h.Distribution
	case HybridConfig:
		if c.Auto {
			return c, AutoDistribution(contest, policy.ActiveBounds())
		}
		return c, c.Distribution
	case PortfolioConfig:
		return hybridFor(c.Hybrid, contest, policy)
	}
	return DefaultHybridConfig(AutoDistribution(contest, policy.ActiveBounds())), AutoDistribution(contest, policy.ActiveBounds())
}

// Generate validates the request, then samples, backfills and scores a batch.
// Input errors are returned before any progress is reported.
func (d *Driver) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	start := time.Now()
	if req.Count < 1 {
		return nil, invalidInputf("count must be at least 1, got %d", req.Count)
	}
	if req.Config == nil {
		return nil, invalidInputf("strategy config is required")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if err := req.Contest.Validate(); err != nil {
		return nil, err
	}
	policy, err := NewExposurePolicy(d.env.Pool, req.Exposure)
	if err != nil {
		return nil, err
	}
	if err := d.env.Pool.CheckFeasible(d.env.Evaluator.SalaryCap()); err != nil {
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	deterministic := req.Seed != nil
	if deterministic {
		seed = *req.Seed
	}

	progress := &progressTracker{fn: req.Progress}
	log := d.logger.WithFields(logrus.Fields{
		"strategy":  req.Strategy,
		"algorithm": req.Config.Algorithm(),
		"count":     req.Count,
		"bounds":    policy.ActiveBounds(),
	})
	log.Info("Starting lineup generation")

	var res *Result
	if pc, ok := req.Config.(PortfolioConfig); ok {
		res, err = d.runPortfolio(ctx, req, pc, policy, seed, deterministic, progress)
	} else {
		res, err = d.runHybrid(ctx, req, policy, seed, deterministic, progress)
	}
	if err != nil {
		log.WithError(err).Warn("Lineup generation failed")
		return nil, err
	}

	res.Summary.Strategy = req.Strategy
	res.Summary.Requested = req.Count
	res.Summary.Generated = len(res.Lineups)
	res.Summary.Formula = d.env.Scorer.Formula().Name
	res.Summary.DurationMs = time.Since(start).Milliseconds()
	if deterministic {
		s := seed
		res.Summary.Seed = &s
	}

	log.WithFields(logrus.Fields{
		"generated":   res.Summary.Generated,
		"discarded":   res.Summary.Discarded,
		"duplicates":  res.Summary.Duplicates,
		"partial":     res.Summary.Partial,
		"duration_ms": res.Summary.DurationMs,
	}).Info("Lineup generation completed")
	return res, nil
}

func (d *Driver) runHybrid(ctx context.Context, req GenerateRequest, policy *ExposurePolicy, seed uint64, deterministic bool, progress *progressTracker) (*Result, error) {
	cfg, dist := hybridFor(req.Config, req.Contest, policy)
	exposure := NewExposureEngine(policy, req.Count)
	batch := newBatch(d.env, exposure, req.Count, func(accepted, capacity int) {
		progress.report(generateBand*float64(accepted)/float64(capacity),
			fmt.Sprintf("Generating candidates %d of %d", accepted, capacity), accepted, capacity)
	})

	alloc, err := d.sample(ctx, batch, exposure, cfg, dist, seed, deterministic)
	if err != nil && ctx.Err() == nil {
		return nil, NewInternalError(err)
	}

	partial := false
	rounds := 0
	if ctx.Err() != nil {
		if batch.Len() == 0 || len(exposure.Deficits()) > 0 {
			return nil, cancelled(ctx.Err())
		}
		partial = true
	} else {
		if batch.Len() == 0 {
			return nil, emptyBatchError(&batch.Stats, "lineup")
		}
		rounds, err = d.backfill(ctx, batch, exposure, cfg.MonteCarlo, seed)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err())
			}
			return nil, err
		}
	}

	kept, trimmed, err := trimExcess(d.env.Pool, exposure, batch.Lineups())
	if err != nil {
		if partial {
			return nil, cancelled(ctx.Err())
		}
		return nil, err
	}
	if trimmed > 0 {
		d.logger.WithFields(logrus.Fields{
			"trimmed": trimmed,
			"kept":    len(kept),
		}).Debug("Dropped lineups above an exposure max")
	}

	lineups := d.score(kept, req.Contest, progress)
	progress.report(finalizeAt, "Finalizing", 0, 0)

	summary := d.summarize(lineups, batch, exposure)
	summary.Algorithm = req.Config.Algorithm()
	summary.Distribution = &dist
	summary.Allocation = alloc
	summary.BackfillRounds = rounds
	summary.ExposureTrimmed = trimmed
	summary.Partial = partial || len(lineups) < req.Count
	return &Result{Lineups: lineups, Summary: summary}, nil
}

// sample runs MC, GA and SA on their allocations, then refills from MC when
// dedupe or rejections left the batch short. With a fixed seed the samplers
// run one after another so the output is reproducible.
func (d *Driver) sample(ctx context.Context, batch *Batch, exposure *ExposureEngine, cfg HybridConfig, dist Distribution, seed uint64, deterministic bool) (map[Algorithm]int, error) {
	mc, ga, sa := dist.Allocate(batch.Capacity())
	alloc := map[Algorithm]int{AlgorithmMonteCarlo: mc, AlgorithmGenetic: ga, AlgorithmAnnealing: sa}
	tasks := []struct {
		sampler Sampler
		n       int
	}{
		{NewMonteCarloSampler(cfg.MonteCarlo, d.env, exposure, newRNG(deriveSeed(seed, streamMonteCarlo))), mc},
		{NewGeneticSampler(cfg.Genetic, d.env, exposure, newRNG(deriveSeed(seed, streamGenetic))), ga},
		{NewAnnealingSampler(cfg.Annealing, d.env, exposure, newRNG(deriveSeed(seed, streamAnnealing))), sa},
	}

	if deterministic || d.workers == 1 {
		for _, t := range tasks {
			if err := t.sampler.Sample(ctx, batch, t.n); err != nil {
				return alloc, err
			}
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(d.workers)
		for _, t := range tasks {
			t := t
			if t.n == 0 {
				continue
			}
			g.Go(func() error { return t.sampler.Sample(ctx, batch, t.n) })
		}
		if err := g.Wait(); err != nil {
			return alloc, err
		}
	}

	if short := batch.Capacity() - batch.Len(); short > 0 {
		refill := NewMonteCarloSampler(cfg.MonteCarlo, d.env, exposure, newRNG(deriveSeed(seed, streamRefill)))
		if err := refill.Sample(ctx, batch, short); err != nil {
			return alloc, err
		}
	}
	return alloc, nil
}

// score attaches ROI against the batch's mean projection and sorts the batch
// by NexusScore, then id.
func (d *Driver) score(lineups []ScoredLineup, contest Contest, progress *progressTracker) []ScoredLineup {
	n := len(lineups)
	projected := make([]float64, n)
	for i := range lineups {
		projected[i] = lineups[i].ProjectedPoints
	}
	mean := 0.0
	if n > 0 {
		mean = stat.Mean(projected, nil)
	}

	step := n / 15
	if step < 1 {
		step = 1
	}
	for i := range lineups {
		lineups[i].ROI = ROI(lineups[i].ProjectedPoints, mean, contest.Type)
		if done := i + 1; done%step == 0 || done == n {
			progress.report(generateBand+(scoreBand-generateBand)*float64(done)/float64(n),
				fmt.Sprintf("Scoring candidates %d of %d", done, n), done, n)
		}
	}
	sortLineups(lineups)
	return lineups
}

func sortLineups(lineups []ScoredLineup) {
	sort.SliceStable(lineups, func(i, j int) bool {
		if lineups[i].NexusScore != lineups[j].NexusScore {
			return lineups[i].NexusScore > lineups[j].NexusScore
		}
		return lineups[i].ID < lineups[j].ID
	})
}

func (d *Driver) summarize(lineups []ScoredLineup, batch *Batch, exposure *ExposureEngine) Summary {
	s := Summary{
		ByAlgorithm:       make(map[Algorithm]int),
		StackDistribution: make(map[string]int),
		Offered:           batch.Stats.Offered.Load(),
		Discarded:         batch.Stats.Discarded.Load(),
		Duplicates:        batch.Stats.Duplicates.Load(),
		ExposureRejects:   batch.Stats.ExposureRejects.Load(),
		Repairs:           batch.Stats.Repairs.Load(),
		RepairFailures:    batch.Stats.RepairFailures.Load(),
		Exposure:          exposure.Report(),
	}
	if len(lineups) == 0 {
		return s
	}
	var nexus, proj, salary, own float64
	for _, l := range lineups {
		s.ByAlgorithm[l.Algorithm]++
		sig := l.StackSignature
		if sig == "" {
			sig = "none"
		}
		s.StackDistribution[sig]++
		nexus += l.NexusScore
		proj += l.ProjectedPoints
		salary += float64(l.TotalSalary)
		own += l.AverageOwnership
	}
	n := float64(len(lineups))
	s.AverageNexus = round2(nexus / n)
	s.AverageProjected = round2(proj / n)
	s.AverageSalary = round2(salary / n)
	s.AverageOwnership = round2(own / n)
	poolProj := make([]float64, 0, d.env.Pool.Len())
	for _, p := range d.env.Pool.Players() {
		poolProj = append(poolProj, p.ProjectedPoints)
	}
	s.PoolMeanProjected = round2(stat.Mean(poolProj, nil))
	return s
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// progressTracker serializes progress calls from concurrent samplers and keeps
// the percent monotonic. Counter updates inside the same whole percent are
// dropped unless they finish a phase.
type progressTracker struct {
	fn ProgressFunc

	mu     sync.Mutex
	last   float64
	status string
	sent   bool
}

func (p *progressTracker) report(percent float64, status string, current, target int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent < p.last {
		percent = p.last
	}
	phaseDone := target > 0 && current == target
	samePhase := p.sent && phasePrefix(status) == phasePrefix(p.status)
	if samePhase && math.Floor(percent) == math.Floor(p.last) && !phaseDone {
		return
	}
	p.last, p.status, p.sent = percent, status, true
	p.fn(percent, status, current, target)
}

func phasePrefix(status string) string {
	for i, r := range status {
		if r >= '0' && r <= '9' {
			return status[:i]
		}
	}
	return status
}
