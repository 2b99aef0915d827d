package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionBusy     = errors.New("session is already generating")
)

// State is a session lifecycle state.
type State string

const (
	StateCreated    State = "created"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateClosed     State = "closed"
)

// GenerateParams is one generation request against a session. Exposure and
// Contest override the session's values when set.
type GenerateParams struct {
	Count    int
	Strategy string
	Custom   *strategy.CustomConfig
	Exposure []optimizer.ExposureSetting
	Contest  *optimizer.Contest
	Seed     *uint64
}

// Generation is a finished generation.
type Generation struct {
	ID       string
	Strategy strategy.Resolved
	Contest  optimizer.Contest
	Lineups  []optimizer.ScoredLineup
	Summary  optimizer.Summary
}

// Info is a snapshot of session state.
type Info struct {
	ID           string            `json:"session_id"`
	State        State             `json:"state"`
	PoolSize     int               `json:"pool_size"`
	Teams        []string          `json:"teams"`
	Contest      optimizer.Contest `json:"contest"`
	Formula      string            `json:"formula"`
	Generations  int               `json:"generations"`
	Lineups      int               `json:"lineups"`
	ExposureRows int               `json:"exposure_settings"`
	CreatedAt    time.Time         `json:"created_at"`
	LastUsed     time.Time         `json:"last_used"`
	Subscribed   bool              `json:"subscribed"`
}

// Session owns one player pool and the lineups generated from it.
type Session struct {
	ID        string
	CreatedAt time.Time

	pool     *optimizer.PlayerPool
	scorer   *optimizer.Scorer
	registry *strategy.Registry
	bus      *Bus
	opts     Options
	logger   *logrus.Entry

	mu          sync.Mutex
	state       State
	contest     optimizer.Contest
	exposure    []optimizer.ExposureSetting
	lastUsed    time.Time
	generations int
	lineups     map[string]optimizer.ScoredLineup
}

// Pool returns the session's immutable player pool.
func (s *Session) Pool() *optimizer.PlayerPool { return s.pool }

// Bus returns the session's progress bus.
func (s *Session) Bus() *Bus { return s.bus }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Contest() optimizer.Contest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contest
}

// ActiveBounds counts the active exposure bounds of the session settings.
func (s *Session) ActiveBounds() int {
	s.mu.Lock()
	settings := s.exposure
	s.mu.Unlock()
	policy, err := optimizer.NewExposurePolicy(s.pool, settings)
	if err != nil {
		return 0
	}
	return policy.ActiveBounds()
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		State:        s.state,
		PoolSize:     s.pool.Len(),
		Teams:        s.pool.Teams(),
		Contest:      s.contest,
		Formula:      s.scorer.Formula().Name,
		Generations:  s.generations,
		Lineups:      len(s.lineups),
		ExposureRows: len(s.exposure),
		CreatedAt:    s.CreatedAt,
		LastUsed:     s.lastUsed,
		Subscribed:   s.bus.HasSubscriber(),
	}
}

// SetFormula swaps the session formula. Lineups already generated keep their
// score and formula name.
func (s *Session) SetFormula(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.lastUsed = time.Now()
	return s.scorer.SetFormula(name)
}

// adoptFormula installs a formula chosen by a strategy. It stays in force for
// later generations until replaced.
func (s *Session) adoptFormula(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scorer.Formula().Name == name {
		return nil
	}
	if err := s.scorer.SetFormula(name); err != nil {
		return err
	}
	s.logger.WithField("formula", name).Info("Session formula replaced by strategy")
	return nil
}

// Lineups returns retained lineups by id, plus the ids not found.
func (s *Session) Lineups(ids []string) ([]optimizer.ScoredLineup, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []optimizer.ScoredLineup
	var missing []string
	for _, id := range ids {
		if l, ok := s.lineups[id]; ok {
			found = append(found, l)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateGenerating {
		return 0
	}
	return now.Sub(s.lastUsed)
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateGenerating:
		return ErrSessionBusy
	}
	s.state = StateGenerating
	s.lastUsed = time.Now()
	return nil
}

func (s *Session) end(gen *Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateGenerating {
		s.state = StateReady
	}
	s.lastUsed = time.Now()
	if gen == nil {
		return
	}
	s.generations++
	for _, l := range gen.Lineups {
		s.lineups[l.ID] = l
	}
}

func (s *Session) close() bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.mu.Unlock()
	s.bus.Close()
	return true
}

// Generate runs one generation. Input errors end the run without a terminal
// progress event; later failures publish "Error: <reason>".
func (s *Session) Generate(ctx context.Context, p GenerateParams) (*Generation, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	s.bus.Begin()
	start := time.Now()

	gen, err := s.generate(ctx, p)
	took := time.Since(start)
	name := p.Strategy
	if name == "" {
		name = strategy.Recommended
	}
	if gen != nil {
		name = gen.Strategy.Name
	}
	s.opts.Observer.GenerationFinished(name, gen.summary(), took, err)
	if s.registry.Has(name) {
		nexus := 0.0
		if gen != nil {
			nexus = gen.Summary.AverageNexus
		}
		s.registry.Record(name, len(gen.lineups()), nexus, took, err != nil)
	}

	switch {
	case err == nil:
		s.bus.Complete()
	case optimizer.IsInputError(err):
		s.bus.Abort()
	default:
		s.bus.Fail(err.Error())
	}
	s.end(gen)
	return gen, err
}

func (s *Session) generate(ctx context.Context, p GenerateParams) (*Generation, error) {
	s.mu.Lock()
	contest := s.contest
	exposure := s.exposure
	s.mu.Unlock()
	if p.Contest != nil {
		contest = *p.Contest
	}
	if p.Exposure != nil {
		exposure = p.Exposure
	}
	if p.Count > s.opts.MaxLineups {
		return nil, optimizer.NewInputError("count %d exceeds the limit of %d", p.Count, s.opts.MaxLineups)
	}

	policy, err := optimizer.NewExposurePolicy(s.pool, exposure)
	if err != nil {
		return nil, err
	}
	resolved, err := s.registry.Resolve(p.Strategy, contest, policy.ActiveBounds(), p.Custom)
	if err != nil {
		return nil, err
	}

	if resolved.Formula != "" {
		if err := s.adoptFormula(resolved.Formula); err != nil {
			return nil, err
		}
	}

	seed := p.Seed
	if seed == nil && s.opts.Seed != 0 {
		v := s.opts.Seed
		seed = &v
	}

	genID := newID()
	log := s.logger.WithFields(logrus.Fields{
		"generation_id": genID,
		"strategy":      resolved.Name,
		"contest_type":  contest.Type,
	})
	driver := optimizer.NewDriver(s.pool, s.scorer, optimizer.DriverOptions{
		Workers:   s.opts.Workers,
		SalaryCap: s.opts.SalaryCap,
		Logger:    log,
	})
	res, err := driver.Generate(ctx, optimizer.GenerateRequest{
		Count:    p.Count,
		Strategy: resolved.Name,
		Config:   resolved.Config,
		Contest:  contest,
		Exposure: exposure,
		Seed:     seed,
		Progress: s.bus.Publish,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %d lineups with %s: %w", p.Count, resolved.Name, err)
	}

	return &Generation{
		ID:       genID,
		Strategy: resolved,
		Contest:  contest,
		Lineups:  res.Lineups,
		Summary:  res.Summary,
	}, nil
}

func (g *Generation) summary() *optimizer.Summary {
	if g == nil {
		return nil
	}
	return &g.Summary
}

func (g *Generation) lineups() []optimizer.ScoredLineup {
	if g == nil {
		return nil
	}
	return g.Lineups
}
