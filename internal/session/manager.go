package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
)

// Observer receives session lifecycle and generation outcomes. summary is nil
// when the generation failed.
type Observer interface {
	SessionOpened()
	SessionClosed()
	ProgressPublished(status string)
	GenerationFinished(strategy string, summary *optimizer.Summary, took time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) SessionOpened()                                                      {}
func (noopObserver) SessionClosed()                                                      {}
func (noopObserver) ProgressPublished(string)                                            {}
func (noopObserver) GenerationFinished(string, *optimizer.Summary, time.Duration, error) {}

// Options configure a Manager and the sessions it creates.
type Options struct {
	TTL        time.Duration
	Workers    int
	SalaryCap  int
	MaxLineups int
	// Seed, when non-zero, fixes the RNG of every generation that does not
	// bring its own.
	Seed     uint64
	Observer Observer
	Logger   *logrus.Entry
}

// InitRequest is everything a session is built from.
type InitRequest struct {
	Players  []optimizer.Player
	Stacks   []optimizer.Stack
	Exposure []optimizer.ExposureSetting
	Contest  optimizer.Contest
}

// Manager owns the live sessions.
type Manager struct {
	registry *strategy.Registry
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(registry *strategy.Registry, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.MaxLineups <= 0 {
		opts.MaxLineups = 1000
	}
	if opts.SalaryCap <= 0 {
		opts.SalaryCap = optimizer.DefaultSalaryCap
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{registry: registry, opts: opts, sessions: make(map[string]*Session)}
}

func newID() string { return uuid.New().String() }

// Init validates the pool, the exposure settings and the contest and opens a
// session on them.
func (m *Manager) Init(req InitRequest) (*Session, error) {
	s := &Session{
		ID:        newID(),
		CreatedAt: time.Now(),
		registry:  m.registry,
		opts:      m.opts,
		state:     StateCreated,
		lineups:   make(map[string]optimizer.ScoredLineup),
	}
	s.lastUsed = s.CreatedAt
	s.logger = m.opts.Logger.WithField("session_id", s.ID)

	pool, err := optimizer.NewPlayerPool(req.Players, req.Stacks)
	if err != nil {
		return nil, err
	}
	if err := req.Contest.Validate(); err != nil {
		return nil, err
	}
	if _, err := optimizer.NewExposurePolicy(pool, req.Exposure); err != nil {
		return nil, err
	}
	if err := pool.CheckFeasible(m.opts.SalaryCap); err != nil {
		return nil, err
	}

	s.pool = pool
	s.scorer = optimizer.NewScorer(pool)
	s.contest = req.Contest
	s.exposure = req.Exposure
	observer := m.opts.Observer
	s.bus = NewBus(func(e Event) { observer.ProgressPublished(e.Status) })
	s.state = StateReady

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	observer.SessionOpened()

	s.logger.WithFields(logrus.Fields{
		"players":      pool.Len(),
		"teams":        len(pool.Teams()),
		"contest_type": req.Contest.Type,
		"bounds":       len(req.Exposure),
	}).Info("Session initialized")
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.State() == StateClosed {
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if s.close() {
		m.opts.Observer.SessionClosed()
		s.logger.Info("Session closed")
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire closes sessions idle for longer than the TTL and returns how many.
func (m *Manager) Expire(now time.Time) int {
	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.idleSince(now) > m.opts.TTL {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		_ = m.Close(id)
	}
	if len(idle) > 0 {
		m.opts.Logger.WithField("expired", len(idle)).Info("Expired idle sessions")
	}
	return len(idle)
}

// Run expires idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.opts.TTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Expire(now)
		}
	}
}

// CloseAll closes every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Close(id)
	}
}
