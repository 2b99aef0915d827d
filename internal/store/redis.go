package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

const keyPrefix = "lineup:"

func lineupKey(id string) string { return keyPrefix + id }

// RedisStore keeps lineups in redis behind a circuit breaker. While the
// breaker is open, or a call fails, reads and writes go to the fallback.
type RedisStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	breaker  *gobreaker.CircuitBreaker
	fallback LineupStore
	logger   *logrus.Entry

	onFallback func()
}

// BreakerSettings tune the redis circuit breaker.
type BreakerSettings struct {
	Threshold uint32
	Timeout   time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration, fallback LineupStore, bs BreakerSettings, logger *logrus.Entry) *RedisStore {
	if bs.Threshold == 0 {
		bs.Threshold = 5
	}
	if bs.Timeout <= 0 {
		bs.Timeout = 30 * time.Second
	}
	if fallback == nil {
		fallback = NewMemoryStore(ttl)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	threshold := bs.Threshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lineup-store",
		MaxRequests: 1,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"breaker":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &RedisStore{client: client, ttl: ttl, breaker: breaker, fallback: fallback, logger: logger}
}

func (r *RedisStore) Name() string { return "redis" }

// OnFallback registers fn to run whenever a call is served by the fallback.
func (r *RedisStore) OnFallback(fn func()) { r.onFallback = fn }

func (r *RedisStore) fellBack() {
	if r.onFallback != nil {
		r.onFallback()
	}
}

// State exposes the breaker state for health reporting.
func (r *RedisStore) State() gobreaker.State { return r.breaker.State() }

func (r *RedisStore) Save(ctx context.Context, lineups []optimizer.LineupView) error {
	if len(lineups) == 0 {
		return nil
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		pipe := r.client.TxPipeline()
		for _, l := range lineups {
			data, err := json.Marshal(l)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal lineup %s: %w", l.ID, err)
			}
			pipe.Set(ctx, lineupKey(l.ID), data, r.ttl)
		}
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	if err != nil {
		r.logger.WithError(err).WithField("lineups", len(lineups)).Warn("Redis save failed, using fallback store")
		r.fellBack()
		return r.fallback.Save(ctx, lineups)
	}
	r.logger.WithFields(logrus.Fields{
		"lineups": len(lineups),
		"ttl":     r.ttl,
	}).Debug("Saved lineups")
	return nil
}

func (r *RedisStore) Get(ctx context.Context, ids []string) ([]optimizer.LineupView, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := r.breaker.Execute(func() (interface{}, error) {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = lineupKey(id)
		}
		vals, err := r.client.MGet(ctx, keys...).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		out := make([]optimizer.LineupView, 0, len(ids))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var view optimizer.LineupView
			if err := json.Unmarshal([]byte(s), &view); err != nil {
				r.logger.WithError(err).WithField("lineup_id", ids[i]).Warn("Skipping corrupt lineup entry")
				continue
			}
			out = append(out, view)
		}
		return out, nil
	})
	if err != nil {
		r.logger.WithError(err).Warn("Redis read failed, using fallback store")
		r.fellBack()
		return r.fallback.Get(ctx, ids)
	}

	found := res.([]optimizer.LineupView)
	if len(found) == len(ids) {
		return found, nil
	}
	// lineups written while redis was unavailable live in the fallback
	extra, err := r.fallback.Get(ctx, missingIDs(ids, found))
	if err != nil {
		return found, nil
	}
	return orderByIDs(ids, append(found, extra...)), nil
}

func missingIDs(ids []string, found []optimizer.LineupView) []string {
	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[f.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}

func orderByIDs(ids []string, views []optimizer.LineupView) []optimizer.LineupView {
	byID := make(map[string]optimizer.LineupView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}
	out := make([]optimizer.LineupView, 0, len(views))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Ping checks redis through the breaker.
func (r *RedisStore) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Ping(ctx).Err()
	})
	return err
}
