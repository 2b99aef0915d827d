package session

import (
	"context"
	"io"
	"math"
	"strings"
	"sync"
)

// Progress statuses outside the counter grammar.
const (
	StatusInitializing = "Initializing"
	StatusCompleted    = "Completed"
	StatusSuperseded   = "Superseded"
	errorPrefix        = "Error: "
)

// subscriberBuffer is the number of queued events before coalescing starts.
const subscriberBuffer = 128

// Event is one progress update on a session stream.
type Event struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Current  int     `json:"current,omitempty"`
	Target   int     `json:"target,omitempty"`
}

// Terminal reports whether e ends a generation run or a subscription.
func (e Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusSuperseded || strings.HasPrefix(e.Status, errorPrefix)
}

func ErrorStatus(reason string) string { return errorPrefix + reason }

// Bus fans progress events of one session out to its single subscriber.
type Bus struct {
	onPublish func(Event)

	mu       sync.Mutex
	sub      *Subscription
	last     Event
	running  bool
	finished bool
	closed   bool
}

// NewBus returns a bus. onPublish, when set, sees every accepted event.
func NewBus(onPublish func(Event)) *Bus {
	return &Bus{onPublish: onPublish}
}

// Begin starts a run: percent resets and Initializing is published.
func (b *Bus) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running, b.finished = true, false
	b.last = Event{}
	b.emitLocked(Event{Progress: 0, Status: StatusInitializing})
}

// Publish sends a progress update. Percent never moves backwards within a run
// and stays below 100 until Complete.
func (b *Bus) Publish(percent float64, status string, current, target int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.finished {
		return
	}
	percent = math.Min(math.Max(percent, b.last.Progress), 99.9)
	b.emitLocked(Event{Progress: percent, Status: status, Current: current, Target: target})
}

// Complete ends the run successfully. Only the first call per run publishes.
func (b *Bus) Complete() {
	b.finish(Event{Progress: 100, Status: StatusCompleted})
}

// Fail ends the run with an error status.
func (b *Bus) Fail(reason string) {
	b.mu.Lock()
	progress := b.last.Progress
	b.mu.Unlock()
	b.finish(Event{Progress: progress, Status: ErrorStatus(reason)})
}

// Abort ends the run without a terminal event. Non-following subscribers
// are released.
func (b *Bus) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.finished {
		return
	}
	b.running, b.finished = false, true
	if b.sub != nil && !b.sub.follow {
		b.sub.close()
		b.sub = nil
	}
}

func (b *Bus) finish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.finished {
		return
	}
	b.emitLocked(e)
	b.running, b.finished = false, true
	if b.sub != nil && !b.sub.follow {
		b.sub.close()
		b.sub = nil
	}
}

func (b *Bus) emitLocked(e Event) {
	b.last = e
	if b.onPublish != nil {
		b.onPublish(e)
	}
	if b.sub != nil {
		b.sub.push(e)
	}
}

// Subscribe attaches a new subscriber and supersedes any previous one. The
// latest event of the current or last run is replayed first. Without follow
// the subscription ends after the run's terminal event.
func (b *Bus) Subscribe(follow bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		b.sub.push(Event{Progress: b.last.Progress, Status: StatusSuperseded})
		b.sub.close()
	}
	s := newSubscription(b, follow)
	if b.closed {
		s.close()
		return s
	}
	if b.running || b.finished {
		s.push(b.last)
	}
	if b.finished && !follow {
		s.close()
		return s
	}
	b.sub = s
	return s
}

func (b *Bus) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == s {
		b.sub = nil
	}
}

// Close ends the current subscription and rejects later publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.running = false
	if b.sub != nil {
		b.sub.close()
		b.sub = nil
	}
}

// HasSubscriber reports whether a subscriber is attached.
func (b *Bus) HasSubscriber() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

// Subscription is a buffered, coalescing event queue for one subscriber.
type Subscription struct {
	bus    *Bus
	follow bool
	notify chan struct{}

	mu     sync.Mutex
	queue  []Event
	closed bool
}

func newSubscription(b *Bus, follow bool) *Subscription {
	return &Subscription{bus: b, follow: follow, notify: make(chan struct{}, 1)}
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	if len(s.queue) > subscriberBuffer {
		s.queue = coalesce(s.queue)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks for the next event. It returns io.EOF once the subscription is
// closed and drained.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, io.EOF
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Pending returns the number of queued events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Unsubscribe detaches from the bus. The running generation is unaffected.
func (s *Subscription) Unsubscribe() {
	s.bus.detach(s)
	s.close()
}

// coalesce keeps the most recent non-terminal event per whole-percent bucket
// and every terminal event, preserving order. If that is still over the
// buffer, the oldest non-terminal events go.
func coalesce(queue []Event) []Event {
	latest := make(map[int]int, len(queue))
	for i, e := range queue {
		if !e.Terminal() {
			latest[int(math.Floor(e.Progress))] = i
		}
	}
	out := make([]Event, 0, len(latest)+1)
	for i, e := range queue {
		if e.Terminal() || latest[int(math.Floor(e.Progress))] == i {
			out = append(out, e)
		}
	}
	for len(out) > subscriberBuffer {
		dropped := false
		for i, e := range out {
			if !e.Terminal() {
				out = append(out[:i], out[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			break
		}
	}
	return out
}
