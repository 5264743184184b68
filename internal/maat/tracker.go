package maat

import (
	"context"
	"sync"
	"time"
)

// State is the staleness state of a namespace.
type State int

const (
	// StateStale means a rebuild is owed and none is in flight.
	StateStale State = iota
	// StateRebuilding means a rebuild is in flight.
	StateRebuilding
	// StateFresh means the published snapshot is within its freshness window.
	StateFresh
)

func (s State) String() string {
	switch s {
	case StateStale:
		return "stale"
	case StateRebuilding:
		return "rebuilding"
	case StateFresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// lifecycle gates the start of rebuild goroutines so Close can wait for
// every rebuild that was started before it.
type lifecycle struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (l *lifecycle) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.wg.Add(1)
	return true
}

func (l *lifecycle) end() { l.wg.Done() }

func (l *lifecycle) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *lifecycle) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

// flight is one rebuild in progress. snap and err are written before done
// is closed and only read after.
type flight[T any] struct {
	done chan struct{}
	snap *T
	err  error
}

// rebuildReport is handed to the tracker's owner after every attempt.
type rebuildReport struct {
	ns       Namespace
	started  time.Time
	finished time.Time
	entries  int
	err      error
}

// tracker owns one namespace: its staleness state, its published snapshot
// and at most one in-flight rebuild.
type tracker[T any] struct {
	ns       Namespace
	interval time.Duration
	clock    Clock
	life     *lifecycle
	build    func(ctx context.Context) (*T, error)
	size     func(*T) int
	report   func(rebuildReport)

	mu         sync.Mutex
	state      State
	freshUntil time.Time
	current    *T
	inflight   *flight[T]
	rebuilds   int
}

func newTracker[T any](ns Namespace, interval time.Duration, clock Clock, life *lifecycle,
	build func(ctx context.Context) (*T, error), size func(*T) int, report func(rebuildReport)) *tracker[T] {
	return &tracker[T]{
		ns:       ns,
		interval: interval,
		clock:    clock,
		life:     life,
		build:    build,
		size:     size,
		report:   report,
		state:    StateStale,
	}
}

// get returns the current snapshot, first starting or joining a rebuild if
// the namespace is stale. coalesced is true when the call attached to a
// rebuild another caller had already started.
//
// On a failed rebuild it returns the previous snapshot (possibly nil) and
// the *ScanError.
func (t *tracker[T]) get(ctx context.Context) (snap *T, coalesced bool, err error) {
	if t.life.isClosed() {
		return nil, false, ErrClosed
	}

	t.mu.Lock()
	t.expireLocked()

	var f *flight[T]
	switch t.state {
	case StateFresh:
		snap = t.current
		t.mu.Unlock()
		return snap, false, nil
	case StateRebuilding:
		f = t.inflight
		coalesced = true
	default:
		f, err = t.startLocked()
		if err != nil {
			t.mu.Unlock()
			return nil, false, err
		}
	}
	t.mu.Unlock()

	select {
	case <-f.done:
		return f.snap, coalesced, f.err
	case <-ctx.Done():
		return nil, coalesced, ctx.Err()
	}
}

// invalidate marks a fresh namespace stale. A rebuild in flight is left
// alone: the next get joins it.
func (t *tracker[T]) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateFresh {
		t.state = StateStale
	}
}

// peek returns the published snapshot and state without triggering a rebuild.
func (t *tracker[T]) peek() (*T, State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	return t.current, t.state
}

// rebuildCount returns the number of rebuilds started so far.
func (t *tracker[T]) rebuildCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rebuilds
}

func (t *tracker[T]) expireLocked() {
	if t.state == StateFresh && !t.clock.Now().Before(t.freshUntil) {
		t.state = StateStale
	}
}

func (t *tracker[T]) startLocked() (*flight[T], error) {
	if !t.life.begin() {
		return nil, ErrClosed
	}
	f := &flight[T]{done: make(chan struct{})}
	t.inflight = f
	t.state = StateRebuilding
	t.rebuilds++
	go t.run(f)
	return f, nil
}

// run performs the rebuild detached from any single caller's context, so a
// caller giving up does not abort the rebuild for everyone attached to it.
func (t *tracker[T]) run(f *flight[T]) {
	defer t.life.end()

	started := t.clock.Now()
	snap, err := t.build(context.Background())
	finished := t.clock.Now()

	rep := rebuildReport{ns: t.ns, started: started, finished: finished}

	t.mu.Lock()
	if err != nil {
		se := asScanError(t.ns, err)
		t.state = StateStale
		f.snap = t.current
		f.err = se
		rep.err = se
	} else {
		t.current = snap
		t.state = StateFresh
		t.freshUntil = finished.Add(t.interval)
		f.snap = snap
		rep.entries = t.size(snap)
	}
	t.inflight = nil
	t.mu.Unlock()

	close(f.done)

	if t.report != nil {
		t.report(rep)
	}
}
