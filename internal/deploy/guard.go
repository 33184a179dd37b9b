package deploy

import (
	"errors"
	"sync"
)

// ErrConcurrencyDenied is returned by Guard.Do when another invocation of the
// same operation already ran (serial mode) or is running (parallel mode).
var ErrConcurrencyDenied = errors.New("concurrent invocation denied")

// Barrier admits the first of every n arrivals and resets after the n-th.
type Barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
}

func NewBarrier(n int) *Barrier {
	if n < 1 {
		n = 1
	}
	return &Barrier{n: n}
}

// Arrive registers one participant and reports whether it is the admitted one.
func (b *Barrier) Arrive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	first := b.arrived == 0
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
	}
	return first
}

type guardKey struct {
	infrastructure string
	operation      string
}

// Guard lets an operation run once per infrastructure although it is invoked
// for every host. Serial runs remember what already ran; parallel runs meet at
// a Barrier sized to the number of hosts.
type Guard struct {
	mu       sync.Mutex
	seen     map[guardKey]struct{}
	barriers map[guardKey]*Barrier
}

func NewGuard() *Guard {
	return &Guard{
		seen:     make(map[guardKey]struct{}),
		barriers: make(map[guardKey]*Barrier),
	}
}

// Do runs fn unless the guard denies the invocation with ErrConcurrencyDenied.
// participants is the number of hosts invoking the operation in parallel;
// zero or less selects serial mode.
func (g *Guard) Do(infrastructure, operation string, participants int, fn func() error) error {
	k := guardKey{infrastructure: infrastructure, operation: operation}
	if !g.admit(k, participants) {
		return ErrConcurrencyDenied
	}
	return fn()
}

func (g *Guard) admit(k guardKey, participants int) bool {
	g.mu.Lock()
	if participants <= 0 {
		defer g.mu.Unlock()
		if _, ok := g.seen[k]; ok {
			return false
		}
		g.seen[k] = struct{}{}
		return true
	}
	b, ok := g.barriers[k]
	if !ok {
		b = NewBarrier(participants)
		g.barriers[k] = b
	}
	g.mu.Unlock()
	return b.Arrive()
}
