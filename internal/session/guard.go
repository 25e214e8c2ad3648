package session

import "sync"

// guard implements last-request-wins: every request takes a ticket and only
// the holder of the newest ticket may publish its result.
type guard struct {
	mu  sync.Mutex
	seq uint64
}

func (g *guard) issue() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.seq
}

// settle runs publish if ticket is still the newest one. The check and the
// publish happen under the same lock so a newer ticket cannot be issued in
// between.
func (g *guard) settle(ticket uint64, publish func() error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ticket != g.seq {
		return false, nil
	}
	return true, publish()
}

// invalidate makes every outstanding ticket stale.
func (g *guard) invalidate() {
	g.mu.Lock()
	g.seq++
	g.mu.Unlock()
}
