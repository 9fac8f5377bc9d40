package fingerprint

import (
	"fmt"
	"sync"
)

// guard serializes access to the manager state. A mutation runs on a copy
// that is committed only when it returns normally, so a panic part way
// through leaves the last consistent state in place and the guard usable.
type guard struct {
	mu       sync.Mutex
	st       state
	poisoned bool
}

// update applies fn to a copy of the state. It returns the recovered panic
// as an error when fn did not complete.
func (g *guard) update(fn func(*state)) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.st
	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			err = fmt.Errorf("state update abandoned: %v", r)
		}
	}()
	fn(&next)
	g.st = next
	return nil
}

// view runs fn against the current state without changing it.
func (g *guard) view(fn func(state)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.st)
}

// isPoisoned reports whether any update has been abandoned.
func (g *guard) isPoisoned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poisoned
}
