package deployer

import (
	"sync"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// rootLocks hands out one mutex per context root and forgets it when unused.
type rootLocks struct {
	mu    sync.Mutex
	locks map[deployment.ContextRoot]*rootLock
}

type rootLock struct {
	mu   sync.Mutex
	refs int
}

func newRootLocks() *rootLocks {
	return &rootLocks{locks: make(map[deployment.ContextRoot]*rootLock)}
}

// lock blocks until root is free and returns the matching unlock.
func (l *rootLocks) lock(root deployment.ContextRoot) func() {
	l.mu.Lock()

	entry, ok := l.locks[root]
	if !ok {
		entry = &rootLock{}
		l.locks[root] = entry
	}

	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()

		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, root)
		}
	}
}

// size reports the number of tracked roots.
func (l *rootLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
