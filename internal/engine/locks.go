package engine

import (
	"context"
	"slices"
	"sync"
)

// pathLocks hands out exclusive, context-aware locks on resolved file
// paths. Entries are reference counted and dropped when unused.
type pathLocks struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	sem  chan struct{}
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{paths: make(map[string]*pathLock)}
}

// acquire locks every path in sorted order, which keeps two fixes with
// overlapping targets from deadlocking. On cancellation the locks taken so
// far are released and ctx.Err is returned.
func (l *pathLocks) acquire(ctx context.Context, paths []string) (release func(), err error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*pathLock, 0, len(sorted))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
		}
		l.unref(sorted[:len(held)])
	}

	for i, path := range sorted {
		lock := l.ref(path)
		select {
		case lock.sem <- struct{}{}:
			held = append(held, lock)
		case <-ctx.Done():
			l.unref(sorted[i : i+1])
			releaseHeld()
			return nil, ctx.Err()
		}
	}
	return releaseHeld, nil
}

func (l *pathLocks) ref(path string) *pathLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.paths[path]
	if !ok {
		lock = &pathLock{sem: make(chan struct{}, 1)}
		l.paths[path] = lock
	}
	lock.refs++
	return lock
}

func (l *pathLocks) unref(paths []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, path := range paths {
		lock := l.paths[path]
		if lock == nil {
			continue
		}
		if lock.refs--; lock.refs == 0 {
			delete(l.paths, path)
		}
	}
}

// len reports how many paths have a live entry.
func (l *pathLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}
