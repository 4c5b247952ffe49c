package matrix

import "sync"

// Registry hands out in-process locks keyed by matrix path so that every
// store in the process targeting the same file shares one lock. Entries are
// reference counted and dropped when the last holder releases them.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// DefaultRegistry is shared by all stores in the process.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire returns a reference to the lock for path. The caller must call
// Release when done with it.
func (r *Registry) Acquire(path string) *PathLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		e = &entry{}
		r.entries[path] = e
	}
	e.refs++
	return &PathLock{r: r, path: path, e: e}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// PathLock is a reference to one registry entry.
type PathLock struct {
	r        *Registry
	path     string
	e        *entry
	released bool
}

// TryLock attempts to take the in-process lock without blocking.
func (l *PathLock) TryLock() bool { return l.e.mu.TryLock() }

// Unlock releases a lock taken with TryLock.
func (l *PathLock) Unlock() { l.e.mu.Unlock() }

// Release drops the reference. It is idempotent.
func (l *PathLock) Release() {
	l.r.mu.Lock()
	defer l.r.mu.Unlock()

	if l.released {
		return
	}
	l.released = true
	l.e.refs--
	if l.e.refs == 0 {
		delete(l.r.entries, l.path)
	}
}
