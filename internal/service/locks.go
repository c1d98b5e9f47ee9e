package service

import "sync"

// keyedLocks serialises work per key. The ingestion and refresh workers
// lock on document id (and content hash during dedup) so no two workers
// ever mutate the same document concurrently.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

func (k *keyedLocks) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()
	entry.mu.Lock()
}

func (k *keyedLocks) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()
	if ok {
		entry.mu.Unlock()
	}
}
