package ledger

import "sync"

// keyedLocker hands out one mutex per key and forgets it once nobody holds
// or waits for it.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedLocker) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func lockKey(tenantID, orderID string) string {
	return tenantID + "\x00" + orderID
}
