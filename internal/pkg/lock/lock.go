// Package lock provides per-phone locking so ledger read-modify-write cycles
// for the same player never interleave within the process.
package lock

import "sync"

// keyMutex wraps a mutex stored per phone number.
type keyMutex struct {
	mu sync.Mutex
}

// PhoneLock hands out one mutex per normalized phone number.
type PhoneLock struct {
	locks sync.Map // map[string]*keyMutex
	pool  sync.Pool
}

// NewPhoneLock creates a new PhoneLock instance.
func NewPhoneLock() *PhoneLock {
	return &PhoneLock{
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

func (pl *PhoneLock) getLock(phone string) *keyMutex {
	if v, ok := pl.locks.Load(phone); ok {
		return v.(*keyMutex)
	}

	newLock := pl.pool.Get().(*keyMutex)
	actual, loaded := pl.locks.LoadOrStore(phone, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		pl.pool.Put(newLock)
	}
	return actual.(*keyMutex)
}

// Lock acquires the lock for a phone number.
func (pl *PhoneLock) Lock(phone string) {
	pl.getLock(phone).mu.Lock()
}

// Unlock releases the lock for a phone number.
func (pl *PhoneLock) Unlock(phone string) {
	if v, ok := pl.locks.Load(phone); ok {
		v.(*keyMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (pl *PhoneLock) TryLock(phone string) bool {
	return pl.getLock(phone).mu.TryLock()
}

// WithLock executes fn while holding the phone's lock.
func (pl *PhoneLock) WithLock(phone string, fn func() error) error {
	pl.Lock(phone)
	defer pl.Unlock(phone)
	return fn()
}
