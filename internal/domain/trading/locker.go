package trading

import (
	"sync"

	"github.com/google/uuid"
)

// accountLocker hands out one exclusive mutation lock per account. Every
// multi-step read-modify-write across ledger, margin book, and order book
// for a single account serializes through it; operations on unrelated
// accounts proceed independently.
type accountLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newAccountLocker() *accountLocker {
	return &accountLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// get returns the mutex for account, creating it on first use. Locks are
// never removed; the account space is bounded by real accounts.
func (l *accountLocker) get(account uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[account]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[account] = lock
	}
	return lock
}
