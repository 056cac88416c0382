package store

import (
	"sync"
	"time"
)

// NonceSet tracks the client-generated identifiers of sends awaiting server
// confirmation. It is session-scoped and shared by everything that sends or
// reconciles, because the confirming event may be processed far from the
// component that created the placeholder.
type NonceSet struct {
	mu      sync.Mutex
	pending map[int64]struct{}
	last    int64
}

func NewNonceSet() *NonceSet {
	return &NonceSet{pending: make(map[int64]struct{})}
}

// Next generates a fresh nonce and registers it as pending. Nonces derive
// from the wall clock in milliseconds and are bumped past the previous one,
// so they are unique and monotonic within the session.
func (n *NonceSet) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce := time.Now().UnixMilli()
	if nonce <= n.last {
		nonce = n.last + 1
	}
	n.last = nonce
	n.pending[nonce] = struct{}{}
	return nonce
}

// Take removes nonce from the pending set and reports whether it was there.
// The check and the removal are one atomic step; this is what the
// reconciliation path uses to decide "this confirmed message is mine".
func (n *NonceSet) Take(nonce int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pending[nonce]; !ok {
		return false
	}
	delete(n.pending, nonce)
	return true
}

// Release drops nonce without caring whether it was pending. Used on
// explicit placeholder dismissal.
func (n *NonceSet) Release(nonce int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, nonce)
}

// Pending reports whether nonce is awaiting confirmation.
func (n *NonceSet) Pending(nonce int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[nonce]
	return ok
}

// Reset clears all pending nonces. Test isolation only.
func (n *NonceSet) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = make(map[int64]struct{})
}
