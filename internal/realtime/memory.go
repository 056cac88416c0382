package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryTransport is an in-process Transport for single-node deployments and
// tests. Delivery is synchronous: Publish invokes every subscriber before
// returning.
type MemoryTransport struct {
	clientID string

	mu   sync.RWMutex
	subs map[string]map[int64]func(Envelope)
	next int64
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		clientID: uuid.NewString(),
		subs:     make(map[string]map[int64]func(Envelope)),
	}
}

func (t *MemoryTransport) ClientID() string { return t.clientID }

func (t *MemoryTransport) Publish(_ context.Context, address string, env Envelope) error {
	if env.ClientID == "" {
		env.ClientID = t.clientID
	}
	t.mu.RLock()
	fns := make([]func(Envelope), 0, len(t.subs[address]))
	for _, fn := range t.subs[address] {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(env)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(address string, fn func(Envelope)) (CancelFunc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[address] == nil {
		t.subs[address] = make(map[int64]func(Envelope))
	}
	t.next++
	id := t.next
	t.subs[address][id] = fn

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs[address], id)
			if len(t.subs[address]) == 0 {
				delete(t.subs, address)
			}
		})
	}
	return cancel, nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = make(map[string]map[int64]func(Envelope))
	return nil
}
