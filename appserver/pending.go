package appserver

import (
	"encoding/json"
	"fmt"
	"sync"
)

// pendingCalls maps request ids to one-shot reply slots. A slot is removed
// from the map before it is filled, so it is filled at most once. Closing
// the registry closes every remaining slot, which waiters read as
// ErrCanceled.
type pendingCalls struct {
	mu     sync.Mutex
	slots  map[uint64]chan json.RawMessage
	closed bool
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{slots: make(map[uint64]chan json.RawMessage)}
}

// register creates the slot for id.
func (p *pendingCalls) register(id uint64) (<-chan json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrCanceled
	}
	if _, dup := p.slots[id]; dup {
		return nil, fmt.Errorf("request id %d already pending", id)
	}
	slot := make(chan json.RawMessage, 1)
	p.slots[id] = slot
	return slot, nil
}

// resolve fills and removes the slot for id. It reports false when no
// call is waiting on id, which covers stale and already-resolved ids.
func (p *pendingCalls) resolve(id uint64, msg json.RawMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, ok := p.slots[id]
	if !ok {
		return false
	}
	delete(p.slots, id)
	slot <- msg
	return true
}

// forget drops the slot for id without filling it.
func (p *pendingCalls) forget(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, id)
}

// cancelAll closes the registry and every outstanding slot. It returns how
// many calls were canceled.
func (p *pendingCalls) cancelAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	n := len(p.slots)
	for id, slot := range p.slots {
		close(slot)
		delete(p.slots, id)
	}
	return n
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
