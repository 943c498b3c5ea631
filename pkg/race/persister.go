package race

import (
	"racestandings/pkg/standings"
	"sort"
	"sync"
)

// Persister is the durable store behind a race. Save is an upsert of the
// whole aggregate; Load of an unknown key returns an empty state.
type Persister interface {
	Load(key string) (standings.State, error)
	Save(key string, state standings.State) error
	Reset(key string) error
}

// KeyLister is implemented by persisters that can enumerate stored races.
type KeyLister interface {
	Keys() ([]string, error)
}

// MemoryPersister keeps states in process memory.
type MemoryPersister struct {
	mu     sync.Mutex
	states map[string]standings.State
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{
		states: make(map[string]standings.State),
	}
}

func (p *MemoryPersister) Load(key string) (standings.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[key], nil
}

func (p *MemoryPersister) Save(key string, state standings.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[key] = state
	return nil
}

func (p *MemoryPersister) Reset(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, key)
	return nil
}

func (p *MemoryPersister) Keys() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.states))
	for k := range p.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
