// README: Worker online/offline presence.
package matching

import (
	"context"
	"sort"
	"sync"

	"tripengine/internal/types"
)

type PresenceStore interface {
	SetOnline(ctx context.Context, workerID types.ID, c Capability) error
	SetOffline(ctx context.Context, workerID types.ID) error
	IsOnline(ctx context.Context, workerID types.ID) (bool, error)
	OnlineWorkers(ctx context.Context, c Capability) ([]types.ID, error)
}

type MemoryPresence struct {
	mu      sync.Mutex
	workers map[types.ID]Capability
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{workers: make(map[types.ID]Capability)}
}

func (p *MemoryPresence) SetOnline(_ context.Context, workerID types.ID, c Capability) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[workerID] = c
	return nil
}

func (p *MemoryPresence) SetOffline(_ context.Context, workerID types.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, workerID)
	return nil
}

func (p *MemoryPresence) IsOnline(_ context.Context, workerID types.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.workers[workerID]
	return ok, nil
}

func (p *MemoryPresence) OnlineWorkers(_ context.Context, c Capability) ([]types.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.ID
	for id, wc := range p.workers {
		if wc == c {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
