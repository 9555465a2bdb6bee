package aggregate

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps aggregate type names to their replay routines
type Registry struct {
	mu        sync.RWMutex
	replayers map[string]Replayer
}

func NewRegistry(replayers ...Replayer) *Registry {
	r := &Registry{replayers: make(map[string]Replayer)}
	for _, rp := range replayers {
		r.Register(rp)
	}
	return r
}

// Register adds or replaces the replayer for its aggregate type
func (r *Registry) Register(rp Replayer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayers[rp.AggregateType()] = rp
}

func (r *Registry) Lookup(aggregateType string) (Replayer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, ok := r.replayers[aggregateType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAggregateType, aggregateType)
	}
	return rp, nil
}

// Types returns the registered aggregate types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.replayers))
	for t := range r.replayers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
