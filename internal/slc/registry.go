package slc

import (
	"sort"

	"github.com/danmuck/hfpag/internal/procedure"
)

// Registry holds at most one live procedure per marker. A marker is present
// iff that procedure kind is in progress.
type Registry struct {
	items map[procedure.Marker]procedure.Procedure
	build func(procedure.Marker) (procedure.Procedure, error)
}

// NewRegistry creates an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{
		items: make(map[procedure.Marker]procedure.Procedure),
		build: procedure.New,
	}
}

// Acquire returns the live procedure for m, creating it when absent.
func (r *Registry) Acquire(m procedure.Marker) (procedure.Procedure, error) {
	if p, ok := r.items[m]; ok {
		return p, nil
	}
	p, err := r.build(m)
	if err != nil {
		return nil, err
	}
	r.items[m] = p
	return p, nil
}

// Resolve returns the live procedure for m without creating one.
func (r *Registry) Resolve(m procedure.Marker) (procedure.Procedure, bool) {
	p, ok := r.items[m]
	return p, ok
}

// Collect removes the procedure for m if it has terminated and reports
// whether it did.
func (r *Registry) Collect(m procedure.Marker) bool {
	p, ok := r.items[m]
	if !ok || !p.IsTerminated() {
		return false
	}
	delete(r.items, m)
	return true
}

func (r *Registry) Len() int {
	return len(r.items)
}

// Markers returns the in-progress markers in ascending order.
func (r *Registry) Markers() []procedure.Marker {
	out := make([]procedure.Marker, 0, len(r.items))
	for m := range r.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})
	return out
}
