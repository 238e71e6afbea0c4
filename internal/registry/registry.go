// Package registry maps opaque chart handles to live chart instances.
//
// Handles are allocated from a monotonic counter starting at 1, so a handle
// is never handed out twice within a process and the zero Handle is never
// valid. Entries are added only by Register and removed only by Unregister.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/chartbridge/internal/chart"
)

// ErrHandleNotFound is returned when a handle is not currently registered.
var ErrHandleNotFound = errors.New("chart handle not found")

// Handle identifies a registered chart instance.
type Handle int64

// String returns the decimal form of the handle.
func (h Handle) String() string {
	return fmt.Sprintf("%d", int64(h))
}

// Registry tracks live chart instances by handle.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Handle]chart.Instance
	last    Handle
}

// Option configures a Registry.
type Option func(*Registry)

// WithFirstHandle makes the first allocated handle equal to h.
// Values below 1 are ignored.
func WithFirstHandle(h Handle) Option {
	return func(r *Registry) {
		if h >= 1 {
			r.last = h - 1
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Handle]chart.Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores inst under a fresh handle and returns the handle.
func (r *Registry) Register(inst chart.Instance) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last++
	r.entries[r.last] = inst
	return r.last
}

// Lookup returns the instance registered under h.
func (r *Registry) Lookup(h Handle) (chart.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.entries[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	return inst, nil
}

// Contains reports whether h is currently registered.
func (r *Registry) Contains(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[h]
	return ok
}

// Unregister removes h. Unregistering a handle that is not registered
// returns ErrHandleNotFound and leaves the table unchanged.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[h]; !ok {
		return fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	delete(r.entries, h)
	return nil
}

// Handles returns the registered handles in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry in handle order until fn returns false.
// fn runs without the registry lock held, so it may call back into the
// registry.
func (r *Registry) Range(fn func(Handle, chart.Instance) bool) {
	for _, h := range r.Handles() {
		inst, err := r.Lookup(h)
		if err != nil {
			continue // unregistered since the snapshot
		}
		if !fn(h, inst) {
			return
		}
	}
}
