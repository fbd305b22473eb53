package manager

import (
	"sync"
	"sync/atomic"
)

// Registry maps operation ids to subscription handles. Every operation is
// a single atomic map primitive, there is no registry wide lock.
type Registry struct {
	subscriptions sync.Map
	count         atomic.Int64
	closed        atomic.Bool
	onDisposeErr  func(v interface{})
}

func NewRegistry() *Registry {
	return &Registry{}
}

// OnDisposeError sets a callback receiving values recovered from
// panicking disposals
func (r *Registry) OnDisposeError(f func(v interface{})) {
	r.onDisposeErr = f
}

// TryAdd registers sub under id. It fails if id is taken or the registry
// has been disposed.
func (r *Registry) TryAdd(id string, sub *Subscription) bool {
	if r.closed.Load() {
		return false
	}

	sub.onError = r.onDisposeErr
	if _, loaded := r.subscriptions.LoadOrStore(id, sub); loaded {
		return false
	}
	r.count.Add(1)

	// lost a race with DisposeAll
	if r.closed.Load() {
		r.TryRemoveHandle(id, sub)
		return false
	}

	return true
}

// TryRemove removes whatever handle is registered under id
func (r *Registry) TryRemove(id string) (*Subscription, bool) {
	v, ok := r.subscriptions.LoadAndDelete(id)
	if !ok {
		return nil, false
	}

	r.count.Add(-1)
	return v.(*Subscription), true
}

// TryRemoveHandle removes id only if it still maps to sub
func (r *Registry) TryRemoveHandle(id string, sub *Subscription) bool {
	if !r.subscriptions.CompareAndDelete(id, sub) {
		return false
	}

	r.count.Add(-1)
	return true
}

// CompareExchange atomically replaces old with sub under id. The caller
// owns disposal of old after a successful swap.
func (r *Registry) CompareExchange(id string, old, sub *Subscription) bool {
	if r.closed.Load() {
		return false
	}

	sub.onError = r.onDisposeErr
	if !r.subscriptions.CompareAndSwap(id, old, sub) {
		return false
	}

	// lost a race with DisposeAll, old was already swapped out so it is
	// disposed here
	if r.closed.Load() {
		r.TryRemoveHandle(id, sub)
		old.Dispose()
		return false
	}

	return true
}

// Closed returns true once DisposeAll has been called
func (r *Registry) Closed() bool {
	return r.closed.Load()
}

// Load returns the handle registered under id
func (r *Registry) Load(id string) (*Subscription, bool) {
	v, ok := r.subscriptions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Subscription), true
}

// Contains returns true if id is registered
func (r *Registry) Contains(id string) bool {
	_, ok := r.subscriptions.Load(id)
	return ok
}

// ContainsHandle returns true if id is registered to sub
func (r *Registry) ContainsHandle(id string, sub *Subscription) bool {
	v, ok := r.subscriptions.Load(id)
	return ok && v.(*Subscription) == sub
}

// Len returns the number of registered subscriptions
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// DisposeAll removes and disposes every handle. After it runs TryAdd and
// CompareExchange always fail.
func (r *Registry) DisposeAll() {
	r.closed.Store(true)

	r.subscriptions.Range(func(key, _ interface{}) bool {
		if sub, ok := r.TryRemove(key.(string)); ok {
			sub.Dispose()
		}
		return true
	})
}
