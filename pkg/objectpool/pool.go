// Package objectpool implements the pre-filled, mutex-protected free
// list the server uses to recycle Connection instances across accepts.
//
// Grounded on original_source/objectpool.h's ObjectPool<T>: a
// std::queue<unique_ptr<T>> under a mutex, pre-filled to an initial
// size, where get() pops one (manufacturing a fresh one if empty) and
// hands back a shared_ptr whose custom deleter pushes the object back
// onto the queue when the last reference drops. Go has no destructor
// hook to run that deleter automatically, so the push-back becomes an
// explicit Put call at connection teardown (see rpcserver's teardown
// path) rather than something reference-counting triggers for free.
package objectpool

import "sync"

// Pool recycles *T instances. New pools start pre-filled with a fixed
// number of objects built by new; Get never blocks and grows the
// backing store on demand rather than capping availability — the
// original's "never grows unbounded" guarantee comes instead from the
// accept path's max-fd gate, not from the pool itself.
type Pool[T any] struct {
	mu   sync.Mutex
	free []*T
	new  func() *T
}

// New pre-allocates size objects via newFn.
func New[T any](size int, newFn func() *T) *Pool[T] {
	p := &Pool[T]{new: newFn}
	p.free = make([]*T, 0, size)
	for i := 0; i < size; i++ {
		p.free = append(p.free, newFn())
	}
	return p
}

// Get pops a recycled object, or manufactures a fresh one if the pool is
// currently empty.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return p.new()
	}
	obj := p.free[n-1]
	p.free = p.free[:n-1]
	return obj
}

// Put returns obj to the pool for reuse. Callers must have already reset
// obj (cleared any state specific to the previous use) before calling Put.
func (p *Pool[T]) Put(obj *T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, obj)
}

// Size reports the number of currently-idle objects.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
