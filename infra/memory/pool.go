package memory

import "sync"

// Pool is a typed object pool. Put is safe to use directly as a hazard
// registry's free hook: by the time a sweep calls it, the registry
// guarantees no reader protects the object, so recycling it cannot be
// observed as a use-after-free.
type Pool[T any] struct {
	p *sync.Pool
}

// NewPool creates a pool that falls back to ctor when empty.
func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}
