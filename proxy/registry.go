package proxy

import (
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/gibind"
)

// Registry maps foreign addresses to their live wrappers.
type Registry struct {
	releaser  Releaser
	entries   map[Address]weak.Pointer[Proxy]
	observers []subscription
	nextSub   uint64
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

type subscription struct {
	o  Observer
	id uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithReleaser sets the release hook for owned wrappers.
func WithReleaser(r Releaser) Option {
	return func(reg *Registry) {
		reg.releaser = r
	}
}

// WithObserver subscribes o before the registry is used.
func WithObserver(o Observer) Option {
	return func(reg *Registry) {
		reg.subscribe(o)
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{entries: make(map[Address]weak.Pointer[Proxy])}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry { return New() })

// Default returns the process registry used by generated bindings. It is
// created on first use and never torn down.
func Default() *Registry {
	return defaultRegistry()
}

// cleanup is the state a collected wrapper leaves behind. It must not
// reference the wrapper itself.
type cleanup struct {
	reg   *Registry
	owned *atomic.Bool
	wp    weak.Pointer[Proxy]
	addr  Address
}

// Acquire returns the live wrapper for addr, creating one when none exists.
// ownedByCaller is recorded only on creation. The null address has no
// wrapper.
func (r *Registry) Acquire(addr Address, ownedByCaller bool) *Proxy {
	if addr == gibind.Null {
		return nil
	}

	r.mu.Lock()
	if wp, ok := r.entries[addr]; ok {
		if p := wp.Value(); p != nil {
			r.mu.Unlock()
			r.notify(Event{Addr: addr, Type: EventReused, Owned: p.Owned()})
			return p
		}
	}
	p := &Proxy{addr: addr, owned: new(atomic.Bool)}
	p.owned.Store(ownedByCaller)
	wp := weak.Make(p)
	r.entries[addr] = wp
	runtime.AddCleanup(p, forget, cleanup{reg: r, owned: p.owned, wp: wp, addr: addr})
	r.mu.Unlock()

	Logger().Debug("proxy created", zap.Uint64("addr", uint64(addr)), zap.Bool("owned", ownedByCaller))
	r.notify(Event{Addr: addr, Type: EventCreated, Owned: ownedByCaller})
	return p
}

// Lookup returns the live wrapper for addr without creating one.
func (r *Registry) Lookup(addr Address) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.entries[addr]
	if !ok {
		return nil, false
	}
	p := wp.Value()
	return p, p != nil
}

// Len returns the number of live wrappers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, wp := range r.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

// Subscribe adds an observer for lifecycle events and returns the function
// that removes it. Calling the returned function more than once is a no-op.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	id := r.subscribe(o)
	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(s subscription) bool { return s.id == id })
	}
}

// subscribe must be called with obsMu held or before the registry is shared.
func (r *Registry) subscribe(o Observer) uint64 {
	r.nextSub++
	r.observers = append(r.observers, subscription{o: o, id: r.nextSub})
	return r.nextSub
}

// forget runs after a wrapper was collected. The entry is removed only if
// no newer wrapper replaced it in the meantime.
func forget(c cleanup) {
	r := c.reg
	r.mu.Lock()
	if cur, ok := r.entries[c.addr]; ok && cur == c.wp {
		delete(r.entries, c.addr)
	}
	r.mu.Unlock()

	owned := c.owned.Load()
	Logger().Debug("proxy forgotten", zap.Uint64("addr", uint64(c.addr)), zap.Bool("owned", owned))
	if owned && r.releaser != nil {
		r.releaser.Release(c.addr)
	}
	r.notify(Event{Addr: c.addr, Type: EventForgotten, Owned: owned})
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, s := range r.observers {
		s.o.OnProxyEvent(e)
	}
}
