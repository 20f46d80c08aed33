package proxy

import (
	"sync/atomic"

	"github.com/wippyai/gibind"
)

// Address is a foreign memory address.
type Address = gibind.Address

// Proxy is the host identity of one foreign object.
type Proxy struct {
	owned *atomic.Bool
	addr  Address
}

// Address returns the wrapped foreign address.
func (p *Proxy) Address() Address {
	return p.addr
}

// Owned reports whether the host releases the native allocation once the
// wrapper is forgotten.
func (p *Proxy) Owned() bool {
	return p.owned.Load()
}

// Disown hands the native allocation back to the native side and reports
// whether the wrapper owned it.
func (p *Proxy) Disown() bool {
	return p.owned.Swap(false)
}

// EventType identifies a registry lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReused
	EventForgotten
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReused:
		return "reused"
	case EventForgotten:
		return "forgotten"
	}
	return "unknown"
}

// Event is a registry lifecycle notification. Owned is the ownership flag
// at the time of the event.
type Event struct {
	Addr  Address
	Type  EventType
	Owned bool
}

// Observer receives registry lifecycle events. Forgotten events arrive on
// the runtime's cleanup goroutine.
type Observer interface {
	OnProxyEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnProxyEvent(e Event) { f(e) }

// Releaser gives back a native allocation whose owning wrapper was
// forgotten.
type Releaser interface {
	Release(Address)
}

// ReleaserFunc adapts a function to Releaser.
type ReleaserFunc func(Address)

func (f ReleaserFunc) Release(addr Address) { f(addr) }
