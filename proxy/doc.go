// Package proxy keeps at most one live host wrapper per foreign address.
//
// Generated bindings call Acquire whenever a foreign object address crosses
// into the host. The first observation creates a Proxy; later observations
// of the same address return the same Proxy for as long as the host still
// references it:
//
//	reg := proxy.Default()
//
//	w := reg.Acquire(addr, true)  // created, owned by the caller
//	v := reg.Acquire(addr, false) // reused, the flag is ignored
//	// w == v
//
// # Weak Retention
//
// The registry holds wrappers weakly. Once the last host reference to a
// Proxy is gone the registry forgets it, and the next Acquire of the same
// address creates a fresh wrapper. Uniqueness holds among live wrappers
// only.
//
// When a forgotten Proxy still owned its native allocation, the configured
// Releaser receives the address. Disown hands the allocation back to the
// native side, for example when the value is passed with transfer full.
//
// The registry does not mirror native reference counts. It is an identity
// cache; the native lifetime is governed by the native library.
//
// # Concurrency
//
// All methods are safe for concurrent use, including from callbacks that
// arrive on goroutines the host did not start.
package proxy
