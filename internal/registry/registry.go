// Package registry implements the type-keyed service registry (C2):
// a transient/singleton factory map used to wire the HTTP client,
// concatenator, and filesystem collaborator into the orchestrator
// without a process-wide global, matching spec §4.2 and the
// re-architecture note in spec §9 ("explicit Services record ...
// passed by reference"). Grounded on the mutex-guarded maps in the
// teacher's internal/registry/manager.go and
// internal/providers/registry.go, generalized from string/name keys to
// the static type identity of T via reflect.Type.
package registry

import (
	"reflect"
	"sync"

	"github.com/efferion/hlsgrab/internal/apperrors"
)

type entry struct {
	factory   func() any
	singleton bool
	instance  any
	resolved  bool
}

// Registry is a type-keyed factory map. All operations are serialized
// under a single mutex; factories run while the lock is held, so a
// factory must never call back into the same Registry synchronously
// or it will deadlock (documented contract, per spec §4.2/§5).
type Registry struct {
	mu      sync.Mutex
	entries map[reflect.Type]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[reflect.Type]*entry)}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register installs a transient factory for T: Resolve calls it once
// per resolution.
func Register[T any](r *Registry, factory func() T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typeKey[T]()] = &entry{
		factory: func() any { return factory() },
	}
}

// RegisterSingleton installs a factory for T whose product is cached
// after the first Resolve and returned on every subsequent call.
func RegisterSingleton[T any](r *Registry, factory func() T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typeKey[T]()] = &entry{
		factory:   func() any { return factory() },
		singleton: true,
	}
}

// Resolve looks up T's factory and invokes it (or returns the cached
// singleton instance). It fails with a MissingService
// ConfigurationError if nothing is registered for T, or a
// TypeMismatch ConfigurationError if the factory's product cannot be
// asserted back to T.
func Resolve[T any](r *Registry) (T, error) {
	var zero T
	key := typeKey[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return zero, apperrors.MissingService(key.String())
	}

	if e.singleton && e.resolved {
		v, ok := e.instance.(T)
		if !ok {
			return zero, apperrors.TypeMismatch(key.String())
		}
		return v, nil
	}

	produced := e.factory()
	v, ok := produced.(T)
	if !ok {
		return zero, apperrors.TypeMismatch(key.String())
	}

	if e.singleton {
		e.instance = produced
		e.resolved = true
	}

	return v, nil
}

// Reset drops all registrations and cached singletons.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[reflect.Type]*entry)
}
