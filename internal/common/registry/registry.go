// Package registry provides a generic, thread-safe registry of named
// factories.
//
// Example usage:
//
//	type Factory interface {
//		Create(ctx Context) (Dispatcher, error)
//		GetType() string
//	}
//
//	r := registry.New[Factory](registry.WithNamePattern(pattern))
//	if err := r.Register("collect", collectFactory); err != nil { ... }
//	factory, err := r.Get("collect")
package registry

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"analytics-sdk/internal/common/errors"
)

// Factory defines the interface that all factory types must implement
// to be used with the generic registry.
type Factory interface {
	// GetType returns the type identifier for this factory
	GetType() string
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	pattern *regexp.Regexp
}

// WithNamePattern rejects registrations whose name does not match re.
func WithNamePattern(re *regexp.Regexp) Option {
	return func(o *options) { o.pattern = re }
}

// Registry holds factories by name. Registering a name twice is an error.
type Registry[T Factory] struct {
	factories map[string]T
	order     []string
	opts      options
	mu        sync.RWMutex
}

// New creates a new empty registry for factories of type T.
func New[T Factory](opts ...Option) *Registry[T] {
	r := &Registry[T]{factories: make(map[string]T)}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// Register adds factory under name. Names that fail the configured pattern
// and names already registered are rejected with a validation error.
func (r *Registry[T]) Register(name string, factory T) error {
	if r.opts.pattern != nil && !r.opts.pattern.MatchString(name) {
		return errors.ValidationError(fmt.Sprintf("invalid name %q: must match %s", name, r.opts.pattern))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.ValidationError(fmt.Sprintf("name %q already registered", name))
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry[T]) MustRegister(name string, factory T) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Get retrieves a factory by name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		var zero T
		return zero, errors.NotFoundError(fmt.Sprintf("factory %s", name))
	}
	return factory, nil
}

// Names returns the registered names in registration order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// GetAvailableTypes returns the registered names sorted.
func (r *Registry[T]) GetAvailableTypes() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// IsRegistered checks if a name is registered.
func (r *Registry[T]) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Count returns the number of registered factories.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
