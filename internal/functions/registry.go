// Package functions holds a small registry of named transformation
// functions, populated once at startup and used by the fnctl command.
package functions

import (
	"fmt"
	"sort"
	"sync"
)

// Func is a pure transformation of up to two string arguments. The
// second argument may be empty for single-argument functions.
type Func func(var1, var2 string) (string, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *Registry) Call(name, var1, var2 string) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("function %q is not registered (available: %v)", name, r.Names())
	}
	return fn(var1, var2)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
