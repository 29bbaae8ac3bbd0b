package envmap

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Environment is a mutable string-to-string mapping that variables are merged into.
type Environment interface {
	Lookup(key string) (string, bool)
	Set(key, value string) error
}

// MemoryEnvironment keeps variables in-memory and guards access with a RWMutex.
type MemoryEnvironment struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMemoryEnvironment initialises an environment with a copy of initial.
func NewMemoryEnvironment(initial map[string]string) *MemoryEnvironment {
	vars := make(map[string]string, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &MemoryEnvironment{vars: vars}
}

// FromEnviron builds an environment from "KEY=value" entries as returned by
// os.Environ. Entries without '=' are ignored; later duplicates win.
func FromEnviron(environ []string) *MemoryEnvironment {
	vars := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}
	return &MemoryEnvironment{vars: vars}
}

// Lookup returns the value stored under key.
func (e *MemoryEnvironment) Lookup(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.vars[key]
	return v, ok
}

// Set stores value under key.
func (e *MemoryEnvironment) Set(key, value string) error {
	e.mu.Lock()
	e.vars[key] = value
	e.mu.Unlock()
	return nil
}

// Unset removes key.
func (e *MemoryEnvironment) Unset(key string) error {
	e.mu.Lock()
	delete(e.vars, key)
	e.mu.Unlock()
	return nil
}

// Map returns a copy of the stored variables.
func (e *MemoryEnvironment) Map() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Environ returns the variables as sorted "KEY=value" entries suitable for exec.
func (e *MemoryEnvironment) Environ() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ProcessEnvironment binds Environment to the live process environment.
type ProcessEnvironment struct{}

// Lookup reports the process environment variable key.
func (ProcessEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Set exports key into the process environment.
func (ProcessEnvironment) Set(key, value string) error {
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Unset removes key from the process environment.
func (ProcessEnvironment) Unset(key string) error {
	if err := os.Unsetenv(key); err != nil {
		return fmt.Errorf("unset %s: %w", key, err)
	}
	return nil
}
