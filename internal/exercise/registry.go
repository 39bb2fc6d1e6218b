package exercise

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultExercise is used by NewOrDefault when an identifier is unknown.
const DefaultExercise = "squats"

// Constructor builds a fresh Processor.
type Constructor func(opts ...Option) *Processor

// Registry maps exercise identifiers to processor constructors.
// Identifiers are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Constructor
	primary map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Constructor),
		primary: make(map[string]bool),
	}
}

// DefaultRegistry returns a Registry with every built-in movement pattern.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("squats", NewSquat, "squat")
	return r
}

// Register adds a constructor under id and any aliases.
func (r *Registry) Register(id string, c Constructor, aliases ...string) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(id)
	r.entries[key] = c
	r.primary[key] = true
	for _, a := range aliases {
		r.entries[strings.ToLower(a)] = c
	}
}

// New builds a processor for id.
func (r *Registry) New(id string, opts ...Option) (*Processor, error) {
	r.mu.RLock()
	c, ok := r.entries[strings.ToLower(strings.TrimSpace(id))]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, id)
	}
	return c(opts...), nil
}

// NewOrDefault builds a processor for id, falling back to DefaultExercise.
func (r *Registry) NewOrDefault(id string, opts ...Option) (*Processor, error) {
	p, err := r.New(id, opts...)
	if err == nil {
		return p, nil
	}
	return r.New(DefaultExercise, opts...)
}

// Has reports whether id resolves to a registered exercise.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// Names returns the primary identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.primary))
	for n := range r.primary {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
