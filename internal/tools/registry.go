// Package tools defines the invocable tool registry and the farm tool
// executors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kisansathi/orchestrator/internal/oracle"
)

// ExecutorFunc runs one tool invocation.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Descriptor describes one registered tool.
type Descriptor struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters json.RawMessage
	// Timeout overrides the registry-wide tool timeout when positive.
	Timeout time.Duration
	Execute ExecutorFunc
}

// Registry stores tool descriptors keyed by name. Registration order is
// preserved; Specs and List report tools in the order they were added.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	order  []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
	}
}

// Register adds a tool. Names are unique.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Execute == nil {
		return fmt.Errorf("executor is required for %s", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("tool already registered: %s", d.Name)
	}
	desc := d
	r.byName[d.Name] = &desc
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister adds a tool and panics on conflict. For wiring at startup.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the descriptor for a tool name, or nil if unknown.
func (r *Registry) Get(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}

// Specs returns the tool specs advertised to the oracle, in registration
// order.
func (r *Registry) Specs() []oracle.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]oracle.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		specs = append(specs, oracle.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return specs
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	d := r.Get(name)
	if d == nil {
		return nil, fmt.Errorf("no executor registered for %s", name)
	}
	return d.Execute(ctx, args)
}
