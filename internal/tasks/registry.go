package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Handler executes one task type. Payloads are the task's opaque JSON data.
type Handler interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

func (f HandlerFunc) Execute(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry maps task names to handlers. It is fixed at construction: every
// task type is registered at startup, so an unknown name fails fast at
// enqueue or dispatch instead of at some later dynamic import.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("task %q: nil handler", name)
	}
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("task %q registered twice", name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister panics on registration errors; registration happens during
// process startup where a bad wiring should abort.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", name)
	}
	return h, nil
}

func (r *Registry) Known(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names lists the registered task names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
