package registry

import (
	"errors"
	"fmt"
	"sort"

	"bytemomo/narwhal/internal/domain"
)

var (
	ErrUnknownStep   = errors.New("unknown step")
	ErrMalformedStep = errors.New("malformed step id")
)

// Descriptor describes a registered probe handler.
type Descriptor struct {
	Handler     domain.Handler
	Description string
	// Source tells where the handler comes from, e.g. "builtin" or "grpc://host:port".
	Source string
}

// Entry is a registry listing row.
type Entry struct {
	ID          domain.StepID
	Description string
	Source      string
}

// Registry maps step ids to handlers. It is filled at process start and
// read-only afterwards.
type Registry struct {
	handlers map[domain.StepID]Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[domain.StepID]Descriptor)}
}

// Register stores the handler under the provided id, replacing any previous one.
func (r *Registry) Register(id domain.StepID, desc Descriptor) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedStep, err)
	}
	if desc.Handler == nil {
		return fmt.Errorf("step %q: handler is nil", id)
	}
	if desc.Source == "" {
		desc.Source = "builtin"
	}
	r.handlers[id] = desc
	return nil
}

// RegisterFunc is a shorthand for registering a plain function.
func (r *Registry) RegisterFunc(id domain.StepID, description string, fn domain.HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("step %q: handler is nil", id)
	}
	return r.Register(id, Descriptor{Handler: fn, Description: description})
}

// Resolve returns the handler for id. Ids without a domain/operation pair
// fail with ErrMalformedStep, well-formed ids with no handler with
// ErrUnknownStep.
func (r *Registry) Resolve(id domain.StepID) (domain.Handler, error) {
	if id.Domain() == "" || id.Operation() == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStep, id)
	}
	desc, ok := r.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%w: no %q capability in %q", ErrUnknownStep, id.Operation(), id.Domain())
	}
	return desc.Handler, nil
}

// Lookup returns the full descriptor for id.
func (r *Registry) Lookup(id domain.StepID) (Descriptor, bool) {
	d, ok := r.handlers[id]
	return d, ok
}

// List returns all registered handlers sorted by id.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.handlers))
	for id, d := range r.handlers {
		out = append(out, Entry{ID: id, Description: d.Description, Source: d.Source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int { return len(r.handlers) }
