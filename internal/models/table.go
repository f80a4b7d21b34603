package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"pipelink/internal/envelope"
)

var (
	// ErrUnknownModel is returned for a model type with no resource.
	ErrUnknownModel = errors.New("unknown model type")
	// ErrReadOnly is returned when a Set targets a resource without a setter.
	ErrReadOnly = errors.New("model is read-only")
	// ErrUnsupportedKind is returned for envelopes that are not Get or Set.
	ErrUnsupportedKind = errors.New("unsupported request kind")
)

// GetFunc reads a resource. data is the request's model data, which some
// resources accept as a query.
type GetFunc func(ctx context.Context, data []byte) (any, error)

// SetFunc writes a resource and returns its new value.
type SetFunc func(ctx context.Context, data []byte) (any, error)

// Resource is one named, typed management model.
type Resource struct {
	Name string
	Get  GetFunc
	Set  SetFunc
}

// Table resolves model types to resources.
type Table struct {
	resources map[string]Resource
}

// NewTable builds a table. Names must be unique and every resource needs a
// getter.
func NewTable(resources ...Resource) (*Table, error) {
	t := &Table{resources: make(map[string]Resource, len(resources))}
	for _, r := range resources {
		if r.Name == "" {
			return nil, errors.New("models: resource name is empty")
		}
		if r.Get == nil {
			return nil, fmt.Errorf("models: resource %q has no getter", r.Name)
		}
		if _, dup := t.resources[r.Name]; dup {
			return nil, fmt.Errorf("models: duplicate resource %q", r.Name)
		}
		t.resources[r.Name] = r
	}
	return t, nil
}

// Names lists the registered model types in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.resources))
	for name := range t.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the resource registered under name.
func (t *Table) Lookup(name string) (Resource, bool) {
	r, ok := t.resources[name]
	return r, ok
}

// Handle answers one request. The reply always carries the request's
// correlation id; failures travel in the envelope's error field.
func (t *Table) Handle(ctx context.Context, req envelope.Envelope) envelope.Envelope {
	value, err := t.dispatch(ctx, req)
	if err != nil {
		return envelope.Fail(req, err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return envelope.Fail(req, fmt.Errorf("encode %s: %w", req.ModelType, err))
	}
	return envelope.Reply(req, string(data))
}

func (t *Table) dispatch(ctx context.Context, req envelope.Envelope) (any, error) {
	r, ok := t.resources[req.ModelType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.ModelType)
	}
	switch req.Kind {
	case envelope.Get:
		return r.Get(ctx, []byte(req.ModelData))
	case envelope.Set:
		if r.Set == nil {
			return nil, fmt.Errorf("%w: %s", ErrReadOnly, r.Name)
		}
		return r.Set(ctx, []byte(req.ModelData))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, req.Kind)
	}
}
