// Package expressions filters and projects canvas elements with
// user-supplied expressions in expr, CEL or jq.
package expressions

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Engine evaluates one expression against one flattened element.
type Engine interface {
	Name() string
	Eval(ctx context.Context, src string, el map[string]any) (any, error)
}

// DefaultEngine is used when a search names no engine.
const DefaultEngine = "expr"

// Registry holds one instance of each engine, keyed by name. Projections
// always go through jq.
type Registry struct {
	engines map[string]Engine
	jq      *jqEngine
}

func NewRegistry() (*Registry, error) {
	ce, err := newCELEngine()
	if err != nil {
		return nil, err
	}
	jq := newJQEngine()
	r := &Registry{engines: make(map[string]Engine), jq: jq}
	for _, e := range []Engine{newExprEngine(), ce, jq} {
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Get returns the named engine; an empty name selects DefaultEngine.
func (r *Registry) Get(name string) (Engine, error) {
	if name == "" {
		name = DefaultEngine
	}
	if e, ok := r.engines[name]; ok {
		return e, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
		"unknown expression engine %q (available: %v)", name, r.Names())
}

// Names lists the registered engines in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.engines))
}

// Where keeps the elements whose predicate holds. The predicate must yield a
// bool; jq may also yield null, which counts as false.
func (r *Registry) Where(ctx context.Context, engine, predicate string, els []map[string]any) ([]map[string]any, error) {
	if predicate == "" {
		return els, nil
	}
	e, err := r.Get(engine)
	if err != nil {
		return nil, err
	}

	kept := make([]map[string]any, 0, len(els))
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Eval(ctx, predicate, el)
		if err != nil {
			return nil, err
		}
		match, isBool := v.(bool)
		if !isBool && !(v == nil && e.Name() == r.jq.Name()) {
			return nil, schema.NewError(schema.ErrCodeExpression,
				fmt.Sprintf("%s predicate %q returned %T, want bool", e.Name(), predicate, v)).
				WithDetails(map[string]any{"engine": e.Name(), "expression": predicate})
		}
		if match {
			kept = append(kept, el)
		}
	}
	return kept, nil
}

// Select runs a jq projection over the whole element list.
func (r *Registry) Select(ctx context.Context, projection string, els []map[string]any) (any, error) {
	return r.jq.Project(ctx, projection, jqValue(els))
}
