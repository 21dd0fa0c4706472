package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// jqEngine runs gojq filters. As a predicate engine it sees one element
// (`.type == "arrow"`); as the projection engine it sees the whole result
// list (`map({id, x, y})`). $ENV is always empty.
type jqEngine struct {
	progs *compiled[*gojq.Code]
}

func newJQEngine() *jqEngine {
	return &jqEngine{progs: newCompiled[*gojq.Code](maxCompiled)}
}

func (e *jqEngine) Name() string { return "jq" }

func (e *jqEngine) Eval(ctx context.Context, src string, el map[string]any) (any, error) {
	var in any = map[string]any{}
	if el != nil {
		in = jqValue(el)
	}
	return e.Project(ctx, src, in)
}

// Project runs src over in. A single output is returned as is, several are
// gathered into a slice, and no output yields nil.
func (e *jqEngine) Project(ctx context.Context, src string, in any) (any, error) {
	if src == "" {
		return nil, errEmpty(e.Name())
	}
	code, err := e.progs.load(src, compileJQ)
	if err != nil {
		return nil, errCompile(e.Name(), src, err)
	}

	var outs []any
	iter := code.RunWithContext(ctx, in)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, errEval(e.Name(), src, err)
		}
		outs = append(outs, v)
	}

	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	}
	return outs, nil
}

func compileJQ(src string) (*gojq.Code, error) {
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
}

// jqValue rewrites Go values gojq cannot handle (sized ints, float32, typed
// slices) into their JSON equivalents.
func jqValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = jqValue(x)
		}
		return m
	case []map[string]any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = jqValue(x)
		}
		return s
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = jqValue(x)
		}
		return s
	case [][2]float64:
		s := make([]any, len(t))
		for i, p := range t {
			s[i] = []any{p[0], p[1]}
		}
		return s
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}
