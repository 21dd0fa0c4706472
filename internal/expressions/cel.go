package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celEngine evaluates CEL predicates with the element bound to "el":
// `el.type == "diamond" && el.y >= 200`. Reading a field the element lacks
// is an evaluation error; guard with `has(el.width)` or `"width" in el`.
type celEngine struct {
	env   *cel.Env
	progs *compiled[cel.Program]
}

func newCELEngine() (*celEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("el", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	return &celEngine{env: env, progs: newCompiled[cel.Program](maxCompiled)}, nil
}

func (e *celEngine) Name() string { return "cel" }

func (e *celEngine) Eval(ctx context.Context, src string, el map[string]any) (any, error) {
	if src == "" {
		return nil, errEmpty(e.Name())
	}
	prg, err := e.progs.load(src, e.compile)
	if err != nil {
		return nil, errCompile(e.Name(), src, err)
	}
	if el == nil {
		el = map[string]any{}
	}
	val, _, err := prg.ContextEval(ctx, map[string]any{"el": el})
	if err != nil {
		return nil, errEval(e.Name(), src, err)
	}
	return val.Value(), nil
}

func (e *celEngine) compile(src string) (cel.Program, error) {
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	// Interrupt checks let ContextEval observe cancellation inside
	// comprehensions.
	return e.env.Program(ast, cel.InterruptCheckFrequency(100))
}
