package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEngine evaluates expr-lang predicates with the element's fields as
// top-level variables: `type == "rectangle" && x > 100`. Nil coalescing
// (`width ?? 120`) covers fields only some element types carry.
type exprEngine struct {
	progs *compiled[*vm.Program]
}

func newExprEngine() *exprEngine {
	return &exprEngine{progs: newCompiled[*vm.Program](maxCompiled)}
}

func (e *exprEngine) Name() string { return "expr" }

func (e *exprEngine) Eval(_ context.Context, src string, el map[string]any) (any, error) {
	if src == "" {
		return nil, errEmpty(e.Name())
	}
	prg, err := e.progs.load(src, compileExpr)
	if err != nil {
		return nil, errCompile(e.Name(), src, err)
	}
	if el == nil {
		el = map[string]any{}
	}
	out, err := vm.Run(prg, el)
	if err != nil {
		return nil, errEval(e.Name(), src, err)
	}
	return out, nil
}

// compileExpr builds an untyped program; field sets vary between element
// types. The "type" builtin is disabled because it shadows the element field.
func compileExpr(src string) (*vm.Program, error) {
	return expr.Compile(src,
		expr.AllowUndefinedVariables(),
		expr.DisableBuiltin("type"),
	)
}
