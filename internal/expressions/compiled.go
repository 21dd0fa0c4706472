package expressions

import (
	"sync"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// maxCompiled bounds each engine's program cache. Predicates come from
// clients, so the cache is dropped wholesale when it fills up.
const maxCompiled = 512

// compiled memoizes programs by their source text.
type compiled[P any] struct {
	mu    sync.RWMutex
	limit int
	progs map[string]P
}

func newCompiled[P any](limit int) *compiled[P] {
	return &compiled[P]{limit: limit, progs: make(map[string]P)}
}

// load returns the program for src, building it on first use. Build runs
// without the lock held; when two callers race on the same source the first
// stored program wins. Build errors are not cached.
func (c *compiled[P]) load(src string, build func(string) (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.progs[src]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := build(src)
	if err != nil {
		return p, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.progs[src]; ok {
		return prev, nil
	}
	if len(c.progs) >= c.limit {
		clear(c.progs)
	}
	c.progs[src] = p
	return p, nil
}

func (c *compiled[P]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.progs)
}

func errEmpty(engine string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: expression is empty", engine)
}

// errCompile reports a source that never ran.
func errCompile(engine, src string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %v", engine, src, err).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": src})
}

// errEval reports a program that failed against a particular element.
func errEval(engine, src string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s: evaluating %q: %v", engine, src, err).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": src})
}
