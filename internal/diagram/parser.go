package diagram

import (
	"slices"
	"strings"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Parse tokenizes and builds text in one step.
func Parse(text string) (*ParsedDiagram, error) {
	tok, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	return Build(tok)
}

// graphBuilder owns the node registry for a single Build call.
type graphBuilder struct {
	pd    *ParsedDiagram
	index map[string]int
	// implicit marks ids so far seen only as edge endpoints.
	implicit map[string]bool
}

// Build turns tokenized content lines into a ParsedDiagram. Node declarations
// and one edge per line are recognized; anything else is recorded as skipped.
// The first shape declaration of an id wins, even when the id was already
// named as an edge endpoint.
func Build(tok *Tokens) (*ParsedDiagram, error) {
	b := &graphBuilder{
		pd: &ParsedDiagram{
			Kind:      tok.Kind,
			Direction: tok.Direction,
			Nodes:     []Node{},
			Edges:     []Edge{},
		},
		index:    make(map[string]int),
		implicit: make(map[string]bool),
	}

	for _, line := range tok.Content {
		b.parseLine(line)
	}

	if len(b.pd.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeNoNodesFound, "no nodes found in diagram").
			WithCause(ErrNoNodesFound).
			WithDetails(map[string]any{"lines": len(tok.Content), "skipped": len(b.pd.Skipped)})
	}
	return b.pd, nil
}

func (b *graphBuilder) parseLine(line Line) {
	text := strings.TrimSuffix(line.Text, ";")
	if isDirective(text) {
		return
	}

	decls := scanDeclarations(text)
	collapsed, at := collapse(text, decls)

	// Nodes are registered in the order they appear on the line, whether
	// declared with a shape or only named as an edge endpoint.
	var mentions []mention
	for i, d := range decls {
		mentions = append(mentions, mention{pos: at[i], declared: true, node: Node{ID: d.id, Label: d.label, Shape: d.shape}})
	}

	m := edgeRe.FindStringSubmatchIndex(collapsed)
	if m != nil {
		from, to := collapsed[m[2]:m[3]], collapsed[m[8]:m[9]]
		mentions = append(mentions,
			mention{pos: m[2], node: Node{ID: from, Label: from, Shape: ShapePlain}},
			mention{pos: m[8], node: Node{ID: to, Label: to, Shape: ShapePlain}},
		)
	}
	slices.SortStableFunc(mentions, func(a, b mention) int { return a.pos - b.pos })
	for _, mt := range mentions {
		mt.node.Line = line.Num
		b.register(mt.node, mt.declared)
	}

	if m == nil {
		if len(decls) == 0 {
			b.pd.Skipped = append(b.pd.Skipped, SkippedLine{Line: line.Num, Text: line.Text})
		}
		return
	}

	var label string
	if m[6] >= 0 {
		label = strings.TrimSpace(collapsed[m[6]:m[7]])
	}
	b.pd.Edges = append(b.pd.Edges, Edge{
		From:      collapsed[m[2]:m[3]],
		To:        collapsed[m[8]:m[9]],
		Label:     label,
		Connector: connectorKind(collapsed[m[4]:m[5]]),
		Line:      line.Num,
	})
}

type mention struct {
	pos      int
	declared bool
	node     Node
}

// register adds n on first mention. A declaration replaces the label and
// shape of a node known only from edges, keeping its place in Nodes and its
// first-mention line.
func (b *graphBuilder) register(n Node, declared bool) {
	i, ok := b.index[n.ID]
	if !ok {
		b.index[n.ID] = len(b.pd.Nodes)
		b.pd.Nodes = append(b.pd.Nodes, n)
		b.implicit[n.ID] = !declared
		return
	}
	if declared && b.implicit[n.ID] {
		b.pd.Nodes[i].Label = n.Label
		b.pd.Nodes[i].Shape = n.Shape
		b.implicit[n.ID] = false
	}
}
