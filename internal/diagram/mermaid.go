package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a ParsedDiagram back to flowchart text. Every node is
// declared once with its shape, then edges follow in declaration order.
// Re-parsing the output keeps the direction, the node ids in order, and each
// edge's endpoints, connector and label. A node label comes back unchanged
// only when it holds no "]", "}", ")", "|" or newline; an edge label only
// when it holds no "|". Plain nodes come back as rectangles.
func RenderMermaid(pd *ParsedDiagram) string {
	var b strings.Builder

	dir := pd.Direction
	if dir == "" {
		dir = DirTopDown
	}
	fmt.Fprintf(&b, "graph %s\n", dir)
	if pd.Kind != KindFlowchart && pd.Kind != "" {
		fmt.Fprintf(&b, "    %%%% source kind: %s\n", pd.Kind)
	}

	for _, node := range pd.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range pd.Edges {
		b.WriteString("    " + mermaidEdge(edge) + "\n")
	}
	return b.String()
}

// mermaidNodeDef returns a node declaration with the node's shape syntax.
func mermaidNodeDef(node Node) string {
	label := mermaidEscapeLabel(node.Label)
	switch node.Shape {
	case ShapeDiamond:
		return fmt.Sprintf("%s{%s}", node.ID, label)
	case ShapeEllipse:
		return fmt.Sprintf("%s((%s))", node.ID, label)
	case ShapeRounded:
		return fmt.Sprintf("%s(%s)", node.ID, label)
	default:
		return fmt.Sprintf("%s[%s]", node.ID, label)
	}
}

func mermaidEdge(edge Edge) string {
	label := ""
	if edge.Label != "" {
		label = "|" + edge.Label + "|"
	}
	return fmt.Sprintf("%s %s%s %s", edge.From, connectorGlyphs(edge.Connector), label, edge.To)
}

func connectorGlyphs(k ConnectorKind) string {
	switch k {
	case ConnectorDotted:
		return "-.->"
	case ConnectorThick:
		return "==="
	case ConnectorPlain:
		return "---"
	default:
		return "-->"
	}
}

// mermaidEscapeLabel drops characters that would close a declaration early.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer("\n", " ", "]", "", "}", "", ")", "", "|", "/")
	return r.Replace(s)
}
