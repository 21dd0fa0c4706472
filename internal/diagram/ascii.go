package diagram

import (
	"fmt"
	"strings"
)

// RenderASCII renders a ParsedDiagram as rows of boxes, one row per level.
// Nodes the traversal never reached are listed after the last row.
func RenderASCII(pd *ParsedDiagram) string {
	var b strings.Builder
	levels := AssignLevels(pd)
	rows := levels.Rows(pd)

	for levelIdx, row := range rows {
		var boxes []asciiBox
		for _, id := range row {
			if node, ok := pd.Node(id); ok {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)

		if levelIdx < len(rows)-1 {
			renderConnector(&b, boxes)
		}
	}

	var labeled []Edge
	for _, e := range pd.Edges {
		if e.Label != "" {
			labeled = append(labeled, e)
		}
	}
	if len(labeled) > 0 {
		b.WriteString("\n")
		for _, e := range labeled {
			fmt.Fprintf(&b, "  %s ─%s→ %s\n", e.From, e.Label, e.To)
		}
	}

	var unreached []string
	for _, n := range pd.Nodes {
		if _, ok := levels[n.ID]; !ok {
			unreached = append(unreached, n.ID)
		}
	}
	if len(unreached) > 0 {
		fmt.Fprintf(&b, "\n(unreached: %s)\n", strings.Join(unreached, ", "))
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox draws a node with corners matching its shape.
func makeBox(node Node) asciiBox {
	label := node.Label
	width := len([]rune(label)) + 4

	tl, tr, bl, br := "┌", "┐", "└", "┘"
	switch node.Shape {
	case ShapeRounded, ShapeEllipse:
		tl, tr, bl, br = "╭", "╮", "╰", "╯"
	case ShapeDiamond:
		tl, tr, bl, br = "/", "\\", "\\", "/"
	}

	return asciiBox{
		lines: []string{
			tl + strings.Repeat("─", width-2) + tr,
			"│ " + label + " │",
			bl + strings.Repeat("─", width-2) + br,
		},
		width: width,
	}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}
	for row := range boxes[0].lines {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(box.lines[row])
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a down arrow under the middle of every box in the row.
func renderConnector(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}
	for _, glyph := range []string{"│", "▼"} {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			half := box.width / 2
			b.WriteString(strings.Repeat(" ", half) + glyph + strings.Repeat(" ", box.width-half-1))
		}
		b.WriteString("\n")
	}
}
