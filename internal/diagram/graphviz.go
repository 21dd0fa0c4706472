package diagram

import (
	"bytes"
	"context"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// ImageFormat is an output format supported by RenderImage.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

func (f ImageFormat) graphviz() (graphviz.Format, bool) {
	switch f {
	case FormatPNG:
		return graphviz.PNG, true
	case FormatSVG:
		return graphviz.SVG, true
	case FormatDOT:
		return graphviz.XDOT, true
	}
	return "", false
}

// RenderImage lays out a ParsedDiagram with Graphviz dot and renders it.
func RenderImage(ctx context.Context, pd *ParsedDiagram, format ImageFormat) ([]byte, error) {
	gvFormat, ok := format.graphviz()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "unsupported image format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "create graphviz").WithCause(err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "create graph").WithCause(err)
	}
	defer graph.Close()

	graph.SetRankDir(rankDir(pd.Direction))

	gvNodes := make(map[string]*cgraph.Node, len(pd.Nodes))
	for _, node := range pd.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeRender, "create node %s", node.ID).WithCause(nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range pd.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeRender, "create edge %s->%s", edge.From, edge.To).WithCause(eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		applyEdgeStyle(e, edge.Connector)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRender, "render %s", format).WithCause(err)
	}
	return buf.Bytes(), nil
}

func rankDir(d Direction) cgraph.RankDir {
	switch d {
	case DirLeftRight:
		return cgraph.LRRank
	case DirRightLeft:
		return cgraph.RLRank
	case DirBottomUp:
		return cgraph.BTRank
	default:
		return cgraph.TBRank
	}
}

// applyNodeStyle sets the Graphviz shape and the canvas fill colors.
func applyNodeStyle(gvNode *cgraph.Node, node Node) {
	gvNode.SetColor(strokeColor)
	gvNode.SetFillColor(shapeBackground)
	gvNode.SetStyle(cgraph.FilledNodeStyle)

	switch node.Shape {
	case ShapeDiamond:
		gvNode.SetShape(cgraph.DiamondShape)
	case ShapeEllipse:
		gvNode.SetShape(cgraph.EllipseShape)
	case ShapeRounded:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetStyle(cgraph.NodeStyle("rounded,filled"))
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}
}

func applyEdgeStyle(e *cgraph.Edge, k ConnectorKind) {
	switch k {
	case ConnectorDotted:
		e.SetStyle(cgraph.DottedEdgeStyle)
	case ConnectorThick:
		e.SetStyle(cgraph.BoldEdgeStyle)
		e.SetDir(cgraph.NoneDir)
	case ConnectorPlain:
		e.SetDir(cgraph.NoneDir)
	}
}
