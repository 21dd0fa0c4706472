package diagram

import (
	"fmt"
	"math/rand/v2"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const (
	strokeColor     = "#1f2937"
	shapeBackground = "#dbeafe"
	fillHachure     = "hachure"
	seedRange       = 1_000_000
)

// ShapeStyle returns the default style of node shapes.
func ShapeStyle() schema.Style {
	return schema.Style{
		StrokeColor:     strokeColor,
		BackgroundColor: shapeBackground,
		FillStyle:       fillHachure,
		StrokeWidth:     2,
		Roughness:       1,
		Opacity:         100,
	}
}

// ConnectorStyle returns the default style of edge connectors.
func ConnectorStyle() schema.Style {
	s := ShapeStyle()
	s.BackgroundColor = "transparent"
	return s
}

// Synthesize emits one shape per node followed by one connector per edge.
// Nodes without a position are drawn at the fallback position; edges with an
// unpositioned endpoint are dropped. rng only feeds seed and versionNonce.
func Synthesize(pd *ParsedDiagram, p *Placement, cfg LayoutConfig, rng *rand.Rand) []schema.Element {
	elems := make([]schema.Element, 0, len(pd.Nodes)+len(pd.Edges))
	for _, n := range pd.Nodes {
		elems = append(elems, shapeFor(n, p, cfg, rng))
	}

	seen := make(map[string]int, len(pd.Edges))
	for _, e := range pd.Edges {
		from, okFrom := p.Positions[e.From]
		to, okTo := p.Positions[e.To]
		if !okFrom || !okTo {
			continue
		}
		id := fmt.Sprintf("arrow-%s-%s", e.From, e.To)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		elems = append(elems, connectorFor(id, e, from, to, cfg, rng))
	}
	return elems
}

func shapeFor(n Node, p *Placement, cfg LayoutConfig, rng *rand.Rand) *schema.ShapeElement {
	pos, _ := p.PositionOf(n.ID, cfg)
	style := ShapeStyle()
	if n.Shape == ShapeRounded {
		style.Roundness = schema.RoundnessRound
	}
	return &schema.ShapeElement{
		ID:           n.ID,
		Type:         elementType(n.Shape),
		X:            pos.X,
		Y:            pos.Y,
		Width:        cfg.NodeWidth,
		Height:       cfg.NodeHeight,
		Text:         n.Label,
		Style:        style,
		Seed:         rng.Int64N(seedRange),
		VersionNonce: rng.Int64N(seedRange),
	}
}

func connectorFor(id string, e Edge, from, to Position, cfg LayoutConfig, rng *rand.Rand) *schema.ConnectorElement {
	fx, fy := from.X+cfg.NodeWidth/2, from.Y+cfg.NodeHeight/2
	dx, dy := to.X+cfg.NodeWidth/2-fx, to.Y+cfg.NodeHeight/2-fy
	return &schema.ConnectorElement{
		ID:           id,
		Type:         schema.ElementArrow,
		From:         e.From,
		To:           e.To,
		X:            fx,
		Y:            fy,
		Width:        dx,
		Height:       dy,
		Points:       []schema.Point{{0, 0}, {dx, dy}},
		Text:         e.Label,
		EndArrowhead: schema.ArrowheadArrow,
		Style:        ConnectorStyle(),
		Seed:         rng.Int64N(seedRange),
		VersionNonce: rng.Int64N(seedRange),
	}
}

func elementType(s ShapeKind) schema.ElementType {
	switch s {
	case ShapeDiamond:
		return schema.ElementDiamond
	case ShapeEllipse:
		return schema.ElementEllipse
	default:
		return schema.ElementRectangle
	}
}
