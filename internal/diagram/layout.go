package diagram

import "github.com/rendis/flowcanvas/pkg/schema"

// LayoutConfig holds the geometry constants used by Layout and Synthesize.
type LayoutConfig struct {
	LevelHeight float64 `json:"level_height" toml:"level_height"`
	NodeWidth   float64 `json:"node_width" toml:"node_width"`
	NodeHeight  float64 `json:"node_height" toml:"node_height"`
	Gap         float64 `json:"gap" toml:"gap"`
	CanvasWidth float64 `json:"canvas_width" toml:"canvas_width"`
	MinX        float64 `json:"min_x" toml:"min_x"`
	TopMargin   float64 `json:"top_margin" toml:"top_margin"`
	FallbackX   float64 `json:"fallback_x" toml:"fallback_x"`
	FallbackY   float64 `json:"fallback_y" toml:"fallback_y"`
}

// DefaultLayout returns the standard canvas geometry.
func DefaultLayout() LayoutConfig {
	return LayoutConfig{
		LevelHeight: 150,
		NodeWidth:   120,
		NodeHeight:  60,
		Gap:         100,
		CanvasWidth: 800,
		MinX:        50,
		TopMargin:   50,
		FallbackX:   100,
		FallbackY:   100,
	}
}

// Validate rejects geometry that would produce degenerate shapes.
func (c LayoutConfig) Validate() error {
	if c.NodeWidth <= 0 || c.NodeHeight <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"node size must be positive, got %gx%g", c.NodeWidth, c.NodeHeight)
	}
	if c.LevelHeight <= 0 || c.Gap < 0 || c.CanvasWidth <= 0 {
		return schema.NewError(schema.ErrCodeValidation,
			"level height and canvas width must be positive and gap non-negative")
	}
	return nil
}

func (c LayoutConfig) fallback() Position {
	return Position{X: c.FallbackX, Y: c.FallbackY}
}

// LevelAssignment maps node ids to BFS discovery depth from the first node.
// Nodes the traversal never reaches are absent.
type LevelAssignment map[string]int

// Rows groups assigned node ids by level, in dequeue order within a level.
func (la LevelAssignment) Rows(pd *ParsedDiagram) [][]string {
	depth := -1
	for _, l := range la {
		depth = max(depth, l)
	}
	rows := make([][]string, depth+1)
	for _, id := range bfsOrder(pd) {
		rows[la[id]] = append(rows[la[id]], id)
	}
	return rows
}

// AssignLevels runs a breadth-first traversal from the first node. A node
// keeps the level at which it is first dequeued, so cycles and converging
// paths terminate without re-levelling.
func AssignLevels(pd *ParsedDiagram) LevelAssignment {
	levels := make(LevelAssignment, len(pd.Nodes))
	walkBFS(pd, func(id string, level int) { levels[id] = level })
	return levels
}

func bfsOrder(pd *ParsedDiagram) []string {
	var order []string
	walkBFS(pd, func(id string, _ int) { order = append(order, id) })
	return order
}

// walkBFS calls visit once per reachable node in dequeue order.
func walkBFS(pd *ParsedDiagram, visit func(id string, level int)) {
	if len(pd.Nodes) == 0 {
		return
	}
	children := make(map[string][]string, len(pd.Nodes))
	for _, e := range pd.Edges {
		children[e.From] = append(children[e.From], e.To)
	}

	type item struct {
		id    string
		level int
	}
	visited := make(map[string]bool, len(pd.Nodes))
	queue := []item{{id: pd.Nodes[0].ID}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		visit(cur.id, cur.level)
		for _, child := range children[cur.id] {
			if !visited[child] {
				queue = append(queue, item{id: child, level: cur.level + 1})
			}
		}
	}
}

// Placement is the layout result: levels and positions for reached nodes,
// plus the ids of nodes the traversal never reached.
type Placement struct {
	Levels    LevelAssignment     `json:"levels"`
	Positions map[string]Position `json:"positions"`
	Unplaced  []string            `json:"unplaced,omitempty"`
}

// PositionOf returns the node's position or the configured fallback.
func (p *Placement) PositionOf(id string, cfg LayoutConfig) (Position, bool) {
	if pos, ok := p.Positions[id]; ok {
		return pos, true
	}
	return cfg.fallback(), false
}

// Layout assigns levels and computes a top-left position per reached node.
// Each row is centered on the canvas width and never starts left of MinX.
func Layout(pd *ParsedDiagram, cfg LayoutConfig) *Placement {
	levels := AssignLevels(pd)
	p := &Placement{
		Levels:    levels,
		Positions: make(map[string]Position, len(levels)),
	}

	step := cfg.NodeWidth + cfg.Gap
	for level, row := range levels.Rows(pd) {
		total := float64(len(row)) * step
		startX := max(cfg.MinX, (cfg.CanvasWidth-total)/2)
		y := float64(level)*cfg.LevelHeight + cfg.TopMargin
		for i, id := range row {
			p.Positions[id] = Position{X: startX + float64(i)*step, Y: y}
		}
	}

	for _, n := range pd.Nodes {
		if _, ok := levels[n.ID]; !ok {
			p.Unplaced = append(p.Unplaced, n.ID)
		}
	}
	return p
}
