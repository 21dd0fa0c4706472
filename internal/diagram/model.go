package diagram

// DiagramKind is the diagram type declared on the first line of the text.
type DiagramKind string

const (
	KindFlowchart DiagramKind = "flowchart"
	KindSequence  DiagramKind = "sequence"
	KindClass     DiagramKind = "class"
	KindState     DiagramKind = "state"
	KindGantt     DiagramKind = "gantt"
	KindUnknown   DiagramKind = "unknown"
)

// Direction is the flow direction declared after a flowchart keyword.
type Direction string

const (
	DirTopDown   Direction = "TD"
	DirTopBottom Direction = "TB"
	DirBottomUp  Direction = "BT"
	DirLeftRight Direction = "LR"
	DirRightLeft Direction = "RL"
)

// ShapeKind classifies the declared shape of a node.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeDiamond   ShapeKind = "diamond"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeRounded   ShapeKind = "rounded"
	ShapePlain     ShapeKind = "plain"
)

// ConnectorKind classifies the glyphs used to declare an edge.
type ConnectorKind string

const (
	ConnectorArrow  ConnectorKind = "arrow"
	ConnectorDotted ConnectorKind = "dotted"
	ConnectorThick  ConnectorKind = "thick"
	ConnectorPlain  ConnectorKind = "plain"
)

// Node is a named vertex of a parsed diagram.
type Node struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Shape ShapeKind `json:"shape"`
	Line  int       `json:"line,omitempty"` // source line of first mention
}

// Edge is a directed relation between two node ids.
type Edge struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Label     string        `json:"label,omitempty"`
	Connector ConnectorKind `json:"connector"`
	Line      int           `json:"line,omitempty"`
}

// SkippedLine is a content line that matched no declaration rule.
type SkippedLine struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// ParsedDiagram is the graph built from one diagram text. Nodes are in
// first-seen order and unique by id; edges are in declaration order.
type ParsedDiagram struct {
	Kind      DiagramKind   `json:"kind"`
	Direction Direction     `json:"direction"`
	Nodes     []Node        `json:"nodes"`
	Edges     []Edge        `json:"edges"`
	Skipped   []SkippedLine `json:"skipped,omitempty"`
}

// Node returns the node with the given id.
func (pd *ParsedDiagram) Node(id string) (Node, bool) {
	for _, n := range pd.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Position is a node's top-left corner in canvas units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
