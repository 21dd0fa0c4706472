package diagram

import (
	"regexp"
	"slices"
	"strings"
)

const idPattern = `[A-Za-z0-9_]+`

// shapeRule recognizes one node declaration syntax. Rules are tried in table
// order; a later rule never matches inside a span claimed by an earlier one.
type shapeRule struct {
	shape ShapeKind
	re    *regexp.Regexp
}

// connectorRule recognizes one edge glyph sequence.
type connectorRule struct {
	glyphs string
	kind   ConnectorKind
}

func newShapeRule(shape ShapeKind, open, close string) shapeRule {
	body := `[^` + regexp.QuoteMeta(close[len(close)-1:]) + `]*`
	pattern := `(?:^|[^A-Za-z0-9_])(` + idPattern + `)` +
		regexp.QuoteMeta(open) + `(` + body + `)` + regexp.QuoteMeta(close)
	return shapeRule{shape: shape, re: regexp.MustCompile(pattern)}
}

var shapeRules = []shapeRule{
	newShapeRule(ShapeRectangle, "[", "]"),
	newShapeRule(ShapeDiamond, "{", "}"),
	newShapeRule(ShapeEllipse, "((", "))"),
	newShapeRule(ShapeRounded, "(", ")"),
}

// Longer glyphs come first so "-->" is not read as "--".
var connectorRules = []connectorRule{
	{"-->", ConnectorArrow},
	{"-.->", ConnectorDotted},
	{"===", ConnectorThick},
	{"---", ConnectorPlain},
	{"--", ConnectorPlain},
}

var edgeRe = func() *regexp.Regexp {
	alts := make([]string, len(connectorRules))
	for i, r := range connectorRules {
		alts[i] = regexp.QuoteMeta(r.glyphs)
	}
	return regexp.MustCompile(`(` + idPattern + `)\s*(` + strings.Join(alts, "|") +
		`)\s*(?:\|([^|]*)\|)?\s*(` + idPattern + `)`)
}()

func connectorKind(glyphs string) ConnectorKind {
	for _, r := range connectorRules {
		if r.glyphs == glyphs {
			return r.kind
		}
	}
	return ConnectorPlain
}

// directives are flowchart statements that carry no nodes or edges.
var directives = map[string]bool{
	"subgraph":  true,
	"end":       true,
	"classDef":  true,
	"class":     true,
	"style":     true,
	"linkStyle": true,
	"click":     true,
	"direction": true,
}

func isDirective(line string) bool {
	head, _, _ := strings.Cut(line, " ")
	return directives[strings.TrimSuffix(head, ";")]
}

// declaration is one shape rule match inside a line.
type declaration struct {
	id         string
	label      string
	shape      ShapeKind
	start, end int
}

var edgeLabelRe = regexp.MustCompile(`\|[^|]*\|`)

// scanDeclarations returns the non-overlapping declarations in line ordered
// by position. Edge labels are masked so their text never declares nodes.
func scanDeclarations(line string) []declaration {
	masked := edgeLabelRe.ReplaceAllStringFunc(line, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
	var decls []declaration
	for _, rule := range shapeRules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(masked, -1) {
			d := declaration{
				id:    line[m[2]:m[3]],
				label: cleanLabel(line[m[4]:m[5]]),
				shape: rule.shape,
				start: m[2],
				end:   m[1],
			}
			if overlaps(decls, d) {
				continue
			}
			decls = append(decls, d)
		}
	}
	slices.SortFunc(decls, func(a, b declaration) int { return a.start - b.start })
	return decls
}

func overlaps(decls []declaration, d declaration) bool {
	for _, o := range decls {
		if d.start < o.end && o.start < d.end {
			return true
		}
	}
	return false
}

// collapse replaces every declaration in line by its bare id and records
// where each id landed in the collapsed text.
func collapse(line string, decls []declaration) (string, []int) {
	if len(decls) == 0 {
		return line, nil
	}
	var b strings.Builder
	at := make([]int, len(decls))
	prev := 0
	for i, d := range decls {
		b.WriteString(line[prev:d.start])
		at[i] = b.Len()
		b.WriteString(d.id)
		prev = d.end
	}
	b.WriteString(line[prev:])
	return b.String(), at
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}
