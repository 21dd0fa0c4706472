package diagram

import (
	"errors"
	"strings"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Sentinel errors for the two fatal conversion failures. They are wrapped in
// a *schema.FlowError and stay reachable through errors.Is.
var (
	ErrEmptyInput   = errors.New("diagram text has no content lines")
	ErrNoNodesFound = errors.New("no nodes found in diagram")
)

const commentMarker = "%%"

// Line is one trimmed, non-comment source line.
type Line struct {
	Num  int
	Text string
}

// Tokens is the tokenizer output. Content excludes the kind declaration line
// when one was recognized.
type Tokens struct {
	Kind      DiagramKind
	Direction Direction
	Lines     []Line
	Content   []Line
}

var kindKeywords = []struct {
	keyword string
	kind    DiagramKind
}{
	{"graph", KindFlowchart},
	{"flowchart", KindFlowchart},
	{"sequenceDiagram", KindSequence},
	{"classDiagram", KindClass},
	{"stateDiagram", KindState},
	{"gantt", KindGantt},
}

// Tokenize splits text into trimmed lines, drops blanks and %% comments, and
// classifies the first surviving line.
func Tokenize(text string) (*Tokens, error) {
	var lines []Line
	for i, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if t == "" || strings.HasPrefix(t, commentMarker) {
			continue
		}
		lines = append(lines, Line{Num: i + 1, Text: t})
	}
	if len(lines) == 0 {
		return nil, schema.NewError(schema.ErrCodeEmptyInput, "diagram text is empty").WithCause(ErrEmptyInput)
	}

	tok := &Tokens{Kind: KindUnknown, Direction: DirTopDown, Lines: lines, Content: lines}
	if kind, rest, ok := matchKind(lines[0].Text); ok {
		tok.Kind = kind
		tok.Content = lines[1:]
		if kind == KindFlowchart {
			if dir, ok := parseDirection(rest); ok {
				tok.Direction = dir
			}
		}
	}
	return tok, nil
}

// matchKind reports the kind declared by line and the text after the keyword.
// The keyword must end the line or be followed by whitespace, ';' or '-'.
func matchKind(line string) (DiagramKind, string, bool) {
	for _, kw := range kindKeywords {
		if !strings.HasPrefix(line, kw.keyword) {
			continue
		}
		rest := line[len(kw.keyword):]
		if rest == "" || strings.ContainsRune(" \t;-", rune(rest[0])) {
			return kw.kind, rest, true
		}
	}
	return KindUnknown, "", false
}

func parseDirection(rest string) (Direction, bool) {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(rest), ";"))
	if len(fields) == 0 {
		return "", false
	}
	switch d := Direction(fields[0]); d {
	case DirTopDown, DirTopBottom, DirBottomUp, DirLeftRight, DirRightLeft:
		return d, true
	}
	return "", false
}
