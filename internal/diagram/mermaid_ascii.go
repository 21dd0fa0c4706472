package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto renders through the mermaid-ascii binary in binDir when it
// exists and succeeds, and falls back to RenderASCII otherwise.
func RenderASCIIAuto(ctx context.Context, pd *ParsedDiagram, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			if out, err := RenderASCIIViaCLI(ctx, pd, binPath); err == nil {
				return out
			}
		}
	}
	return RenderASCII(pd)
}

// RenderASCIIViaCLI pipes RenderMermaidForCLI output through the binary at binPath.
func RenderASCIIViaCLI(ctx context.Context, pd *ParsedDiagram, binPath string) (string, error) {
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(pd))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI emits edge-only flowchart text for mermaid-ascii, which
// cannot parse shape declarations. Node labels become the displayed ids and
// nodes without edges are emitted on their own line.
func RenderMermaidForCLI(pd *ParsedDiagram) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	display := make(map[string]string, len(pd.Nodes))
	for _, n := range pd.Nodes {
		display[n.ID] = cliNodeID(n)
	}

	connected := make(map[string]bool, len(pd.Nodes))
	for _, e := range pd.Edges {
		label := ""
		if e.Label != "" {
			label = "|" + e.Label + "|"
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", display[e.From], label, display[e.To])
		connected[e.From], connected[e.To] = true, true
	}
	for _, n := range pd.Nodes {
		if !connected[n.ID] {
			fmt.Fprintf(&b, "    %s\n", display[n.ID])
		}
	}
	return b.String()
}

// cliNodeID turns a label into an id mermaid-ascii accepts.
func cliNodeID(n Node) string {
	id := strings.TrimSpace(n.Label)
	if id == "" {
		id = n.ID
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t':
			return '-'
		case '[', ']', '{', '}', '(', ')', '|':
			return -1
		}
		return r
	}, id)
}
