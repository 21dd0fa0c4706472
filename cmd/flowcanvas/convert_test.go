package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/diagram"
)

const decisionFlow = `flowchart TD
    A[Start] --> B{Check}
    B -->|Yes| C[Done]
    B -->|No| D[Retry]
    C --> E[End]
    D --> E
`

// runCLI executes the root command with an isolated home and no .env file.
func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	isolateHome(t)

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestConvertCommandJSONFromStdin(t *testing.T) {
	stdout, stderr, err := runCLI(t, decisionFlow, "convert", "--seed", "7")
	require.NoError(t, err)

	var elems []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &elems))
	require.Len(t, elems, 10)

	assert.Equal(t, "A", elems[0]["id"])
	assert.EqualValues(t, 290, elems[0]["x"])
	assert.EqualValues(t, 50, elems[0]["y"])
	assert.Equal(t, "diamond", elems[1]["type"])
	assert.Equal(t, "arrow", elems[5]["type"])

	assert.Contains(t, stderr, "Converted")
	assert.Contains(t, stderr, "elements")
}

func TestConvertCommandSeedIsReproducible(t *testing.T) {
	first, _, err := runCLI(t, decisionFlow, "convert", "--seed", "42", "-q")
	require.NoError(t, err)
	second, stderr, err := runCLI(t, decisionFlow, "convert", "--seed", "42", "-q")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotContains(t, stderr, "Converted")
}

func TestConvertCommandFromFileToFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "flow.mmd")
	out := filepath.Join(dir, "flow.txt")
	require.NoError(t, os.WriteFile(in, []byte(decisionFlow), 0o644))

	stdout, _, err := runCLI(t, "", "convert", in, "--format", "mermaid", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "B -->|Yes| C")
}

func TestConvertCommandErrors(t *testing.T) {
	_, _, err := runCLI(t, "", "convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMPTY_INPUT")

	_, _, err = runCLI(t, decisionFlow, "convert", "--format", "bmp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "bmp"`)

	_, _, err = runCLI(t, "", "convert", "/does/not/exist.mmd")
	assert.Error(t, err)
}

func TestRenderOutput(t *testing.T) {
	conv, err := diagram.NewConverter(diagram.WithSeed(1, 1)).Convert(context.Background(), decisionFlow)
	require.NoError(t, err)

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"id": "A"`},
		{"mermaid", "A[Start]"},
		{"ascii", "Start"},
		{"dot", "digraph"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := renderOutput(context.Background(), conv, tt.format, "")
			require.NoError(t, err)
			assert.Contains(t, string(out), tt.want)
		})
	}
}

func TestPrintSummaryReportsUnplaced(t *testing.T) {
	conv, err := diagram.NewConverter().Convert(context.Background(), "graph TD\n  A --> B\n  X --> A")
	require.NoError(t, err)

	var buf bytes.Buffer
	printSummary(&buf, conv, "json")
	assert.Contains(t, buf.String(), "unreachable")
	assert.Contains(t, buf.String(), "X")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}
