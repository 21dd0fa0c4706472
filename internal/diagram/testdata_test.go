package diagram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const decisionFlow = `graph TD
    A[Start] --> B{Decision}
    B -->|Yes| C[Process A]
    B -->|No| D[Process B]
    C --> E[End]
    D --> E
`

func mustParse(t *testing.T, text string) *ParsedDiagram {
	t.Helper()
	pd, err := Parse(text)
	require.NoError(t, err)
	return pd
}

func nodeIDs(pd *ParsedDiagram) []string {
	ids := make([]string, len(pd.Nodes))
	for i, n := range pd.Nodes {
		ids[i] = n.ID
	}
	return ids
}
