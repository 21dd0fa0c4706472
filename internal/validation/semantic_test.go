package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

func TestValidateReferences_DuplicateIDs(t *testing.T) {
	res := validateReferences([]map[string]any{
		{"id": "A", "type": "rectangle"},
		{"type": "text"},
		{"type": "text"},
		{"id": "A", "type": "ellipse"},
	}, nil)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "elements[3].id", res.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeConflict, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "elements[0]")
}

func TestValidateReferences_Endpoints(t *testing.T) {
	known := func(id string) bool { return id == "Z" }
	res := validateReferences([]map[string]any{
		{"id": "A", "type": "rectangle"},
		{"id": "a1", "type": "arrow", "from": "A", "to": "Z", "points": []any{[]any{0, 0}, []any{1, 1}}},
		{"id": "a2", "type": "arrow", "from": "A", "to": "missing", "points": []any{[]any{0, 0}}},
		{"id": "t", "type": "text", "from": "ignored"},
	}, known)

	assert.True(t, res.Valid())
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "elements[2].to", res.Warnings[0].Path)
	assert.Equal(t, schema.ErrCodeNotFound, res.Warnings[0].Code)
	assert.Equal(t, "elements[2].points", res.Warnings[1].Path)
}
