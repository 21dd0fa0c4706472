package validation

import (
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// validateReferences checks rules JSON Schema cannot express: ids must be
// unique within a batch, and connector endpoints should name a shape in the
// batch or on the canvas. Dangling endpoints are warnings because a client
// may create the shape later.
func validateReferences(els []map[string]any, known func(id string) bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := make(map[string]int, len(els))
	for i, el := range els {
		id, _ := el["id"].(string)
		if id == "" {
			continue
		}
		if first, dup := ids[id]; dup {
			result.AddError(fmt.Sprintf("elements[%d].id", i), schema.ErrCodeConflict,
				fmt.Sprintf("duplicate id %q (first used by elements[%d])", id, first))
			continue
		}
		ids[id] = i
	}

	exists := func(id string) bool {
		if _, ok := ids[id]; ok {
			return true
		}
		return known != nil && known(id)
	}

	for i, el := range els {
		typ, _ := el["type"].(string)
		if schema.ElementType(typ) != schema.ElementArrow && schema.ElementType(typ) != schema.ElementLine {
			continue
		}
		path := fmt.Sprintf("elements[%d]", i)
		for _, end := range []string{"from", "to"} {
			ref, _ := el[end].(string)
			if ref != "" && !exists(ref) {
				result.AddWarning(path+"."+end, schema.ErrCodeNotFound,
					fmt.Sprintf("references unknown element %q", ref))
			}
		}
		if pts, ok := el["points"].([]any); ok && len(pts) < 2 {
			result.AddWarning(path+".points", schema.ErrCodeValidation,
				fmt.Sprintf("connector has %d points, want at least 2", len(pts)))
		}
	}

	return result
}
