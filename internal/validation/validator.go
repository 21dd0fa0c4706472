package validation

import "github.com/rendis/flowcanvas/pkg/schema"

// Validator checks element payloads before they reach the store.
type Validator interface {
	// ValidateElement checks a complete element object.
	ValidateElement(el map[string]any) *schema.ValidationResult
	// ValidatePatch checks a partial update; no field is required.
	ValidatePatch(fields map[string]any) *schema.ValidationResult
	// ValidateBatch checks every element and the references between them.
	// known reports whether an id already exists outside the batch.
	ValidateBatch(els []map[string]any, known func(id string) bool) *schema.ValidationResult
}
