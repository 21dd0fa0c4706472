package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const (
	elementSchemaURL = "https://flowcanvas.dev/schemas/element.json"
	patchSchemaURL   = "https://flowcanvas.dev/schemas/element-patch.json"
)

// elementSchemaJSON is the JSON Schema for a canvas element. Unknown fields
// are allowed so clients can attach their own metadata.
const elementSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/element.json",
  "type": "object",
  "required": ["type", "x", "y"],
  "allOf": [{ "$ref": "#/$defs/fields" }],
  "$defs": {
    "fields": {
      "type": "object",
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["rectangle", "ellipse", "diamond", "arrow", "text", "label", "freedraw", "line"]
        },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "width": { "type": "number", "minimum": 0 },
        "height": { "type": "number", "minimum": 0 },
        "text": { "type": "string" },
        "from": { "type": "string" },
        "to": { "type": "string" },
        "strokeColor": { "type": "string" },
        "backgroundColor": { "type": "string" },
        "fillStyle": { "type": "string" },
        "strokeWidth": { "type": "number", "minimum": 0 },
        "roughness": { "type": "number", "minimum": 0 },
        "opacity": { "type": "number", "minimum": 0, "maximum": 100 },
        "points": {
          "type": "array",
          "items": {
            "type": "array",
            "prefixItems": [{ "type": "number" }, { "type": "number" }],
            "minItems": 2,
            "maxItems": 2
          }
        }
      }
    }
  }
}`

// elementPatchSchemaJSON reuses the field definitions without required keys.
const elementPatchSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/element-patch.json",
  "$ref": "element.json#/$defs/fields"
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	element *jsonschema.Schema
	patch   *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the element schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		elementSchemaURL: elementSchemaJSON,
		patchSchemaURL:   elementPatchSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	element, err := c.Compile(elementSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile element schema: %w", err)
	}
	patch, err := c.Compile(patchSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile patch schema: %w", err)
	}
	return &JSONSchemaValidator{element: element, patch: patch}, nil
}

// ValidateElement validates a complete element against the element schema.
func (v *JSONSchemaValidator) ValidateElement(el map[string]any) *schema.ValidationResult {
	return validateAgainst(v.element, el)
}

// ValidatePatch validates update fields. A nil value deletes a field and is
// not type checked.
func (v *JSONSchemaValidator) ValidatePatch(fields map[string]any) *schema.ValidationResult {
	present := make(map[string]any, len(fields))
	for k, val := range fields {
		if val != nil {
			present[k] = val
		}
	}
	return validateAgainst(v.patch, present)
}

// ValidateBatch validates each element, then the cross-element rules.
func (v *JSONSchemaValidator) ValidateBatch(els []map[string]any, known func(id string) bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for i, el := range els {
		result.MergeAt(fmt.Sprintf("elements[%d]", i), v.ValidateElement(el))
	}
	result.MergeAt("", validateReferences(els, known))
	return result
}

func validateAgainst(s *jsonschema.Schema, v map[string]any) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if v == nil {
		result.AddError("/", schema.ErrCodeValidation, "element is nil")
		return result
	}

	doc, err := toJSONValue(v)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize element: "+err.Error())
		return result
	}

	if err := s.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		collectViolations(verr, result)
	}
	return result
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and records each leaf with
// its instance location.
func collectViolations(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		msg := verr.Error()
		// Leaf messages read "at '/x': reason"; the location is kept separately.
		if _, reason, ok := strings.Cut(msg, ": "); ok {
			msg = reason
		}
		result.AddError(loc, schema.ErrCodeValidation, msg)
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, result)
	}
}

var _ Validator = (*JSONSchemaValidator)(nil)
