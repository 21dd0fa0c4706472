package schema

import "fmt"

// ValidationSeverity separates blocking errors from advisory warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem found in an element payload.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult accumulates issues across one element or a whole batch.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether no errors were recorded. Warnings do not count.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{path, code, message, SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{path, code, message, SeverityWarning})
}

// MergeAt copies the issues of other into r under prefix, so "/x" found in
// the third element of a batch becomes "elements[2]/x".
func (r *ValidationResult) MergeAt(prefix string, other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = appendPrefixed(r.Errors, prefix, other.Errors)
	r.Warnings = appendPrefixed(r.Warnings, prefix, other.Warnings)
}

func appendPrefixed(dst []ValidationIssue, prefix string, src []ValidationIssue) []ValidationIssue {
	for _, iss := range src {
		if prefix != "" {
			if iss.Path == "" || iss.Path == "/" {
				iss.Path = prefix
			} else {
				iss.Path = prefix + iss.Path
			}
		}
		dst = append(dst, iss)
	}
	return dst
}

// ToError returns nil for a valid result. Otherwise it returns a
// VALIDATION_ERROR whose message is the sole error or an error count, with
// every issue attached as details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	var msg string
	if n := len(r.Errors); n > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", n)
	} else if first := r.Errors[0]; first.Path != "" {
		msg = first.Path + ": " + first.Message
	} else {
		msg = first.Message
	}

	return NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}
