// Package validation checks raw request bodies against JSON schemas.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// AskRequestSchema describes POST /api/ask.
const AskRequestSchema = `{
  "type": "object",
  "required": ["session_id", "query"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1, "maxLength": 128, "pattern": "\\S"},
    "query":      {"type": "string", "minLength": 1, "maxLength": 4000, "pattern": "\\S"}
  }
}`

// ChunkSchema describes POST /api/website-data.
const ChunkSchema = `{
  "type": "object",
  "required": ["website_link", "plain_text", "embedding"],
  "properties": {
    "website_id":   {"type": "integer", "minimum": 0},
    "website_link": {"type": "string", "minLength": 1},
    "plain_text":   {"type": "string", "minLength": 1},
    "embedding":    {"type": "array", "minItems": 1, "items": {"type": "number"}}
  }
}`

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationResult collects every violation found in a document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error joins the violations into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator holds a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustValidator panics on an invalid schema; for package-level schemas only.
func MustValidator(schemaJSON string) *Validator {
	v, err := NewValidator(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a raw JSON document. A malformed document is reported as a
// single violation on the root field.
func (v *Validator) Validate(doc []byte) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "MALFORMED_JSON"}},
		}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	out := &ValidationResult{Valid: false}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out
}
