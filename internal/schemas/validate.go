// Package schemas validates classifier JSON outputs before they are routed.
// A model answer that fails its schema is treated as an upstream failure, not
// as an unknown classification.
package schemas

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TriageSchema constrains the triage stage output.
const TriageSchema = `{
  "type": "object",
  "required": ["classification"],
  "properties": {
    "classification": {
      "type": "string",
      "enum": ["SM_Doubt", "No_Answer_Required"]
    }
  }
}`

// DeepClassifierSchema constrains the deep classification stage output.
const DeepClassifierSchema = `{
  "type": "object",
  "required": ["classification"],
  "properties": {
    "classification": {
      "type": "string",
      "enum": [
        "Genuine_Doubt",
        "Pointing_Out_Corrections",
        "Variation_of_Question",
        "Alternate_Approach"
      ]
    }
  }
}`

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Name    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Name, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// ValidateTriage checks a triage output document.
func ValidateTriage(jsonContent string) error {
	return ValidateJSONString(TriageSchema, jsonContent)
}

// ValidateDeepClassification checks a deep classifier output document.
func ValidateDeepClassification(jsonContent string) error {
	return ValidateJSONString(DeepClassifierSchema, jsonContent)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Name:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
