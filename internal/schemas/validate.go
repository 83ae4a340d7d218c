// Package schemas validates job property details against the JSON Schema of their sub-service.
package schemas

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed subservices/*.json
var subserviceFiles embed.FS

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	SubService string
	Errors     []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return fmt.Sprintf("%s details invalid: %s", ve.SubService, strings.Join(parts, "; "))
}

// Registry holds the compiled property-detail schema of every known sub-service,
// keyed by the sub-service name.
type Registry struct {
	schemas map[string]*gojsonschema.Schema
}

// LoadRegistry compiles the embedded sub-service schemas.
func LoadRegistry() (*Registry, error) {
	return loadFrom(subserviceFiles, "subservices")
}

func loadFrom(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	reg := &Registry{schemas: make(map[string]*gojsonschema.Schema, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := dir + "/" + entry.Name()
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, &SchemaLoadError{Path: path, Message: "read failed", Cause: err}
		}

		var header struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(raw, &header); err != nil {
			return nil, &SchemaLoadError{Path: path, Message: "invalid JSON", Cause: err}
		}
		if header.Title == "" {
			return nil, &SchemaLoadError{Path: path, Message: "schema has no title"}
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, &SchemaLoadError{Path: path, Message: "schema does not compile", Cause: err}
		}
		reg.schemas[header.Title] = schema
	}
	return reg, nil
}

// SubServices lists the sub-services that have a schema, sorted.
func (r *Registry) SubServices() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidatePropertyDetails checks details against the sub-service schema. Unknown
// sub-services accept any details. A nil map validates as an empty object.
func (r *Registry) ValidatePropertyDetails(subService string, details map[string]any) error {
	schema, ok := r.schemas[subService]
	if !ok {
		return nil
	}
	if details == nil {
		details = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(details))
	if err != nil {
		return fmt.Errorf("failed to validate property details: %w", err)
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		SubService: subService,
		Errors:     make([]FieldError, 0, len(result.Errors())),
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
