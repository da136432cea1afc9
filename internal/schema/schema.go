// Package schema validates request bodies against embedded JSON Schemas.
package schema

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var files embed.FS

// Schema names.
const (
	AllocateRequest = "allocate_request"
	CreateBlueprint = "create_blueprint"
	RowEdits        = "row_edits"
	Distribute      = "distribute"
	LiveMessage     = "live_message"
)

const definitionsFile = "definitions.json"

// FieldError is one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field error of a document.
type ValidationError struct {
	Schema string       `json:"schema"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("invalid %s: %s", strings.ReplaceAll(e.Schema, "_", " "), strings.Join(parts, "; "))
}

// Validator holds compiled schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	defs, err := files.ReadFile(path.Join("schemas", definitionsFile))
	if err != nil {
		return nil, fmt.Errorf("reading schema definitions: %w", err)
	}

	entries, err := files.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}

	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for _, e := range entries {
		if e.Name() == definitionsFile {
			continue
		}
		data, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", e.Name(), err)
		}

		sl := gojsonschema.NewSchemaLoader()
		if err := sl.AddSchemas(gojsonschema.NewBytesLoader(defs)); err != nil {
			return nil, fmt.Errorf("adding schema definitions: %w", err)
		}
		compiled, err := sl.Compile(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", e.Name(), err)
		}
		v.schemas[strings.TrimSuffix(e.Name(), ".json")] = compiled
	}
	return v, nil
}

// Validate checks data against the named schema. A constraint failure is
// returned as *ValidationError.
func (v *Validator) Validate(name string, data []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ValidationError{Schema: name, Fields: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: name}
	for _, re := range result.Errors() {
		ve.Fields = append(ve.Fields, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return ve
}
