// Package validation checks request bodies against JSON Schemas before they
// reach any business logic.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names
const (
	Call    = "call"
	EndCall = "end-call"
	Unit    = "unit"
)

var schemas = map[string]string{
	Call: `{
		"type": "object",
		"required": ["location", "name"],
		"properties": {
			"location": {"type": "string", "minLength": 2, "maxLength": 255},
			"description": {"type": ["string", "null"], "maxLength": 2000},
			"name": {"type": "string", "minLength": 2, "maxLength": 255},
			"assignedUnits": {"type": ["array", "null"], "items": {"type": "string", "minLength": 1}}
		}
	}`,
	EndCall: `{
		"type": "object",
		"required": ["description"],
		"properties": {
			"description": {"type": "string", "minLength": 1, "maxLength": 2000}
		}
	}`,
	Unit: `{
		"type": "object",
		"required": ["name", "department", "division"],
		"properties": {
			"name": {"type": "string", "minLength": 2, "maxLength": 255},
			"department": {"type": "string", "minLength": 1},
			"division": {"type": "string", "minLength": 1},
			"callsign": {"type": "string", "maxLength": 64},
			"badgeNumber": {"type": "string", "maxLength": 64},
			"rank": {"type": "string", "maxLength": 255},
			"citizenId": {"type": "string"}
		}
	}`,
}

// Error is returned when a body is malformed or does not satisfy its schema
type Error struct {
	Schema string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s body: %s", e.Schema, e.Reason)
}

// IsValidationError reports whether err is, or wraps, a validation Error
func IsValidationError(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

// Validator holds the compiled request schemas
type Validator struct {
	compiled map[string]*jsonschema.Schema
}

// New compiles all request schemas
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	v := &Validator{compiled: make(map[string]*jsonschema.Schema, len(schemas))}
	for name, schema := range schemas {
		url := fmt.Sprintf("https://police-dispatch-api.local/schemas/%s.json", name)
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.compiled[name] = compiled
	}
	return v, nil
}

// MustNew is New for package initialisation, it panics on a bad schema
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Decode validates body against the named schema and then unmarshals it into dst
func (v *Validator) Decode(name string, body []byte, dst interface{}) error {
	schema, ok := v.compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return &Error{Schema: name, Reason: err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &Error{Schema: name, Reason: describe(ve)}
		}
		return &Error{Schema: name, Reason: err.Error()}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &Error{Schema: name, Reason: err.Error()}
	}
	return nil
}

// describe flattens the deepest causes into one line
func describe(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, ve.Message)
	}
	parts := make([]string, 0, len(ve.Causes))
	for _, c := range ve.Causes {
		parts = append(parts, describe(c))
	}
	return strings.Join(parts, "; ")
}
