package states

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaSeq atomic.Uint64

// Schema is a compiled JSON Schema document used to validate metadata.
type Schema struct {
	raw      json.RawMessage
	strict   bool
	compiled *jsonschema.Schema
}

type schemaOptions struct {
	lenient bool
}

// SchemaOption configures CompileSchema.
type SchemaOption func(*schemaOptions)

// Lenient disables strict mode: the document is compiled exactly as written.
func Lenient() SchemaOption {
	return func(o *schemaOptions) {
		o.lenient = true
	}
}

// CompileSchema compiles a schema document. doc may be a JSON string, a
// []byte, a json.RawMessage, or any value that marshals to a JSON object.
//
// Schemas are strict unless Lenient is given: every object schema that
// declares properties requires all of them and rejects undeclared ones,
// unless it sets additionalProperties itself.
func CompileSchema(doc any, opts ...SchemaOption) (*Schema, error) {
	var o schemaOptions
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := schemaBytes(doc)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, err)
	}

	compiledDoc := raw
	if !o.lenient {
		if compiledDoc, err = strictSchema(raw); err != nil {
			return nil, errors.Join(ErrInvalidConfiguration, fmt.Errorf("load schema: %w", err))
		}
	}

	url := fmt.Sprintf("metadata-%d.json", schemaSeq.Add(1))

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(compiledDoc)); err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, fmt.Errorf("load schema: %w", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, fmt.Errorf("compile schema: %w", err))
	}

	return &Schema{raw: raw, strict: !o.lenient, compiled: compiled}, nil
}

// MustCompileSchema is like CompileSchema but panics on error.
func MustCompileSchema(doc any, opts ...SchemaOption) *Schema {
	s, err := CompileSchema(doc, opts...)
	if err != nil {
		panic(fmt.Sprintf("states: %v", err))
	}
	return s
}

// Raw returns the schema document as written.
func (s *Schema) Raw() json.RawMessage {
	if s == nil {
		return nil
	}
	return bytes.Clone(s.raw)
}

// Strict reports whether the schema was compiled in strict mode.
func (s *Schema) Strict() bool {
	return s != nil && s.strict
}

// Validate checks metadata against the schema. Failures are returned as
// *SchemaViolationError.
func (s *Schema) Validate(md Metadata) error {
	if s == nil || s.compiled == nil {
		return nil
	}

	doc, err := NormalizeMetadata(md)
	if err != nil {
		return &SchemaViolationError{Detail: err.Error()}
	}

	if err := s.compiled.Validate(map[string]any(doc)); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &SchemaViolationError{Detail: describeViolation(verr)}
		}
		return &SchemaViolationError{Detail: err.Error()}
	}
	return nil
}

// SchemaViolationError carries the validator's description of why metadata
// was rejected.
type SchemaViolationError struct {
	Detail string
}

func (e *SchemaViolationError) Error() string {
	return ErrSchemaViolation.Error() + ": " + e.Detail
}

func (e *SchemaViolationError) Unwrap() error {
	return ErrSchemaViolation
}

// describeViolation flattens the validator's error tree into its leaf messages.
func describeViolation(verr *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	var buf bytes.Buffer
	for i, m := range msgs {
		if i > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(m)
	}
	return buf.String()
}

func schemaBytes(doc any) ([]byte, error) {
	var raw []byte
	switch v := doc.(type) {
	case nil:
		return nil, errors.New("schema document is empty")
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode schema: %w", err)
		}
		raw = b
	}

	if !json.Valid(raw) {
		return nil, errors.New("schema document is not valid JSON")
	}
	return bytes.Clone(raw), nil
}

// Keywords whose value is a subschema, a list of subschemas or a map of
// named subschemas.
var (
	subschemaKeywords = []string{
		"items", "additionalProperties", "additionalItems", "contains", "not",
		"if", "then", "else", "propertyNames", "unevaluatedProperties", "unevaluatedItems",
	}
	subschemaListKeywords = []string{"allOf", "anyOf", "oneOf", "prefixItems", "items"}
	subschemaMapKeywords  = []string{"properties", "patternProperties", "$defs", "definitions", "dependentSchemas"}
)

// strictSchema rewrites every object schema with declared properties so that
// all of them are required and undeclared ones are rejected.
func strictSchema(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	makeStrict(doc)
	return json.Marshal(doc)
}

func makeStrict(node any) {
	schema, ok := node.(map[string]any)
	if !ok {
		return
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		if _, set := schema["additionalProperties"]; !set {
			schema["additionalProperties"] = false
		}

		required := make([]any, 0, len(props))
		seen := make(map[string]bool, len(props))
		if existing, ok := schema["required"].([]any); ok {
			for _, r := range existing {
				if name, ok := r.(string); ok && !seen[name] {
					seen[name] = true
					required = append(required, name)
				}
			}
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if !seen[name] {
				required = append(required, name)
			}
		}
		schema["required"] = required
	}

	for _, kw := range subschemaKeywords {
		makeStrict(schema[kw])
	}
	for _, kw := range subschemaListKeywords {
		if list, ok := schema[kw].([]any); ok {
			for _, sub := range list {
				makeStrict(sub)
			}
		}
	}
	for _, kw := range subschemaMapKeywords {
		if named, ok := schema[kw].(map[string]any); ok {
			for _, sub := range named {
				makeStrict(sub)
			}
		}
	}
}
