package schema

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

const structureURL = "file:///crud6/schema-structure.json"

// structureDocument is the minimal shape every schema file must have.
const structureDocument = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["model", "table", "fields"],
  "properties": {
    "model": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "table": {"type": "string", "minLength": 1},
    "connection": {"type": "string"},
    "fields": {
      "oneOf": [
        {"type": "object", "minProperties": 1},
        {"type": "array", "minItems": 1, "items": {"type": "object", "required": ["name"]}}
      ]
    },
    "relationships": {"type": "array", "items": {"type": "object"}},
    "details": {"type": "array", "items": {"type": "object"}},
    "detail": {"type": "object"},
    "actions": {"type": "array", "items": {"type": "object"}},
    "permissions": {"type": "object"}
  }
}`

type structureValidator struct {
	schema *js.Schema
}

func newStructureValidator() (*structureValidator, error) {
	compiler := js.NewCompiler()
	if err := compiler.AddResource(structureURL, strings.NewReader(structureDocument)); err != nil {
		return nil, errors.Wrap(err, "add structure schema")
	}
	schema, err := compiler.Compile(structureURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile structure schema")
	}
	return &structureValidator{schema: schema}, nil
}

// Validate checks a raw schema document for the required top-level keys and
// a non-empty field set.
func (v *structureValidator) Validate(data []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrapf(ErrSchemaInvalid, "malformed json: %v", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *js.ValidationError
		if errors.As(err, &verr) {
			return errors.Wrapf(ErrSchemaInvalid, "%s", strings.TrimSpace(verr.Error()))
		}
		return errors.Wrap(err, "validate schema")
	}
	return nil
}
