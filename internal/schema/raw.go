package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RawField is one field as it appears in a schema file.
type RawField struct {
	Name  string
	Attrs map[string]any
}

// RawSchema is a decoded schema file before normalization. Field order is
// preserved from the source document.
type RawSchema struct {
	Attrs  map[string]any
	Fields []RawField
}

// Model returns the declared model name, or "".
func (r *RawSchema) Model() string {
	s, _ := r.Attrs["model"].(string)
	return s
}

// ParseRaw decodes a schema document.
func ParseRaw(data []byte) (*RawSchema, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	raw := &RawSchema{Attrs: make(map[string]any, len(top))}
	for key, value := range top {
		if key == "fields" {
			fields, err := decodeOrderedFields(value)
			if err != nil {
				return nil, errors.Wrap(err, "decode fields")
			}
			raw.Fields = fields
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, errors.Wrapf(err, "decode %s", key)
		}
		raw.Attrs[key] = v
	}
	return raw, nil
}
