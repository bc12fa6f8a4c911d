package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NamedAttrs is one entry of an ordered field object.
type NamedAttrs struct {
	Name  string
	Attrs map[string]any
}

// OrderedFields is a field object whose key order survives encoding.
type OrderedFields []NamedAttrs

// Names returns the entry names in order.
func (o OrderedFields) Names() []string {
	names := make([]string, len(o))
	for i, e := range o {
		names[i] = e.Name
	}
	return names
}

// Get returns the attributes of the named entry.
func (o OrderedFields) Get(name string) (map[string]any, bool) {
	for _, e := range o {
		if e.Name == name {
			return e.Attrs, true
		}
	}
	return nil, false
}

func (o OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Attrs)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeOrderedFields reads a fields value, either an object keyed by field
// name or an array of objects carrying a "name" key. A repeated name keeps
// its first position and its last definition.
func decodeOrderedFields(data json.RawMessage) ([]RawField, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		return decodeFieldArray(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("fields must be an object, got %v", tok)
	}

	var out []RawField
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		attrs := fieldValueAttrs(value)
		if i, seen := index[name]; seen {
			out[i].Attrs = attrs
			continue
		}
		index[name] = len(out)
		out = append(out, RawField{Name: name, Attrs: attrs})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeFieldArray(data []byte) ([]RawField, error) {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	var out []RawField
	index := make(map[string]int)
	for _, item := range items {
		attrs, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := attrs["name"].(string)
		if name == "" {
			continue
		}
		attrs = cloneMap(attrs)
		delete(attrs, "name")
		if i, seen := index[name]; seen {
			out[i].Attrs = attrs
			continue
		}
		index[name] = len(out)
		out = append(out, RawField{Name: name, Attrs: attrs})
	}
	return out, nil
}

// fieldValueAttrs accepts the "name": "type" shorthand.
func fieldValueAttrs(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case string:
		return map[string]any{"type": val}
	default:
		return map[string]any{}
	}
}
