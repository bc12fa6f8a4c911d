package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrCast is returned when a value cannot be converted to its column cast.
var ErrCast = errors.New("value does not match column type")

// CastRow converts a scanned row in place and drops hidden columns.
func (c *TableConfig) CastRow(row map[string]any) map[string]any {
	for _, col := range c.Hidden {
		delete(row, col)
	}
	for col, v := range row {
		row[col] = castRead(c.Casts[col], v)
	}
	return row
}

// CastInput converts request values for writing. Unknown columns are left
// untouched so the caller can decide whether to reject them.
func (c *TableConfig) CastInput(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for col, v := range values {
		cast, ok := c.Casts[col]
		if !ok {
			out[col] = v
			continue
		}
		w, err := castWrite(cast, v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col)
		}
		out[col] = w
	}
	return out, nil
}

// CoerceID converts a path id to the primary key's cast.
func (c *TableConfig) CoerceID(raw string) (any, error) {
	cast := c.Casts[c.PrimaryKey]
	if cast == "" {
		cast = CastInt
	}
	if cast != CastInt {
		return raw, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrCast, "id %q", raw)
	}
	return n, nil
}

func castRead(cast Cast, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch cast {
	case CastInt:
		switch val := v.(type) {
		case float64:
			if val == math.Trunc(val) {
				return int64(val)
			}
		case string:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				return n
			}
		}
	case CastFloat:
		switch val := v.(type) {
		case int64:
			return float64(val)
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	case CastBool:
		switch val := v.(type) {
		case int64:
			return val != 0
		case float64:
			return val != 0
		case string:
			if b, err := strconv.ParseBool(val); err == nil {
				return b
			}
		}
	case CastJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return v
}

func castWrite(cast Cast, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch cast {
	case CastInt:
		switch val := v.(type) {
		case int, int32, int64:
			return val, nil
		case float64:
			if val != math.Trunc(val) {
				return nil, errors.Wrapf(ErrCast, "%v is not an integer", val)
			}
			return int64(val), nil
		case json.Number:
			n, err := val.Int64()
			if err != nil {
				return nil, errors.Wrapf(ErrCast, "%s is not an integer", val)
			}
			return n, nil
		case string:
			if strings.TrimSpace(val) == "" {
				return nil, nil
			}
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrCast, "%q is not an integer", val)
			}
			return n, nil
		}
	case CastFloat:
		switch val := v.(type) {
		case float64, float32:
			return val, nil
		case int, int64:
			return toFloat(val), nil
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				return nil, errors.Wrapf(ErrCast, "%s is not a number", val)
			}
			return f, nil
		case string:
			if strings.TrimSpace(val) == "" {
				return nil, nil
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, errors.Wrapf(ErrCast, "%q is not a number", val)
			}
			return f, nil
		}
	case CastBool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case float64:
			return val != 0, nil
		case int, int64:
			return toFloat(val) != 0, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return nil, errors.Wrapf(ErrCast, "%q is not a boolean", val)
			}
			return b, nil
		}
	case CastJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return s, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(ErrCast, err.Error())
		}
		return string(encoded), nil
	default:
		// scalars pass through so lookup ids keep their numeric form
		switch val := v.(type) {
		case map[string]any, []any:
			return nil, errors.Wrapf(ErrCast, "expected a scalar, got %T", v)
		case json.Number:
			return val.String(), nil
		}
		return v, nil
	}
	return nil, errors.Wrapf(ErrCast, "unsupported %T for %s", v, cast)
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return 0
}
