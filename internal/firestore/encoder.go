package firestore

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Value is one Firestore typed value in REST wire form, keyed by the value
// type name ("stringValue", "integerValue", ...).
type Value map[string]any

// ErrUnsupportedType reports a record value outside the encodable universe.
// Unsupported values fail loudly instead of silently disappearing from the
// persisted record.
var ErrUnsupportedType = errors.New("firestore: unsupported value type")

// maxSafeInteger bounds the values persisted as integerValue. Larger integrals
// fall back to doubleValue.
const maxSafeInteger = float64(1 << 53)

// EncodeFields converts a keyed record into the document store's typed field
// schema. It is a pure structural transform with no side effects.
func EncodeFields(record map[string]any) (map[string]Value, error) {
	fields := make(map[string]Value, len(record))
	for key, raw := range record {
		value, err := encodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		fields[key] = value
	}
	return fields, nil
}

func encodeValue(raw any) (Value, error) {
	if raw == nil {
		return Value{"nullValue": nil}, nil
	}

	switch v := raw.(type) {
	case string:
		return Value{"stringValue": v}, nil
	case bool:
		return Value{"booleanValue": v}, nil
	case time.Time:
		return Value{"timestampValue": v.UTC().Format(time.RFC3339Nano)}, nil
	case int:
		return encodeNumber(float64(v))
	case int32:
		return encodeNumber(float64(v))
	case int64:
		return encodeNumber(float64(v))
	case float32:
		return encodeNumber(float64(v))
	case float64:
		return encodeNumber(v)
	case []any:
		values := make([]Value, 0, len(v))
		for i, item := range v {
			encoded, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			values = append(values, encoded)
		}
		return Value{"arrayValue": map[string]any{"values": values}}, nil
	case map[string]any:
		fields, err := EncodeFields(v)
		if err != nil {
			return nil, err
		}
		return Value{"mapValue": map[string]any{"fields": fields}}, nil
	}

	// Named string/bool/numeric types (JobStatus, TimeOfDay, ...) encode as
	// their underlying kind.
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.String:
		return Value{"stringValue": rv.String()}, nil
	case reflect.Bool:
		return Value{"booleanValue": rv.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeNumber(float64(rv.Int()))
	case reflect.Float32, reflect.Float64:
		return encodeNumber(rv.Float())
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, raw)
}

// encodeNumber renders integral values within the safe range as decimal-string
// integerValues so large integers survive the wire without float rounding.
func encodeNumber(v float64) (Value, error) {
	if v == math.Trunc(v) && math.Abs(v) <= maxSafeInteger {
		return Value{"integerValue": strconv.FormatInt(int64(v), 10)}, nil
	}
	return Value{"doubleValue": v}, nil
}

// DecodeFields is the inverse transform, applied per the store's own type
// rules to fields parsed from a document read.
func DecodeFields(fields map[string]Value) map[string]any {
	record := make(map[string]any, len(fields))
	for key, value := range fields {
		record[key] = decodeValue(value)
	}
	return record
}

func decodeValue(value Value) any {
	if v, ok := value["stringValue"]; ok {
		return v
	}
	if v, ok := value["booleanValue"]; ok {
		return v
	}
	if v, ok := value["integerValue"]; ok {
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return v
	}
	if v, ok := value["doubleValue"]; ok {
		return v
	}
	if v, ok := value["timestampValue"]; ok {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
		return v
	}
	if v, ok := value["arrayValue"]; ok {
		return decodeArray(v)
	}
	if v, ok := value["mapValue"]; ok {
		return decodeMap(v)
	}
	return nil
}

func decodeArray(raw any) []any {
	wrapper, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	items := []any{}
	switch values := wrapper["values"].(type) {
	case []any:
		for _, v := range values {
			if inner, ok := v.(map[string]any); ok {
				items = append(items, decodeValue(Value(inner)))
			}
		}
	case []Value:
		for _, v := range values {
			items = append(items, decodeValue(v))
		}
	}
	return items
}

func decodeMap(raw any) map[string]any {
	wrapper, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	switch fields := wrapper["fields"].(type) {
	case map[string]any:
		record := make(map[string]any, len(fields))
		for key, v := range fields {
			if inner, ok := v.(map[string]any); ok {
				record[key] = decodeValue(Value(inner))
			}
		}
		return record
	case map[string]Value:
		return DecodeFields(fields)
	}
	return map[string]any{}
}
