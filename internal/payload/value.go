package payload

import (
	"encoding/json"
	"strings"
)

// ValueKind discriminates the variants of an answer Value.
type ValueKind int

const (
	// KindString is a plain scalar kept verbatim from storage.
	KindString ValueKind = iota
	// KindArray is a stored string that parsed as a JSON array.
	KindArray
	// KindObject is a stored string that parsed as a JSON object.
	KindObject
	// KindRaw is the fallback for a compound-typed field whose stored value
	// did not parse as JSON. The original string is preserved byte for byte.
	KindRaw
	// KindNull is an absent (SQL NULL) value.
	KindNull
)

// Value is a tagged union over the shapes an answer value can take.
//
// Storage keeps every answer value as an opaque string. Decoding is a
// best-effort heuristic, not a strict schema: a stored string that looks
// like a JSON array or object is parsed, anything else stays a string.
// The field's declared type only decides whether a failed parse is
// surfaced as KindRaw (compound-typed fields) or KindString.
type Value struct {
	kind ValueKind
	str  string
	arr  []any
	obj  map[string]any
}

// ParseValue decodes a stored answer value for a field of the given type.
func ParseValue(fieldType FieldType, stored string, present bool) Value {
	if !present {
		return Value{kind: KindNull}
	}

	trimmed := strings.TrimSpace(stored)
	if strings.HasPrefix(trimmed, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			return Value{kind: KindArray, arr: arr}
		}
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return Value{kind: KindObject, obj: obj}
		}
	}

	if fieldType.expectsCompoundValue() {
		return Value{kind: KindRaw, str: stored}
	}
	return Value{kind: KindString, str: stored}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind {
	return v.kind
}

// String returns the scalar form for KindString and KindRaw values.
func (v Value) String() string {
	return v.str
}

// Array returns the decoded array for KindArray values.
func (v Value) Array() []any {
	return v.arr
}

// Object returns the decoded object for KindObject values.
func (v Value) Object() map[string]any {
	return v.obj
}

// MarshalJSON emits the underlying value: parsed arrays/objects as JSON,
// strings (including raw fallbacks) as JSON strings, null for absent.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		return json.Marshal(v.obj)
	case KindNull:
		return []byte("null"), nil
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON reconstructs a Value from its wire form. Receivers of the
// webhook envelope can decode payloads without losing the variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*v = Value{kind: KindNull}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var arr []any
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*v = Value{kind: KindArray, arr: arr}
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*v = Value{kind: KindObject, obj: obj}
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{kind: KindString, str: s}
		return nil
	}
}
