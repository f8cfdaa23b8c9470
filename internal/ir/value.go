package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Value is a sealed interface over the values a vault key can hold.
// Only Null, String, Int, Number, Bool, Array and Object implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null inside a document literal.
// Top-level store/replace values are never Null.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string value.
type String string

func (String) value() {}

// Int is an integer value that fits in int64.
type Int int64

func (Int) value() {}

// Number is a non-integer numeric literal kept as its decimal text.
// Keeping the text instead of a float64 keeps sealed payloads reproducible.
type Number string

func (Number) value() {}

// MarshalJSON implements json.Marshaler for Number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !IsNumberLiteral(string(n)) {
		return nil, fmt.Errorf("invalid number literal %q", string(n))
	}
	return []byte(n), nil
}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values (document literal `[...]`).
type Array []Value

func (Array) value() {}

// Object maps field names to values (document literal `{...}`).
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// IsNumberLiteral reports whether s is a valid JSON number literal.
func IsNumberLiteral(s string) bool {
	return numberPattern.MatchString(s)
}

// ParseNumber converts numeric literal text into Int when it is an integer
// in int64 range, and into Number otherwise.
func ParseNumber(s string) (Value, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	if !IsNumberLiteral(s) {
		return nil, fmt.Errorf("invalid number literal %q", s)
	}
	return Number(s), nil
}

// Kind returns a short type name for v, used in reports and errors.
func Kind(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// ValidUTF8 reports whether every string in v, object keys included, is
// valid UTF-8.
func ValidUTF8(v Value) bool {
	switch val := v.(type) {
	case String:
		return utf8.ValidString(string(val))
	case Array:
		for _, elem := range val {
			if !ValidUTF8(elem) {
				return false
			}
		}
	case Object:
		for k, elem := range val {
			if !utf8.ValidString(k) || !ValidUTF8(elem) {
				return false
			}
		}
	}
	return true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order which differs outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// CompareKeys compares strings using UTF-16 code unit ordering as required
// by RFC 8785. Registries and keys are sorted with it before sealing.
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// FromJSON decodes a JSON document into a Value.
// Integers become Int, other numbers become Number, null becomes Null.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return FromNative(raw)
}

// FromNative converts decoded Go values (as produced by encoding/json with
// UseNumber, or by YAML) into a Value.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		return ParseNumber(string(val))
	case float64:
		return ParseNumber(strconv.FormatFloat(val, 'g', -1, 64))
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			converted, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			converted, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Native converts a Value into plain Go values (string, int64, bool,
// json.Number, []any, map[string]any, nil) for encoders and jq queries.
func Native(v Value) any {
	switch val := v.(type) {
	case Null, nil:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Number:
		return json.Number(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Native(elem)
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether a and b hold the same value.
// Objects compare by key set, arrays by position.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Format renders v the way it is written in DSL source: strings quoted,
// numbers and booleans bare, documents as canonical JSON.
func Format(v Value) string {
	switch val := v.(type) {
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Number:
		return string(val)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Null:
		return "null"
	default:
		data, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("<%s: %v>", Kind(v), err)
		}
		return string(data)
	}
}
