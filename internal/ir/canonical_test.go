package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"decimal", Number("3.14"), "3.14"},
		{"exponent", Number("-1.5e10"), "-1.5e10"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
		{"plain map", map[string]any{"b": true, "a": "x"}, `{"a":"x","b":true}`},
		{"plain strings", []string{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := Object{
		"zebra": Int(1),
		"alpha": Int(2),
		"beta":  Object{"d": Int(4), "c": Int(3)},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"c":3,"d":4},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8.
	obj := Object{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by u2028 text must stay escaped.
	result, err = MarshalCanonical(String(`x\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalCanonicalKeepsUnicodeBytes(t *testing.T) {
	result, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"e\u0301\"", string(result))

	// Canonically equivalent keys are still distinct keys.
	obj := Object{"\u00e9": String("a"), "e\u0301": String("e\u0301")}
	result, err = MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"e\u0301\":\"e\u0301\",\"\u00e9\":\"a\"}", string(result))

	back, err := FromJSON(result)
	require.NoError(t, err)
	assert.True(t, Equal(obj, back))
}

func TestMarshalCanonicalInvalidUTF8(t *testing.T) {
	_, err := MarshalCanonical(String("\xff"))
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	_, err = MarshalCanonical(Object{"k\xfe": Int(1)})
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	_, err = MarshalCanonical(Array{String("ok"), String("bad\xff")})
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = MarshalCanonical(Number("1.2.3"))
	require.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	build := func() Object {
		return Object{
			"db":    Object{"host": String("localhost"), "port": Int(5432)},
			"flags": Array{Bool(true), Number("0.5")},
		}
	}

	first, err := MarshalCanonical(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
