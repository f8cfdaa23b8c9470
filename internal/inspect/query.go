package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/itchyny/gojq"
)

// Query evaluates a jq expression over the JSON form of r and returns
// every output in order.
//
//	.vaults[] | select(.secure) | .name
//	.vaults[0].registries[] | {(.name): [.keys[].key]}
//
// Environment access ($ENV, env) is disabled.
func Query(ctx context.Context, r *Report, expr string) ([]any, error) {
	if expr == "" {
		return nil, errors.New("empty query")
	}

	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse query %q: %w", expr, err)
	}
	code, err := gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", expr, err)
	}

	input, err := queryInput(r)
	if err != nil {
		return nil, err
	}

	results := []any{}
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("evaluate query %q: %w", expr, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// queryInput converts r into the value types gojq accepts. Integral
// numbers stay exact; other numbers become float64.
func queryInput(r *Report) (any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return normalizeForJQ(v), nil
}

func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeForJQ(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalizeForJQ(elem)
		}
		return val
	case json.Number:
		if n, err := strconv.Atoi(val.String()); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// EncodeResult renders one query output as compact JSON; strings print
// raw when raw is set.
func EncodeResult(v any, raw bool) (string, error) {
	if s, ok := v.(string); ok && raw {
		return s, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}
