package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/0bArc/Vault/internal/ir"
)

// marshalDependencies stores the dependency names as canonical JSON TEXT
// so identical builds produce identical rows.
func marshalDependencies(deps []string) (string, error) {
	if deps == nil {
		deps = []string{}
	}
	data, err := ir.MarshalCanonical(deps)
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return string(data), nil
}

func unmarshalDependencies(data string) ([]string, error) {
	deps := []string{}
	if data == "" || data == "[]" {
		return deps, nil
	}
	if err := json.Unmarshal([]byte(data), &deps); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return deps, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
