package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseArgs decodes a provider's JSON argument string into a map. An empty
// string yields an empty map.
func ParseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

// EncodeArgs renders tool call arguments as the JSON text providers expect.
func EncodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}

	return string(b)
}
