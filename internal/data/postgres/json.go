package postgres

import (
	"encoding/json"
	"fmt"
)

// toJSON encodes JSONB column values. nil pointers become SQL NULL.
func toJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb column: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// fromJSON decodes a JSONB column; NULL leaves dst untouched
func fromJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode jsonb column: %w", err)
	}
	return nil
}
