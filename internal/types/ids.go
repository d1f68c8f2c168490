package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID is a typed UUID string used for all entity identifiers in the core:
// jobs, hypothesis nodes, causal edges, and evidence items.
type ID string

// NewID generates a new random UUID and returns it as an ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates a string as a UUID and returns it as an ID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID format: %w", err)
	}

	return ID(parsed.String()), nil
}

// Validate checks that the ID is a well-formed, non-empty UUID.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	return nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON serializes the ID as a JSON string, or null when zero.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON deserializes and validates a JSON string into an ID.
// An empty string sets the zero value.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal ID: %w", err)
	}

	if s == "" {
		*id = ""
		return nil
	}

	parsed, err := ParseID(s)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}
