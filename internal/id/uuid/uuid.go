// Package uuid generates run keys. Keys are UUIDv7 so they sort by creation
// time in logs and snapshot documents.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// RunKey returns a fresh run key, falling back to a random v4 key when the
// v7 clock source fails.
func (g Generator) RunKey() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return uuid.NewString()
}
