package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Source is script text plus the name used in error messages.
type Source struct {
	Name string
	Code string
}

// NewSource creates a source from text.
func NewSource(name, code string) Source {
	return Source{Name: name, Code: code}
}

// LoadFile reads a script from disk.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read script: %w", err)
	}
	return Source{Name: filepath.Base(path), Code: string(data)}, nil
}

// Digest returns the hex SHA-256 of the code.
func (s Source) Digest() string {
	sum := sha256.Sum256([]byte(s.Code))
	return hex.EncodeToString(sum[:])
}
