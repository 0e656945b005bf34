package trails

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML or JSON trail list from disk. A shared lock is held
// while reading so a writer holding the exclusive lock is never observed
// half-way through a rewrite.
func LoadFile(path string) ([]Record, error) {
	// flock creates missing files, so check first.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat trails file: %w", err)
	}

	lock := flock.New(path)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock trails file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trails file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML document (JSON is accepted as a subset) into
// trail records using the same field rules as ParseJSON.
func ParseYAML(data []byte) ([]Record, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if doc == nil {
		return []Record{}, nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode trails document: %w", err)
	}
	return ParseJSON(raw)
}
