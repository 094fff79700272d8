package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mxrc-robotics/mxrc/pkg/mxerrors"
)

// Hot key constraints (§6 DataStore schema; mirrors HotKeyConfig's FR-006
// constants from the original implementation).
const (
	MaxHotKeys         = 32
	MaxHotKeySizeBytes = 512
	MaxTotalHotKeyBytes = 10 * 1024 * 1024
)

// KeySchema describes one registered DataStore key, as enumerated in the
// YAML schema file.
type KeySchema struct {
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	Description       string   `yaml:"description"`
	HotKey            bool     `yaml:"hot_key"`
	EstimatedSizeBytes int     `yaml:"estimated_size_bytes"`
	Readers           []string `yaml:"readers"`
	Writers           []string `yaml:"writers"`
}

// Schema is the parsed DataStore schema file: the set of registered keys
// and their access policy, read once at process start.
type Schema struct {
	Keys []KeySchema `yaml:"keys"`
}

// LoadSchema reads and validates a DataStore schema YAML file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mxerrors.InitFatal("read datastore schema", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, mxerrors.SchemaInvalid(path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, mxerrors.SchemaInvalid(path, err)
	}
	return &s, nil
}

// HotKeys returns the subset of keys marked hot_key: true.
func (s *Schema) HotKeys() []KeySchema {
	var out []KeySchema
	for _, k := range s.Keys {
		if k.HotKey {
			out = append(out, k)
		}
	}
	return out
}

// Validate enforces the hot-key constraints from §6: at most 32 hot keys,
// each at most 512 bytes, aggregate at most 10 MB.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Keys))
	hot := s.HotKeys()

	if len(hot) > MaxHotKeys {
		return fmt.Errorf("schema declares %d hot keys, max %d", len(hot), MaxHotKeys)
	}

	var total int
	for _, k := range s.Keys {
		if k.Name == "" {
			return fmt.Errorf("schema contains a key with an empty name")
		}
		if seen[k.Name] {
			return fmt.Errorf("schema declares key %q more than once", k.Name)
		}
		seen[k.Name] = true

		if k.HotKey {
			if k.EstimatedSizeBytes > MaxHotKeySizeBytes {
				return fmt.Errorf("hot key %q estimated size %d exceeds max %d bytes", k.Name, k.EstimatedSizeBytes, MaxHotKeySizeBytes)
			}
			total += k.EstimatedSizeBytes
		}
	}
	if total > MaxTotalHotKeyBytes {
		return fmt.Errorf("hot keys total estimated size %d exceeds max %d bytes", total, MaxTotalHotKeyBytes)
	}
	return nil
}
