// Package mappingfile reads and writes the YAML file the CLI keeps a mapping in
// between invocations.
package mappingfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// CurrentVersion is written to new files.
const CurrentVersion = "1"

// MappingFile is the saved state of one mapping.
type MappingFile struct {
	Version   string              `yaml:"version"`
	Source    string              `yaml:"source,omitempty"`
	Knowledge string              `yaml:"knowledge,omitempty"`
	Rows      []models.MappingRow `yaml:"rows"`
}

// LoadFile loads and parses a mapping file. A missing file yields an empty
// MappingFile so the first run of a workflow needs no setup.
func LoadFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MappingFile{Version: CurrentVersion}, nil
		}
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML data into a MappingFile.
func Parse(data []byte) (*MappingFile, error) {
	var mf MappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}

	applyDefaults(&mf)
	return &mf, nil
}

func applyDefaults(mf *MappingFile) {
	if mf.Version == "" {
		mf.Version = CurrentVersion
	}
	for i := range mf.Rows {
		if mf.Rows[i].SuggestionOrigin == "" {
			mf.Rows[i].SuggestionOrigin = models.SuggestionOriginNone
		}
	}
}

// Marshal serializes a MappingFile to YAML.
func Marshal(mf *MappingFile) ([]byte, error) {
	return yaml.Marshal(mf)
}

// WriteFile writes a MappingFile to the given path.
func WriteFile(mf *MappingFile, path string) error {
	data, err := Marshal(mf)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mapping file %s: %w", path, err)
	}

	return nil
}
