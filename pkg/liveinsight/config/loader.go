package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a settings file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension (.yaml, .yml or .json).
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported settings file extension %q", ext)
	}
}

// FromFile reads a settings file in the format its extension names.
func FromFile(path string) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes data as format. A document that is empty or null yields an
// empty Config.
func Parse(data []byte, format Format) (Config, error) {
	var m map[string]any
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatJSON:
		err = json.Unmarshal(data, &m)
	default:
		return Config{}, fmt.Errorf("unknown settings format %q", format)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s settings: %w", format, err)
	}
	return New(m), nil
}

// FromYAML is Parse with FormatYAML.
func FromYAML(data []byte) (Config, error) { return Parse(data, FormatYAML) }

// FromJSON is Parse with FormatJSON.
func FromJSON(data []byte) (Config, error) { return Parse(data, FormatJSON) }
