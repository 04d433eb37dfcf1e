// Package export writes an account's records to JSON, JSONL, YAML or XLSX
// files and reads them back.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edilcheck/edilcheck/internal/types"
	"gopkg.in/yaml.v3"
)

// Format is a file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, jsonl, yaml or xlsx)", s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer format of %s: no extension", path)
	}
	return ParseFormat(ext)
}

// Write encodes c to w.
func Write(w io.Writer, c *types.Container, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case FormatJSONL:
		return writeJSONL(w, c)
	case FormatXLSX:
		return writeXLSX(w, c)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// Read decodes a container from r. Missing collections come back empty.
func Read(r io.Reader, f Format) (*types.Container, error) {
	var c types.Container
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&c); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&c); err != nil && err != io.EOF {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatJSONL:
		x, err := readJSONL(r)
		if err != nil {
			return nil, err
		}
		c = *x
	case FormatXLSX:
		x, err := readXLSX(r)
		if err != nil {
			return nil, err
		}
		c = *x
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	c.Normalize()
	return &c, nil
}

// WriteFile writes c to path, creating parent directories. The format comes
// from the extension unless f is set.
func WriteFile(path string, c *types.Container, f Format) error {
	if f == "" {
		var err error
		if f, err = FormatFromPath(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(file, c, f); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// ReadFile reads a container from path, picking the format from its
// extension.
func ReadFile(path string) (*types.Container, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return Read(file, f)
}
