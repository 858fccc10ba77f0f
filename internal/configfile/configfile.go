// Package configfile reads the YAML or JSON definition files for sources and
// publishers.
package configfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned when no decoder accepts the data.
var ErrUnknownFormat = errors.New("format not recognized (expected YAML or JSON)")

type decoder struct {
	name string
	exts []string
	fn   func([]byte, any) error
}

var decoders = []decoder{
	{name: "yaml", exts: []string{".yaml", ".yml"}, fn: yaml.Unmarshal},
	{name: "json", exts: []string{".json"}, fn: json.Unmarshal},
}

// Load reads path and decodes it by file extension. what names the file in
// errors ("sources", "publishers").
func Load[T any](path, what string) (T, error) {
	var zero T
	path = strings.TrimSpace(path)
	if path == "" {
		return zero, fmt.Errorf("%s file path is empty", what)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read %s file: %w", what, err)
	}
	return Decode[T](raw, filepath.Ext(path), what)
}

// Decode decodes data with the decoder for ext. An empty ext tries YAML then
// JSON and keeps the first that succeeds.
func Decode[T any](data []byte, ext, what string) (T, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	var errs []error
	for _, d := range decoders {
		if ext != "" && !matches(d, ext) {
			continue
		}
		var out T
		if err := d.fn(data, &out); err != nil {
			errs = append(errs, fmt.Errorf("decode %s %s: %w", d.name, what, err))
			continue
		}
		return out, nil
	}
	var zero T
	if len(errs) == 0 {
		return zero, fmt.Errorf("%s file %w", what, ErrUnknownFormat)
	}
	return zero, errors.Join(errs...)
}

func matches(d decoder, ext string) bool {
	for _, e := range d.exts {
		if e == ext {
			return true
		}
	}
	return false
}
