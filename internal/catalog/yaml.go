package catalog

import (
	"fmt"
	"io"
	"os"

	"github.com/stemsi/exstem-proctor/internal/model"
	"gopkg.in/yaml.v3"
)

// DecodeYAML reads one quiz document, normalizes and validates it.
func DecodeYAML(r io.Reader) (*model.Quiz, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var q model.Quiz
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("decode quiz yaml: %w", err)
	}
	Normalize(&q)
	if err := Validate(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

// LoadYAML reads a quiz from a YAML file.
func LoadYAML(path string) (*model.Quiz, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quiz file: %w", err)
	}
	defer f.Close()
	return DecodeYAML(f)
}
