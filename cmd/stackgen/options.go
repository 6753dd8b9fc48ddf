package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadOptions reads an option file and returns it as JSON. Files ending in
// .json are passed through; anything else is parsed as YAML, which also
// accepts JSON documents.
func loadOptions(path string) (json.RawMessage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("options file %s is not valid JSON", path)
		}
		return json.RawMessage(data), nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return encoded, nil
}
