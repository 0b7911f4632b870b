// Package manifest parses YAML manifests of rstore resources.
//
// Each document names a configured resource type and carries the resource
// body:
//
//	type: widget
//	resource:
//	  name: sprocket
//	  color: red
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is one resource declared in a manifest.
type Document struct {
	Type     string         `yaml:"type" json:"type"`
	Resource map[string]any `yaml:"resource" json:"resource"`
}

// ParseFile reads a YAML file at the given path and parses its documents.
// Multi-document YAML (separated by ---) is supported.
func ParseFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses raw YAML bytes into documents.
// Multi-document YAML (separated by ---) is supported.
func ParseBytes(data []byte) ([]Document, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads every document from r.
func Parse(r io.Reader) ([]Document, error) {
	var docs []Document

	decoder := yaml.NewDecoder(r)
	for i := 0; ; i++ {
		var node yaml.Node
		if err := decoder.Decode(&node); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding yaml document %d: %w", i, err)
		}

		// Skip empty documents.
		if node.Kind == 0 || isEmptyDocument(&node) {
			continue
		}

		var doc Document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document %d: %w", i, err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func isEmptyDocument(node *yaml.Node) bool {
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return false
	}
	inner := node.Content[0]
	return inner.Kind == yaml.ScalarNode && inner.Tag == "!!null"
}

// validateDocument checks that required fields are set on the document.
func validateDocument(doc Document) error {
	if doc.Type == "" {
		return fmt.Errorf("validation failed: type must not be empty")
	}
	if doc.Resource == nil {
		return fmt.Errorf("validation failed: %s has no resource body", doc.Type)
	}
	return nil
}
