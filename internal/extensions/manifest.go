package extensions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ManifestFile is the expected filename inside each extension directory.
const ManifestFile = "extension.json"

// Manifest describes one extension on disk: which registered factory
// builds it and the configuration handed to that factory.
type Manifest struct {
	Name        string         `json:"name"`
	Version     string         `json:"version,omitempty"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Config      map[string]any `json:"config,omitempty"`
}

const manifestSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string"},
		"description": {"type": "string"},
		"enabled": {"type": "boolean"},
		"config": {"type": "object"}
	}
}`

var compiledManifestSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		panic(err)
	}
	if err := compiler.AddResource("manifest.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("manifest.json")
	if err != nil {
		panic(err)
	}
	return schema
}()

// ReadManifest loads and validates an extension manifest. Enabled
// defaults to true when the field is absent.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := compiledManifestSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	manifest := Manifest{Enabled: true}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}
