package streams

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema returns the JSON schema describing the stream's records.
func (d Descriptor) Schema() (json.RawMessage, error) {
	if d.schemaFile == "" {
		return json.RawMessage(`{"type":"object"}`), nil
	}
	data, err := schemaFS.ReadFile("schemas/" + d.schemaFile)
	if err != nil {
		return nil, fmt.Errorf("%s: read schema: %w", d.Name, err)
	}
	return json.RawMessage(data), nil
}
