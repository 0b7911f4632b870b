package store

import (
	"encoding/json"
	"fmt"
)

// UUIDField holds the generated identifier of every resource.
const UUIDField = "uuid"

// Resource is a schemaless record. Values must be JSON-serialisable.
type Resource map[string]any

// UUID returns the generated identifier, or "" if the resource has none yet.
func (r Resource) UUID() string {
	id, _ := r[UUIDField].(string)
	return id
}

// Has reports whether field is present and not empty.
func (r Resource) Has(field string) bool {
	_, ok := fieldValue(r[field])
	return ok
}

// clone returns a shallow copy so callers' maps are never mutated.
func (r Resource) clone() Resource {
	out := make(Resource, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// fieldValue renders v as an index or key part. nil and "" count as missing.
func fieldValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	default:
		return fmt.Sprint(val), true
	}
}

func encodeResource(r Resource) ([]byte, error) {
	return json.Marshal(r)
}

func decodeResource(raw []byte) (Resource, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}
