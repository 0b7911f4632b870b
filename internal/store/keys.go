package store

import (
	"fmt"
	"strings"
)

// DefaultRoot is the namespace every key is created under unless the store is
// configured with WithRoot.
const DefaultRoot = "namespace:resource"

// Separator joins key parts.
const Separator = ":"

// Keys builds namespaced backend keys.
//
//	Keys{Root: "app"}.Key("widget", "42")
//	=> "app:widget:42"
type Keys struct {
	Root string
}

// Key prefixes the root and joins parts with Separator. Non-string parts are
// formatted with fmt.Sprint. The same parts always produce the same key.
func (k Keys) Key(parts ...any) string {
	var sb strings.Builder
	sb.WriteString(k.Root)
	for _, p := range parts {
		if sb.Len() > 0 {
			sb.WriteString(Separator)
		}
		switch v := p.(type) {
		case string:
			sb.WriteString(v)
		default:
			sb.WriteString(fmt.Sprint(v))
		}
	}
	return sb.String()
}

// record returns the key of the primary record of a resource.
func (k Keys) record(resourceType, id string) string {
	return k.Key(resourceType, id)
}
