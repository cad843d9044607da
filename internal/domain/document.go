package domain

import "errors"

// Collection names in the document store.
const (
	CollectionUsers       = "users"
	CollectionAudits      = "audits"
	CollectionRebates     = "rebates"
	CollectionContractors = "contractors"
	CollectionChats       = "chats"
)

// ErrNotFound is returned by stores when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a schemaless record as stored in a collection. Values are
// limited to JSON-compatible types.
type Document map[string]any

// String returns the string value stored under key, or "" when absent or
// not a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Strings returns the string elements stored under key. Non-string
// elements are skipped.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
