// Package metadata encodes contributor attributes for the object store and derives the folder and
// tag identifiers that are signed alongside them.
package metadata

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// Attribute keys.
const (
	KeyName    = "name"
	KeyMessage = "message"
)

// Metadata is a flat attribute map. Keys are restricted to ASCII letters, digits and '_';
// values are arbitrary UTF-8 text.
type Metadata map[string]string

// FromContributor builds the attribute map for a contributor. The name is kept byte for byte; only
// a blank name falls back to the same literal the identifiers use. An empty message is omitted.
func FromContributor(c simpleupload.Contributor) Metadata {
	m := Metadata{KeyName: c.Name}
	if strings.TrimSpace(c.Name) == "" {
		m[KeyName] = Fallback
	}
	if c.Message != "" {
		m[KeyMessage] = c.Message
	}
	return m
}

// Validate rejects keys outside the key grammar and values that are not valid UTF-8.
func (m Metadata) Validate() error {
	for k, v := range m {
		if !validKey(k) {
			return &simpleupload.ValidationError{Field: "metadata key", Reason: fmt.Sprintf("%q must match [A-Za-z0-9_]+", k)}
		}
		if !utf8.ValidString(v) {
			return &simpleupload.ValidationError{Field: "metadata " + k, Reason: "is not valid UTF-8"}
		}
	}
	return nil
}

// Equal reports whether both maps hold the same attributes.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}
