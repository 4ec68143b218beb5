package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Codec names.
const (
	EncodingJSON = "json"
	EncodingPipe = "pipe"
)

// ErrMalformed is returned when an encoded attribute string cannot be decoded.
var ErrMalformed = errors.New("metadata: malformed encoding")

// Codec renders attributes into the single string value sent as the signed context parameter.
// Encode must be deterministic: the same attributes always produce the same bytes.
type Codec interface {
	Name() string
	Encode(m Metadata) (string, error)
	Decode(s string) (Metadata, error)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", EncodingJSON:
		return JSONCodec{}, nil
	case EncodingPipe:
		return PipeCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported metadata encoding %q (use %q or %q)", name, EncodingJSON, EncodingPipe)
	}
}

// Decode detects the codec from the encoded form. JSON objects start with '{', which PipeCodec
// never emits first because keys are restricted to [A-Za-z0-9_].
func Decode(s string) (Metadata, error) {
	if strings.HasPrefix(s, "{") {
		return JSONCodec{}.Decode(s)
	}
	return PipeCodec{}.Decode(s)
}

// Canonical is the one serialization used wherever attributes travel as structured data.
func Canonical(m Metadata) (string, error) {
	return JSONCodec{}.Encode(m)
}

// CanonicalizeJSON re-serializes a JSON object of string values into canonical form.
func CanonicalizeJSON(raw []byte) (string, error) {
	m, err := JSONCodec{}.Decode(string(raw))
	if err != nil {
		return "", err
	}
	return Canonical(m)
}

// JSONCodec encodes attributes as a compact JSON object with sorted keys. Quotes and control
// characters are escaped by JSON and '&', '<', '>' are written as \u escapes, so the encoded value
// never contains the '&' that separates signed parameters.
type JSONCodec struct{}

func (JSONCodec) Name() string { return EncodingJSON }

func (JSONCodec) Encode(m Metadata) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if m == nil {
		m = Metadata{}
	}
	// encoding/json writes map keys in sorted order with no insignificant whitespace.
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONCodec) Decode(s string) (Metadata, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var m map[string]string
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	return Metadata(m), nil
}

// PipeCodec encodes attributes in the store-native key=value|key=value form. Keys are sorted.
// In values '\', '|', '=' and '&' are escaped with a backslash, so a value can neither start a new
// pair nor break the signed parameter string, and decoding restores it byte for byte.
type PipeCodec struct{}

func (PipeCodec) Name() string { return EncodingPipe }

func (PipeCodec) Encode(m Metadata) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		escapeTo(&b, m[k])
	}
	return b.String(), nil
}

func (PipeCodec) Decode(s string) (Metadata, error) {
	m := Metadata{}
	if s == "" {
		return m, nil
	}

	var (
		key     string
		cur     bytes.Buffer
		haveKey bool
	)
	flush := func() error {
		if !haveKey {
			return fmt.Errorf("%w: pair %q has no '='", ErrMalformed, cur.String())
		}
		if _, dup := m[key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrMalformed, key)
		}
		m[key] = cur.String()
		cur.Reset()
		haveKey = false
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 == len(s) {
				return nil, fmt.Errorf("%w: dangling escape", ErrMalformed)
			}
			i++
			cur.WriteByte(s[i])
		case c == '=' && !haveKey:
			key = cur.String()
			if !validKey(key) {
				return nil, fmt.Errorf("%w: invalid key %q", ErrMalformed, key)
			}
			cur.Reset()
			haveKey = true
		case c == '|':
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}

func escapeTo(b *strings.Builder, v string) {
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\\', '|', '=', '&':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}
