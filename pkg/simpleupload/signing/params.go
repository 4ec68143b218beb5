package signing

import (
	"strconv"
	"strings"

	"github.com/tendant/simple-upload/pkg/simpleupload"
	"golang.org/x/exp/slices"
)

// unsignedParams are submitted to the store but never part of the string to sign.
var unsignedParams = map[string]bool{
	"file":          true,
	"api_key":       true,
	"signature":     true,
	"resource_type": true,
	"cloud_name":    true,
}

// Params is a candidate parameter set. Empty values are treated as absent.
type Params map[string]string

// FromRequest builds the parameter set the authorizer signs for a client request.
// The client-declared timestamp is dropped.
func FromRequest(req simpleupload.AuthorizationRequest) Params {
	p := Params{}
	p.Set(simpleupload.ParamContext, req.Context)
	p.Set(simpleupload.ParamFolder, req.Folder)
	p.Set(simpleupload.ParamTags, req.Tags)
	p.Set(simpleupload.ParamUploadPreset, req.UploadPreset)
	return p
}

// Set stores value under name, or removes name when value is empty.
func (p Params) Set(name, value string) {
	if value == "" {
		delete(p, name)
		return
	}
	p[name] = value
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the signed parameter names in canonical order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k, v := range p {
		if v == "" || unsignedParams[k] {
			continue
		}
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Canonical returns the string to sign: signed names in byte order, joined as name=value with &.
func (p Params) Canonical() string {
	var b strings.Builder
	for i, name := range p.Names() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(p[name])
	}
	return b.String()
}

// Timestamp parses the timestamp parameter.
func (p Params) Timestamp() (int64, error) {
	raw, ok := p[simpleupload.ParamTimestamp]
	if !ok || raw == "" {
		return 0, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}
	return ts, nil
}
