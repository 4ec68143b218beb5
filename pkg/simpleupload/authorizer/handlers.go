package authorizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/metadata"
)

const maxRequestBytes = 64 << 10

// Handlers exposes an Authorizer over HTTP.
type Handlers struct {
	authorizer *Authorizer
	tokenAuth  *jwtauth.JWTAuth
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithJWTSecret requires an HS256 bearer token signed with secret on every request.
// An empty secret leaves the endpoint open.
func WithJWTSecret(secret string) HandlerOption {
	return func(h *Handlers) {
		if secret == "" {
			return
		}
		h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
	}
}

// NewHandlers creates the HTTP surface of a.
func NewHandlers(a *Authorizer, opts ...HandlerOption) *Handlers {
	h := &Handlers{authorizer: a}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// signRequest mirrors simpleupload.AuthorizationRequest but accepts context either as the encoded
// string or as a JSON object of string values.
type signRequest struct {
	UploadPreset string          `json:"upload_preset"`
	Folder       string          `json:"folder"`
	Context      json.RawMessage `json:"context"`
	Tags         string          `json:"tags"`
	Timestamp    *int64          `json:"timestamp"`
}

// Routes returns the router for the signing endpoint. Only POST is accepted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	if h.tokenAuth != nil {
		r.Use(jwtauth.Verifier(h.tokenAuth))
		r.Use(jwtauth.Authenticator)
	}
	r.Post("/", h.HandleSign)
	r.MethodNotAllowed(h.HandleMethodNotAllowed)
	return r
}

// Mount mounts the signing endpoint at /api/sign.
func (h *Handlers) Mount(r chi.Router) {
	r.Mount("/api/sign", h.Routes())
}

// HandleSign answers POST {upload_preset, folder?, context?, tags?} with {signature, timestamp}.
func (h *Handlers) HandleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.HandleMethodNotAllowed(w, r)
		return
	}

	var body signRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil {
		h.authorizer.logger.ErrorContext(r.Context(), "Failed to decode sign request", "error", err)
		writeError(w, r, http.StatusBadRequest, simpleupload.CodeInvalidRequest, "request body must be a JSON object")
		return
	}

	encodedContext, err := contextValue(body.Context)
	if err != nil {
		h.authorizer.logger.ErrorContext(r.Context(), "Invalid context in sign request", "error", err)
		writeError(w, r, http.StatusBadRequest, simpleupload.CodeInvalidRequest, err.Error())
		return
	}

	token, err := h.authorizer.Authorize(r.Context(), simpleupload.AuthorizationRequest{
		UploadPreset: body.UploadPreset,
		Folder:       body.Folder,
		Context:      encodedContext,
		Tags:         body.Tags,
		Timestamp:    body.Timestamp,
	})
	if err != nil {
		if errors.Is(err, simpleupload.ErrConfiguration) {
			writeError(w, r, http.StatusInternalServerError, simpleupload.CodeConfiguration, "signing secret missing on server")
			return
		}
		h.authorizer.logger.ErrorContext(r.Context(), "Failed to authorize upload", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign request")
		return
	}

	render.JSON(w, r, token)
}

// HandleMethodNotAllowed rejects every verb but POST.
func (h *Handlers) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, r, http.StatusMethodNotAllowed, simpleupload.CodeMethodNotAllowed, "Method not allowed")
}

// contextValue returns the string to sign for the context field. A JSON object is re-serialized
// with the canonical metadata encoding, which the client must also use when submitting.
func contextValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		return metadata.CanonicalizeJSON(raw)
	default:
		return "", errors.New("context must be a string or an object of strings")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var resp simpleupload.ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	render.Status(r, status)
	render.JSON(w, r, resp)
}
