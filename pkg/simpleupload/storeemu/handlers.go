package storeemu

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/metadata"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage"
)

// multipartMemory is how much of a submission is kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// Mount mounts the upload and asset routes on a chi router.
func (s *Server) Mount(r chi.Router) {
	r.Post("/v1_1/{identity}/{resourceType}/upload", s.HandleUpload)
	r.Get("/files/*", s.HandleFile)
}

// HandleUpload verifies and stores one signed submission.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity != s.identity {
		writeStoreError(w, r, http.StatusNotFound, fmt.Sprintf("Invalid cloud_name %s", identity))
		return
	}

	resourceType := chi.URLParam(r, "resourceType")
	switch resourceType {
	case simpleupload.ResourceAuto, simpleupload.ResourceImage, simpleupload.ResourceVideo, simpleupload.ResourceRaw:
	default:
		writeStoreError(w, r, http.StatusNotFound, fmt.Sprintf("Invalid resource type %s", resourceType))
		return
	}

	// leave headroom for the non-file fields
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStoreError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("File size too large. Maximum is %d.", s.maxFileSize))
			return
		}
		writeStoreError(w, r, http.StatusBadRequest, "Invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		writeStoreError(w, r, http.StatusUnauthorized, "Must supply api_key")
		return
	}
	if apiKey != s.apiKey {
		writeStoreError(w, r, http.StatusUnauthorized, fmt.Sprintf("Unknown API key %s", apiKey))
		return
	}

	params := signing.Params{}
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			params.Set(name, values[0])
		}
	}

	signature := r.FormValue("signature")
	if err := s.signer.Verify(params, signature); err != nil {
		status, message := verifyFailure(err, signature, params)
		s.logger.Warn("Rejected upload signature", "identity", identity, "error", err)
		writeStoreError(w, r, status, message)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeStoreError(w, r, http.StatusBadRequest, "Missing required parameter - file")
		return
	}
	defer file.Close()

	custom, err := decodeContext(params[simpleupload.ParamContext])
	if err != nil {
		writeStoreError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid context - %v", err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	kind := resourceKind(resourceType, contentType)

	folder := strings.Trim(params[simpleupload.ParamFolder], "/")
	assetID := s.newID()
	publicID := assetID
	if folder != "" {
		publicID = folder + "/" + assetID
	}

	if err := s.blobs.Upload(r.Context(), publicID, file, contentType); err != nil {
		s.logger.Error("Failed to store upload", "public_id", publicID, "error", err)
		writeStoreError(w, r, http.StatusInternalServerError, "General Error")
		return
	}

	assetURL, err := url.JoinPath(s.baseURL(r), "files", publicID)
	if err != nil {
		writeStoreError(w, r, http.StatusInternalServerError, "General Error")
		return
	}

	version, _ := strconv.ParseInt(params[simpleupload.ParamTimestamp], 10, 64)
	resp := simpleupload.StoreResponse{
		AssetID:          assetID,
		PublicID:         publicID,
		Version:          version,
		ResourceType:     kind,
		Format:           strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), "."),
		CreatedAt:        s.now().UTC(),
		Bytes:            header.Size,
		Tags:             splitTags(params[simpleupload.ParamTags]),
		AssetFolder:      folder,
		URL:              assetURL,
		SecureURL:        assetURL,
		OriginalFilename: strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)),
	}
	if len(custom) > 0 {
		resp.Context = &simpleupload.StoreContext{Custom: custom}
	}

	s.logger.Info("Stored upload", "public_id", publicID, "resource_type", kind, "bytes", header.Size)
	render.JSON(w, r, resp)
}

// HandleFile serves a stored asset.
func (s *Server) HandleFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeStoreError(w, r, http.StatusNotFound, "Resource not found")
		return
	}

	rc, meta, err := s.blobs.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeStoreError(w, r, http.StatusNotFound, "Resource not found")
			return
		}
		s.logger.Error("Failed to read asset", "key", key, "error", err)
		writeStoreError(w, r, http.StatusInternalServerError, "General Error")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("Asset copy error", "key", key, "error", err)
	}
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func verifyFailure(err error, signature string, params signing.Params) (int, string) {
	switch {
	case errors.Is(err, signing.ErrMissingSignature):
		return http.StatusUnauthorized, "Missing required parameter - signature"
	case errors.Is(err, signing.ErrMissingTimestamp):
		return http.StatusUnauthorized, "Missing required parameter - timestamp"
	case errors.Is(err, signing.ErrInvalidTimestamp):
		return http.StatusBadRequest, "Invalid timestamp"
	case errors.Is(err, signing.ErrExpired):
		return http.StatusBadRequest, fmt.Sprintf("Stale request - reported time is %s which is out of the allowed range", params[simpleupload.ParamTimestamp])
	case errors.Is(err, signing.ErrInvalidSignature):
		return http.StatusUnauthorized, fmt.Sprintf("Invalid Signature %s. String to sign - '%s'.", signature, params.Canonical())
	default:
		return http.StatusInternalServerError, "General Error"
	}
}

func decodeContext(encoded string) (map[string]string, error) {
	if encoded == "" {
		return nil, nil
	}
	m, err := metadata.Decode(encoded)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func resourceKind(requested, contentType string) string {
	if requested != simpleupload.ResourceAuto {
		return requested
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return simpleupload.ResourceRaw
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return simpleupload.ResourceImage
	case strings.HasPrefix(mediaType, "video/"), strings.HasPrefix(mediaType, "audio/"):
		return simpleupload.ResourceVideo
	default:
		return simpleupload.ResourceRaw
	}
}

func splitTags(tags string) []string {
	out := []string{}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func writeStoreError(w http.ResponseWriter, r *http.Request, status int, message string) {
	var resp simpleupload.StoreErrorResponse
	resp.Error.Message = message
	render.Status(r, status)
	render.JSON(w, r, resp)
}
