package authorizer

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

func setupHandlersTest(t *testing.T, secret string, opts ...HandlerOption) http.Handler {
	t.Helper()
	router := chi.NewRouter()
	NewHandlers(newTestAuthorizer(t, secret, 1700000000), opts...).Mount(router)
	return router
}

func postJSON(t *testing.T, router http.Handler, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/sign", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleSign_Success(t *testing.T) {
	router := setupHandlersTest(t, testSecret)

	w := postJSON(t, router, map[string]any{
		"upload_preset": "memories",
		"folder":        "uploads/guest",
		"context":       `{"name":"guest"}`,
		"tags":          "guest",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var token simpleupload.AuthorizationToken
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.Equal(t, int64(1700000000), token.Timestamp)
	assert.Len(t, token.Signature, 40)
}

func TestHandleSign_StructuredContextIsCanonicalized(t *testing.T) {
	router := setupHandlersTest(t, testSecret)

	asString := postJSON(t, router, map[string]any{
		"upload_preset": "memories",
		"context":       `{"message":"hi","name":"Ayşe"}`,
	}, nil)
	asObject := postJSON(t, router, map[string]any{
		"upload_preset": "memories",
		"context":       map[string]string{"name": "Ayşe", "message": "hi"},
	}, nil)

	require.Equal(t, http.StatusOK, asString.Code)
	require.Equal(t, http.StatusOK, asObject.Code)
	assert.JSONEq(t, asString.Body.String(), asObject.Body.String())
}

func TestHandleSign_ClientTimestampIgnored(t *testing.T) {
	router := setupHandlersTest(t, testSecret)

	w := postJSON(t, router, map[string]any{"upload_preset": "memories", "timestamp": 12345}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var token simpleupload.AuthorizationToken
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.Equal(t, int64(1700000000), token.Timestamp)

	expected, err := signing.New(signing.WithSecretKey(testSecret)).Sign(signing.Params{
		"timestamp":     "1700000000",
		"upload_preset": "memories",
	})
	require.NoError(t, err)
	assert.Equal(t, expected, token.Signature)
}

func TestHandleSign_MissingSecret(t *testing.T) {
	router := setupHandlersTest(t, "")

	w := postJSON(t, router, map[string]any{"upload_preset": "memories"}, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), simpleupload.CodeConfiguration)
	assert.NotContains(t, w.Body.String(), "signature\":")
}

func TestHandleSign_MethodNotAllowed(t *testing.T) {
	router := setupHandlersTest(t, testSecret)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/sign", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
			assert.Contains(t, w.Body.String(), simpleupload.CodeMethodNotAllowed)
		})
	}
}

func TestHandleSign_BadRequests(t *testing.T) {
	router := setupHandlersTest(t, testSecret)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "upload_preset=memories"},
		{"numeric context", `{"upload_preset":"memories","context":42}`},
		{"nested context", `{"upload_preset":"memories","context":{"name":{"first":"a"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sign", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), simpleupload.CodeInvalidRequest)
		})
	}
}

func TestHandleSign_JWTRequired(t *testing.T) {
	const jwtSecret = "jwt-secret"
	router := setupHandlersTest(t, testSecret, WithJWTSecret(jwtSecret))

	w := postJSON(t, router, map[string]any{"upload_preset": "memories"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, token, err := jwtauth.New("HS256", []byte(jwtSecret), nil).Encode(map[string]interface{}{"sub": "uploader"})
	require.NoError(t, err)

	w = postJSON(t, router, map[string]any{"upload_preset": "memories"}, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleSign_LogsThroughAuthorizerLogger(t *testing.T) {
	var logs bytes.Buffer
	cfg, err := config.Load(config.WithStore("demo", "123456", "memories"), config.WithSecret(testSecret))
	require.NoError(t, err)
	a := New(cfg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	router := chi.NewRouter()
	NewHandlers(a).Mount(router)

	req := httptest.NewRequest(http.MethodPost, "/api/sign", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, logs.String(), "Failed to decode sign request")
}
