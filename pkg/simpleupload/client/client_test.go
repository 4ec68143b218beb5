package client

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/authorizer"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/metadata"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage/memory"
	"github.com/tendant/simple-upload/pkg/simpleupload/storeemu"
)

const testSecret = "shared-secret"

// testEnv runs a real authorizer and store emulator and counts the requests each one receives.
type testEnv struct {
	cfg         *config.Config
	blobs       *memory.Backend
	authCalls   atomic.Int32
	storeCalls  atomic.Int32
	storeFilter func(n int32, w http.ResponseWriter, r *http.Request) bool
}

func setupEnv(t *testing.T, authorizerSecret string, opts ...config.Option) *testEnv {
	t.Helper()
	env := &testEnv{blobs: memory.New()}

	storeCfg, err := config.Load(config.WithStore("demo", "123456", "memories"), config.WithSecret(testSecret))
	require.NoError(t, err)
	store, err := storeemu.New(storeCfg, env.blobs)
	require.NoError(t, err)
	storeRouter := chi.NewRouter()
	store.Mount(storeRouter)
	storeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := env.storeCalls.Add(1)
		if env.storeFilter != nil && env.storeFilter(n, w, r) {
			return
		}
		storeRouter.ServeHTTP(w, r)
	}))
	t.Cleanup(storeSrv.Close)

	authCfg, err := config.Load(config.WithStore("demo", "123456", "memories"), config.WithSecret(authorizerSecret))
	require.NoError(t, err)
	authRouter := chi.NewRouter()
	authorizer.NewHandlers(authorizer.New(authCfg)).Mount(authRouter)
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.authCalls.Add(1)
		authRouter.ServeHTTP(w, r)
	}))
	t.Cleanup(authSrv.Close)

	all := append([]config.Option{
		config.WithStore("demo", "123456", "memories"),
		config.WithEndpoints(storeSrv.URL, authSrv.URL+"/api/sign"),
	}, opts...)
	env.cfg, err = config.Load(all...)
	require.NoError(t, err)
	return env
}

func image(name string, size int) simpleupload.File {
	return simpleupload.File{
		Name:        name,
		Size:        int64(size),
		ContentType: "image/jpeg",
		Body:        bytes.NewReader(bytes.Repeat([]byte{0xff}, size)),
	}
}

func TestUpload_UnicodeNameEmptyMessage(t *testing.T) {
	env := setupEnv(t, testSecret)
	c := New(env.cfg)

	result, err := c.Upload(t.Context(), image("anı.jpg", 2<<20), "Ayşe", "")
	require.NoError(t, err)

	assert.Equal(t, "Ayşe", result.DisplayName())
	assert.Empty(t, result.DisplayMessage())
	assert.NotContains(t, result.Metadata, metadata.KeyMessage)
	assert.Equal(t, simpleupload.ResourceImage, result.ResourceKind)
	assert.Equal(t, "uploads/Ayşe", result.Folder)
	assert.Equal(t, []string{"Ayşe"}, result.Tags)
	assert.Equal(t, int64(2<<20), result.Bytes)
	assert.True(t, strings.HasPrefix(result.ResourceID, "uploads/Ayşe/"))
	assert.NotEmpty(t, result.URL)
	assert.Equal(t, 1, env.blobs.Len())
}

func TestUpload_EmptyNameUsesGuest(t *testing.T) {
	env := setupEnv(t, testSecret)
	c := New(env.cfg)

	result, err := c.Upload(t.Context(), image("a.jpg", 16), "   ", "merhaba")
	require.NoError(t, err)

	assert.Equal(t, "uploads/guest", result.Folder)
	assert.Equal(t, []string{"guest"}, result.Tags)
	assert.Equal(t, "guest", result.DisplayName())
	assert.Equal(t, "merhaba", result.DisplayMessage())
}

func TestUpload_SurroundingWhitespaceRoundTrips(t *testing.T) {
	for _, encoding := range []string{metadata.EncodingJSON, metadata.EncodingPipe} {
		t.Run(encoding, func(t *testing.T) {
			env := setupEnv(t, testSecret, config.WithMetadataEncoding(encoding))
			c := New(env.cfg)

			result, err := c.Upload(t.Context(), image("a.jpg", 16), "  Ayşe ", " selam\n")
			require.NoError(t, err)

			assert.Equal(t, "  Ayşe ", result.DisplayName())
			assert.Equal(t, " selam\n", result.DisplayMessage())
			assert.Equal(t, "uploads/Ayşe", result.Folder)
			assert.Equal(t, []string{"Ayşe"}, result.Tags)
		})
	}
}

func TestUpload_DelimitersSurviveBothCodecs(t *testing.T) {
	for _, encoding := range []string{metadata.EncodingJSON, metadata.EncodingPipe} {
		t.Run(encoding, func(t *testing.T) {
			env := setupEnv(t, testSecret, config.WithMetadataEncoding(encoding))
			c := New(env.cfg)

			name := `Ali | Veli = "x"`
			message := "a|b=c&d \\ son ✓"
			result, err := c.Upload(t.Context(), image("a.jpg", 16), name, message)
			require.NoError(t, err)

			assert.Equal(t, name, result.DisplayName())
			assert.Equal(t, message, result.DisplayMessage())
			assert.Equal(t, "uploads/Ali_Veli_x", result.Folder)
		})
	}
}

func TestUploadBatch_SecondFileRejected(t *testing.T) {
	env := setupEnv(t, testSecret)
	env.storeFilter = func(n int32, w http.ResponseWriter, r *http.Request) bool {
		if n != 2 {
			return false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid image file"}}`))
		return true
	}

	var seen []State
	c := New(env.cfg, WithStateObserver(func(item Item) {
		seen = append(seen, item.State)
	}))

	files := []simpleupload.File{image("one.jpg", 16), image("two.jpg", 16), image("three.jpg", 16)}
	batch, err := c.UploadBatch(t.Context(), files, "Ayşe", "")
	require.Error(t, err)

	assert.ErrorIs(t, err, simpleupload.ErrUpload)
	assert.NotErrorIs(t, err, simpleupload.ErrAuthorization)

	var fileErr *simpleupload.FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, 1, fileErr.Index)
	assert.Equal(t, "two.jpg", fileErr.Name)

	var storeErr *simpleupload.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, http.StatusBadRequest, storeErr.StatusCode)
	assert.Equal(t, "Invalid image file", storeErr.Message)

	assert.Nil(t, batch.Results())
	outcomes := batch.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, StateDone, outcomes[0].State)
	assert.Equal(t, StateFailed, outcomes[1].State)
	assert.Equal(t, StatePending, batch.Items[2].State)

	assert.Equal(t, int32(2), env.authCalls.Load())
	assert.Equal(t, int32(2), env.storeCalls.Load())
	assert.Equal(t, []State{
		StateAuthorizing, StateSubmitting, StateDone,
		StateAuthorizing, StateSubmitting, StateFailed,
	}, seen)
}

func TestUploadBatch_AllFilesDone(t *testing.T) {
	env := setupEnv(t, testSecret)
	c := New(env.cfg)

	files := []simpleupload.File{image("one.jpg", 16), image("two.jpg", 32)}
	batch, err := c.UploadBatch(t.Context(), files, "Mehmet", "ikisi de")
	require.NoError(t, err)
	require.NoError(t, batch.Err())

	results := batch.Results()
	require.Len(t, results, 2)
	assert.Equal(t, int64(16), results[0].Bytes)
	assert.Equal(t, int64(32), results[1].Bytes)
	assert.Len(t, batch.Outcomes(), 2)
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, int32(2), env.authCalls.Load())
}

func TestUpload_SecretMissingOnAuthorizer(t *testing.T) {
	env := setupEnv(t, "")
	c := New(env.cfg)

	result, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")
	require.Error(t, err)
	assert.Nil(t, result)

	assert.ErrorIs(t, err, simpleupload.ErrConfiguration)
	assert.ErrorIs(t, err, simpleupload.ErrAuthorization)

	var authErr *simpleupload.AuthorizerError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusInternalServerError, authErr.StatusCode)
	assert.Equal(t, simpleupload.CodeConfiguration, authErr.Code)

	assert.Equal(t, int32(1), env.authCalls.Load())
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUpload_AuthorizerRefusesVerb(t *testing.T) {
	env := setupEnv(t, testSecret)

	// an endpoint that answers every POST the way the signing endpoint answers other verbs
	authCfg, err := config.Load(config.WithStore("demo", "123456", "memories"), config.WithSecret(testSecret))
	require.NoError(t, err)
	handlers := authorizer.NewHandlers(authorizer.New(authCfg))
	router := chi.NewRouter()
	router.Post("/api/sign", handlers.HandleMethodNotAllowed)
	refusing := httptest.NewServer(router)
	t.Cleanup(refusing.Close)

	cfg := *env.cfg
	cfg.AuthorizerURL = refusing.URL + "/api/sign"
	c := New(&cfg)

	_, err = c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")

	assert.ErrorIs(t, err, simpleupload.ErrMethodNotAllowed)
	assert.ErrorIs(t, err, simpleupload.ErrAuthorization)
	assert.NotErrorIs(t, err, simpleupload.ErrConfiguration)

	var authErr *simpleupload.AuthorizerError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusMethodNotAllowed, authErr.StatusCode)
	assert.Equal(t, simpleupload.CodeMethodNotAllowed, authErr.Code)
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUpload_MissingClientConfig(t *testing.T) {
	env := setupEnv(t, testSecret)
	cfg := *env.cfg
	cfg.UploadPreset = ""
	c := New(&cfg)

	_, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")

	var cfgErr *simpleupload.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "upload preset", cfgErr.Field)
	assert.Equal(t, int32(0), env.authCalls.Load())
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUploadBatch_Validation(t *testing.T) {
	env := setupEnv(t, testSecret, config.WithMaxFileSizeMB(1))
	c := New(env.cfg)

	tests := []struct {
		name  string
		files []simpleupload.File
	}{
		{"no files", nil},
		{"second file too large", []simpleupload.File{image("a.jpg", 16), image("big.jpg", 2<<20)}},
		{"missing body", []simpleupload.File{{Name: "empty.jpg"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UploadBatch(t.Context(), tt.files, "Ayşe", "")
			assert.ErrorIs(t, err, simpleupload.ErrValidation)
		})
	}

	assert.Equal(t, int32(0), env.authCalls.Load())
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUpload_UnderstatedSizeIsCaught(t *testing.T) {
	env := setupEnv(t, testSecret, config.WithMaxFileSizeMB(1))
	c := New(env.cfg)

	f := image("liar.jpg", 2<<20)
	f.Size = 10
	_, err := c.Upload(t.Context(), f, "Ayşe", "")

	assert.ErrorIs(t, err, simpleupload.ErrValidation)
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUpload_SubmitsExactlyTheSignedSet(t *testing.T) {
	env := setupEnv(t, testSecret)
	var fields []string
	env.storeFilter = func(_ int32, _ http.ResponseWriter, r *http.Request) bool {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return false
		}
		for name := range r.MultipartForm.Value {
			fields = append(fields, name)
		}
		for name := range r.MultipartForm.File {
			fields = append(fields, name)
		}
		return false
	}
	c := New(env.cfg)

	_, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "selam")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"api_key", "signature", "timestamp", "context", "folder", "tags", "upload_preset", "file",
	}, fields)
}

func TestUpload_AuthorizerTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	env := setupEnv(t, testSecret, config.WithRequestTimeout(50*time.Millisecond))
	cfg := *env.cfg
	cfg.AuthorizerURL = slow.URL
	c := New(&cfg)

	_, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")

	assert.ErrorIs(t, err, simpleupload.ErrAuthorization)
	assert.NotErrorIs(t, err, simpleupload.ErrConfiguration)
	assert.Equal(t, int32(0), env.storeCalls.Load())
}

func TestUpload_StoreUnreachable(t *testing.T) {
	env := setupEnv(t, testSecret)
	cfg := *env.cfg
	cfg.StoreURL = "http://127.0.0.1:1"
	c := New(&cfg)

	_, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")

	assert.ErrorIs(t, err, simpleupload.ErrUpload)
	var storeErr *simpleupload.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Zero(t, storeErr.StatusCode)
}

func TestUpload_ReportsProgress(t *testing.T) {
	env := setupEnv(t, testSecret)
	var last atomic.Int64
	c := New(env.cfg, WithProgress(func(n int64) { last.Store(n) }))

	_, err := c.Upload(t.Context(), image("a.jpg", 4096), "Ayşe", "")
	require.NoError(t, err)

	// the multipart envelope is counted too
	assert.Greater(t, last.Load(), int64(4096))
}

func TestParams(t *testing.T) {
	cfg, err := config.Load(config.WithStore("demo", "123456", "memories"), config.WithMetadataEncoding(metadata.EncodingPipe))
	require.NoError(t, err)
	c := New(cfg)

	params, err := c.Params(simpleupload.Contributor{Name: " Ayşe  Yılmaz ", Message: "a|b"})
	require.NoError(t, err)

	assert.Equal(t, `message=a\|b|name= Ayşe  Yılmaz `, params["context"])
	assert.Equal(t, "uploads/Ayşe_Yılmaz", params["folder"])
	assert.Equal(t, "Ayşe_Yılmaz", params["tags"])
	assert.Equal(t, "memories", params["upload_preset"])
	assert.NotContains(t, params, "timestamp")
}

func TestUpload_LogsAuthorizationIssueTime(t *testing.T) {
	env := setupEnv(t, testSecret)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(env.cfg, WithLogger(logger))

	_, err := c.Upload(t.Context(), image("a.jpg", 16), "Ayşe", "")
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "Authorization received")
	assert.Contains(t, logs.String(), "issued_at=")
}
