package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"checklist/api/internal/authpw"
	"checklist/api/internal/config"
	"checklist/api/internal/metrics"
	"checklist/api/internal/revisions"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	svc      *Service
	store    *memStore
	blobs    *fakeBlobs
	search   *fakeSearch
	mailer   *fakeMailer
	exporter *fakeExporter
	metrics  *metrics.Metrics
	handler  http.Handler
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		AccessTTL:          time.Hour,
		RefreshTTL:         24 * time.Hour,
		PublicURL:          "https://checklist.test/",
		MaxAttachmentBytes: 10 << 20,
		MaxImageBytes:      8 << 20,
		SignedURLTTL:       120 * time.Second,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newMemStore(),
		blobs:    newFakeBlobs(),
		search:   newFakeSearch(),
		mailer:   &fakeMailer{},
		exporter: &fakeExporter{},
		metrics:  metrics.New(),
	}
	env.svc = New(testConfig(), Dependencies{
		Store:     env.store,
		Sessions:  env.store,
		Passwords: authpw.NewService(env.store, bcrypt.MinCost),
		Blobs:     env.blobs,
		Mailer:    env.mailer,
		Search:    env.search,
		Revisions: revisions.New(t.TempDir()),
		Exporter:  env.exporter,
	})
	env.handler = NewHTTPServer(env.svc, "*").WithMetrics(env.metrics).Handler()
	return env
}

type testUser struct {
	id           string
	email        string
	token        string
	refreshToken string
}

// signUp registers and signs in a user through the service.
func (env *testEnv) signUp(t *testing.T, email string) testUser {
	t.Helper()
	ctx := context.Background()
	_, err := env.svc.SignUp(ctx, email, "password123", "Riley")
	require.NoError(t, err)
	session, err := env.svc.SignIn(ctx, email, "password123")
	require.NoError(t, err)
	return testUser{id: session.UserID, email: email, token: session.Token, refreshToken: session.RefreshToken}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

type uploadPart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func (env *testEnv) upload(t *testing.T, path, token string, fields map[string]string, parts ...uploadPart) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for _, part := range parts {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.field, part.filename))
		if part.contentType != "" {
			header.Set("Content-Type", part.contentType)
		}
		w, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = w.Write(part.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "body=%s", rr.Body.String())
	return payload
}

func requireStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	require.Equal(t, status, rr.Code, "body=%s", rr.Body.String())
	if rr.Body.Len() == 0 {
		return nil
	}
	return decodeMap(t, rr)
}

func requireErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	payload := requireStatus(t, rr, status)
	require.Equal(t, code, payload["code"])
}

// object walks a decoded JSON payload by keys.
func object(t *testing.T, payload map[string]any, key string) map[string]any {
	t.Helper()
	value, ok := payload[key].(map[string]any)
	require.True(t, ok, "%s is not an object in %v", key, payload)
	return value
}

func list(t *testing.T, payload map[string]any, key string) []any {
	t.Helper()
	value, ok := payload[key].([]any)
	require.True(t, ok, "%s is not a list in %v", key, payload)
	return value
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}
