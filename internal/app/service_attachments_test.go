package app

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAttachmentsValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	_, cardID := env.createCard(t, user, "Trip")
	file := uploadPart{field: "files", filename: "a.txt", contentType: "text/plain", data: []byte("a")}

	t.Run("missing card id", func(t *testing.T) {
		rr := env.upload(t, "/api/attachments/upload", user.token, nil, file)
		requireErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("no files", func(t *testing.T) {
		rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID})
		requireErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("one oversize file rejects the whole upload", func(t *testing.T) {
		env.svc.cfg.MaxAttachmentBytes = 4
		defer func() { env.svc.cfg.MaxAttachmentBytes = 10 << 20 }()

		big := uploadPart{field: "files", filename: "big.bin", data: bytes.Repeat([]byte("x"), 5)}
		rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID}, file, big)
		payload := requireStatus(t, rr, http.StatusRequestEntityTooLarge)
		assert.Equal(t, "FILE_TOO_LARGE", payload["code"])
		assert.Empty(t, env.blobs.keys())
		assert.Empty(t, env.store.attachments)
	})

	t.Run("card owned by someone else", func(t *testing.T) {
		other := env.signUp(t, "sam@example.com")
		rr := env.upload(t, "/api/attachments/upload", other.token, map[string]string{"cardId": cardID}, file)
		requireErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
		assert.Empty(t, env.blobs.keys())
	})
}

func TestUploadAttachmentsStoresObjects(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	_, cardID := env.createCard(t, user, "Trip")

	rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID},
		uploadPart{field: "files", filename: "my file?.txt", contentType: "text/plain", data: []byte("hello")},
		uploadPart{field: "files", filename: "blob", data: []byte("raw")})
	payload := requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, true, payload["ok"])
	items := list(t, payload, "attachments")
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "my file?.txt", first["name"])
	assert.Equal(t, "text/plain", first["mime"])
	assert.EqualValues(t, 5, first["size"])
	assert.Equal(t, "application/octet-stream", items[1].(map[string]any)["mime"])

	keys := env.blobs.keys()
	require.Len(t, keys, 2)
	for _, key := range keys {
		assert.True(t, strings.HasPrefix(key, "cards/"+cardID+"/"), key)
	}
	var named string
	for _, key := range keys {
		if strings.HasSuffix(key, "-my file_.txt") {
			named = key
		}
	}
	require.NotEmpty(t, named, "keys=%v", keys)
	assert.Equal(t, "text/plain", env.blobs.objects[named].contentType)
}

func TestUploadRemovesObjectsWhenStorageFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	_, cardID := env.createCard(t, user, "Trip")
	env.blobs.putErr = errors.New("bucket unavailable")

	rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID},
		uploadPart{field: "files", filename: "a.txt", data: []byte("a")})
	requireErrorCode(t, rr, http.StatusInternalServerError, "SERVER_ERROR")
	assert.Empty(t, env.store.attachments)
}

func TestSignedAttachment(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	other := env.signUp(t, "sam@example.com")
	_, cardID := env.createCard(t, user, "Trip")
	rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID},
		uploadPart{field: "files", filename: "ticket.pdf", contentType: "application/pdf", data: []byte("pdf")})
	attachmentID := list(t, requireStatus(t, rr, http.StatusOK), "attachments")[0].(map[string]any)["id"].(string)

	payload := requireStatus(t, env.do(t, http.MethodGet, "/api/attachments/"+attachmentID+"/signed", user.token, nil), http.StatusOK)
	assert.Equal(t, true, payload["ok"])
	assert.Contains(t, payload["signedUrl"], "expires=120")
	meta := object(t, payload, "meta")
	assert.Equal(t, "ticket.pdf", meta["name"])
	assert.Equal(t, "application/pdf", meta["mime"])
	assert.True(t, strings.HasPrefix(meta["url"].(string), "cards/"+cardID+"/"))

	requireErrorCode(t, env.do(t, http.MethodGet, "/api/attachments/"+attachmentID+"/signed", other.token, nil), http.StatusNotFound, "NOT_FOUND")

	env.blobs.presignErr = errors.New("signing key missing")
	requireErrorCode(t, env.do(t, http.MethodGet, "/api/attachments/"+attachmentID+"/signed", user.token, nil),
		http.StatusInternalServerError, "STORAGE_ERROR")
}

func TestDeleteAttachmentRemovesObjectFirst(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	_, cardID := env.createCard(t, user, "Trip")
	rr := env.upload(t, "/api/attachments/upload", user.token, map[string]string{"cardId": cardID},
		uploadPart{field: "files", filename: "ticket.pdf", data: []byte("pdf")})
	attachmentID := list(t, requireStatus(t, rr, http.StatusOK), "attachments")[0].(map[string]any)["id"].(string)

	env.blobs.removeErr = errors.New("storage down")
	requireErrorCode(t, env.do(t, http.MethodDelete, "/api/attachments/"+attachmentID, user.token, nil),
		http.StatusInternalServerError, "STORAGE_ERROR")
	assert.Contains(t, env.store.attachments, attachmentID)

	env.blobs.removeErr = nil
	requireStatus(t, env.do(t, http.MethodDelete, "/api/attachments/"+attachmentID, user.token, nil), http.StatusOK)
	assert.NotContains(t, env.store.attachments, attachmentID)
	assert.Empty(t, env.blobs.keys())
}

func TestNoteImages(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "riley@example.com")
	other := env.signUp(t, "sam@example.com")
	png := []byte("\x89PNG\r\n\x1a\nfake")

	t.Run("unsupported type", func(t *testing.T) {
		rr := env.upload(t, "/api/notes/images", user.token, nil,
			uploadPart{field: "file", filename: "notes.txt", contentType: "text/plain", data: []byte("x")})
		requireErrorCode(t, rr, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")
	})

	t.Run("too large", func(t *testing.T) {
		env.svc.cfg.MaxImageBytes = 3
		defer func() { env.svc.cfg.MaxImageBytes = 8 << 20 }()
		rr := env.upload(t, "/api/notes/images", user.token, nil,
			uploadPart{field: "file", filename: "a.png", contentType: "image/png", data: png})
		requireErrorCode(t, rr, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")
	})

	rr := env.upload(t, "/api/notes/images", user.token, nil,
		uploadPart{field: "file", filename: "a.png", contentType: "image/png", data: png})
	payload := requireStatus(t, rr, http.StatusOK)
	path := payload["path"].(string)
	assert.True(t, strings.HasPrefix(path, "notes/"+user.id+"/"), path)
	assert.True(t, strings.HasSuffix(path, ".png"), path)
	assert.Equal(t, "/api/notes/images?path="+url.QueryEscape(path), payload["url"])

	t.Run("owner reads the image", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, payload["url"].(string), user.token, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, "private, max-age=31536000, immutable", rr.Header().Get("Cache-Control"))
		assert.Equal(t, png, rr.Body.Bytes())
	})

	t.Run("empty path", func(t *testing.T) {
		requireErrorCode(t, env.do(t, http.MethodGet, "/api/notes/images?path=", user.token, nil), http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("another user's path", func(t *testing.T) {
		requireErrorCode(t, env.do(t, http.MethodGet, payload["url"].(string), other.token, nil), http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("traversal out of the prefix", func(t *testing.T) {
		escaped := url.QueryEscape("notes/" + user.id + "/../" + other.id + "/x.png")
		requireErrorCode(t, env.do(t, http.MethodGet, "/api/notes/images?path="+escaped, user.token, nil), http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("missing object", func(t *testing.T) {
		escaped := url.QueryEscape("notes/" + user.id + "/missing.png")
		requireErrorCode(t, env.do(t, http.MethodGet, "/api/notes/images?path="+escaped, user.token, nil), http.StatusNotFound, "NOT_FOUND")
	})
}
