package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checklist/api/internal/auth"
	"checklist/api/internal/metrics"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is held in memory before
// the rest spills to temporary files.
const multipartMemory = 32 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: service.log}
}

// WithMetrics records request metrics and serves them on /metrics.
func (s *HTTPServer) WithMetrics(m *metrics.Metrics) *HTTPServer {
	s.metrics = m
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Post("/api/auth/signup", s.handleAuthSignUp)
	r.Post("/api/auth/signin", s.handleAuthSignIn)
	r.Post("/api/auth/refresh", s.handleAuthRefresh)
	r.Post("/api/auth/logout", s.handleAuthLogout)
	r.Post("/api/auth/reset-password/request", s.handleAuthRequestReset)
	r.Post("/api/auth/reset-password", s.handleAuthResetPassword)
	r.Get("/api/session", s.handleSession)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)

		r.Get("/api/boards", s.handleListBoards)
		r.Post("/api/boards", s.handleCreateBoard)
		r.Get("/api/boards/default", s.handleDefaultBoard)
		r.Get("/api/boards/{boardID}", s.handleGetBoard)
		r.Put("/api/boards/{boardID}", s.handleRenameBoard)
		r.Delete("/api/boards/{boardID}", s.handleDeleteBoard)
		r.Get("/api/boards/{boardID}/export", s.handleExportBoard)
		r.Post("/api/boards/{boardID}/cards", s.handleCreateCard)
		r.Put("/api/boards/{boardID}/cards/order", s.handleReorderCards)

		r.Put("/api/cards/{cardID}", s.handleUpdateCard)
		r.Delete("/api/cards/{cardID}", s.handleDeleteCard)
		r.Post("/api/cards/{cardID}/tags", s.handleAddTag)
		r.Delete("/api/cards/{cardID}/tags", s.handleRemoveTag)
		r.Post("/api/cards/{cardID}/notes", s.handleAddNote)

		r.Post("/api/checklist/{noteID}/toggle", s.handleToggleNote)
		r.Put("/api/checklist/{noteID}", s.handleEditNote)
		r.Delete("/api/checklist/{noteID}", s.handleRemoveNote)

		r.Post("/api/attachments/upload", s.handleUploadAttachments)
		r.Get("/api/attachments/{attachmentID}/signed", s.handleSignedAttachment)
		r.Delete("/api/attachments/{attachmentID}", s.handleDeleteAttachment)

		r.Get("/api/notes", s.handleWorkspace)
		r.Post("/api/notes", s.handleCreateNote)
		r.Put("/api/notes/order", s.handleReorderNotes)
		r.Post("/api/notes/images", s.handleUploadImage)
		r.Get("/api/notes/images", s.handleGetImage)
		r.Get("/api/notes/{noteID}", s.handleGetNote)
		r.Put("/api/notes/{noteID}", s.handleUpdateNote)
		r.Delete("/api/notes/{noteID}", s.handleDeleteNote)
		r.Post("/api/notes/{noteID}/move", s.handleMoveNote)
		r.Get("/api/notes/{noteID}/revisions", s.handleNoteRevisions)
		r.Get("/api/notes/{noteID}/revisions/{hash}", s.handleNoteRevision)
		r.Get("/api/notes/{noteID}/export", s.handleExportNote)

		r.Post("/api/folders", s.handleCreateFolder)
		r.Put("/api/folders/{folderID}", s.handleRenameFolder)
		r.Delete("/api/folders/{folderID}", s.handleDeleteFolder)

		r.Get("/api/search", s.handleSearch)
	})
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, ready := s.service.Readiness(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !readBody(w, r, &body) {
		return
	}
	payload, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readBody(w, r, &body) {
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !readBody(w, r, &body) {
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !readBody(w, r, &body) {
		return
	}
	var session Session
	if token := bearerToken(r); token != "" {
		session, _ = s.service.SessionFromToken(r.Context(), token)
	}
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !readBody(w, r, &body) {
		return
	}
	payload, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		// The answer must not reveal whether the account exists.
		s.log.Error("request password reset", zap.Error(err))
		payload = map[string]any{"message": "If an account exists, a reset email has been sent"}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !readBody(w, r, &body) {
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	anonymous := map[string]any{"authenticated": false, "userId": nil}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"email":         session.Email,
		"name":          session.Name,
	})
}

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.ListBoards(r.Context(), currentSession(r).UserID))
}

func (s *HTTPServer) handleDefaultBoard(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DefaultBoard(r.Context(), currentSession(r).UserID))
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.GetBoard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "boardID")))
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respondCreated(w, r)(s.service.CreateBoard(r.Context(), currentSession(r).UserID, body.Name))
}

func (s *HTTPServer) handleRenameBoard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.RenameBoard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "boardID"), body.Name))
}

func (s *HTTPServer) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DeleteBoard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "boardID")))
}

func (s *HTTPServer) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respondCreated(w, r)(s.service.CreateCard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "boardID"), body.Title))
}

func (s *HTTPServer) handleReorderCards(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderedIDs []string `json:"orderedIds"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.ReorderCards(r.Context(), currentSession(r).UserID, chi.URLParam(r, "boardID"), body.OrderedIDs))
}

func (s *HTTPServer) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var body CardInput
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.UpdateCard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "cardID"), body))
}

func (s *HTTPServer) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DeleteCard(r.Context(), currentSession(r).UserID, chi.URLParam(r, "cardID")))
}

func (s *HTTPServer) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.AddTag(r.Context(), currentSession(r).UserID, chi.URLParam(r, "cardID"), body.Tag))
}

// handleRemoveTag reads the tag from the JSON body, or from ?tag= when the
// body is empty. Tags may contain any character, so they never travel as a
// path segment.
func (s *HTTPServer) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if !readBody(w, r, &body) {
		return
	}
	if body.Tag == "" {
		body.Tag = r.URL.Query().Get("tag")
	}
	s.respond(w, r)(s.service.RemoveTag(r.Context(), currentSession(r).UserID, chi.URLParam(r, "cardID"), body.Tag))
}

func (s *HTTPServer) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respondCreated(w, r)(s.service.AddNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "cardID"), body.Text))
}

func (s *HTTPServer) handleToggleNote(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.ToggleNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID")))
}

func (s *HTTPServer) handleEditNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.EditNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID"), body.Text))
}

func (s *HTTPServer) handleRemoveNote(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.RemoveNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID")))
}

func (s *HTTPServer) handleUploadAttachments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "multipart form required", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := fileUploads(r.MultipartForm.File["files"])
	s.respond(w, r)(s.service.UploadAttachments(r.Context(), currentSession(r).UserID, r.FormValue("cardId"), files))
}

func (s *HTTPServer) handleSignedAttachment(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.SignedAttachment(r.Context(), currentSession(r).UserID, chi.URLParam(r, "attachmentID")))
}

func (s *HTTPServer) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DeleteAttachment(r.Context(), currentSession(r).UserID, chi.URLParam(r, "attachmentID")))
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "multipart form required", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := fileUploads(r.MultipartForm.File["file"])
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "file is required", nil)
		return
	}
	s.respond(w, r)(s.service.UploadImage(r.Context(), currentSession(r).UserID, files[0]))
}

func (s *HTTPServer) handleGetImage(w http.ResponseWriter, r *http.Request) {
	object, err := s.service.Image(r.Context(), currentSession(r).UserID, r.URL.Query().Get("path"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer object.Body.Close()

	header := w.Header()
	header.Set("Content-Type", object.ContentType)
	header.Set("Cache-Control", ImageCacheControl)
	if object.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, object.Body); err != nil {
		s.log.Warn("stream note image", zap.Error(err))
	}
}

func (s *HTTPServer) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.Workspace(r.Context(), currentSession(r).UserID))
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID *string `json:"folderId"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respondCreated(w, r)(s.service.CreateNote(r.Context(), currentSession(r).UserID, body.FolderID))
}

func (s *HTTPServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.GetNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID")))
}

func (s *HTTPServer) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var body NoteInput
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.UpdateNote(r.Context(), currentSession(r), chi.URLParam(r, "noteID"), body))
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DeleteNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID")))
}

func (s *HTTPServer) handleMoveNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID *string `json:"folderId"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.MoveNote(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID"), body.FolderID))
}

func (s *HTTPServer) handleReorderNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID   *string  `json:"folderId"`
		OrderedIDs []string `json:"orderedIds"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.ReorderNotes(r.Context(), currentSession(r).UserID, body.FolderID, body.OrderedIDs))
}

func (s *HTTPServer) handleNoteRevisions(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.NoteRevisions(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID")))
}

func (s *HTTPServer) handleNoteRevision(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.NoteRevision(r.Context(), currentSession(r).UserID, chi.URLParam(r, "noteID"), chi.URLParam(r, "hash")))
}

func (s *HTTPServer) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respondCreated(w, r)(s.service.CreateFolder(r.Context(), currentSession(r).UserID, body.Name))
}

func (s *HTTPServer) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !readBody(w, r, &body) {
		return
	}
	s.respond(w, r)(s.service.RenameFolder(r.Context(), currentSession(r).UserID, chi.URLParam(r, "folderID"), body.Name))
}

func (s *HTTPServer) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.service.DeleteFolder(r.Context(), currentSession(r).UserID, chi.URLParam(r, "folderID")))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.Search(r.Context(), currentSession(r).UserID, query.Get("q"), query.Get("type"), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExportBoard(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ExportBoard(r.Context(), currentSession(r), chi.URLParam(r, "boardID"), r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeFile(w, result.MimeType, result.Filename, result.Data)
}

func (s *HTTPServer) handleExportNote(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ExportNote(r.Context(), currentSession(r), chi.URLParam(r, "noteID"), r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeFile(w, result.MimeType, result.Filename, result.Data)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"email":        session.Email,
		"name":         session.Name,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func fileUploads(headers []*multipart.FileHeader) []FileUpload {
	files := make([]FileUpload, 0, len(headers))
	for _, header := range headers {
		files = append(files, FileUpload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}
	return files
}

// respond returns a sink for a service result that writes 200 or the
// mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request) func(map[string]any, error) {
	return s.respondStatus(w, r, http.StatusOK)
}

func (s *HTTPServer) respondCreated(w http.ResponseWriter, r *http.Request) func(map[string]any, error) {
	return s.respondStatus(w, r, http.StatusCreated)
}

func (s *HTTPServer) respondStatus(w http.ResponseWriter, r *http.Request, status int) func(map[string]any, error) {
	return func(payload map[string]any, err error) {
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, status, payload)
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

type sessionKey struct{}

// authenticated rejects requests without a valid bearer token and stores the
// session for the handlers behind it.
func (s *HTTPServer) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func currentSession(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.log.Error("session lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, route, writer.status, elapsed)
		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	header.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// readBody decodes a JSON body and answers 400 when it is malformed.
func readBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
