package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"checklist/api/internal/auth"
	"checklist/api/internal/authpw"
	"checklist/api/internal/config"
	"checklist/api/internal/export"
	"checklist/api/internal/objectstore"
	"checklist/api/internal/revisions"
	"checklist/api/internal/search"
	"checklist/api/internal/store"
	"checklist/api/internal/util"

	"go.uber.org/zap"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	Name         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)

	ListBoards(context.Context, string) ([]store.Board, error)
	GetBoard(context.Context, string, string) (store.Board, error)
	InsertBoard(context.Context, store.Board) (store.Board, error)
	RenameBoard(context.Context, string, string, string) (store.Board, error)
	DeleteBoard(context.Context, string, string) (bool, error)

	ListCards(context.Context, string, string) ([]store.Card, error)
	GetCard(context.Context, string, string) (store.Card, error)
	InsertCard(context.Context, store.Card) (store.Card, error)
	UpdateCard(context.Context, string, string, store.CardPatch) (store.Card, error)
	DeleteCard(context.Context, string, string) (bool, error)
	ReorderCards(context.Context, string, string, []string) error
	AppendCardTag(context.Context, string, string, string) (store.Card, error)
	RemoveCardTag(context.Context, string, string, string) (store.Card, error)

	ListCardNotes(context.Context, string) ([]store.Note, error)
	InsertNote(context.Context, store.Note) (store.Note, error)
	GetNote(context.Context, string) (store.Note, error)
	ToggleNote(context.Context, string, string) (store.Note, error)
	UpdateNoteText(context.Context, string, string, string) (store.Note, error)
	DeleteNote(context.Context, string, string) (bool, error)

	InsertAttachments(context.Context, []store.Attachment) ([]store.Attachment, error)
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	DeleteAttachment(context.Context, string, string) (bool, error)
	ListCardAttachments(context.Context, string, string) ([]store.Attachment, error)
	ListBoardAttachments(context.Context, string, string) ([]store.Attachment, error)

	ListFolders(context.Context, string) ([]store.NoteFolder, error)
	GetFolder(context.Context, string, string) (store.NoteFolder, error)
	CreateFolder(context.Context, string, string) (store.NoteFolder, error)
	RenameFolder(context.Context, string, string, string) (store.NoteFolder, error)
	DeleteFolder(context.Context, string, string) (bool, error)
	ListUserNotes(context.Context, string) ([]store.UserNote, error)
	GetUserNote(context.Context, string, string) (store.UserNote, error)
	CreateUserNote(context.Context, store.UserNote) (store.UserNote, error)
	UpdateUserNote(context.Context, string, store.UserNote) (store.UserNote, error)
	DeleteUserNote(context.Context, string, string) (bool, error)
	MoveUserNote(context.Context, string, string, *string) (store.UserNote, error)
	ReorderUserNotes(context.Context, string, *string, []string) error

	PurgeExpired(context.Context) (int64, error)
	Ping(context.Context) error
}

// sessionStore keeps refresh sessions and access-token revocations. It is
// backed by Redis when configured and by PostgreSQL otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	ConsumeRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	PurgeExpired(context.Context) (int64, error)
	Ping(context.Context) error
}

type passwordService interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, string, string) (store.User, error)
	RequestPasswordReset(context.Context, string) (string, store.User, error)
	ResetPassword(context.Context, authpw.ResetPasswordRequest) error
}

type mailer interface {
	IsConfigured() bool
	SendPasswordReset(to, userName, resetURL string) error
}

type blobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) (objectstore.Object, error)
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexCard(search.CardRecord)
	IndexNote(search.NoteRecord)
	DeleteCard(string)
	DeleteNote(string)
	ReindexAll(context.Context) (int, error)
}

type revisionStore interface {
	Commit(noteID string, content revisions.Content, author, message string) (revisions.Revision, bool, error)
	History(noteID string, limit int) ([]revisions.Revision, error)
	Get(noteID, hash string) (revisions.Content, revisions.Revision, error)
	Delete(noteID string) error
}

type exporter interface {
	ExportBoard(context.Context, export.Board, export.Format) (*export.Result, error)
	ExportNote(context.Context, export.Note, export.Format) (*export.Result, error)
}

// Dependencies wires the service. Store, Sessions, Passwords and Blobs are
// required; the rest switch their feature off when nil.
type Dependencies struct {
	Store     dataStore
	Sessions  sessionStore
	Passwords passwordService
	Blobs     blobStore
	Mailer    mailer
	Search    searchIndex
	Revisions revisionStore
	Exporter  exporter
	Logger    *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords passwordService
	blobs     blobStore
	mailer    mailer
	search    searchIndex
	revisions revisionStore
	exporter  exporter
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 10 << 20
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 8 << 20
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 120 * time.Second
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: deps.Passwords,
		blobs:     deps.Blobs,
		mailer:    deps.Mailer,
		search:    deps.Search,
		revisions: deps.Revisions,
		exporter:  deps.Exporter,
		log:       logger,
		now:       time.Now,
	}
}

func (s *Service) SignUp(ctx context.Context, email, password, name string) (map[string]any, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", user.ID))
	return map[string]any{"id": user.ID, "email": user.Email}, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The old one is consumed atomically, so
// concurrent refreshes with the same token yield a single new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.ConsumeRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, user.Name, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken(32)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	session := Session{
		Token:  token,
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		JTI:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Logout revokes the access token until it expires and drops the refresh
// session. Both are best effort.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

// RequestPasswordReset mails a reset link. When mail is not configured the
// token is returned instead so a developer can finish the flow.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (map[string]any, error) {
	token, user, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil {
		return nil, err
	}
	response := map[string]any{"message": "If an account exists, a reset email has been sent"}
	if token == "" {
		return response, nil
	}
	if s.mailer == nil || !s.mailer.IsConfigured() {
		response["devResetToken"] = token
		return response, nil
	}
	resetURL := strings.TrimRight(s.cfg.PublicURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(user.Email, user.Name, resetURL); err != nil {
		s.log.Error("send password reset", zap.String("user_id", user.ID), zap.Error(err))
	}
	return response, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

// PurgeExpired drops expired refresh sessions, revocations and resets.
func (s *Service) PurgeExpired(ctx context.Context) error {
	purged, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if any(s.sessions) != any(s.store) {
		more, err := s.sessions.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		purged += more
	}
	s.log.Info("expired sessions purged", zap.Int64("rows", purged))
	return nil
}

// Reindex pushes every card and note to the search index.
func (s *Service) Reindex(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	_, err := s.search.ReindexAll(ctx)
	return err
}

// Readiness runs every dependency check and reports each result.
func (s *Service) Readiness(ctx context.Context) (map[string]any, bool) {
	checks := map[string]any{}
	ready := true
	run := func(name string, check func(context.Context) error) {
		if check == nil {
			return
		}
		if err := check(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	run("database", s.store.Ping)
	if any(s.sessions) != any(s.store) {
		run("sessions", s.sessions.Ping)
	}
	run("storage", s.blobs.Ping)
	return checks, ready
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
