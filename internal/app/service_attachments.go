package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"checklist/api/internal/objectstore"
	"checklist/api/internal/ownership"
	"checklist/api/internal/store"
	"checklist/api/internal/util"

	"go.uber.org/zap"
)

// ImageCacheControl is sent with every note image. Image paths are never
// reused, so the response can be cached forever by the owner's browser.
const ImageCacheControl = "private, max-age=31536000, immutable"

// FileUpload is one uploaded file. Open is only called after every size
// check has passed.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func tooLarge(name string, limit int64) *DomainError {
	return domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
		fmt.Sprintf("%s exceeds the %d byte limit", name, limit),
		map[string]any{"name": name, "maxBytes": limit})
}

// UploadAttachments stores every file under the card. Validation covers all
// files before the first upload, and a failed upload removes the objects
// already written.
func (s *Service) UploadAttachments(ctx context.Context, userID, cardID string, files []FileUpload) (map[string]any, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" || len(files) == 0 {
		return nil, badRequest("cardId and files are required")
	}
	for _, file := range files {
		if file.Size > s.cfg.MaxAttachmentBytes {
			return nil, tooLarge(file.Name, s.cfg.MaxAttachmentBytes)
		}
	}
	if _, err := s.store.GetCard(ctx, userID, cardID); err != nil {
		return nil, err
	}

	pending := make([]store.Attachment, 0, len(files))
	for _, file := range files {
		contentType := file.ContentType
		if strings.TrimSpace(contentType) == "" {
			contentType = objectstore.DefaultContentType
		}
		key := objectstore.AttachmentKey(cardID, util.NewID(), file.Name)
		if err := s.putFile(ctx, key, file, contentType); err != nil {
			s.removeObjects(ctx, pending)
			return nil, err
		}
		pending = append(pending, store.Attachment{
			CardID: cardID,
			Name:   file.Name,
			URL:    key,
			Mime:   contentType,
			Size:   file.Size,
		})
	}

	saved, err := s.store.InsertAttachments(ctx, pending)
	if err != nil {
		s.removeObjects(ctx, pending)
		return nil, err
	}
	items := make([]map[string]any, 0, len(saved))
	for _, attachment := range saved {
		items = append(items, map[string]any{
			"id":   attachment.ID,
			"name": attachment.Name,
			"mime": attachment.Mime,
			"size": attachment.Size,
		})
	}
	return map[string]any{"ok": true, "attachments": items}, nil
}

func (s *Service) putFile(ctx context.Context, key string, file FileUpload, contentType string) error {
	body, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", file.Name, err)
	}
	defer body.Close()
	if err := s.blobs.Put(ctx, key, body, file.Size, contentType); err != nil {
		return fmt.Errorf("store upload %s: %w", file.Name, err)
	}
	return nil
}

// SignedAttachment returns a short-lived download URL for the attachment.
func (s *Service) SignedAttachment(ctx context.Context, userID, attachmentID string) (map[string]any, error) {
	attachment, err := s.store.GetAttachment(ctx, userID, attachmentID)
	if err != nil {
		return nil, err
	}
	signed, err := s.blobs.PresignGet(ctx, attachment.URL, s.cfg.SignedURLTTL)
	if err != nil {
		s.log.Error("presign attachment", zap.String("attachment_id", attachment.ID), zap.Error(err))
		return nil, domainError(http.StatusInternalServerError, "STORAGE_ERROR", "Could not sign attachment URL", nil)
	}
	return map[string]any{
		"ok":        true,
		"signedUrl": signed,
		"meta": map[string]any{
			"url":  attachment.URL,
			"name": attachment.Name,
			"mime": attachment.Mime,
			"size": attachment.Size,
		},
	}, nil
}

// DeleteAttachment removes the stored object before the row, so a storage
// failure never leaves an orphaned object behind a missing row.
func (s *Service) DeleteAttachment(ctx context.Context, userID, attachmentID string) (map[string]any, error) {
	attachment, err := s.store.GetAttachment(ctx, userID, attachmentID)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.Remove(ctx, attachment.URL); err != nil {
		s.log.Error("remove attachment object", zap.String("attachment_id", attachment.ID), zap.Error(err))
		return nil, domainError(http.StatusInternalServerError, "STORAGE_ERROR", "Could not delete attachment", nil)
	}
	deleted, err := s.store.DeleteAttachment(ctx, userID, attachmentID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	return map[string]any{"ok": true}, nil
}

// UploadImage stores an image pasted into a note under the user's prefix.
func (s *Service) UploadImage(ctx context.Context, userID string, file FileUpload) (map[string]any, error) {
	ext, ok := objectstore.ImageExtension(file.ContentType)
	if !ok {
		return nil, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			"Only JPEG, PNG, WebP, GIF and SVG images are allowed", map[string]any{"contentType": file.ContentType})
	}
	if file.Size > s.cfg.MaxImageBytes {
		return nil, tooLarge(file.Name, s.cfg.MaxImageBytes)
	}
	key := objectstore.ImageKey(userID, util.NewID(), ext)
	if err := s.putFile(ctx, key, file, file.ContentType); err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":   true,
		"url":  "/api/notes/images?path=" + url.QueryEscape(key),
		"path": key,
	}, nil
}

// Image opens one of the user's note images. The caller closes the body.
func (s *Service) Image(ctx context.Context, userID, path string) (objectstore.Object, error) {
	if err := ownership.CheckImagePath(userID, path); err != nil {
		return objectstore.Object{}, err
	}
	return s.blobs.Get(ctx, path)
}
