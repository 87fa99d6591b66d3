package objectstore

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultContentType = "application/octet-stream"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.\- ]+`)

// SafeName replaces every run of characters outside letters, digits,
// underscore, dot, dash and space with a single underscore.
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// AttachmentKey is the object key of a card attachment.
func AttachmentKey(cardID, id, filename string) string {
	return fmt.Sprintf("cards/%s/%s-%s", cardID, id, SafeName(filename))
}

// ImageKey is the object key of an image pasted into a note.
func ImageKey(userID, id, ext string) string {
	return "notes/" + userID + "/" + id + "." + ext
}

var imageExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/png":     "png",
	"image/webp":    "webp",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
}

// ImageExtension returns the file extension for an allowed image type.
func ImageExtension(contentType string) (string, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := imageExtensions[mediaType]
	return ext, ok
}
