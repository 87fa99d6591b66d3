// Package ownership holds the per-user access predicates that are not
// expressed in SQL.
package ownership

import (
	"errors"
	"path"
	"strings"
)

var (
	ErrForbidden = errors.New("resource belongs to another user")
	ErrEmptyPath = errors.New("path is required")
)

// Owns reports whether userID owns a resource whose owner is ownerID.
// An anonymous caller owns nothing.
func Owns(ownerID, userID string) bool {
	return userID != "" && ownerID == userID
}

// ImagePrefix is the storage prefix of userID's note images.
func ImagePrefix(userID string) string {
	return "notes/" + userID + "/"
}

// CheckImagePath verifies that an object path names one of userID's note
// images. Paths that would escape the prefix after cleaning are refused.
func CheckImagePath(userID, objectPath string) error {
	if strings.TrimSpace(objectPath) == "" {
		return ErrEmptyPath
	}
	if userID == "" {
		return ErrForbidden
	}
	prefix := ImagePrefix(userID)
	if !strings.HasPrefix(objectPath, prefix) || path.Clean(objectPath) != objectPath {
		return ErrForbidden
	}
	if len(objectPath) == len(prefix) {
		return ErrForbidden
	}
	return nil
}
