// Package pagination implements the opaque cursors behind user listings.
// A cursor wraps the last user ID of the previous page; listings resume
// strictly after it.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Versioned so the scheme can change without invalidating issued cursors.
const prefix = "id:"

// ErrMalformed marks a cursor this server never issued.
var ErrMalformed = errors.New("malformed cursor")

// Encode wraps the last ID of a page into an opaque cursor.
func Encode(lastID string) string {
	return base64.URLEncoding.EncodeToString([]byte(prefix + lastID))
}

// Decode recovers the resume ID from a cursor. The empty cursor means the
// listing starts at the beginning and decodes to ("", nil).
func Decode(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrMalformed
	}
	id, ok := strings.CutPrefix(string(raw), prefix)
	if !ok || id == "" {
		return "", ErrMalformed
	}
	return id, nil
}

// Page trims an ID-ordered overfetch down to limit items and derives the
// cursor for the following page. more reports whether anything was cut.
func Page[T any](items []T, limit int, id func(T) string) (page []T, next string, more bool) {
	if len(items) <= limit {
		return items, "", false
	}
	page = items[:limit]
	return page, Encode(id(page[limit-1])), true
}
