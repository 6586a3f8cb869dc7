// Package blob abstracts evidence storage: uploaded photos live in a
// bucket and are addressed by a public URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// Store is the surface the engine needs from an evidence backend.
type Store interface {
	// Upload writes the object and returns its public URL.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// PublicURL returns the URL an already stored object is served from.
	PublicURL(key string) string
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeName sanitizes a client-supplied filename for use in an object key.
func SafeName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "archivo"
	}
	return name
}

// ObjectKey builds the canonical evidence key: the uploader's id as a
// prefix, then upload time and the sanitized filename.
func ObjectKey(userID string, now time.Time, filename string) string {
	return fmt.Sprintf("%s/%d_%s", userID, now.Unix(), SafeName(filename))
}
