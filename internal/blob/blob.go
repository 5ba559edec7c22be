package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("artifact not found")

// Object describes a stored artifact.
type Object struct {
	// Location is the opaque storage key recorded on a version.
	Location string
	// Size is the number of bytes the caller wrote.
	Size int64
}

// Store keeps the binary artifacts behind document versions.
type Store interface {
	// Put stores the content under a fresh, never reused location.
	Put(ctx context.Context, r io.Reader, ext string) (Object, error)
	// Open returns the content stored at location.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// Delete removes the content at location. A missing artifact is not an error.
	Delete(ctx context.Context, location string) error
	// Exists reports whether content is stored at location.
	Exists(ctx context.Context, location string) (bool, error)
}

// newLocation returns a sortable unique key with the given extension.
func newLocation(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return strings.ToLower(ulid.Make().String()) + strings.ToLower(ext)
}
