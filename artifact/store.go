// Package artifact persists rendered chart images.
//
// Artifacts are addressed by name, where the name is the cache key plus
// the image extension (see Name). Stores never expose partially written
// artifacts.
package artifact

import (
	"context"
	"errors"
	"io"

	"github.com/justapithecus/chartd/types"
)

// ErrNotFound is returned by Open when no artifact exists under the name.
var ErrNotFound = errors.New("artifact not found")

// Store persists artifacts.
type Store interface {
	// Put writes data under name, replacing any existing artifact.
	// A failed Put leaves no partial artifact behind.
	Put(ctx context.Context, name string, data []byte) error

	// Open returns a reader for the named artifact.
	// Returns an error wrapping ErrNotFound if it does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether the named artifact exists.
	Exists(ctx context.Context, name string) (bool, error)
}

// Name returns the artifact name for a cache key: <hex-digest><ext>.
func Name(key types.CacheKey, format types.ImageFormat) string {
	return key.String() + format.Ext()
}
