// Package blob provides versioned artifact storage. Objects are immutable:
// every regeneration of an artifact writes to a freshly allocated version
// path and readers resolve "current" through the version recorded on the
// submission, never by listing.
package blob

import (
	"context"

	"github.com/svylabs/ilumina/internal/model"
)

// Store is the object storage interface used for pipeline artifacts.
type Store interface {
	WriteJSON(ctx context.Context, path string, v any) error
	ReadJSON(ctx context.Context, path string, v any) error
	Exists(ctx context.Context, path string) (bool, error)
}

// WriteArtifact serializes v to the version's blob path.
func WriteArtifact(ctx context.Context, s Store, version model.ArtifactVersion, v any) error {
	return s.WriteJSON(ctx, version.Path(), v)
}

// ReadArtifact deserializes the artifact at the version's blob path into v.
func ReadArtifact(ctx context.Context, s Store, version model.ArtifactVersion, v any) error {
	return s.ReadJSON(ctx, version.Path(), v)
}
