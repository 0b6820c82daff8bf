package ports

import (
	"context"
	"io"
)

// ArtifactStore keeps scratch documents next to the document backend
type ArtifactStore interface {
	WriteArtifact(name string, v any) error
	ReadArtifact(name string, dest any) error
	RemoveArtifact(name string) error
}

// CatalogStore persists the location catalog as a single document
type CatalogStore interface {
	Exists() bool
	Load(dest any) error
	Save(v any) error
	Path() string
}

// ModePublisher forwards connectivity changes to an external sink
type ModePublisher interface {
	PublishMode(ctx context.Context, mode, powerMode string) error
	io.Closer
}
