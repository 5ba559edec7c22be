package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emrgen/docvault/internal/model"
)

var (
	// ErrNotFound is returned when a looked up record does not exist.
	ErrNotFound = errors.New("record not found")
)

type Store interface {
	DocumentStore
	VersionStore
	PermissionStore
	ArtifactStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type DocumentStore interface {
	// CreateDocument creates a new document row.
	CreateDocument(ctx context.Context, doc *model.Document) error
	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	// LockDocument retrieves a document and holds a row lock on it until the transaction ends.
	LockDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	// ListUserDocuments retrieves the documents a user holds at least one permission row on.
	ListUserDocuments(ctx context.Context, userID uuid.UUID) ([]*model.Document, error)
	// ListDocumentsMissingLatest retrieves the IDs of documents with versions but none flagged latest.
	ListDocumentsMissingLatest(ctx context.Context) ([]uuid.UUID, error)
	// DeleteDocument hard deletes a document row.
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

type VersionStore interface {
	// CreateVersion inserts a version row.
	CreateVersion(ctx context.Context, version *model.Version) error
	// GetVersion retrieves a version by ID.
	GetVersion(ctx context.Context, id uuid.UUID) (*model.Version, error)
	// GetVersionByLocation retrieves the version owning an artifact location.
	GetVersionByLocation(ctx context.Context, location string) (*model.Version, error)
	// ListVersions retrieves every version of a document, newest first.
	ListVersions(ctx context.Context, docID uuid.UUID) ([]*model.Version, error)
	// GetFlaggedLatestVersion retrieves the version flagged latest.
	GetFlaggedLatestVersion(ctx context.Context, docID uuid.UUID) (*model.Version, error)
	// GetNewestVersion retrieves the most recently created version.
	GetNewestVersion(ctx context.Context, docID uuid.UUID) (*model.Version, error)
	// ClearLatestVersions unflags every version of a document.
	ClearLatestVersions(ctx context.Context, docID uuid.UUID) error
	// FlagLatestVersion flags a single version latest.
	FlagLatestVersion(ctx context.Context, id uuid.UUID) error
	// DeleteVersions deletes every version row of a document.
	DeleteVersions(ctx context.Context, docID uuid.UUID) error
}

type PermissionStore interface {
	// CreatePermission inserts a permission row.
	CreatePermission(ctx context.Context, permission *model.Permission) error
	// ListPermissions retrieves every permission row of a user on a document.
	ListPermissions(ctx context.Context, userID, docID uuid.UUID) ([]*model.Permission, error)
	// ListDocumentPermissions retrieves every permission row of a document.
	ListDocumentPermissions(ctx context.Context, docID uuid.UUID) ([]*model.Permission, error)
	// CountDocumentPermissions counts the permission rows of a document across all users.
	CountDocumentPermissions(ctx context.Context, docID uuid.UUID) (int64, error)
	// UpdatePermissionLevel sets the level on every row of a (user, document) pair.
	UpdatePermissionLevel(ctx context.Context, userID, docID uuid.UUID, level model.Level) (int64, error)
	// DeletePermissions deletes every permission row of a document.
	DeletePermissions(ctx context.Context, docID uuid.UUID) error
}

type ArtifactStore interface {
	// SavePendingArtifact records (or refreshes) an artifact whose removal failed.
	SavePendingArtifact(ctx context.Context, artifact *model.PendingArtifact) error
	// RecordArtifactFailure inserts a pending artifact with one attempt, or bumps the
	// attempts of an existing one.
	RecordArtifactFailure(ctx context.Context, location string, docID uuid.UUID, lastError string) error
	// ListPendingArtifacts retrieves up to limit pending artifacts, oldest first.
	ListPendingArtifacts(ctx context.Context, limit int) ([]*model.PendingArtifact, error)
	// DeletePendingArtifact forgets a pending artifact.
	DeletePendingArtifact(ctx context.Context, location string) error
}
