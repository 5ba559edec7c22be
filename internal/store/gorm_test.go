package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/tester"
)

func newDocument(t *testing.T, s Store, name string) uuid.UUID {
	id := uuid.New()
	err := s.CreateDocument(context.TODO(), &model.Document{
		ID:        id.String(),
		Name:      name,
		CreatedBy: uuid.New().String(),
	})
	require.NoError(t, err)
	return id
}

func newVersion(t *testing.T, s Store, docID uuid.UUID, label string, latest bool, at time.Time) *model.Version {
	version := &model.Version{
		ID:         uuid.New().String(),
		DocumentID: docID.String(),
		Label:      label,
		Location:   uuid.New().String() + ".pdf",
		Size:       10,
		MimeType:   model.MimeTypePDF,
		IsLatest:   latest,
		CreatedAt:  at,
	}
	require.NoError(t, s.CreateVersion(context.TODO(), version))
	return version
}

func TestGormStore_GetDocumentNotFound(t *testing.T) {
	s := NewGormStore(tester.NewDB())

	_, err := s.GetDocument(context.TODO(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetNewestVersion(context.TODO(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_Versions(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := newDocument(t, s, "report.pdf")

	now := time.Now()
	first := newVersion(t, s, docID, "v1.0", false, now.Add(-2*time.Minute))
	second := newVersion(t, s, docID, "v1.1", true, now.Add(-time.Minute))

	versions, err := s.ListVersions(ctx, docID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.ID, versions[0].ID)
	assert.Equal(t, first.ID, versions[1].ID)

	latest, err := s.GetFlaggedLatestVersion(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	require.NoError(t, s.ClearLatestVersions(ctx, docID))
	_, err = s.GetFlaggedLatestVersion(ctx, docID)
	assert.ErrorIs(t, err, ErrNotFound)

	missing, err := s.ListDocumentsMissingLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{docID}, missing)

	require.NoError(t, s.FlagLatestVersion(ctx, uuid.MustParse(first.ID)))
	missing, err = s.ListDocumentsMissingLatest(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.ErrorIs(t, s.FlagLatestVersion(ctx, uuid.New()), ErrNotFound)
}

func TestGormStore_Permissions(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := newDocument(t, s, "contract.pdf")
	otherDocID := newDocument(t, s, "other.pdf")
	userID := uuid.New()

	for _, level := range []model.Level{model.LevelViewer, model.LevelEditor} {
		require.NoError(t, s.CreatePermission(ctx, &model.Permission{
			ID:         uuid.New().String(),
			UserID:     userID.String(),
			DocumentID: docID.String(),
			Level:      level,
		}))
	}

	permissions, err := s.ListPermissions(ctx, userID, docID)
	require.NoError(t, err)
	assert.Len(t, permissions, 2)

	count, err := s.CountDocumentPermissions(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated, err := s.UpdatePermissionLevel(ctx, userID, docID, model.LevelOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	permissions, err = s.ListPermissions(ctx, userID, docID)
	require.NoError(t, err)
	for _, permission := range permissions {
		assert.Equal(t, model.LevelOwner, permission.Level)
	}

	docs, err := s.ListUserDocuments(ctx, userID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docID.String(), docs[0].ID)
	assert.NotEqual(t, otherDocID.String(), docs[0].ID)

	require.NoError(t, s.DeletePermissions(ctx, docID))
	count, err = s.CountDocumentPermissions(ctx, docID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormStore_TransactionRollback(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := newDocument(t, s, "draft.pdf")
	latest := newVersion(t, s, docID, "v1.0", true, time.Now())

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.ClearLatestVersions(ctx, docID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetFlaggedLatestVersion(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
}

func TestGormStore_PendingArtifacts(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := uuid.New()

	artifact := &model.PendingArtifact{Location: "a.pdf", DocumentID: docID.String(), Attempts: 1, LastError: "denied"}
	require.NoError(t, s.SavePendingArtifact(ctx, artifact))

	artifact.Attempts = 2
	require.NoError(t, s.SavePendingArtifact(ctx, artifact))

	artifacts, err := s.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, 2, artifacts[0].Attempts)

	require.NoError(t, s.DeletePendingArtifact(ctx, "a.pdf"))
	artifacts, err = s.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestGormStore_RecordArtifactFailureCountsAttempts(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := uuid.New()

	require.NoError(t, s.RecordArtifactFailure(ctx, "b.pdf", docID, "denied"))
	require.NoError(t, s.RecordArtifactFailure(ctx, "b.pdf", docID, "timeout"))
	require.NoError(t, s.RecordArtifactFailure(ctx, "b.pdf", docID, "refused"))

	artifacts, err := s.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, 3, artifacts[0].Attempts)
	assert.Equal(t, "refused", artifacts[0].LastError)
	assert.Equal(t, docID.String(), artifacts[0].DocumentID)
}

func TestGormStore_GetVersionByLocation(t *testing.T) {
	s := NewGormStore(tester.NewDB())
	ctx := context.TODO()
	docID := newDocument(t, s, "located.pdf")
	version := newVersion(t, s, docID, "v1.0", true, time.Now())

	got, err := s.GetVersionByLocation(ctx, version.Location)
	require.NoError(t, err)
	assert.Equal(t, version.ID, got.ID)

	_, err = s.GetVersionByLocation(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_Postgres(t *testing.T) {
	if !tester.DockerEnabled() {
		t.Skip("set DOCVAULT_DOCKER_TESTS=1 to run postgres tests")
	}

	db, purge, err := tester.SetupPostgres()
	require.NoError(t, err)
	defer purge()

	s := NewGormStore(db)
	ctx := context.TODO()
	docID := newDocument(t, s, "locked.pdf")

	err = s.Transaction(ctx, func(tx Store) error {
		doc, err := tx.LockDocument(ctx, docID)
		if err != nil {
			return err
		}
		assert.Equal(t, docID.String(), doc.ID)
		return nil
	})
	assert.NoError(t, err)
}
