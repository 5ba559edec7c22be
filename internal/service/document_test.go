package service

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/queue"
)

func TestDocumentService_CreateDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	owner := uuid.New()
	artifact := env.artifact(t, "%PDF-1.7")

	doc, version, err := env.service.CreateDocument(ctx, owner, " report.pdf ", artifact)
	require.NoError(t, err)
	docID := uuid.MustParse(doc.ID)

	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, owner.String(), doc.CreatedBy)
	assert.Equal(t, model.FirstVersionLabel, version.Label)
	assert.True(t, version.IsLatest)
	assert.Equal(t, artifact.Location, version.Location)
	assert.Equal(t, artifact.Size, version.Size)
	assert.Equal(t, model.MimeTypePDF, version.MimeType)

	level, ok, err := env.service.Access(ctx, owner, docID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.LevelOwner, level)

	events := env.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, queue.DocumentCreated, events[0].Type)
	assert.Equal(t, doc.ID, events[0].DocumentID)
}

func TestDocumentService_CreateDocumentIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	owner := uuid.New()
	artifact := env.artifact(t, "%PDF-1.7")

	env.failInserts("permissions")
	_, _, err := env.service.CreateDocument(ctx, owner, "report.pdf", artifact)
	env.failInserts("")
	assert.ErrorIs(t, err, ErrStorage)

	var docs, versions int64
	require.NoError(t, env.db.Model(&model.Document{}).Count(&docs).Error)
	require.NoError(t, env.db.Model(&model.Version{}).Count(&versions).Error)
	assert.Zero(t, docs)
	assert.Zero(t, versions)

	// the stored artifact is not left behind
	exists, err := env.blobs.Exists(ctx, artifact.Location)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, env.events.Events())
}

func TestDocumentService_CreateDocumentRequiresName(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.CreateDocument(context.TODO(), uuid.New(), "  ", env.artifact(t, "x"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDocumentService_VersionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice, bob, carol, dave := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	docID := env.createDocument(t, alice, "contract.pdf")
	env.share(t, alice, docID, bob, model.LevelEditor)
	env.share(t, alice, docID, carol, model.LevelViewer)

	v11, err := env.service.CreateNewVersionForExisting(ctx, bob, docID, env.artifact(t, "edit"), "")
	require.NoError(t, err)
	assert.Equal(t, "v1.1", v11.Label)

	versions, err := env.service.ListVersions(ctx, carol, docID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].IsLatest)
	assert.Equal(t, "v1.1", versions[0].Label)
	assert.False(t, versions[1].IsLatest)
	assert.Equal(t, "v1.0", versions[1].Label)

	signed, err := env.service.CreateNewVersionForExisting(ctx, bob, docID, env.artifact(t, "signed"), model.SuffixSigned)
	require.NoError(t, err)
	assert.Equal(t, "v1.2-signed", signed.Label)

	annotated, err := env.service.CreateNewVersionForExisting(ctx, alice, docID, env.artifact(t, "notes"), model.SuffixAnnotated)
	require.NoError(t, err)
	assert.Equal(t, "v1.3-annotated", annotated.Label)

	latest, err := env.service.GetLatestVersion(ctx, carol, docID)
	require.NoError(t, err)
	assert.Equal(t, annotated.ID, latest.ID)

	// a viewer cannot upload and the artifact is discarded
	rejected := env.artifact(t, "viewer upload")
	_, err = env.service.CreateNewVersionForExisting(ctx, carol, docID, rejected, "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, ErrInsufficientLevel)
	exists, err := env.blobs.Exists(ctx, rejected.Location)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = env.service.CreateNewVersionForExisting(ctx, dave, docID, env.artifact(t, "stranger"), model.SuffixSigned)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, ErrNoGrant)

	_, err = env.service.CreateNewVersionForExisting(ctx, bob, docID, env.artifact(t, "bad"), "-draft")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, int64(4), env.count(t, &model.Version{}, docID))
	assert.Equal(t, int64(1), env.latestFlags(t, docID))
}

func TestDocumentService_Share(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice, bob := uuid.New(), uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")

	env.share(t, alice, docID, bob, model.LevelEditor)

	// editors cannot share
	err := env.service.Share(ctx, bob, docID, uuid.New(), model.LevelViewer)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, ErrInsufficientLevel)

	err = env.service.Share(ctx, alice, docID, bob, "admin")
	assert.ErrorIs(t, err, ErrInvalidLevel)

	// owners may hand out ownership
	env.share(t, alice, docID, bob, model.LevelOwner)
	level, _, err := env.service.Access(ctx, bob, docID)
	require.NoError(t, err)
	assert.Equal(t, model.LevelOwner, level)

	var granted int
	for _, e := range env.events.Events() {
		if e.Type == queue.PermissionGranted {
			granted++
		}
	}
	assert.Equal(t, 2, granted)
}

func TestDocumentService_ListDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice, bob := uuid.New(), uuid.New()

	private := env.createDocument(t, alice, "private.pdf")
	shared := env.createDocument(t, alice, "shared.pdf")
	env.share(t, alice, shared, bob, model.LevelViewer)

	views, err := env.service.ListDocuments(ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := make(map[string]*DocumentView)
	for _, view := range views {
		byID[view.Document.ID] = view
		assert.True(t, view.IsOwner)
		assert.Equal(t, model.LevelOwner, view.Level)
		require.NotNil(t, view.Latest)
		assert.Equal(t, model.FirstVersionLabel, view.Latest.Label)
	}
	assert.False(t, byID[private.String()].Shared)
	assert.True(t, byID[shared.String()].Shared)

	views, err = env.service.ListDocuments(ctx, bob)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, shared.String(), views[0].Document.ID)
	assert.False(t, views[0].IsOwner)
	assert.True(t, views[0].Shared)
	assert.Equal(t, model.LevelViewer, views[0].Level)

	views, err = env.service.ListDocuments(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDocumentService_GetDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice := uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")

	view, err := env.service.GetDocument(ctx, alice, docID)
	require.NoError(t, err)
	assert.Equal(t, "contract.pdf", view.Document.Name)
	assert.Equal(t, model.FirstVersionLabel, view.Latest.Label)
	assert.False(t, view.Shared)

	_, err = env.service.GetDocument(ctx, uuid.New(), docID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDocumentService_OpenVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice, bob := uuid.New(), uuid.New()

	doc, version, err := env.service.CreateDocument(ctx, alice, "contract.pdf", env.artifact(t, "%PDF-1.7 body"))
	require.NoError(t, err)
	docID := uuid.MustParse(doc.ID)
	env.share(t, alice, docID, bob, model.LevelViewer)

	download, err := env.service.OpenVersion(ctx, bob, uuid.MustParse(version.ID))
	require.NoError(t, err)
	content, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.NoError(t, download.Content.Close())
	assert.Equal(t, "%PDF-1.7 body", string(content))
	assert.Equal(t, "contract.pdf", download.Document.Name)

	_, err = env.service.OpenVersion(ctx, uuid.New(), uuid.MustParse(version.ID))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.service.OpenVersion(ctx, bob, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.blobs.Delete(ctx, version.Location))
	_, err = env.service.OpenVersion(ctx, bob, uuid.MustParse(version.ID))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_DeleteDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice, bob := uuid.New(), uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")
	env.share(t, alice, docID, bob, model.LevelEditor)

	_, err := env.service.CreateNewVersionForExisting(ctx, bob, docID, env.artifact(t, "edit"), "")
	require.NoError(t, err)
	versions, err := env.service.ListVersions(ctx, alice, docID)
	require.NoError(t, err)

	err = env.service.DeleteDocument(ctx, bob, docID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.service.DeleteDocument(ctx, alice, docID))

	assert.Zero(t, env.count(t, &model.Version{}, docID))
	assert.Zero(t, env.count(t, &model.Permission{}, docID))
	_, err = env.store.GetDocument(ctx, docID)
	assert.Error(t, err)

	for _, v := range versions {
		exists, err := env.blobs.Exists(ctx, v.Location)
		require.NoError(t, err)
		assert.False(t, exists)
	}

	pending, err := env.store.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// the document is gone for everyone
	err = env.service.DeleteDocument(ctx, alice, docID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDocumentService_DeleteDocumentWithFailingArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice := uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")
	_, err := env.service.CreateNewVersionForExisting(ctx, alice, docID, env.artifact(t, "edit"), "")
	require.NoError(t, err)

	svc := NewDocumentService(env.store, failingBlobs{Store: env.blobs}, nil, env.events)
	require.NoError(t, svc.DeleteDocument(ctx, alice, docID))

	assert.Zero(t, env.count(t, &model.Version{}, docID))
	assert.Zero(t, env.count(t, &model.Permission{}, docID))
	_, err = env.store.GetDocument(ctx, docID)
	assert.Error(t, err)

	pending, err := env.store.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, p := range pending {
		assert.Equal(t, docID.String(), p.DocumentID)
		assert.Equal(t, 1, p.Attempts)
		assert.Contains(t, p.LastError, "permission denied")
	}

	events := env.events.Events()
	assert.Equal(t, queue.DocumentDeleted, events[len(events)-1].Type)
}

func TestDocumentService_AppendWithTakenLocationKeepsArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice := uuid.New()

	doc, first, err := env.service.CreateDocument(ctx, alice, "contract.pdf", env.artifact(t, "%PDF original"))
	require.NoError(t, err)
	docID := uuid.MustParse(doc.ID)

	reused := Artifact{Location: first.Location, Size: first.Size, MimeType: first.MimeType}
	_, err = env.service.CreateNewVersionForExisting(ctx, alice, docID, reused, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// a discard reaching a location owned by a version leaves it alone
	env.service.discard(ctx, reused)

	exists, err := env.blobs.Exists(ctx, first.Location)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, int64(1), env.count(t, &model.Version{}, docID))
	assert.Equal(t, int64(1), env.latestFlags(t, docID))

	download, err := env.service.OpenVersion(ctx, alice, uuid.MustParse(first.ID))
	require.NoError(t, err)
	content, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.NoError(t, download.Content.Close())
	assert.Equal(t, "%PDF original", string(content))

	// an unreferenced upload is still discarded
	unused := env.artifact(t, "never recorded")
	env.service.discard(ctx, unused)
	exists, err = env.blobs.Exists(ctx, unused.Location)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocumentService_DeleteDocumentCatchesLateAppend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice := uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")

	// another process appends while the first artifacts are being removed
	replica := NewVersionChain(env.store, nil)
	upload := env.artifact(t, "appended late")
	var (
		appended  *model.Version
		appendErr error
	)
	blobs := &onFirstDelete{Store: env.blobs, hook: func() {
		appended, appendErr = replica.AppendNext(ctx, docID, "", upload)
	}}

	svc := NewDocumentService(env.store, blobs, nil, env.events)
	require.NoError(t, svc.DeleteDocument(ctx, alice, docID))
	require.NoError(t, appendErr)
	require.NotNil(t, appended)

	assert.Zero(t, env.count(t, &model.Version{}, docID))
	assert.Zero(t, env.count(t, &model.Permission{}, docID))
	_, err := env.store.GetDocument(ctx, docID)
	assert.Error(t, err)

	exists, err := env.blobs.Exists(ctx, upload.Location)
	require.NoError(t, err)
	assert.False(t, exists)

	pending, err := env.store.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// appends after the delete find no document
	_, err = replica.AppendNext(ctx, docID, "", env.artifact(t, "too late"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_RepeatedArtifactFailuresCountAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	alice := uuid.New()
	docID := env.createDocument(t, alice, "contract.pdf")

	versions, err := env.service.ListVersions(ctx, alice, docID)
	require.NoError(t, err)
	location := versions[0].Location

	svc := NewDocumentService(env.store, failingBlobs{Store: env.blobs}, nil, env.events)
	svc.removeArtifact(ctx, docID, location)
	svc.removeArtifact(ctx, docID, location)

	pending, err := env.store.ListPendingArtifacts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, location, pending[0].Location)
}
