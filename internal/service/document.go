package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/blob"
	"github.com/emrgen/docvault/internal/cache"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/queue"
	"github.com/emrgen/docvault/internal/store"
)

// DocumentView is a document as seen by one user.
type DocumentView struct {
	Document *model.Document
	Level    model.Level
	IsOwner  bool
	Shared   bool
	Latest   *model.Version
}

// Download is an opened version artifact. The caller closes Content.
type Download struct {
	Document *model.Document
	Version  *model.Version
	Content  io.ReadCloser
}

// DocumentService coordinates the document lifecycle across the version chain,
// the permission ledger and the blob store.
type DocumentService struct {
	store     store.Store
	blobs     blob.Store
	chain     *VersionChain
	ledger    *PermissionLedger
	authority *Authority
	events    queue.Publisher
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(store store.Store, blobs blob.Store, latest cache.LatestCache, events queue.Publisher) *DocumentService {
	if events == nil {
		events = queue.NewLogPublisher()
	}

	ledger := NewPermissionLedger(store)
	return &DocumentService{
		store:     store,
		blobs:     blobs,
		chain:     NewVersionChain(store, latest),
		ledger:    ledger,
		authority: NewAuthority(ledger),
		events:    events,
	}
}

func (d *DocumentService) Chain() *VersionChain {
	return d.chain
}

func (d *DocumentService) Ledger() *PermissionLedger {
	return d.ledger
}

func (d *DocumentService) Authority() *Authority {
	return d.authority
}

// CreateDocument creates a document with its first version and grants the creator ownership,
// all in one transaction.
func (d *DocumentService) CreateDocument(ctx context.Context, ownerID uuid.UUID, name string, artifact Artifact) (*model.Document, *model.Version, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		d.discard(ctx, artifact)
		return nil, nil, fmt.Errorf("%w: document name is empty", ErrInvalidArgument)
	}

	doc := &model.Document{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: ownerID.String(),
	}
	docID := uuid.MustParse(doc.ID)

	var version *model.Version
	err := d.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}

		var err error
		version, err = d.chain.appendTx(ctx, tx, docID, model.FirstVersionLabel, artifact, nil)
		if err != nil {
			return err
		}

		return d.ledger.grantTx(ctx, tx, ownerID, docID, model.LevelOwner)
	})
	if err != nil {
		d.discard(ctx, artifact)
		return nil, nil, storageError(err)
	}

	logrus.Infof("document %s (%s) created by %s", doc.ID, doc.Name, ownerID)
	d.publish(ctx, queue.Event{Type: queue.DocumentCreated, DocumentID: doc.ID, UserID: ownerID.String(), VersionID: version.ID, Label: version.Label})

	return doc, version, nil
}

// CreateNewVersionForExisting appends a version to a document. The suffix names the kind of
// change ("" for an upload, "-signed", "-annotated") and decides the operation authorized.
func (d *DocumentService) CreateNewVersionForExisting(ctx context.Context, userID, docID uuid.UUID, artifact Artifact, suffix string) (*model.Version, error) {
	if suffix != "" && suffix != model.SuffixSigned && suffix != model.SuffixAnnotated {
		d.discard(ctx, artifact)
		return nil, fmt.Errorf("%w: unknown version suffix %q", ErrInvalidArgument, suffix)
	}

	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OperationForSuffix(suffix)); err != nil {
		d.discard(ctx, artifact)
		return nil, err
	}

	version, err := d.chain.AppendNext(ctx, docID, suffix, artifact)
	if err != nil {
		d.discard(ctx, artifact)
		return nil, err
	}

	logrus.Infof("version %s appended to document %s by %s", version.Label, docID, userID)
	d.publish(ctx, queue.Event{Type: queue.VersionAppended, DocumentID: docID.String(), UserID: userID.String(), VersionID: version.ID, Label: version.Label})

	return version, nil
}

// DeleteDocument removes a document with its versions, permissions and artifacts.
// Artifact removal is best effort: failures are recorded for the janitor and never abort the delete.
func (d *DocumentService) DeleteDocument(ctx context.Context, userID, docID uuid.UUID) error {
	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpDelete); err != nil {
		return err
	}

	unlock := d.chain.lock(docID)
	defer unlock()

	if _, err := d.store.GetDocument(ctx, docID); err != nil {
		return storageError(err)
	}

	versions, err := d.store.ListVersions(ctx, docID)
	if err != nil {
		return storageError(err)
	}

	removed := make(map[string]bool, len(versions))
	for _, version := range versions {
		d.removeArtifact(ctx, docID, version.Location)
		removed[version.Location] = true
	}

	// versions appended by another process since the listing above are caught under the row lock
	var late []string
	err = d.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDocument(ctx, docID); err != nil {
			return err
		}

		current, err := tx.ListVersions(ctx, docID)
		if err != nil {
			return err
		}

		late = late[:0]
		for _, version := range current {
			if !removed[version.Location] {
				late = append(late, version.Location)
			}
		}

		if err := tx.DeleteVersions(ctx, docID); err != nil {
			return err
		}
		if err := tx.DeletePermissions(ctx, docID); err != nil {
			return err
		}

		return tx.DeleteDocument(ctx, docID)
	})
	if err != nil {
		return storageError(err)
	}

	for _, location := range late {
		d.removeArtifact(ctx, docID, location)
	}

	d.chain.invalidate(ctx, docID)

	logrus.Infof("document %s deleted by %s (%d versions)", docID, userID, len(versions)+len(late))
	d.publish(ctx, queue.Event{Type: queue.DocumentDeleted, DocumentID: docID.String(), UserID: userID.String()})

	return nil
}

func (d *DocumentService) removeArtifact(ctx context.Context, docID uuid.UUID, location string) {
	err := d.blobs.Delete(ctx, location)
	if err == nil {
		return
	}

	logrus.Errorf("failed to remove artifact %s of document %s: %v", location, docID, err)

	if err := d.store.RecordArtifactFailure(ctx, location, docID, err.Error()); err != nil {
		logrus.Errorf("failed to record pending artifact %s: %v", location, err)
	}
}

// Share grants level on a document to another user. Only owners may share.
func (d *DocumentService) Share(ctx context.Context, userID, docID, targetID uuid.UUID, level model.Level) error {
	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpShare); err != nil {
		return err
	}

	if err := d.ledger.Grant(ctx, targetID, docID, level); err != nil {
		return err
	}

	logrus.Infof("document %s shared with %s as %s by %s", docID, targetID, level, userID)
	d.publish(ctx, queue.Event{Type: queue.PermissionGranted, DocumentID: docID.String(), UserID: targetID.String(), Level: level.String()})

	return nil
}

// GetDocument returns a document with its latest version.
func (d *DocumentService) GetDocument(ctx context.Context, userID, docID uuid.UUID) (*DocumentView, error) {
	level, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpRead)
	if err != nil {
		return nil, err
	}

	doc, err := d.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, storageError(err)
	}

	return d.view(ctx, doc, level)
}

// ListDocuments returns every document the user holds a usable permission on, newest first.
func (d *DocumentService) ListDocuments(ctx context.Context, userID uuid.UUID) ([]*DocumentView, error) {
	docs, err := d.store.ListUserDocuments(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	views := make([]*DocumentView, 0, len(docs))
	for _, doc := range docs {
		level, ok, err := d.ledger.ResolveLevel(ctx, userID, uuid.MustParse(doc.ID))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		view, err := d.view(ctx, doc, level)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, nil
}

func (d *DocumentService) view(ctx context.Context, doc *model.Document, level model.Level) (*DocumentView, error) {
	docID := uuid.MustParse(doc.ID)
	view := &DocumentView{
		Document: doc,
		Level:    level,
		IsOwner:  level == model.LevelOwner,
		// a document reached through someone else's grant is shared by definition
		Shared: true,
	}

	if view.IsOwner {
		shared, err := d.ledger.IsShared(ctx, docID)
		if err != nil {
			return nil, err
		}
		view.Shared = shared
	}

	latest, err := d.chain.GetLatest(ctx, docID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	view.Latest = latest

	return view, nil
}

// ListVersions returns the versions of a document, newest first.
func (d *DocumentService) ListVersions(ctx context.Context, userID, docID uuid.UUID) ([]*model.Version, error) {
	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpRead); err != nil {
		return nil, err
	}

	return d.chain.ListVersions(ctx, docID)
}

// GetLatestVersion returns the latest version of a document.
func (d *DocumentService) GetLatestVersion(ctx context.Context, userID, docID uuid.UUID) (*model.Version, error) {
	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpRead); err != nil {
		return nil, err
	}

	return d.chain.GetLatest(ctx, docID)
}

// OpenVersion opens the artifact of a version for download.
func (d *DocumentService) OpenVersion(ctx context.Context, userID, versionID uuid.UUID) (*Download, error) {
	version, err := d.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, storageError(err)
	}

	docID, err := uuid.Parse(version.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: version %s has a malformed document id", ErrStorage, versionID)
	}

	if _, err := d.authority.AuthorizeOperation(ctx, userID, docID, model.OpDownload); err != nil {
		return nil, err
	}

	doc, err := d.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, storageError(err)
	}

	content, err := d.blobs.Open(ctx, version.Location)
	if errors.Is(err, blob.ErrNotFound) {
		logrus.Errorf("artifact %s of version %s is missing", version.Location, versionID)
		return nil, fmt.Errorf("%w: artifact of version %s", ErrNotFound, version.Label)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &Download{Document: doc, Version: version, Content: content}, nil
}

// Access returns the caller's own level on a document.
func (d *DocumentService) Access(ctx context.Context, userID, docID uuid.UUID) (model.Level, bool, error) {
	return d.ledger.ResolveLevel(ctx, userID, docID)
}

// discard removes an artifact that was stored for a change that did not happen.
// A location some version still points at is never removed.
func (d *DocumentService) discard(ctx context.Context, artifact Artifact) {
	if artifact.Location == "" || d.blobs == nil {
		return
	}

	owner, err := d.store.GetVersionByLocation(ctx, artifact.Location)
	if err == nil {
		logrus.Warnf("artifact %s belongs to version %s, keeping it", artifact.Location, owner.ID)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		logrus.Warnf("failed to check artifact %s before discarding, keeping it: %v", artifact.Location, err)
		return
	}

	if err := d.blobs.Delete(ctx, artifact.Location); err != nil {
		logrus.Warnf("failed to discard unused artifact %s: %v", artifact.Location, err)
	}
}

func (d *DocumentService) publish(ctx context.Context, event queue.Event) {
	event.OccurredAt = time.Now().UTC()
	if err := d.events.Publish(ctx, event); err != nil {
		logrus.Errorf("failed to publish %s for document %s: %v", event.Type, event.DocumentID, err)
	}
}
