package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/cache"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/store"
)

// Artifact is a stored PDF waiting to be recorded as a version.
type Artifact struct {
	Location string
	Size     int64
	MimeType string
}

// NextLabel returns the label following previous. The minor number is bumped and the
// major kept; a label that cannot be parsed restarts at v1.1, and a document without
// versions starts at v1.0. The suffix is appended in every case.
func NextLabel(previous *string, suffix string) string {
	if previous == nil {
		return model.FirstVersionLabel + suffix
	}

	base := strings.TrimPrefix(strings.TrimSpace(*previous), "v")
	if i := strings.Index(base, "-"); i >= 0 {
		base = base[:i]
	}

	v, err := semver.NewVersion(base)
	if err != nil || base == "" {
		return "v1.1" + suffix
	}

	return fmt.Sprintf("v%d.%d%s", v.Major(), v.Minor()+1, suffix)
}

// VersionChain keeps the ordered, append-only versions of each document and the
// single latest flag among them.
type VersionChain struct {
	store store.Store
	cache cache.LatestCache
	locks *keyedMutex
	now   func() time.Time
}

func NewVersionChain(store store.Store, latest cache.LatestCache) *VersionChain {
	if latest == nil {
		latest = cache.NewNop()
	}

	return &VersionChain{
		store: store,
		cache: latest,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

// lock serializes every writer of one document inside this process.
// Writers in other processes are held off by the row lock taken in the transaction.
func (c *VersionChain) lock(docID uuid.UUID) func() {
	return c.locks.Lock(docID.String())
}

// AppendVersion records a version with an explicit label and makes it the latest.
func (c *VersionChain) AppendVersion(ctx context.Context, docID uuid.UUID, label string, artifact Artifact) (*model.Version, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty version label", ErrInvalidArgument)
	}

	unlock := c.lock(docID)
	defer unlock()

	var version *model.Version
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDocument(ctx, docID); err != nil {
			return err
		}

		previous, err := c.previousTx(ctx, tx, docID)
		if err != nil {
			return err
		}

		version, err = c.appendTx(ctx, tx, docID, label, artifact, previous)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	c.invalidate(ctx, docID)

	return version, nil
}

// AppendNext labels the new version from the current latest and appends it,
// both under the document's lock so concurrent appends never reuse a label.
func (c *VersionChain) AppendNext(ctx context.Context, docID uuid.UUID, suffix string, artifact Artifact) (*model.Version, error) {
	unlock := c.lock(docID)
	defer unlock()

	var version *model.Version
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDocument(ctx, docID); err != nil {
			return err
		}

		previous, err := c.previousTx(ctx, tx, docID)
		if err != nil {
			return err
		}

		var previousLabel *string
		if previous != nil {
			previousLabel = &previous.Label
		}

		version, err = c.appendTx(ctx, tx, docID, NextLabel(previousLabel, suffix), artifact, previous)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	c.invalidate(ctx, docID)

	return version, nil
}

// previousTx returns the version a new one follows: the flagged latest, else the newest, else nil.
func (c *VersionChain) previousTx(ctx context.Context, tx store.Store, docID uuid.UUID) (*model.Version, error) {
	previous, err := tx.GetFlaggedLatestVersion(ctx, docID)
	if err == nil {
		return previous, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	previous, err = tx.GetNewestVersion(ctx, docID)
	if err == nil {
		return previous, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}

	return nil, err
}

// appendTx unflags every version of the document and inserts the new latest.
// It must run inside a transaction that already locked the document.
func (c *VersionChain) appendTx(ctx context.Context, tx store.Store, docID uuid.UUID, label string, artifact Artifact, previous *model.Version) (*model.Version, error) {
	if artifact.Location == "" {
		return nil, fmt.Errorf("%w: artifact location is empty", ErrInvalidArgument)
	}

	owner, err := tx.GetVersionByLocation(ctx, artifact.Location)
	if err == nil {
		return nil, fmt.Errorf("%w: artifact %s already belongs to version %s", ErrInvalidArgument, artifact.Location, owner.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	mimeType := artifact.MimeType
	if mimeType == "" {
		mimeType = model.MimeTypePDF
	}

	// creation time orders the chain, keep it strictly increasing even across clock skew
	createdAt := c.now().UTC()
	if previous != nil && !createdAt.After(previous.CreatedAt) {
		createdAt = previous.CreatedAt.Add(time.Millisecond)
	}

	if err := tx.ClearLatestVersions(ctx, docID); err != nil {
		return nil, err
	}

	version := &model.Version{
		ID:         uuid.New().String(),
		DocumentID: docID.String(),
		Label:      label,
		Location:   artifact.Location,
		Size:       artifact.Size,
		MimeType:   mimeType,
		IsLatest:   true,
		CreatedAt:  createdAt,
	}
	if err := tx.CreateVersion(ctx, version); err != nil {
		return nil, err
	}

	return version, nil
}

// GetLatest returns the flagged latest version. A document whose flag went missing
// falls back to its newest version.
func (c *VersionChain) GetLatest(ctx context.Context, docID uuid.UUID) (*model.Version, error) {
	cached, generation, err := c.cache.GetLatest(ctx, docID.String())
	if err != nil {
		logrus.Warnf("latest version cache read failed for document %s: %v", docID, err)
	}
	if cached != nil {
		return cached, nil
	}

	// the fill only lands if no writer invalidated since the generation was read,
	// the lock keeps writers of this process out while the store is read
	unlock := c.lock(docID)
	defer unlock()

	latest, err := c.store.GetFlaggedLatestVersion(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		latest, err = c.store.GetNewestVersion(ctx, docID)
		if err == nil {
			logrus.Warnf("document %s has no version flagged latest, using newest version %s", docID, latest.Label)
		}
	}
	if err != nil {
		return nil, storageError(err)
	}

	if err := c.cache.SetLatest(ctx, docID.String(), latest, generation); err != nil {
		logrus.Warnf("latest version cache write failed for document %s: %v", docID, err)
	}

	return latest, nil
}

// ListVersions returns every version of a document, newest first.
func (c *VersionChain) ListVersions(ctx context.Context, docID uuid.UUID) ([]*model.Version, error) {
	versions, err := c.store.ListVersions(ctx, docID)
	if err != nil {
		return nil, storageError(err)
	}

	return versions, nil
}

// Repair flags the newest version latest on every document that has versions but no latest.
func (c *VersionChain) Repair(ctx context.Context) (int, error) {
	docIDs, err := c.store.ListDocumentsMissingLatest(ctx)
	if err != nil {
		return 0, storageError(err)
	}

	repaired := 0
	for _, docID := range docIDs {
		ok, err := c.repairDocument(ctx, docID)
		if err != nil {
			logrus.Errorf("failed to repair latest version of document %s: %v", docID, err)
			continue
		}
		if ok {
			repaired++
		}
	}

	return repaired, nil
}

func (c *VersionChain) repairDocument(ctx context.Context, docID uuid.UUID) (bool, error) {
	unlock := c.lock(docID)
	defer unlock()

	repaired := false
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDocument(ctx, docID); err != nil {
			return err
		}

		// an append may have fixed it since the scan
		_, err := tx.GetFlaggedLatestVersion(ctx, docID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		newest, err := tx.GetNewestVersion(ctx, docID)
		if err != nil {
			return err
		}

		if err := tx.FlagLatestVersion(ctx, uuid.MustParse(newest.ID)); err != nil {
			return err
		}

		logrus.Infof("flagged version %s (%s) latest for document %s", newest.Label, newest.ID, docID)
		repaired = true
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// orphaned versions without a document row are left alone
		return false, nil
	}
	if err != nil {
		return false, storageError(err)
	}

	if repaired {
		c.invalidate(ctx, docID)
	}

	return repaired, nil
}

func (c *VersionChain) invalidate(ctx context.Context, docID uuid.UUID) {
	if err := c.cache.Invalidate(ctx, docID.String()); err != nil {
		logrus.Errorf("failed to invalidate latest version cache for document %s: %v", docID, err)
	}
}
