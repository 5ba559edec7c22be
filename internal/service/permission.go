package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/store"
)

// PermissionLedger records who holds which level on which document.
type PermissionLedger struct {
	store store.Store
}

func NewPermissionLedger(store store.Store) *PermissionLedger {
	return &PermissionLedger{store: store}
}

// Grant sets the level of a user on a document. Existing rows for the pair, duplicates
// included, are updated in place; a new row is written only when none exists.
func (l *PermissionLedger) Grant(ctx context.Context, userID, docID uuid.UUID, level model.Level) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	err := l.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDocument(ctx, docID); err != nil {
			return err
		}

		return l.grantTx(ctx, tx, userID, docID, level)
	})

	return storageError(err)
}

func (l *PermissionLedger) grantTx(ctx context.Context, tx store.Store, userID, docID uuid.UUID, level model.Level) error {
	updated, err := tx.UpdatePermissionLevel(ctx, userID, docID, level)
	if err != nil {
		return err
	}

	if updated > 1 {
		logrus.Warnf("user %s holds %d permission rows on document %s, all set to %s", userID, updated, docID, level)
	}
	if updated > 0 {
		return nil
	}

	return tx.CreatePermission(ctx, &model.Permission{
		ID:         uuid.New().String(),
		UserID:     userID.String(),
		DocumentID: docID.String(),
		Level:      level,
	})
}

// ResolveLevel returns the highest level a user holds on a document.
// Rows carrying an unknown level are ignored; ok is false when no usable row is left.
func (l *PermissionLedger) ResolveLevel(ctx context.Context, userID, docID uuid.UUID) (model.Level, bool, error) {
	permissions, err := l.store.ListPermissions(ctx, userID, docID)
	if err != nil {
		return "", false, storageError(err)
	}

	levels := make([]model.Level, 0, len(permissions))
	for _, permission := range permissions {
		if !permission.Level.Valid() {
			logrus.Debugf("ignoring permission %s with unknown level %q", permission.ID, permission.Level)
			continue
		}
		levels = append(levels, permission.Level)
	}

	level, ok := model.HighestLevel(levels)
	return level, ok, nil
}

// IsShared reports whether a document has more than one permission row.
func (l *PermissionLedger) IsShared(ctx context.Context, docID uuid.UUID) (bool, error) {
	count, err := l.store.CountDocumentPermissions(ctx, docID)
	if err != nil {
		return false, storageError(err)
	}

	return count > 1, nil
}

// ListGrants returns every permission row of a document.
func (l *PermissionLedger) ListGrants(ctx context.Context, docID uuid.UUID) ([]*model.Permission, error) {
	permissions, err := l.store.ListDocumentPermissions(ctx, docID)
	if err != nil {
		return nil, storageError(err)
	}

	return permissions, nil
}
