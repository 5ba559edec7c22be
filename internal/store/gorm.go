package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emrgen/docvault/internal/model"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	return g.db.WithContext(ctx).Omit(clause.Associations).Create(doc).Error
}

func (g *GormStore) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Where("id = ?", id.String()).First(&doc).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// LockDocument must run inside Transaction. Postgres takes a FOR UPDATE row lock;
// sqlite serializes writers on the database file so a plain read is enough.
func (g *GormStore) LockDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	q := g.db.WithContext(ctx)
	if g.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	err := q.Where("id = ?", id.String()).First(&doc).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (g *GormStore) ListUserDocuments(ctx context.Context, userID uuid.UUID) ([]*model.Document, error) {
	var docs []*model.Document
	granted := g.db.Model(&model.Permission{}).Select("document_id").Where("user_id = ?", userID.String())
	err := g.db.WithContext(ctx).Where("id IN (?)", granted).Order("created_at desc").Find(&docs).Error
	return docs, err
}

func (g *GormStore) ListDocumentsMissingLatest(ctx context.Context) ([]uuid.UUID, error) {
	var ids []string
	err := g.db.WithContext(ctx).Model(&model.Version{}).
		Group("document_id").
		Having("SUM(CASE WHEN is_latest THEN 1 ELSE 0 END) = 0").
		Pluck("document_id", &ids).Error
	if err != nil {
		return nil, err
	}

	docIDs := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		docID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		docIDs = append(docIDs, docID)
	}

	return docIDs, nil
}

func (g *GormStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Where("id = ?", id.String()).Delete(&model.Document{}).Error
}

func (g *GormStore) CreateVersion(ctx context.Context, version *model.Version) error {
	return g.db.WithContext(ctx).Create(version).Error
}

func (g *GormStore) GetVersion(ctx context.Context, id uuid.UUID) (*model.Version, error) {
	var version model.Version
	err := g.db.WithContext(ctx).Where("id = ?", id.String()).First(&version).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &version, nil
}

func (g *GormStore) GetVersionByLocation(ctx context.Context, location string) (*model.Version, error) {
	var version model.Version
	err := g.db.WithContext(ctx).Where("location = ?", location).First(&version).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &version, nil
}

func (g *GormStore) ListVersions(ctx context.Context, docID uuid.UUID) ([]*model.Version, error) {
	var versions []*model.Version
	err := g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Order("created_at desc").Find(&versions).Error
	return versions, err
}

func (g *GormStore) GetFlaggedLatestVersion(ctx context.Context, docID uuid.UUID) (*model.Version, error) {
	var version model.Version
	err := g.db.WithContext(ctx).
		Where("document_id = ? AND is_latest = ?", docID.String(), true).
		Order("created_at desc").
		First(&version).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &version, nil
}

func (g *GormStore) GetNewestVersion(ctx context.Context, docID uuid.UUID) (*model.Version, error) {
	var version model.Version
	err := g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Order("created_at desc").First(&version).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &version, nil
}

func (g *GormStore) ClearLatestVersions(ctx context.Context, docID uuid.UUID) error {
	return g.db.WithContext(ctx).Model(&model.Version{}).
		Where("document_id = ? AND is_latest = ?", docID.String(), true).
		Update("is_latest", false).Error
}

func (g *GormStore) FlagLatestVersion(ctx context.Context, id uuid.UUID) error {
	res := g.db.WithContext(ctx).Model(&model.Version{}).Where("id = ?", id.String()).Update("is_latest", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) DeleteVersions(ctx context.Context, docID uuid.UUID) error {
	return g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Delete(&model.Version{}).Error
}

func (g *GormStore) CreatePermission(ctx context.Context, permission *model.Permission) error {
	return g.db.WithContext(ctx).Create(permission).Error
}

func (g *GormStore) ListPermissions(ctx context.Context, userID, docID uuid.UUID) ([]*model.Permission, error) {
	var permissions []*model.Permission
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ?", userID.String(), docID.String()).
		Order("created_at asc").
		Find(&permissions).Error
	return permissions, err
}

func (g *GormStore) ListDocumentPermissions(ctx context.Context, docID uuid.UUID) ([]*model.Permission, error) {
	var permissions []*model.Permission
	err := g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Order("created_at asc").Find(&permissions).Error
	return permissions, err
}

func (g *GormStore) CountDocumentPermissions(ctx context.Context, docID uuid.UUID) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.Permission{}).Where("document_id = ?", docID.String()).Count(&count).Error
	return count, err
}

func (g *GormStore) UpdatePermissionLevel(ctx context.Context, userID, docID uuid.UUID, level model.Level) (int64, error) {
	res := g.db.WithContext(ctx).Model(&model.Permission{}).
		Where("user_id = ? AND document_id = ?", userID.String(), docID.String()).
		Update("level", level)
	return res.RowsAffected, res.Error
}

func (g *GormStore) DeletePermissions(ctx context.Context, docID uuid.UUID) error {
	return g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Delete(&model.Permission{}).Error
}

func (g *GormStore) SavePendingArtifact(ctx context.Context, artifact *model.PendingArtifact) error {
	return g.db.WithContext(ctx).Save(artifact).Error
}

func (g *GormStore) RecordArtifactFailure(ctx context.Context, location string, docID uuid.UUID, lastError string) error {
	artifact := &model.PendingArtifact{
		Location:   location,
		DocumentID: docID.String(),
		Attempts:   1,
		LastError:  lastError,
	}

	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "location"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempts":   gorm.Expr("pending_artifacts.attempts + 1"),
			"last_error": lastError,
			"updated_at": time.Now(),
		}),
	}).Create(artifact).Error
}

func (g *GormStore) ListPendingArtifacts(ctx context.Context, limit int) ([]*model.PendingArtifact, error) {
	var artifacts []*model.PendingArtifact
	err := g.db.WithContext(ctx).Order("updated_at asc").Limit(limit).Find(&artifacts).Error
	return artifacts, err
}

func (g *GormStore) DeletePendingArtifact(ctx context.Context, location string) error {
	return g.db.WithContext(ctx).Where("location = ?", location).Delete(&model.PendingArtifact{}).Error
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
