package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emrgen/docvault/internal/blob"
	"github.com/emrgen/docvault/internal/cache"
	"github.com/emrgen/docvault/internal/compress"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/queue"
	"github.com/emrgen/docvault/internal/store"
	"github.com/emrgen/docvault/internal/tester"
)

type testEnv struct {
	db      *gorm.DB
	store   store.Store
	blobs   *blob.FileStore
	events  *queue.MemoryPublisher
	service *DocumentService
	// failTable makes every insert into the named table fail while set
	failTable atomic.Value
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithCache(t, cache.NewNop())
}

func newTestEnvWithCache(t *testing.T, latest cache.LatestCache) *testEnv {
	return newTestEnvWithDB(t, tester.NewDB(), latest)
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB, latest cache.LatestCache) *testEnv {
	blobs, err := blob.NewFileStore(tester.BlobDir(), compress.NewNop())
	require.NoError(t, err)

	env := &testEnv{
		db:     db,
		store:  store.NewGormStore(db),
		blobs:  blobs,
		events: queue.NewMemoryPublisher(),
	}
	env.failTable.Store("")

	err = db.Callback().Create().Before("gorm:create").Register("test:fail_inserts", func(tx *gorm.DB) {
		table, _ := env.failTable.Load().(string)
		if table != "" && tx.Statement.Schema != nil && tx.Statement.Schema.Table == table {
			_ = tx.AddError(errors.New("injected storage failure"))
		}
	})
	require.NoError(t, err)

	env.service = NewDocumentService(env.store, env.blobs, latest, env.events)
	return env
}

func (e *testEnv) failInserts(table string) {
	e.failTable.Store(table)
}

func (e *testEnv) artifact(t *testing.T, content string) Artifact {
	obj, err := e.blobs.Put(context.TODO(), bytes.NewReader([]byte(content)), ".pdf")
	require.NoError(t, err)
	return Artifact{Location: obj.Location, Size: obj.Size, MimeType: model.MimeTypePDF}
}

func (e *testEnv) createDocument(t *testing.T, owner uuid.UUID, name string) uuid.UUID {
	doc, _, err := e.service.CreateDocument(context.TODO(), owner, name, e.artifact(t, "%PDF "+name))
	require.NoError(t, err)
	return uuid.MustParse(doc.ID)
}

func (e *testEnv) share(t *testing.T, owner, docID, target uuid.UUID, level model.Level) {
	require.NoError(t, e.service.Share(context.TODO(), owner, docID, target, level))
}

func (e *testEnv) count(t *testing.T, value any, docID uuid.UUID) int64 {
	var n int64
	err := e.db.Model(value).Where("document_id = ?", docID.String()).Count(&n).Error
	require.NoError(t, err)
	return n
}

func (e *testEnv) latestFlags(t *testing.T, docID uuid.UUID) int64 {
	var n int64
	err := e.db.Model(&model.Version{}).Where("document_id = ? AND is_latest = ?", docID.String(), true).Count(&n).Error
	require.NoError(t, err)
	return n
}

// onFirstDelete runs hook before the first removal it forwards.
type onFirstDelete struct {
	blob.Store
	once sync.Once
	hook func()
}

func (o *onFirstDelete) Delete(ctx context.Context, location string) error {
	o.once.Do(o.hook)
	return o.Store.Delete(ctx, location)
}

// failingBlobs refuses to delete anything.
type failingBlobs struct {
	blob.Store
}

func (f failingBlobs) Delete(ctx context.Context, location string) error {
	return errors.New("permission denied")
}
