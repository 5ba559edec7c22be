package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emrgen/docvault/internal/model"
)

func insertPermission(t *testing.T, env *testEnv, userID, docID uuid.UUID, level model.Level) {
	err := env.store.CreatePermission(context.TODO(), &model.Permission{
		ID:         uuid.New().String(),
		UserID:     userID.String(),
		DocumentID: docID.String(),
		Level:      level,
	})
	require.NoError(t, err)
}

func TestPermissionLedger_ResolveLevel(t *testing.T) {
	tests := []struct {
		name   string
		levels []model.Level
		want   model.Level
		ok     bool
	}{
		{"no rows", nil, "", false},
		{"single viewer", []model.Level{model.LevelViewer}, model.LevelViewer, true},
		{"max wins", []model.Level{model.LevelViewer, model.LevelOwner, model.LevelEditor}, model.LevelOwner, true},
		{"duplicates", []model.Level{model.LevelEditor, model.LevelEditor}, model.LevelEditor, true},
		{"unknown ignored", []model.Level{"admin", model.LevelViewer}, model.LevelViewer, true},
		{"only unknown", []model.Level{"admin", "superuser"}, "", false},
	}

	env := newTestEnv(t)
	ledger := env.service.Ledger()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID := env.createDocument(t, uuid.New(), tt.name+".pdf")
			userID := uuid.New()
			for _, level := range tt.levels {
				insertPermission(t, env, userID, docID, level)
			}

			level, ok, err := ledger.ResolveLevel(context.TODO(), userID, docID)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, level)
			}
		})
	}
}

func TestPermissionLedger_GrantInsertsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	ledger := env.service.Ledger()
	docID := env.createDocument(t, uuid.New(), "contract.pdf")
	userID := uuid.New()

	require.NoError(t, ledger.Grant(ctx, userID, docID, model.LevelViewer))
	require.NoError(t, ledger.Grant(ctx, userID, docID, model.LevelEditor))

	rows, err := env.store.ListPermissions(ctx, userID, docID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.LevelEditor, rows[0].Level)

	// a grant replaces the level, it can also lower it
	require.NoError(t, ledger.Grant(ctx, userID, docID, model.LevelViewer))
	level, ok, err := ledger.ResolveLevel(ctx, userID, docID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.LevelViewer, level)
}

func TestPermissionLedger_GrantUpdatesDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	docID := env.createDocument(t, uuid.New(), "contract.pdf")
	userID := uuid.New()

	insertPermission(t, env, userID, docID, model.LevelViewer)
	insertPermission(t, env, userID, docID, model.LevelEditor)

	require.NoError(t, env.service.Ledger().Grant(ctx, userID, docID, model.LevelViewer))

	rows, err := env.store.ListPermissions(ctx, userID, docID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.LevelViewer, row.Level)
	}

	level, _, err := env.service.Ledger().ResolveLevel(ctx, userID, docID)
	require.NoError(t, err)
	assert.Equal(t, model.LevelViewer, level)
}

func TestPermissionLedger_GrantRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	docID := env.createDocument(t, uuid.New(), "contract.pdf")

	err := env.service.Ledger().Grant(ctx, uuid.New(), docID, "admin")
	assert.ErrorIs(t, err, ErrInvalidLevel)

	err = env.service.Ledger().Grant(ctx, uuid.New(), uuid.New(), model.LevelViewer)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPermissionLedger_IsShared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.TODO()
	owner := uuid.New()
	docID := env.createDocument(t, owner, "contract.pdf")
	ledger := env.service.Ledger()

	shared, err := ledger.IsShared(ctx, docID)
	require.NoError(t, err)
	assert.False(t, shared)

	require.NoError(t, ledger.Grant(ctx, uuid.New(), docID, model.LevelViewer))
	shared, err = ledger.IsShared(ctx, docID)
	require.NoError(t, err)
	assert.True(t, shared)

	grants, err := ledger.ListGrants(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	shared, err = ledger.IsShared(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, shared)
}
