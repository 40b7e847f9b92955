package registry

import (
	"context"
	"fmt"
	"testing"

	"boxpeer/pkg/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMirrorRepo(t *testing.T) *meta.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))
	return meta.NewRepository(metaDB)
}

func TestMirror_KeepsLastKnownWhenOffline(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	repo := newMirrorRepo(t)
	m := NewMirror(ledger, repo)

	records, err := m.ListAllContent(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	ledger.SetOffline(true)
	_, err = m.ListAllContent(ctx)
	require.ErrorIs(t, err, ErrRegistryUnavailable)

	last, err := m.LastKnown(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, records, last)
}

func TestMirror_PurchaserSnapshot(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	ledger.Fund(viewer, 500_000_000)
	repo := newMirrorRepo(t)
	m := NewMirror(ledger, repo)

	_, err := m.PayForContent(ctx, viewer, "Qm2")
	require.NoError(t, err)

	set, err := m.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.True(t, set.Contains(viewer))

	snapshot, err := repo.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.True(t, snapshot.Contains(viewer))
}

func TestMirror_Publish(t *testing.T) {
	ctx := context.Background()
	m := NewMirror(newLedger(t), newMirrorRepo(t))
	_, err := m.Publish(ctx, paidRecord())
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}
