package meta

import (
	"context"
	"path/filepath"
	"testing"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_RecordMirror(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustUpsert(t, repo, record("Qm2", 5), record("Qm1", 0))

	got, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.CID("Qm1"), got[0].CID, "ordered by cid")
	assert.Equal(t, record("Qm1", 0), got[0])

	one, err := repo.GetRecord(ctx, "Qm2")
	require.NoError(t, err)
	assert.Equal(t, types.Octas(5), one.ConsumerFee)

	_, err = repo.GetRecord(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrRecordMissing)
}

func TestRepository_UpsertRecords_Idempotency(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustUpsert(t, repo, record("Qm1", 0))
	mustUpsert(t, repo, record("Qm1", 0))

	// 1. 同一 CID 只有一行
	var count int64
	require.NoError(t, repo.db.GetConn().Model(&RecordModel{}).Where("cid = ?", "Qm1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 2. 指纹变化时更新
	changed := record("Qm1", 0)
	changed.Title = "renamed"
	mustUpsert(t, repo, changed)

	got, err := repo.GetRecord(ctx, "Qm1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
}

func TestRepository_MergePurchasers_Monotonic(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// 1. Miss -> 空集合
	empty, err := repo.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	// 2. 合并
	merged, err := repo.MergePurchasers(ctx, "Qm2", core.NewPurchaserSet("0xA", "0xb"))
	require.NoError(t, err)
	assert.Equal(t, []types.Address{"0xa", "0xb"}, merged.Addresses())

	// 3. 较小的集合不会让快照缩小
	merged, err = repo.MergePurchasers(ctx, "Qm2", core.NewPurchaserSet("0xc"))
	require.NoError(t, err)
	assert.Equal(t, []types.Address{"0xa", "0xb", "0xc"}, merged.Addresses())

	stored, err := repo.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.Equal(t, merged.Addresses(), stored.Addresses())
}

func TestRepository_PromotionJournal(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetPromotion(ctx, "Qm2")
	assert.ErrorIs(t, err, ErrPromotionNotFound)

	// 1. pin 成功、领奖失败
	p := &PromotionModel{CID: "Qm2", Owner: "0xme", State: PromotionPinnedUnclaimed, Amount: 100, Attempts: 1, LastError: "boom"}
	require.NoError(t, repo.SavePromotion(ctx, p))
	require.NoError(t, repo.SavePromotion(ctx, &PromotionModel{CID: "Qm3", Owner: "0xme", State: PromotionClaimed, Amount: 7, Attempts: 1}))

	pending, err := repo.ListPromotions(ctx, PromotionPinnedUnclaimed)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Qm2", pending[0].CID)
	assert.Equal(t, "boom", pending[0].LastError)

	// 2. 修复后覆盖写
	p.State = PromotionClaimed
	p.Attempts = 2
	p.LastError = ""
	p.TxRef = "0x01"
	require.NoError(t, repo.SavePromotion(ctx, p))

	got, err := repo.GetPromotion(ctx, "Qm2")
	require.NoError(t, err)
	assert.Equal(t, PromotionClaimed, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.LastError)

	pending, err = repo.ListPromotions(ctx, PromotionPinnedUnclaimed)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := repo.ListPromotions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_Pins(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordPin(ctx, "Qm1", 10, "local"))
	require.NoError(t, repo.RecordPin(ctx, "Qm1", 12, "peer-a:7070"))

	pins, err := repo.ListPins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, int64(12), pins[0].SizeBytes)
	assert.Equal(t, "peer-a:7070", pins[0].Source)

	require.NoError(t, repo.RemovePin(ctx, "Qm1"))
	assert.ErrorIs(t, repo.RemovePin(ctx, "Qm1"), ErrPinNotFound)
}

func TestNewDB_Sqlite(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	mustUpsert(t, repo, record("Qm1", 0))
	got, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewDB_UnknownDriver(t *testing.T) {
	_, err := NewDB(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}

// 查询里手写的列名必须与模型映射一致
func TestModels_CIDColumn(t *testing.T) {
	repo := setupTestRepo(t)
	m := repo.db.GetConn().Migrator()
	for _, model := range Models() {
		assert.True(t, m.HasColumn(model, "cid"), "%T has no cid column", model)
		assert.False(t, m.HasColumn(model, "c_id"), "%T still maps c_id", model)
	}
}
