package meta

import (
	"context"
	"fmt"
	"testing"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// setupTestRepo 构建隔离的测试环境 (每个测试一个内存库)
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(Models()...))
	return NewRepository(metaDB)
}

func record(id types.CID, fee types.Octas) core.ContentRecord {
	return core.ContentRecord{
		CID:         id,
		Owner:       "0xowner",
		OwnerName:   "alice",
		FileKind:    "png",
		FeePaid:     1000,
		ConsumerFee: fee,
		Title:       "title " + id.String(),
	}
}

// mustUpsert 强制写入镜像，失败则终止
func mustUpsert(t *testing.T, repo *Repository, records ...core.ContentRecord) {
	t.Helper()
	require.NoError(t, repo.UpsertRecords(context.Background(), records))
}
