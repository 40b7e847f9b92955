package registry

import (
	"context"
	"errors"
	"log/slog"

	"boxpeer/pkg/core"
	"boxpeer/pkg/meta"
	"boxpeer/pkg/types"
)

var errNoPublisher = errors.New("ledger backend does not accept publications")

// Mirror 装饰一个 Client，把读到的记录和购买者写入本地数据库
// 读写语义不变：结果总是来自账本，镜像失败只记日志。
// 账本不可用时，调用方可以通过 LastKnown 拿到上一次成功的列表。
type Mirror struct {
	inner Client
	repo  *meta.Repository
}

func NewMirror(inner Client, repo *meta.Repository) *Mirror {
	return &Mirror{inner: inner, repo: repo}
}

func (m *Mirror) ListAllContent(ctx context.Context) ([]core.ContentRecord, error) {
	records, err := m.inner.ListAllContent(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.repo.UpsertRecords(ctx, records); err != nil {
		slog.Warn("registry mirror write failed", "records", len(records), "error", err)
	}
	return records, nil
}

func (m *Mirror) GetPurchasers(ctx context.Context, id types.CID) (core.PurchaserSet, error) {
	set, err := m.inner.GetPurchasers(ctx, id)
	if err != nil {
		return core.PurchaserSet{}, err
	}
	if _, err := m.repo.MergePurchasers(ctx, id, set); err != nil {
		slog.Warn("purchaser mirror write failed", "cid", id, "error", err)
	}
	return set, nil
}

func (m *Mirror) PayForContent(ctx context.Context, viewer types.Address, id types.CID) (Receipt, error) {
	return m.inner.PayForContent(ctx, viewer, id)
}

func (m *Mirror) ClaimReward(ctx context.Context, owner types.Address, id types.CID, amount types.Octas) (Receipt, error) {
	return m.inner.ClaimReward(ctx, owner, id, amount)
}

func (m *Mirror) Publish(ctx context.Context, record core.ContentRecord) (Receipt, error) {
	p, ok := m.inner.(Publisher)
	if !ok {
		return Receipt{}, errNoPublisher
	}
	return p.Publish(ctx, record)
}

// LastKnown 返回镜像中的记录 (仅用于离线展示，不能作为访问判定依据)
func (m *Mirror) LastKnown(ctx context.Context) ([]core.ContentRecord, error) {
	return m.repo.ListRecords(ctx)
}
