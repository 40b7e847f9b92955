package registry

import (
	"context"
	"errors"
	"fmt"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"
)

var (
	// ErrRegistryUnavailable 读请求失败 (网络不可达或返回错误载荷)，可重试
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrPaymentRejected 交易被拒绝 (余额不足、合约拒绝)，本次尝试终止
	ErrPaymentRejected = errors.New("payment rejected")
	// ErrPaymentUnconfirmed 已提交但等待确认超时：结果未知，调用者应重新查询购买者集合
	ErrPaymentUnconfirmed = errors.New("payment unconfirmed")
	// ErrAlreadyPublished 同一个 CID 不能重复发布
	ErrAlreadyPublished = errors.New("content already published")
	// ErrRewardAlreadyClaimed 同一 owner/CID 的奖励已领取过；总是同时匹配 ErrPaymentRejected
	ErrRewardAlreadyClaimed = errors.New("reward already claimed")
)

// Receipt 交易回执
type Receipt struct {
	Success bool   `json:"success"`
	TxRef   string `json:"tx_ref"`
}

// Client 是账本/索引器的客户端
// 只有 PayForContent 和 ClaimReward 会产生不可逆的外部状态变化。
type Client interface {
	// ListAllContent 列出所有已发布记录。查询合法但无结果时返回空切片，不是错误。
	ListAllContent(ctx context.Context) ([]core.ContentRecord, error)

	// GetPurchasers 返回某个 CID 的已付费地址。没有购买者时返回空集合，不是错误。
	GetPurchasers(ctx context.Context, id types.CID) (core.PurchaserSet, error)

	// PayForContent 提交付费交易
	PayForContent(ctx context.Context, viewer types.Address, id types.CID) (Receipt, error)

	// ClaimReward 领取托管奖励
	ClaimReward(ctx context.Context, owner types.Address, id types.CID, amount types.Octas) (Receipt, error)
}

// Publisher 发布新内容 (对应 upload_content)
type Publisher interface {
	Publish(ctx context.Context, record core.ContentRecord) (Receipt, error)
}

// FindRecord 在全量列表里按 CID 查找
func FindRecord(ctx context.Context, c Client, id types.CID) (core.ContentRecord, error) {
	records, err := c.ListAllContent(ctx)
	if err != nil {
		return core.ContentRecord{}, err
	}
	for _, r := range records {
		if r.CID == id {
			return r, nil
		}
	}
	return core.ContentRecord{}, fmt.Errorf("%w: %s", core.ErrRecordMissing, id)
}

// IsTransactionError 交易类错误 (拒绝或未确认)
func IsTransactionError(err error) bool {
	return errors.Is(err, ErrPaymentRejected) || errors.Is(err, ErrPaymentUnconfirmed)
}
