package reconcile

import (
	"context"
	"errors"
	"fmt"

	"boxpeer/pkg/meta"
	"boxpeer/pkg/notice"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/types"
)

// LockFile 把 RemoteOnly 的内容拉取并 pin 到本地，然后领取奖励
// 1. FetchAndPin，CID 移到 Resident (失败：PinFailure，保持 RemoteOnly)
// 2. 奖励 = FeePaid * FractionBps / 10000，流水记为 pinned-unclaimed
// 3. ClaimReward (失败：RewardClaimFailure，CID 仍驻留，等待 RetryClaim)
// 同一 CID 的 lock/retry 不会并发执行，每次调用最多提交一次领奖交易。
// 没有流水且已驻留的 CID 返回 ErrAlreadyResident，不领奖。
func (r *Reconciler) LockFile(ctx context.Context, id types.CID) (Promotion, error) {
	if !r.role.CanProvide() {
		return Promotion{}, fmt.Errorf("%w: role %q", ErrNotProvider, r.role)
	}
	return r.exclusive(id, func() (Promotion, error) { return r.lockFile(ctx, id) })
}

func (r *Reconciler) lockFile(ctx context.Context, id types.CID) (Promotion, error) {
	prev, seen, err := r.journal.Get(ctx, id)
	if err != nil {
		r.notify(notice.Error, id, "failed to load promotion", err)
		return Promotion{}, &PromotionError{Stage: StagePin, CID: id, Err: err}
	}

	record, err := r.lookup(ctx, id)
	if err != nil {
		r.notify(notice.Error, id, "cannot lock unknown content", err)
		return Promotion{}, &PromotionError{Stage: StagePin, CID: id, Err: err}
	}

	// 没有流水却已驻留：不是本节点 lock 拉来的，没有可领的奖励
	if !seen {
		has, err := r.probe.HasFile(ctx, id)
		if err != nil {
			r.notify(notice.Error, id, "failed to check local pins", err)
			return Promotion{}, &PromotionError{Stage: StagePin, CID: id, Err: fmt.Errorf("%w: %v", ErrProbeFailure, err)}
		}
		if has {
			r.move(record, true)
			return Promotion{}, fmt.Errorf("%w: %s", ErrAlreadyResident, id)
		}
	}

	// 1. pin
	data, err := r.probe.FetchAndPin(ctx, id)
	if err != nil {
		r.notify(notice.Error, id, "failed to pin content", err)
		return Promotion{}, &PromotionError{Stage: StagePin, CID: id, Err: err}
	}
	r.move(record, true)
	if r.repo != nil {
		if err := r.repo.RecordPin(ctx, id, int64(len(data)), r.source); err != nil {
			r.notify(notice.Warning, id, "pinned but failed to record pin", err)
		}
	}

	// 已领取过：只补 pin，不再领奖
	if seen && prev.State == meta.PromotionClaimed {
		return prev, nil
	}

	// 2. 计算奖励并记流水
	p := Promotion{
		CID:    id,
		Owner:  r.owner,
		State:  meta.PromotionPinnedUnclaimed,
		Amount: Reward(record.FeePaid, r.bps),
	}
	if seen {
		p.Attempts = prev.Attempts
	}
	if err := r.journal.Save(ctx, p); err != nil {
		r.notify(notice.Warning, id, "failed to journal promotion", err)
	}

	// 3. 领奖
	return r.claim(ctx, p)
}

// RetryClaim 只对 pinned-unclaimed 的 CID 重新执行领奖步骤
func (r *Reconciler) RetryClaim(ctx context.Context, id types.CID) (Promotion, error) {
	return r.exclusive(id, func() (Promotion, error) {
		p, ok, err := r.journal.Get(ctx, id)
		if err != nil {
			return Promotion{}, fmt.Errorf("load promotion %s: %w", id, err)
		}
		if !ok || !p.Pending() {
			return p, fmt.Errorf("%w: %s", ErrNotPending, id)
		}
		return r.claim(ctx, p)
	})
}

// PendingClaims 所有 pinned-unclaimed 的流水
func (r *Reconciler) PendingClaims(ctx context.Context) ([]Promotion, error) {
	return r.journal.List(ctx, meta.PromotionPinnedUnclaimed)
}

// Promotions 全部流水
func (r *Reconciler) Promotions(ctx context.Context) ([]Promotion, error) {
	return r.journal.List(ctx, "")
}

func (r *Reconciler) claim(ctx context.Context, p Promotion) (Promotion, error) {
	receipt, err := r.registry.ClaimReward(ctx, p.Owner, p.CID, p.Amount)
	p.Attempts++
	if receipt.TxRef != "" {
		p.TxRef = receipt.TxRef
	}

	// 之前未确认的领奖后来上链了，账本会拒绝重复领取：视为已领取
	if err == nil || errors.Is(err, registry.ErrRewardAlreadyClaimed) {
		p.State = meta.PromotionClaimed
		p.LastError = ""
		if jerr := r.journal.Save(ctx, p); jerr != nil {
			r.notify(notice.Warning, p.CID, "reward claimed but failed to journal", jerr)
		}
		r.notify(notice.Info, p.CID, fmt.Sprintf("reward claimed: %s", p.Amount.APT()), nil)
		return p, nil
	}

	p.LastError = err.Error()
	if jerr := r.journal.Save(ctx, p); jerr != nil {
		r.notify(notice.Warning, p.CID, "failed to journal claim failure", jerr)
	}
	r.notify(notice.Error, p.CID, "content pinned but reward claim failed, retry the claim", err)
	return p, &PromotionError{Stage: StageClaim, CID: p.CID, Err: err}
}

// exclusive 同一 CID 的 lock/retry 合并为一次执行
func (r *Reconciler) exclusive(id types.CID, fn func() (Promotion, error)) (Promotion, error) {
	v, err, _ := r.locks.Do(id.String(), func() (interface{}, error) {
		return fn()
	})
	p, _ := v.(Promotion)
	return p, err
}
