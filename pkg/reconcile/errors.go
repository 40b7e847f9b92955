package reconcile

import (
	"errors"
	"fmt"

	"boxpeer/pkg/types"
)

var (
	// ErrProbeFailure 探测某个 CID 是否驻留失败，该 CID 按 RemoteOnly 处理
	ErrProbeFailure = errors.New("probe failure")
	// ErrPinFailure lockFile 第 1 步失败，CID 保持 RemoteOnly，不发起领奖
	ErrPinFailure = errors.New("pin failure")
	// ErrRewardClaimFailure lockFile 第 3 步失败，CID 已驻留，奖励待领取
	ErrRewardClaimFailure = errors.New("reward claim failure")

	ErrNotProvider = errors.New("node role cannot provide content")
	ErrNotPending  = errors.New("no pending reward claim")

	// ErrAlreadyResident 没有流水的 CID 本来就在本地 (例如自己发布的内容)，不领奖
	ErrAlreadyResident = errors.New("content already resident")
)

// Stage lockFile saga 的阶段
type Stage string

const (
	StagePin   Stage = "pin"
	StageClaim Stage = "claim"
)

// PromotionError 带阶段信息的 lockFile 错误
// errors.Is 同时匹配阶段哨兵 (ErrPinFailure / ErrRewardClaimFailure) 和底层原因。
type PromotionError struct {
	Stage Stage
	CID   types.CID
	Err   error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("lock %s failed at %s stage: %v", e.CID, e.Stage, e.Err)
}

func (e *PromotionError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *PromotionError) sentinel() error {
	if e.Stage == StageClaim {
		return ErrRewardClaimFailure
	}
	return ErrPinFailure
}
