package reconcile

import (
	"context"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/notice"
	"boxpeer/pkg/registry"
)

// DefaultInterval Watch 的默认轮询间隔
const DefaultInterval = 30 * time.Second

// Source 提供当前已知的记录集合
type Source func(ctx context.Context) ([]core.ContentRecord, error)

// RegistrySource 以账本全量列表作为记录来源
func RegistrySource(c registry.Client) Source {
	return c.ListAllContent
}

// Watch 立即执行一轮，之后按 interval 轮询；CID 集合变化时重新划分
// 绑定在 ctx 上：ctx 取消后返回 ctx.Err()，不会再发起新的探测。
// onPass 可为 nil，每次真正执行了划分后回调。
func (r *Reconciler) Watch(ctx context.Context, interval time.Duration, source Source, onPass func(Snapshot)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx, source, onPass)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, source Source, onPass func(Snapshot)) {
	records, err := source(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.notify(notice.Warning, "", "cannot list content, keeping previous availability", err)
		}
		return
	}
	snap, ran, err := r.Refresh(ctx, records, false)
	if err != nil || !ran {
		return
	}
	if onPass != nil {
		onPass(snap)
	}
}
