// Package viewer drives the view side of the access pipeline:
// registry lookup, access decision, render, cache.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boxpeer/pkg/access"
	"boxpeer/pkg/core"
	"boxpeer/pkg/notice"
	"boxpeer/pkg/preview"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options Session 的依赖
type Options struct {
	Viewer   types.Address
	Registry registry.Client
	// Content 内容字节来源，只在 UNLOCKED 时调用
	Content  storage.Fetcher
	Notifier notice.Notifier

	// CacheTTL <= 0 表示会话内不过期
	CacheTTL time.Duration
	// RequeryAttempts 付款后重新查询购买者的次数 (索引器可能有延迟)
	RequeryAttempts int
	RequeryInterval time.Duration
	// Concurrency OpenAll 的并发上限
	Concurrency int
	// PayTimeout 一次付款 (提交 + 重新查询) 的总时限，不随调用者的 ctx 取消
	PayTimeout time.Duration
}

// PayResult 一次付款流程的结果
type PayResult struct {
	Receipt registry.Receipt
	Element preview.Element
	// Unlocked 重新查询购买者后的判定结果
	Unlocked bool
	// AlreadyUnlocked 无需付款 (免费或已购买)，没有提交交易
	AlreadyUnlocked bool
	// Shared 本次调用合并到了同一 CID 正在进行的付款上
	Shared bool
}

// Session 一个观看者的视图会话，持有预览缓存和 blob handle
type Session struct {
	viewer   types.Address
	registry registry.Client
	content  storage.Fetcher
	notices  notice.Notifier

	renderer *preview.Renderer
	cache    *preview.Cache

	requeryAttempts int
	requeryInterval time.Duration
	concurrency     int
	payTimeout      time.Duration

	payments singleflight.Group
	mu       sync.Mutex
	paying   map[types.CID]struct{}
}

func NewSession(opts Options) *Session {
	s := &Session{
		viewer:          opts.Viewer.Normalize(),
		registry:        opts.Registry,
		content:         opts.Content,
		notices:         opts.Notifier,
		renderer:        preview.NewRenderer(preview.NewBlobStore()),
		cache:           preview.NewCache(opts.CacheTTL),
		requeryAttempts: opts.RequeryAttempts,
		requeryInterval: opts.RequeryInterval,
		concurrency:     opts.Concurrency,
		payTimeout:      opts.PayTimeout,
		paying:          make(map[types.CID]struct{}),
	}
	if s.notices == nil {
		s.notices = notice.Log{}
	}
	if s.requeryAttempts <= 0 {
		s.requeryAttempts = 3
	}
	if s.requeryInterval <= 0 {
		s.requeryInterval = 500 * time.Millisecond
	}
	if s.concurrency <= 0 {
		s.concurrency = 8
	}
	if s.payTimeout <= 0 {
		s.payTimeout = 2 * time.Minute
	}
	return s
}

func (s *Session) Viewer() types.Address     { return s.viewer }
func (s *Session) Cache() *preview.Cache     { return s.cache }
func (s *Session) Blobs() *preview.BlobStore { return s.renderer.Blobs() }

// Close 视图销毁：释放所有 blob handle
func (s *Session) Close() {
	s.renderer.Blobs().RevokeAll()
}

// Paying 该 CID 是否有付款正在进行
func (s *Session) Paying(id types.CID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paying[id]
	return ok
}

// Open 计算一个 CID 的预览并写入缓存
// 账本不可读时保留已有的缓存条目：有缓存返回缓存，否则返回错误。
func (s *Session) Open(ctx context.Context, id types.CID) (preview.Element, error) {
	record, err := registry.FindRecord(ctx, s.registry, id)
	if err != nil {
		return s.fallback(id, err)
	}
	return s.openRecord(ctx, record)
}

// OpenAll 列出全部内容并逐个计算预览
// 单个 CID 的失败只产生提示，不影响其他 CID。
func (s *Session) OpenAll(ctx context.Context) ([]preview.Element, error) {
	records, err := s.registry.ListAllContent(ctx)
	if err != nil {
		s.notify(notice.Warning, "", "content listing unavailable", err)
		return nil, err
	}

	out := make([]preview.Element, len(records))
	ok := make([]bool, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range records {
		g.Go(func() error {
			el, err := s.openRecord(gctx, r)
			if err != nil {
				// 已在 openRecord 中提示
				return nil
			}
			out[i], ok[i] = el, true
			return nil
		})
	}
	_ = g.Wait()

	elements := make([]preview.Element, 0, len(records))
	for i := range out {
		if ok[i] {
			elements = append(elements, out[i])
		}
	}
	return elements, ctx.Err()
}

func (s *Session) openRecord(ctx context.Context, record core.ContentRecord) (preview.Element, error) {
	purchasers := core.NewPurchaserSet()
	if !record.IsFree() {
		set, err := s.registry.GetPurchasers(ctx, record.CID)
		if err != nil {
			return s.fallback(record.CID, err)
		}
		purchasers = set
	}
	return s.render(ctx, record, access.Decide(record, s.viewer, purchasers))
}

// render 只有 UNLOCKED 才读取内容字节
func (s *Session) render(ctx context.Context, record core.ContentRecord, decision access.Decision) (preview.Element, error) {
	var data []byte
	if decision.Unlocked() {
		if s.content == nil {
			return preview.Element{}, fmt.Errorf("%w: no content source configured", preview.ErrNoContent)
		}
		var err error
		data, err = s.content.Fetch(ctx, record.CID)
		if err != nil {
			s.notify(notice.Error, record.CID, "failed to fetch content bytes", err)
			return preview.Element{}, fmt.Errorf("fetch %s: %w", record.CID, err)
		}
	}

	el, err := s.renderer.Render(record, decision, data)
	if err != nil {
		s.notify(notice.Error, record.CID, "failed to render preview", err)
		return preview.Element{}, err
	}
	s.cache.Put(record.CID, el, record)
	return el, nil
}

func (s *Session) fallback(id types.CID, err error) (preview.Element, error) {
	if errors.Is(err, registry.ErrRegistryUnavailable) {
		s.notify(notice.Warning, id, "registry unavailable, showing last known preview", err)
		if entry, ok := s.cache.Get(id); ok {
			return entry.Element, nil
		}
	} else {
		s.notify(notice.Error, id, "preview unavailable", err)
	}
	return preview.Element{}, err
}

// Pay 为 CID 付款，然后重新查询购买者、重新判定、重新渲染并更新缓存
// 同一 CID 同时只有一个付款在进行：并发调用会合并到正在进行的那一次。
// 调用者的 ctx 取消只让该调用者提前返回，不会中断其他调用者共享的付款。
// 交易结果未知 (ErrPaymentUnconfirmed) 时不假设成功，以重新查询的购买者集合为准。
func (s *Session) Pay(ctx context.Context, id types.CID) (PayResult, error) {
	if s.viewer.IsZero() {
		return PayResult{}, fmt.Errorf("%w: connect an account to pay", registry.ErrPaymentRejected)
	}

	// 付款属于所有合并进来的调用者：脱离发起者的 ctx，只受 payTimeout 约束
	ch := s.payments.DoChan(id.String(), func() (interface{}, error) {
		s.mu.Lock()
		s.paying[id] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.paying, id)
			s.mu.Unlock()
		}()
		payCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.payTimeout)
		defer cancel()
		return s.pay(payCtx, id)
	})

	select {
	case <-ctx.Done():
		// 只是这个调用者不再等待，付款本身继续
		return PayResult{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(PayResult)
		res.Shared = r.Shared
		return res, r.Err
	}
}

func (s *Session) pay(ctx context.Context, id types.CID) (PayResult, error) {
	record, err := registry.FindRecord(ctx, s.registry, id)
	if err != nil {
		s.notify(notice.Warning, id, "cannot load content before payment", err)
		return PayResult{}, err
	}

	// 1. 已解锁就不再付款
	before, err := s.registry.GetPurchasers(ctx, id)
	if err != nil {
		s.notify(notice.Warning, id, "cannot load purchasers before payment", err)
		return PayResult{}, err
	}
	if d := access.Decide(record, s.viewer, before); d.Unlocked() {
		el, err := s.render(ctx, record, d)
		return PayResult{Element: el, Unlocked: true, AlreadyUnlocked: true}, err
	}

	// 2. 提交交易
	receipt, payErr := s.registry.PayForContent(ctx, s.viewer, id)
	switch {
	case payErr == nil:
		s.notify(notice.Info, id, "payment confirmed "+receipt.TxRef, nil)
	case errors.Is(payErr, registry.ErrPaymentUnconfirmed):
		s.notify(notice.Warning, id, "payment submitted but not confirmed, re-checking purchase state", payErr)
	default:
		s.notify(notice.Error, id, "payment rejected", payErr)
		return PayResult{Receipt: receipt}, payErr
	}

	// 3. 重新查询购买者 (不从回执推断结果)
	purchasers, err := s.requery(ctx, id)
	if err != nil {
		s.notify(notice.Warning, id, "cannot re-check purchase state", err)
		if payErr != nil {
			return PayResult{Receipt: receipt}, payErr
		}
		return PayResult{Receipt: receipt}, err
	}

	// 4. 重新判定、重新渲染、更新缓存
	d := access.Decide(record, s.viewer, purchasers)
	el, err := s.render(ctx, record, d)
	res := PayResult{Receipt: receipt, Element: el, Unlocked: d.Unlocked()}
	if err != nil {
		return res, err
	}
	if !d.Unlocked() {
		if payErr != nil {
			return res, payErr
		}
		s.notify(notice.Warning, id, "payment confirmed but purchase not yet visible", nil)
	}
	return res, nil
}

// requery 购买者集合可能滞后于交易确认，有限次重试
func (s *Session) requery(ctx context.Context, id types.CID) (core.PurchaserSet, error) {
	var (
		set core.PurchaserSet
		err error
	)
	for attempt := 0; attempt < s.requeryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return set, ctx.Err()
			case <-time.After(s.requeryInterval):
			}
		}
		set, err = s.registry.GetPurchasers(ctx, id)
		if err == nil && set.Contains(s.viewer) {
			return set, nil
		}
	}
	return set, err
}

func (s *Session) notify(level notice.Level, id types.CID, msg string, err error) {
	s.notices.Notify(notice.Notice{Level: level, CID: id, Message: msg, Err: err})
}
