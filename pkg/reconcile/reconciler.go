// Package reconcile tracks which published CIDs are pinned locally and
// promotes remote-only content into the local store (lockFile).
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/meta"
	"boxpeer/pkg/notice"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultFractionBps 奖励 = FeePaid 的 10%
const DefaultFractionBps = 1000

type Availability int

const (
	Unknown Availability = iota
	Resident
	RemoteOnly
)

func (a Availability) String() string {
	switch a {
	case Resident:
		return "resident"
	case RemoteOnly:
		return "remote-only"
	default:
		return "unknown"
	}
}

// Snapshot 一次完整的划分结果
// Resident 与 RemoteOnly 不相交，并集等于本轮输入的 CID 集合。
type Snapshot struct {
	Resident   []types.CID `json:"resident" yaml:"resident"`
	RemoteOnly []types.CID `json:"remote_only" yaml:"remote_only"`
	// Failed 本轮探测失败的 CID (已计入 RemoteOnly)
	Failed []types.CID `json:"failed,omitempty" yaml:"failed,omitempty"`
	Pass   int         `json:"pass" yaml:"pass"`
	At     time.Time   `json:"at" yaml:"at"`
}

type Options struct {
	Probe    storage.Probe
	Registry registry.Client
	// Journal 为空时使用进程内流水
	Journal Journal
	// Repo 可选：记录本地 pin
	Repo *meta.Repository

	Owner types.Address
	Role  types.NodeRole
	// FractionBps 奖励比例 (万分之一)，0 表示使用默认值
	FractionBps uint64
	Concurrency int
	// Source 写入 pin 记录的字节来源描述 (例如 peer 地址)
	Source   string
	Notifier notice.Notifier
}

// change 探测进行期间由 LockFile/UnlockFile 造成的驻留变化
type change struct {
	seq      uint64
	resident bool
}

type Reconciler struct {
	probe    storage.Probe
	registry registry.Client
	journal  Journal
	repo     *meta.Repository
	notices  notice.Notifier

	owner       types.Address
	role        types.NodeRole
	bps         uint64
	concurrency int
	source      string

	mu       sync.RWMutex
	resident map[types.CID]struct{}
	remote   map[types.CID]struct{}
	failed   []types.CID
	records  map[types.CID]core.ContentRecord
	pass     int
	at       time.Time
	seq      uint64
	changes  map[types.CID]change

	locks singleflight.Group
}

func New(opts Options) *Reconciler {
	r := &Reconciler{
		probe:       opts.Probe,
		registry:    opts.Registry,
		journal:     opts.Journal,
		repo:        opts.Repo,
		notices:     opts.Notifier,
		owner:       opts.Owner.Normalize(),
		role:        opts.Role,
		bps:         opts.FractionBps,
		concurrency: opts.Concurrency,
		source:      opts.Source,
		resident:    make(map[types.CID]struct{}),
		remote:      make(map[types.CID]struct{}),
		records:     make(map[types.CID]core.ContentRecord),
		changes:     make(map[types.CID]change),
	}
	if r.journal == nil {
		r.journal = NewMemoryJournal()
	}
	if r.notices == nil {
		r.notices = notice.Log{}
	}
	if r.bps == 0 {
		r.bps = DefaultFractionBps
	}
	if r.concurrency <= 0 {
		r.concurrency = 8
	}
	if r.source == "" {
		r.source = "local"
	}
	return r
}

// Reward 奖励金额 = feePaid * bps / 10000 (向下取整，避免中间结果溢出)
func Reward(feePaid types.Octas, bps uint64) types.Octas {
	f := uint64(feePaid)
	return types.Octas(f/10000*bps + f%10000*bps/10000)
}

// Reconcile 并发探测每个 CID，全部完成后整体替换划分结果
// 单个 CID 探测失败时按 RemoteOnly 处理并发出提示，本轮继续。
// ctx 被取消时保留上一轮的结果。
func (r *Reconciler) Reconcile(ctx context.Context, records []core.ContentRecord) (Snapshot, error) {
	byCID := make(map[types.CID]core.ContentRecord, len(records))
	ids := make([]types.CID, 0, len(records))
	for _, rec := range records {
		if rec.CID.IsZero() {
			continue
		}
		if _, dup := byCID[rec.CID]; !dup {
			ids = append(ids, rec.CID)
		}
		byCID[rec.CID] = rec
	}

	r.mu.RLock()
	startSeq := r.seq
	r.mu.RUnlock()

	// 1. 并发探测
	present := make([]bool, len(ids))
	probeErrs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			present[i], probeErrs[i] = r.probe.HasFile(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return r.Snapshot(), err
	}

	// 2. 构建新的划分
	resident := make(map[types.CID]struct{})
	remote := make(map[types.CID]struct{})
	var failed []types.CID
	for i, id := range ids {
		if probeErrs[i] != nil {
			failed = append(failed, id)
			remote[id] = struct{}{}
			r.notify(notice.Warning, id, "availability probe failed, treating as remote-only",
				fmt.Errorf("%w: %w", ErrProbeFailure, probeErrs[i]))
			continue
		}
		if present[i] {
			resident[id] = struct{}{}
		} else {
			remote[id] = struct{}{}
		}
	}

	// 3. 整体替换；探测期间发生的 lock/unlock 以后者为准
	r.mu.Lock()
	for id, ch := range r.changes {
		if ch.seq <= startSeq {
			delete(r.changes, id)
			continue
		}
		if _, known := byCID[id]; !known {
			continue
		}
		if ch.resident {
			delete(remote, id)
			resident[id] = struct{}{}
		} else {
			delete(resident, id)
			remote[id] = struct{}{}
		}
	}
	r.resident, r.remote, r.failed, r.records = resident, remote, failed, byCID
	r.pass++
	r.at = time.Now()
	r.mu.Unlock()

	return r.Snapshot(), nil
}

// Changed 输入的 CID 集合是否与上一轮不同
func (r *Reconciler) Changed(records []core.ContentRecord) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pass == 0 {
		return true
	}
	seen := make(map[types.CID]struct{}, len(records))
	for _, rec := range records {
		if rec.CID.IsZero() {
			continue
		}
		if _, ok := r.records[rec.CID]; !ok {
			return true
		}
		seen[rec.CID] = struct{}{}
	}
	return len(seen) != len(r.records)
}

// Refresh CID 集合变化 (或 force) 时才重新划分
func (r *Reconciler) Refresh(ctx context.Context, records []core.ContentRecord, force bool) (Snapshot, bool, error) {
	if !force && !r.Changed(records) {
		return r.Snapshot(), false, nil
	}
	snap, err := r.Reconcile(ctx, records)
	return snap, err == nil, err
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Resident:   sortedKeys(r.resident),
		RemoteOnly: sortedKeys(r.remote),
		Failed:     append([]types.CID(nil), r.failed...),
		Pass:       r.pass,
		At:         r.at,
	}
}

func (r *Reconciler) State(id types.CID) Availability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.resident[id]; ok {
		return Resident
	}
	if _, ok := r.remote[id]; ok {
		return RemoteOnly
	}
	return Unknown
}

// Record 上一轮输入中的记录
func (r *Reconciler) Record(id types.CID) (core.ContentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// move 把 CID 移到 Resident 或 RemoteOnly，并登记变化序号
// 未知 CID 只在 pin 时加入划分。
func (r *Reconciler) move(record core.ContentRecord, resident bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := record.CID
	r.seq++
	r.changes[id] = change{seq: r.seq, resident: resident}
	_, known := r.records[id]
	if !known && !resident {
		return
	}
	if resident {
		delete(r.remote, id)
		r.resident[id] = struct{}{}
	} else {
		delete(r.resident, id)
		r.remote[id] = struct{}{}
	}
	if !known {
		r.records[id] = record
	}
}

// lookup 优先用上一轮的记录，否则查询账本
func (r *Reconciler) lookup(ctx context.Context, id types.CID) (core.ContentRecord, error) {
	if rec, ok := r.Record(id); ok {
		return rec, nil
	}
	if r.registry == nil {
		return core.ContentRecord{}, fmt.Errorf("%w: %s", core.ErrRecordMissing, id)
	}
	return registry.FindRecord(ctx, r.registry, id)
}

func (r *Reconciler) notify(level notice.Level, id types.CID, msg string, err error) {
	r.notices.Notify(notice.Notice{Level: level, CID: id, Message: msg, Err: err})
}

func sortedKeys(m map[types.CID]struct{}) []types.CID {
	out := make([]types.CID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// unpinner 支持解除 pin 的 Probe (例如 storage.PinningProbe)
type unpinner interface {
	Unpin(ctx context.Context, id types.CID) error
}

// UnlockFile 解除本地 pin 并清理 pin 记录，CID 回到 RemoteOnly
// 已领取的奖励不受影响。
func (r *Reconciler) UnlockFile(ctx context.Context, id types.CID) error {
	if u, ok := r.probe.(unpinner); ok {
		if err := u.Unpin(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unpin %s: %w", id, err)
		}
	}
	rec, ok := r.Record(id)
	if !ok {
		rec = core.ContentRecord{CID: id}
	}
	r.move(rec, false)

	if r.repo != nil {
		if err := r.repo.RemovePin(ctx, id); err != nil && !errors.Is(err, meta.ErrPinNotFound) {
			return err
		}
	}
	r.notify(notice.Info, id, "content unlocked", nil)
	return nil
}
