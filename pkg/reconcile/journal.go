package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"boxpeer/pkg/meta"
	"boxpeer/pkg/types"
)

// Promotion lockFile 的一条流水
// State 为 meta.PromotionPinnedUnclaimed 时可以 RetryClaim。
type Promotion struct {
	CID       types.CID     `json:"cid" yaml:"cid"`
	Owner     types.Address `json:"owner" yaml:"owner"`
	State     string        `json:"state" yaml:"state"`
	Amount    types.Octas   `json:"amount" yaml:"amount"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
	TxRef     string        `json:"tx_ref,omitempty" yaml:"tx_ref,omitempty"`
	LastError string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at"`
}

func (p Promotion) Pending() bool { return p.State == meta.PromotionPinnedUnclaimed }

// Journal 持久化 promotion 流水
type Journal interface {
	Save(ctx context.Context, p Promotion) error
	// Get 不存在时 ok=false
	Get(ctx context.Context, id types.CID) (p Promotion, ok bool, err error)
	// List state 为空时返回全部
	List(ctx context.Context, state string) ([]Promotion, error)
}

// MemoryJournal 进程内流水 (没有配置数据库时使用)
type MemoryJournal struct {
	mu    sync.Mutex
	items map[types.CID]Promotion
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{items: make(map[types.CID]Promotion)}
}

func (j *MemoryJournal) Save(_ context.Context, p Promotion) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	p.UpdatedAt = time.Now()
	j.items[p.CID] = p
	return nil
}

func (j *MemoryJournal) Get(_ context.Context, id types.CID) (Promotion, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.items[id]
	return p, ok, nil
}

func (j *MemoryJournal) List(_ context.Context, state string) ([]Promotion, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Promotion, 0, len(j.items))
	for _, p := range j.items {
		if state == "" || p.State == state {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	return out, nil
}

// RepoJournal 基于 meta.Repository 的持久化流水，进程重启后仍能 RetryClaim
type RepoJournal struct {
	repo *meta.Repository
}

func NewRepoJournal(repo *meta.Repository) *RepoJournal {
	return &RepoJournal{repo: repo}
}

func (j *RepoJournal) Save(ctx context.Context, p Promotion) error {
	return j.repo.SavePromotion(ctx, &meta.PromotionModel{
		CID:       p.CID.String(),
		Owner:     p.Owner.String(),
		State:     p.State,
		Amount:    uint64(p.Amount),
		Attempts:  p.Attempts,
		TxRef:     p.TxRef,
		LastError: p.LastError,
	})
}

func (j *RepoJournal) Get(ctx context.Context, id types.CID) (Promotion, bool, error) {
	m, err := j.repo.GetPromotion(ctx, id)
	if errors.Is(err, meta.ErrPromotionNotFound) {
		return Promotion{}, false, nil
	}
	if err != nil {
		return Promotion{}, false, err
	}
	return fromModel(*m), true, nil
}

func (j *RepoJournal) List(ctx context.Context, state string) ([]Promotion, error) {
	models, err := j.repo.ListPromotions(ctx, state)
	if err != nil {
		return nil, err
	}
	out := make([]Promotion, len(models))
	for i, m := range models {
		out[i] = fromModel(m)
	}
	return out, nil
}

func fromModel(m meta.PromotionModel) Promotion {
	return Promotion{
		CID:       types.CID(m.CID),
		Owner:     types.Address(m.Owner),
		State:     m.State,
		Amount:    types.Octas(m.Amount),
		Attempts:  m.Attempts,
		TxRef:     m.TxRef,
		LastError: m.LastError,
		UpdatedAt: m.UpdatedAt,
	}
}
