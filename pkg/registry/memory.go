package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"
)

// Claim 一次已确认的奖励领取
type Claim struct {
	Owner  types.Address
	CID    types.CID
	Amount types.Octas
	TxRef  string
}

// Memory 是一个进程内的开发账本
// 用于 boxpeerd 的 dev 模式和测试；语义上模拟合约：余额检查、
// 购买者集合只增不减、确认延迟 (延迟超过确认超时即返回 ErrPaymentUnconfirmed)。
type Memory struct {
	mu         sync.Mutex
	records    []core.ContentRecord
	index      map[types.CID]int
	purchasers map[types.CID]core.PurchaserSet
	balances   map[types.Address]types.Octas
	claimed    map[string]Claim
	claims     []Claim
	txSeq      uint64
	offline    bool

	confirmDelay   time.Duration
	confirmTimeout time.Duration
}

type MemoryOption func(*Memory)

// WithConfirmDelay 交易从提交到确认的模拟耗时
func WithConfirmDelay(d time.Duration) MemoryOption {
	return func(m *Memory) { m.confirmDelay = d }
}

// WithConfirmTimeout 等待确认的上限，0 表示只受 ctx 约束
func WithConfirmTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) { m.confirmTimeout = d }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		index:      make(map[types.CID]int),
		purchasers: make(map[types.CID]core.PurchaserSet),
		balances:   make(map[types.Address]types.Octas),
		claimed:    make(map[string]Claim),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fund 给账户充值 (测试/开发用)
func (m *Memory) Fund(addr types.Address, amount types.Octas) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr.Normalize()] += amount
}

func (m *Memory) Balance(addr types.Address) types.Octas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr.Normalize()]
}

// SetOffline 模拟账本/索引器不可达
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Claims 返回已确认的奖励领取记录
func (m *Memory) Claims() []Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Claim, len(m.claims))
	copy(out, m.claims)
	return out
}

func (m *Memory) Publish(ctx context.Context, record core.ContentRecord) (Receipt, error) {
	if err := record.Validate(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrPaymentRejected, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return Receipt{}, ErrPaymentUnconfirmed
	}
	if _, exists := m.index[record.CID]; exists {
		return Receipt{}, fmt.Errorf("%w: %s", ErrAlreadyPublished, record.CID)
	}

	owner := record.Owner.Normalize()
	if m.balances[owner] < record.FeePaid {
		return Receipt{}, fmt.Errorf("%w: insufficient funds for provider fee", ErrPaymentRejected)
	}
	m.balances[owner] -= record.FeePaid

	m.index[record.CID] = len(m.records)
	m.records = append(m.records, record)
	return Receipt{Success: true, TxRef: m.nextTxRef()}, nil
}

func (m *Memory) ListAllContent(ctx context.Context) ([]core.ContentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, ErrRegistryUnavailable
	}
	out := make([]core.ContentRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) GetPurchasers(ctx context.Context, id types.CID) (core.PurchaserSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return core.PurchaserSet{}, ErrRegistryUnavailable
	}
	return m.purchasers[id].Merge(core.PurchaserSet{}), nil
}

func (m *Memory) PayForContent(ctx context.Context, viewer types.Address, id types.CID) (Receipt, error) {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return Receipt{}, ErrPaymentUnconfirmed
	}
	pos, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: unknown content %s", ErrPaymentRejected, id)
	}
	record := m.records[pos]
	payer := viewer.Normalize()
	if m.balances[payer] < record.ConsumerFee {
		m.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: insufficient funds", ErrPaymentRejected)
	}
	// 提交即扣款，确认后才写入购买者集合
	m.balances[payer] -= record.ConsumerFee
	txRef := m.nextTxRef()
	m.mu.Unlock()

	return m.settle(ctx, txRef, func() {
		m.purchasers[id] = m.purchasers[id].Merge(core.NewPurchaserSet(payer))
		m.balances[record.Owner.Normalize()] += record.ConsumerFee
	})
}

func (m *Memory) ClaimReward(ctx context.Context, owner types.Address, id types.CID, amount types.Octas) (Receipt, error) {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return Receipt{}, ErrPaymentUnconfirmed
	}
	if _, ok := m.index[id]; !ok {
		m.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: unknown content %s", ErrPaymentRejected, id)
	}
	key := owner.Normalize().String() + "/" + id.String()
	if _, dup := m.claimed[key]; dup {
		m.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %w", ErrPaymentRejected, ErrRewardAlreadyClaimed)
	}
	txRef := m.nextTxRef()
	claim := Claim{Owner: owner.Normalize(), CID: id, Amount: amount, TxRef: txRef}
	m.claimed[key] = claim
	m.mu.Unlock()

	return m.settle(ctx, txRef, func() {
		m.claims = append(m.claims, claim)
		m.balances[claim.Owner] += amount
	})
}

// settle 模拟“提交 -> 等待确认”
// apply 总会在确认时执行 (即使调用方已经放弃等待)，与真实账本一致。
func (m *Memory) settle(ctx context.Context, txRef string, apply func()) (Receipt, error) {
	confirmed := make(chan struct{})
	commit := func() {
		m.mu.Lock()
		apply()
		m.mu.Unlock()
		close(confirmed)
	}

	if m.confirmDelay <= 0 {
		commit()
		return Receipt{Success: true, TxRef: txRef}, nil
	}
	time.AfterFunc(m.confirmDelay, commit)

	var timeout <-chan time.Time
	if m.confirmTimeout > 0 {
		timer := time.NewTimer(m.confirmTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-confirmed:
		return Receipt{Success: true, TxRef: txRef}, nil
	case <-timeout:
	case <-ctx.Done():
	}
	return Receipt{Success: false, TxRef: txRef}, fmt.Errorf("%w: tx %s", ErrPaymentUnconfirmed, txRef)
}

// nextTxRef 调用方需持有锁
func (m *Memory) nextTxRef() string {
	m.txSeq++
	return fmt.Sprintf("0x%016x", m.txSeq)
}
