package core

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"boxpeer/pkg/types"
)

// MaxTitleLen 标题最大长度 (按字符计)
const MaxTitleLen = 100

var (
	ErrEmptyCID      = errors.New("content record has empty cid")
	ErrTitleTooLong  = fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	ErrRecordMissing = errors.New("content record not found")
)

// ContentRecord 是账本上登记的一条内容记录
// CID 与两个费用字段在发布时写定，之后只以账本为准，本地绝不覆盖。
type ContentRecord struct {
	CID         types.CID      `cbor:"cid" json:"cid" yaml:"cid"`
	Owner       types.Address  `cbor:"owner" json:"owner" yaml:"owner"`
	OwnerName   string         `cbor:"owner_name" json:"owner_name" yaml:"owner_name"`
	FileKind    types.FileKind `cbor:"file_type" json:"file_type" yaml:"file_type"`
	FeePaid     types.Octas    `cbor:"fee_paid" json:"fee_paid" yaml:"fee_paid"`             // 提供者发布时支付的费用
	ConsumerFee types.Octas    `cbor:"consumer_fee" json:"consumer_fee" yaml:"consumer_fee"` // 每次观看的费用，0 表示免费
	Title       string         `cbor:"title" json:"title" yaml:"title"`
	Description string         `cbor:"description" json:"description" yaml:"description"`
}

// Validate 检查发布时的约束
func (r ContentRecord) Validate() error {
	if r.CID.IsZero() {
		return ErrEmptyCID
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

// IsFree 免费内容不需要购买
func (r ContentRecord) IsFree() bool { return r.ConsumerFee.IsZero() }

// Fingerprint 记录的规范化指纹，用于判断缓存的预览是否过期
func (r ContentRecord) Fingerprint() (string, error) {
	return Fingerprint(r)
}

// PurchaserSet 某个 CID 的已付费地址集合
// 只增不减：Merge 只会扩大集合。
type PurchaserSet struct {
	members map[types.Address]struct{}
}

func NewPurchaserSet(addrs ...types.Address) PurchaserSet {
	s := PurchaserSet{members: make(map[types.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		if a.IsZero() {
			continue
		}
		s.members[a.Normalize()] = struct{}{}
	}
	return s
}

// Contains 地址比较前统一大小写
func (s PurchaserSet) Contains(addr types.Address) bool {
	if addr.IsZero() {
		return false
	}
	_, ok := s.members[addr.Normalize()]
	return ok
}

func (s PurchaserSet) Len() int { return len(s.members) }

// Addresses 返回排序后的地址列表 (输出稳定，方便打印和测试)
func (s PurchaserSet) Addresses() []types.Address {
	out := make([]types.Address, 0, len(s.members))
	for a := range s.members {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge 返回两个集合的并集
func (s PurchaserSet) Merge(other PurchaserSet) PurchaserSet {
	merged := NewPurchaserSet(s.Addresses()...)
	for a := range other.members {
		merged.members[a] = struct{}{}
	}
	return merged
}
