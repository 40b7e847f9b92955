// pkg/types/common.go
package types

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// CID 代表内容标识符 (Content Identifier)
// 这是一个“值对象”：由内容字节派生，发布后永不改变。
// 注意：账本上登记的 CID 不一定都能被 go-cid 解析 (例如测试网里的短标识)，
// 所以这里只把它当作不透明字符串，解析是可选能力。
type CID string

func (c CID) String() string { return string(c) }

func (c CID) IsZero() bool { return strings.TrimSpace(string(c)) == "" }

// Decode 尝试按 multiformats 规范解析 CID
// 返回 ok=false 表示这是一个不透明标识，调用者应跳过字节校验
func (c CID) Decode() (cid.Cid, bool) {
	parsed, err := cid.Decode(string(c))
	if err != nil || !parsed.Defined() {
		return cid.Undef, false
	}
	return parsed, true
}

// Address 代表账本上的账户地址 (观看者/提供者/节点运营者)
type Address string

func (a Address) String() string { return string(a) }
func (a Address) IsZero() bool   { return a == "" }

// Normalize 统一地址格式，避免 "0xABC" 与 "0xabc" 被当成两个人
func (a Address) Normalize() Address {
	return Address(strings.ToLower(strings.TrimSpace(string(a))))
}

// FileKind 是登记时声明的文件类型短标签 (例如 "png", "mp4", "pdf")
type FileKind string

func (k FileKind) String() string { return string(k) }

// Normalize 去掉前导点并转小写 (".PNG" -> "png")
func (k FileKind) Normalize() FileKind {
	return FileKind(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(string(k)), ".")))
}

// Octas 是账本最小记账单位 (1 APT = 10^8 Octas)
type Octas uint64

const OctasPerAPT = 100_000_000

// IsZero 表示免费
func (o Octas) IsZero() bool { return o == 0 }

// APT 按展示格式输出，例如 500000000 -> "APT 5"
func (o Octas) APT() string {
	whole := uint64(o) / OctasPerAPT
	frac := uint64(o) % OctasPerAPT
	if frac == 0 {
		return fmt.Sprintf("APT %d", whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%08d", frac), "0")
	return fmt.Sprintf("APT %d.%s", whole, s)
}

// NodeRole 节点角色
type NodeRole string

const (
	RoleProvider    NodeRole = "provider"
	RoleDistributor NodeRole = "distributor"
	RoleConsumer    NodeRole = "consumer"
)

// ParseNodeRole 大小写不敏感
func ParseNodeRole(s string) (NodeRole, error) {
	switch NodeRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProvider:
		return RoleProvider, nil
	case RoleDistributor:
		return RoleDistributor, nil
	case RoleConsumer:
		return RoleConsumer, nil
	default:
		return "", fmt.Errorf("unknown node role %q", s)
	}
}

// CanProvide 提供者和分发者都可以在本地托管 (pin) 内容
func (r NodeRole) CanProvide() bool    { return r == RoleProvider || r == RoleDistributor }
func (r NodeRole) CanDistribute() bool { return r == RoleDistributor }
func (r NodeRole) CanConsume() bool    { return true }
