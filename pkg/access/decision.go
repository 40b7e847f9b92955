// Package access decides whether a viewer may see the bytes behind a CID.
//
// Decide is a pure function: no I/O, no caching. Purchase state can change
// between two renders, so callers evaluate it fresh every time.
package access

import (
	"fmt"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"
)

// Verdict 访问结论
type Verdict int

const (
	Gated Verdict = iota
	Unlocked
)

func (v Verdict) String() string {
	switch v {
	case Unlocked:
		return "UNLOCKED"
	case Gated:
		return "GATED"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Decision 是一次访问判定的结果
// Fee 只在 Gated 时有意义，等于记录上的 ConsumerFee
type Decision struct {
	Verdict Verdict
	Fee     types.Octas
}

func (d Decision) Unlocked() bool { return d.Verdict == Unlocked }

func (d Decision) String() string {
	if d.Verdict == Gated {
		return fmt.Sprintf("GATED(fee=%d)", d.Fee)
	}
	return d.Verdict.String()
}

// Decide 判定规则：
//  1. 免费内容 -> UNLOCKED (与购买者集合无关)
//  2. 观看者已付费 -> UNLOCKED
//  3. 其他 -> GATED(fee = ConsumerFee)
func Decide(record core.ContentRecord, viewer types.Address, purchasers core.PurchaserSet) Decision {
	if record.IsFree() {
		return Decision{Verdict: Unlocked}
	}
	if purchasers.Contains(viewer) {
		return Decision{Verdict: Unlocked}
	}
	return Decision{Verdict: Gated, Fee: record.ConsumerFee}
}
