package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"boxpeer/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var ErrCIDMismatch = errors.New("bytes do not match cid")

// 规范化 CBOR 编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的指纹
	Sort: cbor.SortCanonical,

	// 2. 时间格式化为 Unix 整数，不生成 Tag
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 3. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// EncodeCanonical 规范化编码
func EncodeCanonical(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return data, nil
}

// Fingerprint 计算对象规范化编码后的 SHA-256 (Hex)
func Fingerprint(v any) (string, error) {
	data, err := EncodeCanonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RawCID 计算 CIDv1 (raw + sha2-256)
func RawCID(data []byte) (types.CID, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return types.CID(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// VerifyBytes 校验字节是否与 CID 匹配
// 无法解析的 CID (不透明标识) 直接放行：这种情况下没有可比对的 multihash。
func VerifyBytes(id types.CID, data []byte) error {
	parsed, ok := id.Decode()
	if !ok {
		return nil
	}
	got, err := parsed.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("failed to hash bytes for %s: %w", id, err)
	}
	if !got.Equals(parsed) {
		return fmt.Errorf("%w: want %s, got %s", ErrCIDMismatch, parsed, got)
	}
	return nil
}
