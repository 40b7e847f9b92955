package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"boxpeer/pkg/types"
)

var (
	ErrNotFound   = errors.New("content not found")
	ErrInvalidCID = errors.New("invalid cid for storage key")
	// ErrNoRemote 本地没有，也没有配置远端来源
	ErrNoRemote = errors.New("content not resident and no remote source configured")
)

// Store 是本地 pin 存储的后端 (磁盘或对象存储)
type Store interface {
	// Put 持久化内容字节。已存在时什么都不做 (幂等)
	Put(ctx context.Context, id types.CID, data []byte) error

	// Get 读取原始字节
	// 返回 io.ReadCloser 以支持大文件的流式读取
	Get(ctx context.Context, id types.CID) (io.ReadCloser, error)

	// Has 检查内容是否存在
	Has(ctx context.Context, id types.CID) (bool, error)

	// Delete 解除 pin。不存在时返回 ErrNotFound
	Delete(ctx context.Context, id types.CID) error
}

// Probe 本地存储探针：询问内容是否驻留，以及把远端内容拉取并 pin 到本地
// 两个操作都必须幂等、可安全重试。
type Probe interface {
	HasFile(ctx context.Context, id types.CID) (bool, error)
	FetchAndPin(ctx context.Context, id types.CID) ([]byte, error)
}

// Fetcher 只读的字节来源 (远端 peer，或本地优先的组合)
type Fetcher interface {
	Fetch(ctx context.Context, id types.CID) ([]byte, error)
}

// ReadAll 从 Store 中读出完整内容
func ReadAll(ctx context.Context, s Store, id types.CID) ([]byte, error) {
	rc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// CheckKey 拒绝不能安全作为路径/对象键的 CID
func CheckKey(id types.CID) error {
	s := id.String()
	if id.IsZero() || strings.ContainsAny(s, `/\`) || strings.HasPrefix(s, ".") || strings.TrimSpace(s) != s {
		return ErrInvalidCID
	}
	return nil
}

// ShardKey 返回 CID 的分片前缀
// CID 的开头是 multibase/版本前缀 (如 "bafk"、"Qm")，所以取末尾两位分片。
func ShardKey(id types.CID) string {
	s := id.String()
	if len(s) < 2 {
		return "_"
	}
	return strings.ToLower(s[len(s)-2:])
}
