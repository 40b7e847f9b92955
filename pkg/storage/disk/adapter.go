package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"github.com/klauspost/compress/zstd"
)

// 压缩写入的文件带 .zst 后缀，两种格式可以混存
const zstdSuffix = ".zst"

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /home/user/.boxpeer/pins
	compress bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type Option func(*Adapter)

// WithCompression 写入时使用 zstd 压缩
func WithCompression(enabled bool) Option {
	return func(a *Adapter) { a.compress = enabled }
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string, opts ...Option) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	a := &Adapter{rootPath: root}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	if a.decoder, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return a, nil
}

// layout 返回 CID 对应的物理路径
// Example: "bafk...xy" -> root/xy/bafk...xy
func (s *Adapter) layout(id types.CID) string {
	return filepath.Join(s.rootPath, storage.ShardKey(id), id.String())
}

// locate 返回已存在的文件路径和是否压缩
func (s *Adapter) locate(id types.CID) (string, bool, error) {
	plain := s.layout(id)
	for _, candidate := range []string{plain, plain + zstdSuffix} {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, candidate != plain, nil
		}
		if !os.IsNotExist(err) {
			return "", false, err
		}
	}
	return "", false, storage.ErrNotFound
}

func (s *Adapter) Put(ctx context.Context, id types.CID, data []byte) error {
	if err := storage.CheckKey(id); err != nil {
		return err
	}

	// 1. 检查是否存在 (幂等性)
	if _, _, err := s.locate(id); err == nil {
		return nil
	}

	targetPath := s.layout(id)
	if s.compress {
		targetPath += zstdSuffix
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	payload := data
	if s.compress {
		payload = s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}

	// 3. 原子写入：先写临时文件，然后 Rename
	// 这样保证要么文件不存在，要么文件是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(payload); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, id types.CID) (io.ReadCloser, error) {
	if err := storage.CheckKey(id); err != nil {
		return nil, err
	}
	path, compressed, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if compressed {
		plain, err := s.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode %s: %w", id, err)
		}
		raw = plain
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *Adapter) Has(ctx context.Context, id types.CID) (bool, error) {
	if err := storage.CheckKey(id); err != nil {
		return false, err
	}
	_, _, err := s.locate(id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Adapter) Delete(ctx context.Context, id types.CID) error {
	if err := storage.CheckKey(id); err != nil {
		return err
	}
	path, _, err := s.locate(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return storage.ErrNotFound
	}
	return err
}
