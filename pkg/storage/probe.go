package storage

import (
	"context"
	"errors"
	"fmt"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"
)

// PinningProbe 组合本地 Store 和远端 Fetcher，实现 Probe
// 远端字节在写入本地前按 CID 校验 (可解析的 CID 才校验)。
type PinningProbe struct {
	local  Store
	remote Fetcher
}

// NewPinningProbe remote 可以为 nil (仅本地)
func NewPinningProbe(local Store, remote Fetcher) *PinningProbe {
	return &PinningProbe{local: local, remote: remote}
}

func (p *PinningProbe) HasFile(ctx context.Context, id types.CID) (bool, error) {
	return p.local.Has(ctx, id)
}

// FetchAndPin 已驻留时直接返回本地字节
func (p *PinningProbe) FetchAndPin(ctx context.Context, id types.CID) ([]byte, error) {
	data, err := ReadAll(ctx, p.local, id)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	data, err = p.fetchRemote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.local.Put(ctx, id, data); err != nil {
		return nil, fmt.Errorf("pin %s: %w", id, err)
	}
	return data, nil
}

// Fetch 读内容但不 pin：本地优先，否则走远端
func (p *PinningProbe) Fetch(ctx context.Context, id types.CID) ([]byte, error) {
	data, err := ReadAll(ctx, p.local, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return data, err
	}
	return p.fetchRemote(ctx, id)
}

// Unpin 从本地删除
func (p *PinningProbe) Unpin(ctx context.Context, id types.CID) error {
	return p.local.Delete(ctx, id)
}

func (p *PinningProbe) fetchRemote(ctx context.Context, id types.CID) ([]byte, error) {
	if p.remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRemote, id)
	}
	data, err := p.remote.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	if err := core.VerifyBytes(id, data); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return data, nil
}
