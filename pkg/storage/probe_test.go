package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 内存版 Store，仅用于测试
type memStore struct {
	mu   sync.Mutex
	objs map[types.CID][]byte
}

func newMemStore() *memStore { return &memStore{objs: make(map[types.CID][]byte)} }

func (m *memStore) Put(_ context.Context, id types.CID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objs[id]; !ok {
		m.objs[id] = append([]byte(nil), data...)
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id types.CID) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Has(_ context.Context, id types.CID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[id]
	return ok, nil
}

func (m *memStore) Delete(_ context.Context, id types.CID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objs[id]; !ok {
		return ErrNotFound
	}
	delete(m.objs, id)
	return nil
}

// spyFetcher 统计远端调用次数
type spyFetcher struct {
	calls int32
	objs  map[types.CID][]byte
	err   error
}

func (f *spyFetcher) Fetch(_ context.Context, id types.CID) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func TestPinningProbe_FetchAndPin(t *testing.T) {
	ctx := context.Background()
	payload := []byte("remote bytes")
	id, err := core.RawCID(payload)
	require.NoError(t, err)

	local := newMemStore()
	remote := &spyFetcher{objs: map[types.CID][]byte{id: payload}}
	p := NewPinningProbe(local, remote)

	has, err := p.HasFile(ctx, id)
	require.NoError(t, err)
	assert.False(t, has)

	// 1. 第一次：远端拉取并 pin
	got, err := p.FetchAndPin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	has, err = p.HasFile(ctx, id)
	require.NoError(t, err)
	assert.True(t, has)

	// 2. 幂等：第二次不再访问远端
	got, err = p.FetchAndPin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.calls))

	// 3. Unpin
	require.NoError(t, p.Unpin(ctx, id))
	has, err = p.HasFile(ctx, id)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPinningProbe_RejectsTamperedBytes(t *testing.T) {
	ctx := context.Background()
	id, err := core.RawCID([]byte("genuine"))
	require.NoError(t, err)

	local := newMemStore()
	p := NewPinningProbe(local, &spyFetcher{objs: map[types.CID][]byte{id: []byte("forged")}})

	_, err = p.FetchAndPin(ctx, id)
	assert.ErrorIs(t, err, core.ErrCIDMismatch)

	has, _ := local.Has(ctx, id)
	assert.False(t, has, "tampered bytes must not be pinned")
}

func TestPinningProbe_RemoteFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewPinningProbe(newMemStore(), nil).FetchAndPin(ctx, "Qm2")
	assert.ErrorIs(t, err, ErrNoRemote)

	boom := errors.New("peer down")
	_, err = NewPinningProbe(newMemStore(), &spyFetcher{err: boom}).FetchAndPin(ctx, "Qm2")
	assert.ErrorIs(t, err, boom)
}

func TestPinningProbe_FetchDoesNotPin(t *testing.T) {
	ctx := context.Background()
	local := newMemStore()
	remote := &spyFetcher{objs: map[types.CID][]byte{"Qm3": []byte("opaque cid, unverified")}}
	p := NewPinningProbe(local, remote)

	got, err := p.Fetch(ctx, "Qm3")
	require.NoError(t, err)
	assert.Equal(t, "opaque cid, unverified", string(got))

	has, _ := local.Has(ctx, "Qm3")
	assert.False(t, has)
}

func TestCheckKeyAndShard(t *testing.T) {
	assert.NoError(t, CheckKey("Qm1"))
	assert.ErrorIs(t, CheckKey("a/b"), ErrInvalidCID)
	assert.Equal(t, "m1", ShardKey("Qm1"))
	assert.Equal(t, "_", ShardKey("Q"))
}
