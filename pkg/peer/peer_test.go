package peer

import (
	"context"
	"errors"
	"net"
	"testing"

	"boxpeer/pkg/core"
	"boxpeer/pkg/storage"
	"boxpeer/pkg/storage/disk"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// startPeer 启动一个基于磁盘存储的 peer，返回连好的客户端和它的存储
func startPeer(t *testing.T) (*Client, storage.Store) {
	t.Helper()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterPinServiceServer(srv, NewServer(store))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient("bufnet", conn), store
}

func TestPeer_HasAndFetch(t *testing.T) {
	ctx := context.Background()
	client, store := startPeer(t)

	payload := []byte("video bytes")
	id, err := core.RawCID(payload)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, id, payload))

	ok, err := client.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Has(ctx, "bafkreimissing")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := client.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = client.Fetch(ctx, "bafkreimissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = client.Fetch(ctx, "../secret")
	assert.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestPeer_PinningThroughRemote(t *testing.T) {
	ctx := context.Background()
	remote, remoteStore := startPeer(t)

	payload := []byte("pdf bytes")
	id, err := core.RawCID(payload)
	require.NoError(t, err)
	require.NoError(t, remoteStore.Put(ctx, id, payload))

	local, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	probe := storage.NewPinningProbe(local, remote)

	got, err := probe.FetchAndPin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	resident, err := probe.HasFile(ctx, id)
	require.NoError(t, err)
	assert.True(t, resident)
}

type fixedFetcher struct {
	data []byte
	err  error
}

func (f fixedFetcher) Fetch(context.Context, types.CID) ([]byte, error) { return f.data, f.err }

func TestMulti(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	got, err := Multi{fixedFetcher{err: storage.ErrNotFound}, fixedFetcher{data: []byte("x")}}.Fetch(ctx, "Qm1")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	_, err = Multi{fixedFetcher{err: storage.ErrNotFound}, fixedFetcher{err: storage.ErrNotFound}}.Fetch(ctx, "Qm1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = Multi{fixedFetcher{err: storage.ErrNotFound}, fixedFetcher{err: boom}}.Fetch(ctx, "Qm1")
	assert.ErrorIs(t, err, boom)

	_, err = Multi{}.Fetch(ctx, "Qm1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
