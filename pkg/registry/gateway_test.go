package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// startGateway 在 bufconn 上启动网关，返回连好的客户端
func startGateway(t *testing.T, backend Client, opts GatewayOptions) *GatewayClient {
	t.Helper()
	return startServer(t, NewGatewayServer(backend), opts)
}

func startServer(t *testing.T, impl LedgerServer, opts GatewayOptions) *GatewayClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterLedgerServer(srv, impl)
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

	return NewGatewayClient(conn, opts)
}

func TestGateway_ReadPath(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	c := startGateway(t, ledger, GatewayOptions{})

	records, err := c.ListAllContent(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, freeRecord(), records[0])
	assert.Equal(t, paidRecord(), records[1], "u64 fees survive the wire")

	set, err := c.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestGateway_EmptyLedger(t *testing.T) {
	c := startGateway(t, NewMemory(), GatewayOptions{})
	records, err := c.ListAllContent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGateway_PayRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	ledger.Fund(viewer, 500_000_000)
	c := startGateway(t, ledger, GatewayOptions{ConfirmTimeout: time.Second})

	receipt, err := c.PayForContent(ctx, viewer, "Qm2")
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	set, err := c.GetPurchasers(ctx, "Qm2")
	require.NoError(t, err)
	assert.True(t, set.Contains(viewer))

	// 余额已耗尽
	_, err = c.PayForContent(ctx, viewer, "Qm2")
	assert.ErrorIs(t, err, ErrPaymentRejected)
}

func TestGateway_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("Offline reads", func(t *testing.T) {
		ledger := newLedger(t)
		ledger.SetOffline(true)
		c := startGateway(t, ledger, GatewayOptions{})

		_, err := c.ListAllContent(ctx)
		assert.ErrorIs(t, err, ErrRegistryUnavailable)
		_, err = c.GetPurchasers(ctx, "Qm2")
		assert.ErrorIs(t, err, ErrRegistryUnavailable)
	})

	t.Run("Confirmation timeout", func(t *testing.T) {
		ledger := newLedger(t, WithConfirmDelay(500*time.Millisecond))
		ledger.Fund(viewer, 500_000_000)
		c := startGateway(t, ledger, GatewayOptions{ConfirmTimeout: 20 * time.Millisecond})

		_, err := c.PayForContent(ctx, viewer, "Qm2")
		assert.ErrorIs(t, err, ErrPaymentUnconfirmed)
	})

	t.Run("Duplicate claim", func(t *testing.T) {
		c := startGateway(t, newLedger(t), GatewayOptions{})
		_, err := c.ClaimReward(ctx, "0xpinner", "Qm2", 10)
		require.NoError(t, err)
		_, err = c.ClaimReward(ctx, "0xpinner", "Qm2", 10)
		assert.ErrorIs(t, err, ErrPaymentRejected)
		assert.ErrorIs(t, err, ErrRewardAlreadyClaimed)
	})

	t.Run("Duplicate publish", func(t *testing.T) {
		c := startGateway(t, newLedger(t), GatewayOptions{})
		_, err := c.Publish(ctx, paidRecord())
		assert.ErrorIs(t, err, ErrAlreadyPublished)
	})
}

func TestGateway_Unreachable(t *testing.T) {
	c, err := DialGateway("127.0.0.1:1", GatewayOptions{ReadTimeout: 200 * time.Millisecond, ConfirmTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListAllContent(context.Background())
	assert.ErrorIs(t, err, ErrRegistryUnavailable)

	// 写请求无法确定是否已提交
	_, err = c.PayForContent(context.Background(), viewer, "Qm2")
	assert.ErrorIs(t, err, ErrPaymentUnconfirmed)
}

func TestGateway_Publish(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	c := startGateway(t, ledger, GatewayOptions{})

	rec := core.ContentRecord{CID: "Qm3", Owner: owner, FileKind: "pdf", FeePaid: 42, ConsumerFee: 7, Title: "doc", Description: "desc"}
	receipt, err := c.Publish(ctx, rec)
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	got, err := FindRecord(ctx, c, "Qm3")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, types.Octas(7), got.ConsumerFee)
}

// rawListing 返回固定的列表 (模拟字段不完整的网关)
type rawListing struct {
	*GatewayServer
	entries []map[string]any
}

func (r rawListing) ListContent(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	vals := make([]any, len(r.entries))
	for i, e := range r.entries {
		vals[i] = e
	}
	return structpb.NewList(vals)
}

func TestStructToRecord_FeesAreRequired(t *testing.T) {
	base := func(extra map[string]any) *structpb.Struct {
		m := map[string]any{"cid": "Qm2", "file_type": "mp4", "fee_paid": "1", "consumer_fee": "500"}
		for k, v := range extra {
			if v == nil {
				delete(m, k)
				continue
			}
			m[k] = v
		}
		s, err := structpb.NewStruct(m)
		require.NoError(t, err)
		return s
	}

	rec, err := structToRecord(base(nil))
	require.NoError(t, err)
	assert.Equal(t, types.Octas(500), rec.ConsumerFee)

	rec, err = structToRecord(base(map[string]any{"consumer_fee": float64(300)}))
	require.NoError(t, err)
	assert.Equal(t, types.Octas(300), rec.ConsumerFee)

	bad := map[string]*structpb.Struct{
		"missing consumer_fee": base(map[string]any{"consumer_fee": nil}),
		"missing fee_paid":     base(map[string]any{"fee_paid": nil}),
		"empty consumer_fee":   base(map[string]any{"consumer_fee": ""}),
		"overflow":             base(map[string]any{"consumer_fee": 1.5e20}),
		"fractional":           base(map[string]any{"consumer_fee": 2.5}),
		"negative":             base(map[string]any{"consumer_fee": -1.0}),
	}
	bad["null consumer_fee"] = base(nil)
	bad["null consumer_fee"].Fields["consumer_fee"] = structpb.NewNullValue()

	for name, s := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := structToRecord(s)
			assert.Error(t, err)
		})
	}
}

func TestGateway_IncompleteRecordIsUnavailable(t *testing.T) {
	impl := rawListing{
		GatewayServer: NewGatewayServer(NewMemory()),
		entries:       []map[string]any{{"cid": "Qm2", "file_type": "mp4", "fee_paid": "1"}},
	}
	c := startServer(t, impl, GatewayOptions{})

	records, err := c.ListAllContent(context.Background())
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.Empty(t, records, "a record without a consumer fee must never reach the access decision")
}
