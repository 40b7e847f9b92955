package peer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// maxMessageSize 单个文件的上限
const maxMessageSize = 1024 * 1024 * 1024 // 1GB

// Client 封装了与一个远端 peer 的连接，实现 storage.Fetcher
type Client struct {
	addr string
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial 创建客户端
// grpc.NewClient 会立即返回，连接在后台进行；网络不通不会在这里报错
func Dial(addr string) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
		// 保持连接活跃
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &Client{addr: addr, cc: conn, conn: conn}, nil
}

// NewClient 复用已有连接 (测试里是 bufconn)
func NewClient(addr string, cc grpc.ClientConnInterface) *Client {
	return &Client{addr: addr, cc: cc}
}

// Addr 远端地址，用于记录 pin 来源
func (c *Client) Addr() string { return c.addr }

func (c *Client) Has(ctx context.Context, id types.CID) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodHas, wrapperspb.String(id.String()), out); err != nil {
		return false, mapRPC(err)
	}
	return out.GetValue(), nil
}

func (c *Client) Fetch(ctx context.Context, id types.CID) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodFetch, wrapperspb.String(id.String()), out); err != nil {
		return nil, mapRPC(err)
	}
	return out.GetValue(), nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// mapRPC gRPC 状态码 -> storage 哨兵错误
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", storage.ErrInvalidCID, st.Message())
	default:
		return errors.New(st.Message())
	}
}

// Multi 依次尝试多个 peer，第一个成功的返回
type Multi []storage.Fetcher

func (m Multi) Fetch(ctx context.Context, id types.CID) ([]byte, error) {
	var errs []error
	for _, f := range m {
		data, err := f.Fetch(ctx, id)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, storage.ErrNotFound
	}
	allMissing := true
	for _, err := range errs {
		if !errors.Is(err, storage.ErrNotFound) {
			allMissing = false
		}
	}
	if allMissing {
		return nil, storage.ErrNotFound
	}
	return nil, errors.Join(errs...)
}
