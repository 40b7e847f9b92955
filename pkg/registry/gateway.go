package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ledgerService = "boxpeer.ledger.v1.Registry"

// LedgerServer is the server API for the ledger gateway service.
//
// Messages are protobuf well-known types, so no protoc toolchain is needed.
type LedgerServer interface {
	ListContent(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetPurchasers(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	PayForContent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClaimReward(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Publish(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterLedgerServer registers the gateway on a gRPC server.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

// =============================================================================
// Server
// =============================================================================

// GatewayServer 把任意 Client 暴露成 gRPC 服务 (boxpeerd 的 dev ledger 走这里)
type GatewayServer struct {
	backend   Client
	publisher Publisher
}

// NewGatewayServer backend 如果同时实现了 Publisher，则开放 Publish
func NewGatewayServer(backend Client) *GatewayServer {
	s := &GatewayServer{backend: backend}
	if p, ok := backend.(Publisher); ok {
		s.publisher = p
	}
	return s
}

func (s *GatewayServer) ListContent(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	records, err := s.backend.ListAllContent(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(records))}
	for _, r := range records {
		st, err := recordToStruct(r)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode record %s: %v", r.CID, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

func (s *GatewayServer) GetPurchasers(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	id := types.CID(req.GetValue())
	if id.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "cid is required")
	}
	set, err := s.backend.GetPurchasers(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	addrs := set.Addresses()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(addrs))}
	for _, a := range addrs {
		out.Values = append(out.Values, structpb.NewStringValue(a.String()))
	}
	return out, nil
}

func (s *GatewayServer) PayForContent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	viewer := types.Address(f["viewer"].GetStringValue())
	id := types.CID(f["cid"].GetStringValue())
	if viewer.IsZero() || id.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "viewer and cid are required")
	}
	receipt, err := s.backend.PayForContent(ctx, viewer, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptToStruct(receipt), nil
}

func (s *GatewayServer) ClaimReward(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	owner := types.Address(f["owner"].GetStringValue())
	id := types.CID(f["cid"].GetStringValue())
	if owner.IsZero() || id.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "owner and cid are required")
	}
	amount, err := parseOctas(f["amount"])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "amount: %v", err)
	}
	receipt, err := s.backend.ClaimReward(ctx, owner, id, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptToStruct(receipt), nil
}

func (s *GatewayServer) Publish(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.publisher == nil {
		return nil, status.Error(codes.Unimplemented, "ledger backend does not accept publications")
	}
	record, err := structToRecord(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode record: %v", err)
	}
	receipt, err := s.publisher.Publish(ctx, record)
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptToStruct(receipt), nil
}

// toStatus 哨兵错误 -> gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrRewardAlreadyClaimed):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ErrPaymentRejected):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrPaymentUnconfirmed):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrAlreadyPublished):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRegistryUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// =============================================================================
// Client
// =============================================================================

// GatewayOptions 客户端超时设置
type GatewayOptions struct {
	// ReadTimeout 单次读请求上限，0 表示只受 ctx 约束
	ReadTimeout time.Duration
	// ConfirmTimeout 交易等待确认的上限，超时视为 ErrPaymentUnconfirmed
	ConfirmTimeout time.Duration
}

// GatewayClient 通过 gRPC 访问账本网关，实现 Client 和 Publisher
type GatewayClient struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
	opts GatewayOptions
}

// DialGateway 创建连接 (不会等待连接就绪，网络错误在第一次调用时暴露)
func DialGateway(addr string, opts GatewayOptions) (*GatewayClient, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client for %s: %w", addr, err)
	}
	c := NewGatewayClient(conn, opts)
	c.conn = conn
	return c, nil
}

// NewGatewayClient 复用已有连接 (测试里是 bufconn)
func NewGatewayClient(cc grpc.ClientConnInterface, opts GatewayOptions) *GatewayClient {
	return &GatewayClient{cc: cc, opts: opts}
}

func (c *GatewayClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *GatewayClient) ListAllContent(ctx context.Context) ([]core.ContentRecord, error) {
	ctx, cancel := withTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()

	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ledgerService+"/ListContent", &emptypb.Empty{}, out); err != nil {
		return nil, readError(err)
	}
	records := make([]core.ContentRecord, 0, len(out.GetValues()))
	for i, v := range out.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", ErrRegistryUnavailable, i)
		}
		r, err := structToRecord(st)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrRegistryUnavailable, i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *GatewayClient) GetPurchasers(ctx context.Context, id types.CID) (core.PurchaserSet, error) {
	ctx, cancel := withTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()

	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ledgerService+"/GetPurchasers", wrapperspb.String(id.String()), out); err != nil {
		return core.PurchaserSet{}, readError(err)
	}
	addrs := make([]types.Address, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		addrs = append(addrs, types.Address(v.GetStringValue()))
	}
	return core.NewPurchaserSet(addrs...), nil
}

func (c *GatewayClient) PayForContent(ctx context.Context, viewer types.Address, id types.CID) (Receipt, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"viewer": structpb.NewStringValue(viewer.String()),
		"cid":    structpb.NewStringValue(id.String()),
	}}
	return c.submit(ctx, "PayForContent", req)
}

func (c *GatewayClient) ClaimReward(ctx context.Context, owner types.Address, id types.CID, amount types.Octas) (Receipt, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"owner":  structpb.NewStringValue(owner.String()),
		"cid":    structpb.NewStringValue(id.String()),
		"amount": structpb.NewStringValue(fmt.Sprintf("%d", uint64(amount))),
	}}
	return c.submit(ctx, "ClaimReward", req)
}

func (c *GatewayClient) Publish(ctx context.Context, record core.ContentRecord) (Receipt, error) {
	req, err := recordToStruct(record)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode record: %w", err)
	}
	return c.submit(ctx, "Publish", req)
}

// submit 写请求：等待确认受 ConfirmTimeout 约束
func (c *GatewayClient) submit(ctx context.Context, method string, req *structpb.Struct) (Receipt, error) {
	ctx, cancel := withTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ledgerService+"/"+method, req, out); err != nil {
		return Receipt{}, writeError(err)
	}
	receipt := structToReceipt(out)
	if !receipt.Success {
		return receipt, fmt.Errorf("%w: tx %s reported failure", ErrPaymentRejected, receipt.TxRef)
	}
	return receipt, nil
}

// readError 读请求的任何失败都归为 ErrRegistryUnavailable (可重试)
func readError(err error) error {
	return fmt.Errorf("%w: %s", ErrRegistryUnavailable, status.Convert(err).Message())
}

// writeError 写请求：明确拒绝 -> Rejected；其余情况结果未知 -> Unconfirmed
func writeError(err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.FailedPrecondition, codes.InvalidArgument, codes.NotFound, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrPaymentRejected, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %w", ErrPaymentRejected, ErrRewardAlreadyClaimed)
	default:
		return fmt.Errorf("%w: %s", ErrPaymentUnconfirmed, st.Message())
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// =============================================================================
// Service descriptor
// =============================================================================

func _Ledger_ListContent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).ListContent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerService + "/ListContent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).ListContent(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ledger_GetPurchasers_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetPurchasers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerService + "/GetPurchasers"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).GetPurchasers(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// structHandler 三个写方法的入参出参都是 Struct
func structHandler(method string, call func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerService + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Ledger_ServiceDesc is the grpc.ServiceDesc for the ledger gateway.
var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerService,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListContent", Handler: _Ledger_ListContent_Handler},
		{MethodName: "GetPurchasers", Handler: _Ledger_GetPurchasers_Handler},
		structHandler("PayForContent", LedgerServer.PayForContent),
		structHandler("ClaimReward", LedgerServer.ClaimReward),
		structHandler("Publish", LedgerServer.Publish),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.proto",
}
