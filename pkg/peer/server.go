package peer

import (
	"context"
	"errors"

	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server 把本地 pin 存储提供给其他 peer
type Server struct {
	UnimplementedPinServiceServer
	store storage.Store
}

func NewServer(store storage.Store) *Server {
	return &Server{store: store}
}

func (s *Server) Has(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	id := types.CID(req.GetValue())
	if err := storage.CheckKey(id); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ok, err := s.store.Has(ctx, id)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "has %s: %v", id, err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) Fetch(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	id := types.CID(req.GetValue())
	if err := storage.CheckKey(id); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	data, err := storage.ReadAll(ctx, s.store, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "%s not pinned here", id)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "fetch %s: %v", id, err)
	}
	return wrapperspb.Bytes(data), nil
}
