package registry

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"google.golang.org/protobuf/types/known/structpb"
)

// 账本网关使用 protobuf well-known types (Struct/ListValue/StringValue)，
// 不需要 protoc 代码生成。U64 费用按十进制字符串传输 (与链上索引器一致)，
// 避免 float64 精度问题。

func recordToStruct(r core.ContentRecord) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"cid":          r.CID.String(),
		"owner":        r.Owner.String(),
		"owner_name":   r.OwnerName,
		"file_type":    r.FileKind.String(),
		"fee_paid":     strconv.FormatUint(uint64(r.FeePaid), 10),
		"consumer_fee": strconv.FormatUint(uint64(r.ConsumerFee), 10),
		"title":        r.Title,
		"description":  r.Description,
	})
}

func structToRecord(s *structpb.Struct) (core.ContentRecord, error) {
	f := s.GetFields()
	feePaid, err := parseOctas(f["fee_paid"])
	if err != nil {
		return core.ContentRecord{}, fmt.Errorf("fee_paid: %w", err)
	}
	consumerFee, err := parseOctas(f["consumer_fee"])
	if err != nil {
		return core.ContentRecord{}, fmt.Errorf("consumer_fee: %w", err)
	}
	return core.ContentRecord{
		CID:         types.CID(f["cid"].GetStringValue()),
		Owner:       types.Address(f["owner"].GetStringValue()),
		OwnerName:   f["owner_name"].GetStringValue(),
		FileKind:    types.FileKind(f["file_type"].GetStringValue()),
		FeePaid:     feePaid,
		ConsumerFee: consumerFee,
		Title:       f["title"].GetStringValue(),
		Description: f["description"].GetStringValue(),
	}, nil
}

var errMissingAmount = errors.New("amount is missing")

// maxOctas 2^64：float64 表示不了 MaxUint64，>= 2^64 即越界
const maxOctas = float64(1 << 64)

// parseOctas 兼容字符串和整数两种表示
// 缺失或 null 是错误：费用以账本为准，不能默认成免费。
func parseOctas(v *structpb.Value) (types.Octas, error) {
	if v == nil {
		return 0, errMissingAmount
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return 0, errMissingAmount
		}
		n, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, err
		}
		return types.Octas(n), nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		switch {
		case math.IsNaN(n) || n < 0 || n >= maxOctas:
			return 0, fmt.Errorf("amount %v out of range", n)
		case n != math.Trunc(n):
			return 0, fmt.Errorf("amount %v is not an integer", n)
		}
		return types.Octas(n), nil
	case *structpb.Value_NullValue:
		return 0, errMissingAmount
	default:
		return 0, fmt.Errorf("unexpected value type %T", kind)
	}
}

func receiptToStruct(r Receipt) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"success": structpb.NewBoolValue(r.Success),
		"tx_ref":  structpb.NewStringValue(r.TxRef),
	}}
}

func structToReceipt(s *structpb.Struct) Receipt {
	f := s.GetFields()
	return Receipt{
		Success: f["success"].GetBoolValue(),
		TxRef:   f["tx_ref"].GetStringValue(),
	}
}
