package semantic

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
)

// ToPayload converts a Go payload into Qdrant values.
func ToPayload(m map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(m))
	for k, v := range m {
		out[k] = ToValue(v)
	}
	return out
}

// ToValue converts a Go value into a Qdrant value. Unknown types are
// stored as their string form.
func ToValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case uint64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = ToValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []string:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = ToValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []float64:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = ToValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case map[string]any:
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: ToPayload(tv)}}}
	case map[string]float64:
		fields := make(map[string]*pb.Value, len(tv))
		for k, e := range tv {
			fields[k] = ToValue(e)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

// FromPayload converts Qdrant values back into plain Go values.
func FromPayload(m map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = FromValue(v)
	}
	return out
}

// FromValue converts a Qdrant value into string, int64, float64, bool,
// []any, map[string]any or nil.
func FromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, e := range vals {
			out[i] = FromValue(e)
		}
		return out
	case *pb.Value_StructValue:
		return FromPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}
