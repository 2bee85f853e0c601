package storage

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records are stored as protobuf-encoded structpb.Struct values. Timestamps
// are kept as RFC3339Nano strings since structpb numbers are float64.

func encodeRecord(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return proto.Marshal(s)
}

func decodeRecord(data []byte) (record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return record{}, fmt.Errorf("decode record: %w", err)
	}
	return record{fields: s.GetFields()}, nil
}

type record struct {
	fields map[string]*structpb.Value
}

func (r record) str(key string) string {
	return r.fields[key].GetStringValue()
}

func (r record) boolean(key string) bool {
	return r.fields[key].GetBoolValue()
}

func (r record) int64(key string) int64 {
	return int64(r.fields[key].GetNumberValue())
}

func (r record) time(key string) time.Time {
	raw := r.str(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (r record) strings(key string) []string {
	values := r.fields[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
