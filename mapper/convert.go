package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

func decodeValue(r *Registry, kind Kind, uri, layout string, raw any) (any, error) {
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case KindInt:
		return toInt(raw)
	case KindFloat:
		return toFloat(raw)
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil
	case KindTime:
		return toTime(raw, layout)
	case KindStringList:
		return toStrings(raw)
	case KindRaw:
		return raw, nil
	case KindObject:
		return r.Decode(raw, uri)
	case KindObjectList:
		return r.DecodeList(raw, uri)
	}
	return nil, fmt.Errorf("unknown field kind %d", kind)
}

// encodeValue returns the wire form of v; ok is false when the value is
// absent and the key should be omitted.
func encodeValue(r *Registry, kind Kind, layout string, v any) (wire any, ok bool, err error) {
	if v == nil {
		return nil, false, nil
	}
	switch kind {
	case KindTime:
		return v.(time.Time).Format(layout), true, nil
	case KindStringList:
		items := v.([]string)
		if items == nil {
			return nil, false, nil
		}
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true, nil
	case KindObject:
		m, err := r.Encode(v)
		return m, err == nil, err
	case KindObjectList:
		out, err := r.EncodeList(v.([]any))
		return out, err == nil, err
	}
	return v, true, nil
}

func toInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n >= 1<<63 || n < math.MinInt64 {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func toFloat(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("expected number, got %T", raw)
}

func toTime(raw any, layout string) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		return time.Parse(layout, v)
	case time.Time:
		return v, nil
	}
	secs, err := toFloat(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected time, got %T", raw)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", raw)
}
