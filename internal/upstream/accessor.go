package upstream

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// Historical payloads name the same field differently. These accessors try
// candidate keys in priority order and return the first usable value.

func firstRaw(obj map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := obj[k]; ok && len(raw) > 0 && string(raw) != "null" {
			return raw, true
		}
	}
	return nil, false
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstInt(obj map[string]json.RawMessage, keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstStringMap(obj map[string]json.RawMessage, keys ...string) map[string]string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
			continue
		}
		out := make(map[string]string, len(m))
		for field, v := range m {
			switch tv := v.(type) {
			case string:
				out[field] = tv
			case float64:
				out[field] = strconv.FormatFloat(tv, 'f', -1, 64)
			case json.Number:
				out[field] = tv.String()
			case bool:
				out[field] = strconv.FormatBool(tv)
			case nil:
				out[field] = ""
			default:
				b, _ := json.Marshal(tv)
				out[field] = string(b)
			}
		}
		return out
	}
	return nil
}

func objectOf(body []byte) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	return obj
}
