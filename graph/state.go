package graph

// State is the mutable key-value context threaded through one workflow
// execution. It is owned by exactly one execution and is never shared
// across requests, so no locking is required. No component may assume a
// key exists; the typed accessors all return zero values for missing or
// mistyped keys.
type State map[string]any

// Clone returns a shallow copy. Container values are shared with the
// original, which is acceptable because components overwrite keys rather
// than mutating values in place.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s State) GetString(key string) string {
	v, _ := s[key].(string)
	return v
}

// GetStrings accepts both []string and the []any produced by JSON decoding.
func (s State) GetStrings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func (s State) GetBool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

func (s State) GetInt(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s State) GetFloat(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (s State) GetMap(key string) map[string]any {
	v, _ := s[key].(map[string]any)
	return v
}

func (s State) GetMaps(key string) []map[string]any {
	switch v := s[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
