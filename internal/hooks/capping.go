package hooks

// Caps applied to observability payloads before bus emission. Deep or wide
// values are summarized so a single large tool result cannot balloon the
// event stream.
const (
	capMaxDepth   = 4
	capMaxItems   = 40
	capMaxStrLen  = 600
	capTruncation = "…[truncated]"
)

// capValue bounds a value at depth 4, 40 items per level, and 600 chars
// per string.
func capValue(v any, depth int) any {
	if depth >= capMaxDepth {
		return "…[depth capped]"
	}

	switch typed := v.(type) {
	case string:
		if len(typed) > capMaxStrLen {
			return typed[:capMaxStrLen] + capTruncation
		}
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		n := 0
		for k, val := range typed {
			if n >= capMaxItems {
				out["…"] = "…[items capped]"
				break
			}
			out[k] = capValue(val, depth+1)
			n++
		}
		return out
	case Payload:
		return capValue(map[string]any(typed), depth)
	case []any:
		limit := len(typed)
		capped := false
		if limit > capMaxItems {
			limit = capMaxItems
			capped = true
		}
		out := make([]any, 0, limit+1)
		for _, val := range typed[:limit] {
			out = append(out, capValue(val, depth+1))
		}
		if capped {
			out = append(out, "…[items capped]")
		}
		return out
	default:
		return v
	}
}
