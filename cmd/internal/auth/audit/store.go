package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]Event, int, error)
	Count(ctx context.Context, f Filter) (int, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
	Top(ctx context.Context, d Dimension, since time.Time, limit int) ([]Ranked, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func metadataText(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// cloneMetadata deep-copies nested maps and slices so stored events never
// share mutable state with callers.
func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
