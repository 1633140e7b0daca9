package cache

import "encoding/json"

// Sizer estimates the memory held by a cached value, in bytes.
type Sizer[V any] func(V) int64

type sized interface {
	Size() int
}

// DefaultSizer understands values with a Size() int method, byte slices and
// strings, and falls back to the JSON encoded length.
func DefaultSizer[V any](v V) int64 {
	switch x := any(v).(type) {
	case sized:
		return int64(x.Size())
	case []byte:
		return int64(len(x))
	case string:
		return int64(len(x))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(b))
}
