package tiles

type CacheType int

const (
	CacheImage CacheType = iota
	CacheImageOp
)

// Cache is an in-memory tile store keyed by GetTileKey.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Len() int
	GetType() CacheType
}

// NewCache returns the cache implementation for t.
func NewCache(t CacheType) Cache {
	switch t {
	case CacheImageOp:
		return NewImageOpCache()
	default:
		return NewImageCache()
	}
}
