package tiles

import (
	"sync"

	"gioui.org/op/paint"
)

// ImageOpCache keeps uploaded paint.ImageOps so a tile is not converted again every frame.
type ImageOpCache struct {
	cache map[string]paint.ImageOp
	mu    sync.RWMutex
}

func NewImageOpCache() *ImageOpCache {
	return &ImageOpCache{
		cache: make(map[string]paint.ImageOp),
	}
}

func (c *ImageOpCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.cache[key]
	return val, ok
}

func (c *ImageOpCache) Set(key string, value any) {
	if imageOp, ok := value.(paint.ImageOp); ok {
		c.mu.Lock()
		c.cache[key] = imageOp
		c.mu.Unlock()
	}
}

func (c *ImageOpCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *ImageOpCache) GetType() CacheType {
	return CacheImageOp
}
