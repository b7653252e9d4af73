package tiles

import (
	"image"
	"sync"
)

// ImageCache keeps decoded tiles until the process exits.
type ImageCache struct {
	cache map[string]image.Image
	mu    sync.RWMutex
}

func NewImageCache() *ImageCache {
	return &ImageCache{
		cache: make(map[string]image.Image),
	}
}

func (c *ImageCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.cache[key]
	return val, ok
}

// Set ignores values that are not an image.Image.
func (c *ImageCache) Set(key string, value any) {
	if img, ok := value.(image.Image); ok {
		c.mu.Lock()
		c.cache[key] = img
		c.mu.Unlock()
	}
}

func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *ImageCache) GetType() CacheType {
	return CacheImage
}
