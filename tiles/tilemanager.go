package tiles

import (
	"fmt"
	"image"

	"gioui.org/op/paint"
)

type TileProvider interface {
	GetTile(tile Tile) (image.Image, error)
}

// TileManager serves tiles of one layer as paint.ImageOps.
type TileManager struct {
	layer    Layer
	cache    Cache
	provider TileProvider
}

func NewTileManager(layer Layer, provider TileProvider) *TileManager {
	return &TileManager{
		layer:    layer,
		cache:    NewCache(CacheImageOp),
		provider: provider,
	}
}

func (tm *TileManager) Layer() Layer {
	return tm.layer
}

func (tm *TileManager) GetCache() Cache {
	return tm.cache
}

// GetTileKey returns a unique string key for a tile
func GetTileKey(tile Tile) string {
	return fmt.Sprintf("%d/%d/%d", tile.Zoom, tile.X, tile.Y)
}

// GetTile returns the ImageOp for tile. Only tiles the provider reports as final
// are cached; placeholders are returned as-is and asked for again next frame.
func (tm *TileManager) GetTile(tile Tile) (paint.ImageOp, error) {
	key := GetTileKey(tile)

	if cached, exists := tm.cache.Get(key); exists {
		if imageOp, ok := cached.(paint.ImageOp); ok {
			return imageOp, nil
		}
	}

	img, err := tm.provider.GetTile(tile)
	if err != nil {
		return paint.ImageOp{}, err
	}
	if p, ok := img.(placeholder); ok {
		return paint.NewImageOp(p.Image), nil
	}
	imageOp := paint.NewImageOp(img)
	tm.cache.Set(key, imageOp)
	return imageOp, nil
}

// placeholder marks images that stand in for a tile that is still loading.
type placeholder struct {
	image.Image
}
