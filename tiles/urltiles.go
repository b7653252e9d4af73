package tiles

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// URLTileProvider downloads tiles of a Layer over HTTP.
type URLTileProvider struct {
	layer     Layer
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

func NewURLTileProvider(layer Layer, userAgent string, log *zap.Logger) *URLTileProvider {
	return &URLTileProvider{
		layer:     layer,
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: userAgent,
		log:       log.Named("tiles"),
	}
}

func (p *URLTileProvider) GetTile(tile Tile) (image.Image, error) {
	return p.GetTileContext(context.Background(), tile)
}

func (p *URLTileProvider) GetTileContext(ctx context.Context, tile Tile) (image.Image, error) {
	url := p.layer.TileURL(tile)
	p.log.Debug("requesting tile", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tile %s: create request: %w", GetTileKey(tile), err)
	}

	// The OSM tile usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/png,image/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile %s: fetch: %w", GetTileKey(tile), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile %s: unexpected status code: %d", GetTileKey(tile), resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tile %s: decode: %w", GetTileKey(tile), err)
	}

	p.log.Debug("loaded tile", zap.Stringer("tile", tile))
	return img, nil
}

func (t Tile) String() string {
	return GetTileKey(t)
}
