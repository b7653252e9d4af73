package tiles

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/olablt/findercafe/tiles/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const failedTileRetry = time.Minute

// ContextTileProvider is a TileProvider whose loads can be cancelled.
type ContextTileProvider interface {
	GetTileContext(ctx context.Context, tile Tile) (image.Image, error)
}

// CombinedTileProvider answers from the primary cache, or with a fallback tile while
// the primary one is loaded in the background.
type CombinedTileProvider struct {
	ctx      context.Context
	primary  ContextTileProvider
	fallback TileProvider
	pool     *worker.Pool
	cache    *ImageCache
	group    singleflight.Group
	log      *zap.Logger

	onLoadFunc func()

	failedMu sync.Mutex
	failed   map[string]time.Time
}

func NewCombinedTileProvider(ctx context.Context, primary ContextTileProvider, fallback TileProvider, pool *worker.Pool, log *zap.Logger) *CombinedTileProvider {
	return &CombinedTileProvider{
		ctx:      ctx,
		primary:  primary,
		fallback: fallback,
		pool:     pool,
		cache:    NewImageCache(),
		log:      log.Named("tiles"),
		failed:   make(map[string]time.Time),
	}
}

// SetOnLoadCallback registers a function called after each primary tile arrives.
func (p *CombinedTileProvider) SetOnLoadCallback(callback func()) {
	p.onLoadFunc = callback
}

func (p *CombinedTileProvider) GetTile(tile Tile) (image.Image, error) {
	key := GetTileKey(tile)

	if cached, exists := p.cache.Get(key); exists {
		return cached.(image.Image), nil
	}

	fallbackImg, err := p.fallback.GetTile(tile)
	if err != nil {
		return nil, fmt.Errorf("fallback tile %s: %w", key, err)
	}

	if p.shouldLoad(key) {
		// DoChan starts at most one load per key; later frames join the running one.
		p.group.DoChan(key, func() (any, error) {
			return nil, p.load(tile, key)
		})
	}

	return placeholder{fallbackImg}, nil
}

func (p *CombinedTileProvider) shouldLoad(key string) bool {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()
	at, ok := p.failed[key]
	if !ok {
		return true
	}
	if time.Since(at) < failedTileRetry {
		return false
	}
	delete(p.failed, key)
	return true
}

func (p *CombinedTileProvider) load(tile Tile, key string) error {
	done := make(chan error, 1)
	err := p.pool.Submit(worker.Task{
		Ctx:     p.ctx,
		Timeout: 20 * time.Second,
		Work: func(ctx context.Context) error {
			img, err := p.primary.GetTileContext(ctx, tile)
			if err == nil {
				p.cache.Set(key, img)
			}
			done <- err
			return err
		},
	})
	if err != nil {
		return err
	}

	select {
	case err = <-done:
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
	if err != nil {
		p.log.Warn("tile load failed", zap.String("tile", key), zap.Error(err))
		p.failedMu.Lock()
		p.failed[key] = time.Now()
		p.failedMu.Unlock()
		return err
	}

	if p.onLoadFunc != nil {
		p.onLoadFunc()
	}
	return nil
}
