package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olablt/findercafe/tiles/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) GetTile(tile Tile) (image.Image, error) {
	return p.GetTileContext(context.Background(), tile)
}

func (p *countingProvider) GetTileContext(ctx context.Context, tile Tile) (image.Image, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func TestTileManagerCachesFinalTiles(t *testing.T) {
	provider := &countingProvider{}
	tm := NewTileManager(OSMLayer(), provider)

	_, err := tm.GetTile(Tile{X: 1, Y: 1, Zoom: 2})
	require.NoError(t, err)
	_, err = tm.GetTile(Tile{X: 1, Y: 1, Zoom: 2})
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 1, tm.GetCache().Len())
	assert.Equal(t, CacheImageOp, tm.GetCache().GetType())
}

func TestTileManagerPropagatesErrors(t *testing.T) {
	tm := NewTileManager(OSMLayer(), &countingProvider{err: errors.New("boom")})
	_, err := tm.GetTile(Tile{})
	assert.Error(t, err)
	assert.Zero(t, tm.GetCache().Len())
}

func TestCombinedTileProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(2, 8)
	t.Cleanup(func() {
		cancel()
		pool.Shutdown()
	})

	primary := &countingProvider{}
	p := NewCombinedTileProvider(ctx, primary, NewLocalTileProvider(), pool, zaptest.NewLogger(t))
	var loaded atomic.Int32
	p.SetOnLoadCallback(func() { loaded.Add(1) })

	tm := NewTileManager(OSMLayer(), p)
	tile := Tile{X: 3, Y: 2, Zoom: 4}

	img, err := p.GetTile(tile)
	require.NoError(t, err)
	_, isPlaceholder := img.(placeholder)
	assert.True(t, isPlaceholder, "first answer is the fallback")

	require.Eventually(t, func() bool { return loaded.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = tm.GetTile(tile)
	require.NoError(t, err)
	_, err = tm.GetTile(tile)
	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, 1, tm.GetCache().Len())
}

func TestCombinedTileProviderRemembersFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(1, 8)
	t.Cleanup(func() {
		cancel()
		pool.Shutdown()
	})

	primary := &countingProvider{err: errors.New("offline")}
	p := NewCombinedTileProvider(ctx, primary, NewLocalTileProvider(), pool, zaptest.NewLogger(t))
	tile := Tile{X: 1, Y: 0, Zoom: 1}

	_, err := p.GetTile(tile)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !p.shouldLoad(GetTileKey(tile)) }, time.Second, 5*time.Millisecond)

	_, err = p.GetTile(tile)
	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestURLTileProvider(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))))

	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/0/0/0.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	layer := Layer{URLTemplate: srv.URL + "/{z}/{x}/{y}.png"}
	p := NewURLTileProvider(layer, "findercafe-test", zaptest.NewLogger(t))

	img, err := p.GetTile(Tile{X: 1, Y: 2, Zoom: 3})
	require.NoError(t, err)
	assert.Equal(t, TileSize, img.Bounds().Dx())
	assert.Equal(t, "/3/1/2.png", gotPath)
	assert.Equal(t, "findercafe-test", gotUA)

	_, err = p.GetTile(Tile{})
	assert.ErrorContains(t, err, "unexpected status code: 404")
}
