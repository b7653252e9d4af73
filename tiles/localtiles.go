package tiles

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	placeholderBg     = color.RGBA{243, 236, 228, 255}
	placeholderGrid   = color.RGBA{214, 200, 186, 255}
	placeholderText   = color.RGBA{124, 92, 68, 255}
	placeholderBorder = 1
)

// LocalTileProvider renders placeholder tiles labelled with their z/x/y key.
// It never fails and is used while the real tile is downloading.
type LocalTileProvider struct{}

func NewLocalTileProvider() *LocalTileProvider {
	return &LocalTileProvider{}
}

func (p *LocalTileProvider) GetTile(tile Tile) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{placeholderBg}, image.Point{}, draw.Src)

	// only the top and left edges, neighbours draw the rest
	edges := []image.Rectangle{
		image.Rect(0, 0, TileSize, placeholderBorder),
		image.Rect(0, 0, placeholderBorder, TileSize),
	}
	for _, rect := range edges {
		draw.Draw(img, rect, &image.Uniform{placeholderGrid}, image.Point{}, draw.Src)
	}

	drawLabel(img, GetTileKey(tile))
	return img, nil
}

func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderText),
		Face: face,
	}
	width := d.MeasureString(text).Round()
	height := face.Metrics().Height.Round()
	d.Dot = fixed.Point26_6{
		X: fixed.I((TileSize - width) / 2),
		Y: fixed.I((TileSize + height) / 2),
	}
	d.DrawString(text)
}
