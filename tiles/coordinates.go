package tiles

import (
	"image"
	"math"

	"github.com/paulmach/orb"
)

const (
	TileSize       = 256
	maxMercatorLat = 85.05112878
)

// Tile represents a map tile coordinates
type Tile struct {
	X, Y, Zoom int
}

// LatLng represents a geographical point
type LatLng struct {
	Lat, Lng float64
}

// Point returns the orb representation, which is ordered lon/lat.
func (ll LatLng) Point() orb.Point {
	return orb.Point{ll.Lng, ll.Lat}
}

func clampLat(lat float64) float64 {
	return max(-maxMercatorLat, min(lat, maxMercatorLat))
}

// LatLngToTile converts geographical coordinates to tile coordinates
func LatLngToTile(ll LatLng, zoom int) Tile {
	x, y := CalculateWorldCoordinates(ll, zoom)
	return ConstrainTile(Tile{
		X:    int(math.Floor(x / TileSize)),
		Y:    int(math.Floor(y / TileSize)),
		Zoom: zoom,
	})
}

// TileToLatLng converts tile coordinates to geographical coordinates (returns north-west corner of tile)
func TileToLatLng(tile Tile) LatLng {
	return WorldToLatLng(float64(tile.X*TileSize), float64(tile.Y*TileSize), tile.Zoom)
}

// CalculateWorldCoordinates converts geographical coordinates to world pixel coordinates at given zoom level
func CalculateWorldCoordinates(ll LatLng, zoom int) (float64, float64) {
	n := math.Pow(2, float64(zoom))
	latRad := clampLat(ll.Lat) * math.Pi / 180.0
	worldX := float64(TileSize) * n * (ll.Lng + 180) / 360
	worldY := float64(TileSize) * n * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return worldX, worldY
}

// WorldToLatLng converts world pixel coordinates back to geographical coordinates
func WorldToLatLng(worldX, worldY float64, zoom int) LatLng {
	n := math.Pow(2, float64(zoom))
	lng := (worldX/(float64(TileSize)*n))*360 - 180
	latRad := math.Pi * (1 - 2*worldY/(float64(TileSize)*n))
	lat := 180 / math.Pi * math.Atan(math.Sinh(latRad))
	return LatLng{Lat: lat, Lng: lng}
}

// Project returns the screen position of ll in a view of the given size centered on center.
func Project(center LatLng, zoom int, size image.Point, ll LatLng) image.Point {
	cx, cy := CalculateWorldCoordinates(center, zoom)
	px, py := CalculateWorldCoordinates(ll, zoom)
	return image.Point{
		X: size.X/2 + int(math.Round(px-cx)),
		Y: size.Y/2 + int(math.Round(py-cy)),
	}
}

// Unproject is the inverse of Project.
func Unproject(center LatLng, zoom int, size image.Point, p image.Point) LatLng {
	cx, cy := CalculateWorldCoordinates(center, zoom)
	return WorldToLatLng(cx+float64(p.X-size.X/2), cy+float64(p.Y-size.Y/2), zoom)
}

// ConstrainTile ensures tile coordinates are within valid bounds for the zoom level
func ConstrainTile(tile Tile) Tile {
	maxTile := (1 << tile.Zoom) - 1
	tile.X = max(0, min(tile.X, maxTile))
	tile.Y = max(0, min(tile.Y, maxTile))
	return tile
}

// CalculateVisibleTiles calculates which tiles are visible given a center point and screen size.
// Tiles outside the world are dropped rather than clamped so no tile is drawn twice.
func CalculateVisibleTiles(center LatLng, zoom int, screenSize image.Point) []Tile {
	if screenSize.X <= 0 || screenSize.Y <= 0 {
		return nil
	}
	cx, cy := CalculateWorldCoordinates(center, zoom)
	halfX := float64(screenSize.X) / 2
	halfY := float64(screenSize.Y) / 2

	startX := int(math.Floor((cx - halfX) / TileSize))
	endX := int(math.Floor((cx + halfX) / TileSize))
	startY := int(math.Floor((cy - halfY) / TileSize))
	endY := int(math.Floor((cy + halfY) / TileSize))

	maxTile := (1 << zoom) - 1
	visibleTiles := make([]Tile, 0, (endX-startX+1)*(endY-startY+1))
	for x := startX; x <= endX; x++ {
		for y := startY; y <= endY; y++ {
			if x < 0 || y < 0 || x > maxTile || y > maxTile {
				continue
			}
			visibleTiles = append(visibleTiles, Tile{X: x, Y: y, Zoom: zoom})
		}
	}
	return visibleTiles
}
