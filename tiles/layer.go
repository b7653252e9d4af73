package tiles

import (
	"strconv"
	"strings"
)

const (
	OSMURLTemplate = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	OSMAttribution = "© OpenStreetMap contributors"
)

// Layer describes a raster tile layer. A Layer is static once added to a map.
type Layer struct {
	URLTemplate string
	Attribution string
	Subdomains  []string
	MaxZoom     int
}

// OSMLayer returns the standard OpenStreetMap layer.
func OSMLayer() Layer {
	return Layer{
		URLTemplate: OSMURLTemplate,
		Attribution: OSMAttribution,
		Subdomains:  []string{"a", "b", "c"},
		MaxZoom:     19,
	}
}

// TileURL expands the {s}, {z}, {x} and {y} placeholders for tile.
// Subdomains rotate on x+y so neighbouring tiles spread across hosts.
func (l Layer) TileURL(tile Tile) string {
	s := ""
	if n := len(l.Subdomains); n > 0 {
		s = l.Subdomains[(tile.X+tile.Y)%n]
	}
	r := strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(tile.Zoom),
		"{x}", strconv.Itoa(tile.X),
		"{y}", strconv.Itoa(tile.Y),
	)
	return r.Replace(l.URLTemplate)
}
